package engine

import (
	"golang.org/x/time/rate"

	"pmsched/internal/eventbus"
	"pmsched/internal/store"
	logx "pmsched/pkg/logx"
)

// Engine evaluates every active PM assignment and emits a work item for each
// due occurrence, at most once. One Engine is safe for concurrent passes;
// the store's compare-and-set is the only synchronization between them.
type Engine struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus
	st  store.Store

	limiter *rate.Limiter
}

func New(cfg Config, st store.Store, log logx.Logger, bus eventbus.Bus) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DefaultLookbackDays <= 0 {
		cfg.DefaultLookbackDays = 30
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	e := &Engine{cfg: cfg, log: log, bus: bus, st: st}
	if cfg.EmitRatePerSec > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.EmitRatePerSec), cfg.EmitRatePerSec)
	}
	return e
}
