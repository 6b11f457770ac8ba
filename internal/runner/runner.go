package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"pmsched/internal/engine"
	logx "pmsched/pkg/logx"
)

// Config controls the periodic trigger.
type Config struct {
	Enabled bool

	// Schedule accepts everything engine.ParseRecurrence accepts
	// ("0 * * * *", "@hourly", "every 6 hours", "30m", ...).
	Schedule string

	// Timezone is an IANA TZ name; empty means the process-local zone.
	Timezone string

	// RunTimeout bounds a single pass. 0 disables the bound.
	RunTimeout time.Duration

	// Options are handed to every triggered pass.
	Options engine.Options
}

// Snapshot is a point-in-time view of the runner for diagnostics.
type Snapshot struct {
	Running  bool             `json:"running"`
	InFlight bool             `json:"in_flight"`
	NextRun  time.Time        `json:"next_run,omitzero"`
	Last     engine.RunReport `json:"last,omitzero"`
	HasLast  bool             `json:"has_last"`
}

// Service triggers engine passes on a cron cadence.
//
// Overlap policy: if a pass is still in flight when the next tick fires, the
// tick is skipped. The exactly-once guard in the engine would make an overlap
// harmless, but skipping keeps a slow store from stacking passes.
type Service struct {
	cfg Config
	log logx.Logger
	eng *engine.Engine

	mu      sync.Mutex
	c       *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc

	inflight atomic.Bool

	lastMu  sync.Mutex
	last    engine.RunReport
	hasLast bool
}

func New(cfg Config, eng *engine.Engine, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, eng: eng}
}

// Start registers the schedule and begins ticking. Idempotent; a second Start
// while running is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Debug("runner disabled; not starting")
		return nil
	}
	sched, err := engine.ParseRecurrence(s.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("runner schedule: %w", err)
	}
	loc, err := s.location()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	c := cron.New(cron.WithLocation(loc))
	c.Schedule(sched, cron.FuncJob(s.tick))
	c.Start()
	s.c = c

	s.log.Info("runner started",
		logx.String("schedule", s.cfg.Schedule),
		logx.String("tz", loc.String()),
		logx.Time("next", sched.Next(time.Now().In(loc))))
	return nil
}

// Stop halts the cadence and waits (bounded by ctx) for an in-flight pass.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopCtx := c.Stop() // done when all running jobs returned
	if cancel != nil {
		cancel()
	}
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		s.log.Warn("runner stop timed out waiting for in-flight pass")
	}
	s.log.Info("runner stopped")
}

// RunNow triggers one pass immediately, outside the cadence. It respects the
// same overlap-skip policy as scheduled ticks.
func (s *Service) RunNow(ctx context.Context) (engine.RunReport, error) {
	if !s.inflight.CompareAndSwap(false, true) {
		return engine.RunReport{}, ErrPassInFlight
	}
	defer s.inflight.Store(false)
	return s.runPass(ctx)
}

// Snapshot reports runner state for the diagnostics surface.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	snap := Snapshot{
		Running:  c != nil,
		InFlight: s.inflight.Load(),
	}
	if c != nil {
		if entries := c.Entries(); len(entries) > 0 {
			snap.NextRun = entries[0].Next
		}
	}
	s.lastMu.Lock()
	snap.Last, snap.HasLast = s.last, s.hasLast
	s.lastMu.Unlock()
	return snap
}

func (s *Service) tick() {
	if !s.inflight.CompareAndSwap(false, true) {
		s.log.Warn("previous pass still in flight; skipping tick")
		return
	}
	defer s.inflight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("pass panicked",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.runPass(ctx); err != nil {
		s.log.Error("pass failed", logx.Any("err", err))
	}
}

func (s *Service) runPass(ctx context.Context) (engine.RunReport, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	report, err := s.eng.Run(ctx, s.cfg.Options)
	s.lastMu.Lock()
	s.last, s.hasLast = report, true
	s.lastMu.Unlock()
	return report, err
}

func (s *Service) location() (*time.Location, error) {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("runner timezone %q: %w", tz, err)
	}
	return loc, nil
}
