package engine

import (
	"context"
	"fmt"
	"time"

	"pmsched/internal/model"
)

// resolve dispatches one assignment to the evaluator its trigger selects and
// returns a normalized verdict. Evaluator failures come back as typed errors
// (ConfigError, DataError); they never escape as panics, so one bad
// assignment cannot take down a pass.
func (e *Engine) resolve(ctx context.Context, task *model.PMTask, a *model.Assignment, now time.Time) (Verdict, error) {
	tr := model.ResolveTrigger(task, a)
	switch tr.Kind {
	case model.TriggerMeter:
		return e.evalUsage(ctx, tr, a, task.TenantID, now)
	case model.TriggerCalendar:
		return evalCalendar(tr.Expr, a.LastGeneratedAt, now)
	default:
		// ResolveTrigger is exhaustive; this only fires on a new, unhandled kind.
		return Verdict{}, &ConfigError{Err: fmt.Errorf("unhandled trigger kind %v", tr.Kind)}
	}
}
