package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pmsched/internal/model"
	"pmsched/internal/store"
)

// convertUsage converts a native-unit sum into the metric's reporting unit.
// Summation stays in the native unit; the conversion happens exactly once
// here to avoid compounding rounding across samples.
func convertUsage(metric string, sum float64) float64 {
	switch normalizeMetric(metric) {
	case "runhours":
		// Run-time telemetry records minutes.
		return sum / 60
	default:
		// Counter-style metrics (cycles, starts, ...) are already in their
		// reporting unit.
		return sum
	}
}

func normalizeMetric(metric string) string {
	m := strings.ToLower(strings.TrimSpace(metric))
	return strings.NewReplacer("_", "", "-", "").Replace(m)
}

// evalUsage aggregates the trailing-window usage for an asset and compares it
// against the meter threshold.
//
// The window itself bounds the evaluation period: there is no cumulative
// usage counter that resets on generation. To keep repeated passes from
// re-emitting for the same crossing, an assignment already serviced inside
// the current window is not due again until its last generation ages out of
// the window.
func (e *Engine) evalUsage(ctx context.Context, tr model.Trigger, a *model.Assignment, tenantID string, now time.Time) (Verdict, error) {
	if tr.Metric == "" {
		return Verdict{}, &ConfigError{Err: errors.New("usage metric missing")}
	}
	if tr.Threshold <= 0 {
		return Verdict{}, &ConfigError{Err: fmt.Errorf("usage target must be > 0, got %v", tr.Threshold)}
	}
	lookback := tr.LookbackDays
	if lookback == 0 {
		lookback = e.cfg.DefaultLookbackDays
	}
	if lookback <= 0 {
		return Verdict{}, &ConfigError{Err: fmt.Errorf("lookback days must be > 0, got %d", lookback)}
	}

	windowStart := now.AddDate(0, 0, -lookback)

	sum, err := e.st.SumUsage(ctx, store.UsageQuery{
		AssetID:  a.AssetID,
		TenantID: tenantID,
		Metric:   tr.Metric,
		Start:    windowStart,
		End:      now,
	})
	if err != nil {
		return Verdict{}, &DataError{Err: fmt.Errorf("sum usage for asset %s: %w", a.AssetID, err)}
	}

	agg := convertUsage(tr.Metric, sum)

	v := Verdict{Reason: ReasonMeter, Usage: agg}
	serviced := !a.LastGeneratedAt.IsZero() && !a.LastGeneratedAt.Before(windowStart)
	v.Due = agg >= tr.Threshold && !serviced
	if serviced {
		// Earliest instant the last generation leaves the window.
		v.NextDue = a.LastGeneratedAt.AddDate(0, 0, lookback)
	}
	return v, nil
}
