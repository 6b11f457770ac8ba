package model

import "strings"

// TriggerKind selects which evaluator governs an assignment.
type TriggerKind int

const (
	TriggerCalendar TriggerKind = iota
	TriggerMeter
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerCalendar:
		return "calendar"
	case TriggerMeter:
		return "meter"
	default:
		return "unknown"
	}
}

// DefaultLookbackDays is the usage aggregation window applied when an
// assignment does not set its own.
const DefaultLookbackDays = 30

// Trigger is the normalized, exhaustive form of an assignment's rule:
// either Calendar(Expr) or Meter(Metric, Threshold, LookbackDays).
// Exactly one family governs an assignment at evaluation time.
type Trigger struct {
	Kind TriggerKind

	// Calendar form.
	Expr string

	// Meter form.
	Metric       string
	Threshold    float64
	LookbackDays int
}

// ResolveTrigger normalizes an assignment's trigger configuration.
//
// Precedence:
//  1. An explicit TriggerSpec.Type ("meter" or "time") wins.
//  2. Otherwise, legacy usage fields select the meter form when both metric
//     and target are set and non-zero and the lookback is positive.
//  3. Otherwise the calendar form governs; an assignment without its own
//     Interval inherits the task-level expression (or the task-level meter
//     rule, for tasks configured with a coarse meter recurrence).
func ResolveTrigger(t *PMTask, a *Assignment) Trigger {
	lookback := a.UsageLookbackDays
	if lookback == 0 {
		lookback = DefaultLookbackDays
	}

	metric := strings.TrimSpace(a.UsageMetric)
	threshold := a.UsageTarget

	switch strings.ToLower(strings.TrimSpace(a.TriggerSpec.Type)) {
	case "meter":
		if a.TriggerSpec.MeterThreshold != 0 {
			threshold = a.TriggerSpec.MeterThreshold
		}
		if metric == "" && t != nil {
			// Coarse task-level meter rule.
			metric = strings.TrimSpace(t.Recurrence.Metric)
			if threshold == 0 {
				threshold = t.Recurrence.Threshold
			}
		}
		return Trigger{Kind: TriggerMeter, Metric: metric, Threshold: threshold, LookbackDays: lookback}
	case "time":
		return Trigger{Kind: TriggerCalendar, Expr: calendarExpr(t, a)}
	}

	// Legacy shape: both metric and target populated selects usage.
	if metric != "" && threshold > 0 && lookback > 0 {
		return Trigger{Kind: TriggerMeter, Metric: metric, Threshold: threshold, LookbackDays: lookback}
	}

	// Task-level coarse meter rule applies when the assignment carries no
	// calendar cadence of its own.
	if t != nil && strings.EqualFold(strings.TrimSpace(t.Recurrence.Kind), "meter") &&
		strings.TrimSpace(a.Interval) == "" {
		return Trigger{
			Kind:         TriggerMeter,
			Metric:       strings.TrimSpace(t.Recurrence.Metric),
			Threshold:    t.Recurrence.Threshold,
			LookbackDays: lookback,
		}
	}

	return Trigger{Kind: TriggerCalendar, Expr: calendarExpr(t, a)}
}

func calendarExpr(t *PMTask, a *Assignment) string {
	if expr := strings.TrimSpace(a.Interval); expr != "" {
		return expr
	}
	if t != nil {
		return strings.TrimSpace(t.Recurrence.Expr)
	}
	return ""
}
