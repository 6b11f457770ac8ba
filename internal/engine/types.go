package engine

import (
	"time"
)

// Config controls one scheduling pass.
type Config struct {
	// Workers bounds concurrent assignment evaluations within a pass.
	Workers int

	// DefaultLookbackDays applies when an assignment's meter rule does not
	// set its own aggregation window.
	DefaultLookbackDays int

	// EmitRatePerSec caps work-item emission throughput so a large overdue
	// backlog cannot flood the downstream work-order service. 0 = unlimited.
	EmitRatePerSec int
}

// Options scope a single pass.
type Options struct {
	// TenantID limits the pass to one tenant. Empty = all tenants.
	TenantID string

	// Now fixes the evaluation instant (tests, replays). Zero = wall clock.
	Now time.Time
}

// Verdict reason values.
const (
	ReasonCalendar = "calendar"
	ReasonMeter    = "meter"
)

// Verdict is the normalized outcome of evaluating one assignment's trigger.
type Verdict struct {
	Due bool

	// NextDue is the first occurrence strictly after the evaluation instant
	// (calendar), or the earliest instant the meter rule can fire again.
	// Kept for observability even when not due.
	NextDue time.Time

	// Reason records which evaluator produced the verdict.
	Reason string

	// Usage is the aggregated, unit-converted usage value (meter verdicts only).
	Usage float64
}

// AssignmentError is one failed assignment inside a run report.
type AssignmentError struct {
	TaskID       string `json:"task_id"`
	AssignmentID string `json:"assignment_id"`
	AssetID      string `json:"asset_id,omitempty"`
	Err          string `json:"err"`
}

// RunReport summarizes one pass.
//
// Evaluated counts every assignment examined. Skipped counts assignments that
// produced no work item for a non-error reason (not due, or a concurrent run
// won the guard). Errors holds configuration/data/emission failures; they
// never abort the pass.
type RunReport struct {
	RunID    string    `json:"run_id"`
	TenantID string    `json:"tenant_id,omitempty"`
	Started  time.Time `json:"started"`

	Evaluated int `json:"evaluated"`
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`

	Errors []AssignmentError `json:"errors,omitempty"`

	Took time.Duration `json:"took"`
}

// WorkItemEvent is published on the bus for every emitted work item.
type WorkItemEvent struct {
	WorkItemID   string    `json:"work_item_id"`
	TaskID       string    `json:"task_id"`
	AssignmentID string    `json:"assignment_id"`
	TenantID     string    `json:"tenant_id"`
	AssetID      string    `json:"asset_id"`
	Title        string    `json:"title"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}
