package model

import (
	"encoding/json"
	"time"
)

// PMTask is a named maintenance program within a tenant.
//
// Tasks are created and edited by maintenance planners; the engine only reads
// them. LastGeneratedAt is the one field the engine writes back (bumped when a
// work item is emitted for any of the task's assignments).
type PMTask struct {
	ID       string
	TenantID string
	SiteID   string
	Title    string
	Active   bool

	// Recurrence is the coarse task-level rule. Assignments without their own
	// cadence inherit the calendar expression from here.
	Recurrence Recurrence

	Assignments []Assignment

	LastGeneratedAt time.Time
}

// Recurrence is the task-level recurrence descriptor.
//
// Kind "calendar" uses Expr (cron spec, descriptor, duration, or a planner
// word like "monthly"). Kind "meter" uses Metric + Threshold.
type Recurrence struct {
	Kind      string
	Expr      string
	Metric    string
	Threshold float64
}

// Assignment pairs one asset with one recurrence configuration inside a task.
//
// NextDue and LastGeneratedAt are engine-owned: they change only through the
// store's compare-and-set, once per successful generation.
type Assignment struct {
	ID      string
	TaskID  string
	AssetID string

	// Interval is a textual calendar cadence ("daily", "every 14 days",
	// "0 6 * * 1", ...). Empty means: inherit the task-level expression.
	Interval string

	UsageMetric       string
	UsageTarget       float64
	UsageLookbackDays int

	TriggerSpec TriggerSpec

	// Checklist and RequiredParts are opaque to the engine and passed through
	// to the emitted work item verbatim.
	Checklist     json.RawMessage
	RequiredParts json.RawMessage

	NextDue         time.Time
	LastGeneratedAt time.Time
}

// TriggerSpec is the raw per-assignment trigger descriptor as stored.
// ResolveTrigger normalizes it (together with the legacy usage fields and the
// task-level rule) into a Trigger.
type TriggerSpec struct {
	Type           string // "time" | "meter" | ""
	MeterThreshold float64
}

// UsageSample is one time-stamped telemetry record attributable to an asset.
// Values are in the metric's native unit (run-time metrics record minutes).
// Samples are immutable and read-only to the engine.
type UsageSample struct {
	AssetID    string
	TenantID   string
	Metric     string
	Value      float64
	RecordedAt time.Time
}

// WorkItem is the engine's output artifact. Once created it is owned by the
// work-order subsystem; the engine never mutates it.
type WorkItem struct {
	ID           string
	TaskID       string
	AssignmentID string
	TenantID     string
	SiteID       string
	Title        string

	Checklist     json.RawMessage
	RequiredParts json.RawMessage

	CreatedAt time.Time
}

// AssetRef identifies a maintained asset. The engine only uses it to qualify
// generated work-item titles.
type AssetRef struct {
	ID       string
	TenantID string
	SiteID   string
	Name     string
}
