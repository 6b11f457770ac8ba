package engine

// Package engine holds the scheduling core: recurrence parsing, the calendar
// and meter trigger evaluators, the exactly-once generation guard, and the
// batch pass that ties them together.
//
// The engine is stateless between passes. All durable state (assignment
// watermarks, emitted work items) lives in the store; the compare-and-set on
// an assignment's lastGeneratedAt is the only cross-pass synchronization.
