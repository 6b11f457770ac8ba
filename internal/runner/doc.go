package runner

// Package runner drives the engine on a cron cadence: cadence parsing shares
// the engine's recurrence grammar, ticks skip while a pass is in flight, and
// every pass is bounded by an optional timeout.
