package store

// Package store persists the engine's world: PM tasks and their assignments,
// usage telemetry, resolvable assets, and emitted work items.
//
// The compare-and-set on assignment state (UpdateAssignmentState) is the only
// synchronization primitive the engine needs; any backend must implement it
// atomically.
