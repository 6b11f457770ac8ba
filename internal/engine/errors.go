package engine

import (
	"errors"
	"fmt"
)

// ErrConcurrencyLost means another run claimed this due occurrence first.
// This is a normal outcome under overlapping passes, not a failure.
var ErrConcurrencyLost = errors.New("due occurrence already claimed by a concurrent run")

// ConfigError marks an assignment whose rule cannot be evaluated as
// configured: malformed recurrence expression, missing metric, non-positive
// threshold or lookback. The assignment is skipped, never treated as due.
type ConfigError struct{ Err error }

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// DataError marks a failed read against the store (telemetry unavailable,
// task/assignment state unreadable). The assignment is skipped this pass and
// naturally retried on the next one.
type DataError struct{ Err error }

func (e *DataError) Error() string { return fmt.Sprintf("data unavailable: %v", e.Err) }
func (e *DataError) Unwrap() error { return e.Err }

func IsDataError(err error) bool {
	var e *DataError
	return errors.As(err, &e)
}

// EmitError marks a work-item emission that failed after the guard had
// already claimed the occurrence. The engine rolls the claim back so the next
// pass retries.
type EmitError struct{ Err error }

func (e *EmitError) Error() string { return fmt.Sprintf("emission: %v", e.Err) }
func (e *EmitError) Unwrap() error { return e.Err }

func IsEmitError(err error) bool {
	var e *EmitError
	return errors.As(err, &e)
}
