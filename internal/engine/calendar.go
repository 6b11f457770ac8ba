package engine

import (
	"errors"
	"time"
)

// evalCalendar decides whether a calendar rule has a due occurrence at or
// before now, relative to the assignment's last generation.
//
// A never-generated assignment is due immediately: every periodic rule has
// occurrences arbitrarily far in the past, so the earliest occurrence <= now
// always exists. Otherwise the rule is due iff the first occurrence strictly
// after last is not after now.
//
// NextDue is always the first occurrence strictly after now, so callers can
// surface it even when nothing is due.
func evalCalendar(expr string, last, now time.Time) (Verdict, error) {
	if expr == "" {
		return Verdict{}, &ConfigError{Err: errors.New("no recurrence configured")}
	}
	sched, err := ParseRecurrence(expr)
	if err != nil {
		return Verdict{}, &ConfigError{Err: err}
	}

	v := Verdict{Reason: ReasonCalendar, NextDue: sched.Next(now)}
	if last.IsZero() {
		v.Due = true
		return v, nil
	}
	next := sched.Next(last)
	v.Due = !next.IsZero() && !next.After(now)
	return v, nil
}
