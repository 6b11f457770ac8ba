package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// recurParser accepts both 5-field and 6-field (with seconds) cron specs plus
// descriptors like "@daily" and "@every 72h".
var recurParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

var reEvery = regexp.MustCompile(`^every\s+(\d+)\s*(hour|day|week|month)s?$`)

// ParseRecurrence normalizes a planner-facing cadence into a cron schedule.
//
// Supported forms:
//   - Cron (crontab.guru-style): "0 6 * * 1", "@monthly", "@every 72h"
//   - Go duration: "72h", "168h30m"
//   - Planner words: "daily", "weekly", "monthly", "quarterly", "yearly"
//   - "every N hours|days|weeks|months": "every 14 days", "every 3 months"
//
// Day/week periods are constant-delay intervals; month periods map onto the
// first of the month, which is what planners mean by "monthly".
func ParseRecurrence(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("recurrence required")
	}

	low := strings.ToLower(s)
	switch low {
	case "hourly":
		return recurParser.Parse("@hourly")
	case "daily":
		return recurParser.Parse("@daily")
	case "weekly":
		return recurParser.Parse("@weekly")
	case "monthly":
		return recurParser.Parse("@monthly")
	case "quarterly":
		return recurParser.Parse("0 0 1 */3 *")
	case "yearly", "annually":
		return recurParser.Parse("@yearly")
	}

	if m := reEvery.FindStringSubmatch(low); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid recurrence %q: count must be > 0", raw)
		}
		switch m[2] {
		case "hour":
			return cron.Every(time.Duration(n) * time.Hour), nil
		case "day":
			return cron.Every(time.Duration(n) * 24 * time.Hour), nil
		case "week":
			return cron.Every(time.Duration(n) * 7 * 24 * time.Hour), nil
		case "month":
			return recurParser.Parse(fmt.Sprintf("0 0 1 */%d *", n))
		}
	}

	// Whitespace or a leading '@' means a cron spec / descriptor.
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		sched, err := recurParser.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid recurrence %q: %w", raw, err)
		}
		return sched, nil
	}

	// Bare Go duration.
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("invalid recurrence %q: interval must be > 0", raw)
		}
		return cron.Every(d), nil
	}

	return nil, fmt.Errorf(
		"invalid recurrence %q (use cron like '0 6 * * 1', a duration like '72h', or words like 'monthly'/'every 14 days')",
		raw,
	)
}
