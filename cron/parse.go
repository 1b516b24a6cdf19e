package cron

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// ErrUnsatisfiableSchedule is returned when no run time exists within
// the two-year search horizon.
var ErrUnsatisfiableSchedule = errors.New("cron: no run time within two years")

// horizon bounds the next-run search so unsatisfiable expressions
// (e.g. Feb 30) terminate with an error.
const horizonYears = 2

// parser accepts exactly five fields. Descriptors are rejected so
// persisted expressions stay portable across schedulers.
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Validate checks that expr is a well-formed five-field cron expression.
func Validate(expr string) error {
	if len(strings.Fields(expr)) != 5 {
		return fmt.Errorf("cron: expression %q must have exactly 5 fields", expr)
	}
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid expression %q: %w", expr, err)
	}
	return nil
}

// Next computes the first run time strictly after the given instant, in
// the job's timezone. The result is bounded by a two-year horizon.
func Next(expr, timezone string, after time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron: invalid expression %q: %w", expr, err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("cron: invalid timezone %q: %w", timezone, err)
		}
	}

	next := sched.Next(after.In(loc))
	if next.IsZero() || next.After(after.AddDate(horizonYears, 0, 0)) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnsatisfiableSchedule, expr)
	}
	return next, nil
}
