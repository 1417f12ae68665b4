// Package cronutil implements the Clock/Cron component of spec.md §4.1: a
// pure, stateless wrapper around a 5-field cron expression parser.
package cronutil

import (
	"time"

	"github.com/robfig/cron/v3"
)

// IsValid reports whether expr parses as a standard 5-field cron expression
// (minute hour dom month dow).
func IsValid(expr string) bool {
	_, err := cron.ParseStandard(expr)
	return err == nil
}

// NextAfter returns the smallest instant strictly greater than after that
// matches expr. robfig's Schedule.Next already returns a strictly-later
// time than the instant it is given, which is exactly the tie-break
// spec.md §4.1 requires: a cron expression that would next fire at exactly
// `after` is treated as in the future, never as a match for `after` itself.
func NextAfter(expr string, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
