// Package recurrence computes the next firing instant of a recurring
// schedule. All functions are pure: the anchor "now" is a parameter, so the
// calculator is testable without a live clock.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

// Spec describes one recurring cadence. TimeOfDay is a timezone-naive
// "HH:MM" string interpreted against Timezone, never against the local zone
// of the process evaluating it.
type Spec struct {
	Frequency  Frequency
	TimeOfDay  string
	Timezone   string
	DayOfWeek  *int // 0 (Sunday) through 6, required for Weekly
	DayOfMonth *int // 1 through 31, required for Monthly
}

// Next returns the first instant strictly after anchor at which the spec
// fires. A missing required day field is a configuration error and is
// reported rather than skipped.
func Next(spec Spec, anchor time.Time) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(spec.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	loc, err := time.LoadLocation(spec.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", spec.Timezone, err)
	}

	local := anchor.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	switch spec.Frequency {
	case Daily:
		if !candidate.After(anchor) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil

	case Weekly:
		if spec.DayOfWeek == nil {
			return time.Time{}, fmt.Errorf("dayOfWeek is required for WEEKLY frequency")
		}
		if *spec.DayOfWeek < 0 || *spec.DayOfWeek > 6 {
			return time.Time{}, fmt.Errorf("dayOfWeek must be between 0 and 6, got %d", *spec.DayOfWeek)
		}
		days := (*spec.DayOfWeek - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, days)
		if !candidate.After(anchor) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, nil

	case Monthly:
		if spec.DayOfMonth == nil {
			return time.Time{}, fmt.Errorf("dayOfMonth is required for MONTHLY frequency")
		}
		if *spec.DayOfMonth < 1 || *spec.DayOfMonth > 31 {
			return time.Time{}, fmt.Errorf("dayOfMonth must be between 1 and 31, got %d", *spec.DayOfMonth)
		}
		candidate = monthlyOccurrence(local.Year(), local.Month(), *spec.DayOfMonth, hour, minute, loc)
		if !candidate.After(anchor) {
			year, month := local.Year(), local.Month()+1
			candidate = monthlyOccurrence(year, month, *spec.DayOfMonth, hour, minute, loc)
		}
		return candidate, nil

	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", spec.Frequency)
	}
}

// monthlyOccurrence builds dayOfMonth of the given month, clamping to the
// month's last day when the month is shorter (dayOfMonth=31 in February
// yields Feb 28/29, never Mar 3).
func monthlyOccurrence(year int, month time.Month, dayOfMonth, hour, minute int, loc *time.Location) time.Time {
	day := dayOfMonth
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in time of day %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in time of day %q", s)
	}
	return hour, minute, nil
}
