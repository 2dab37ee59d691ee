package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestNextDaily(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	spec := Spec{Frequency: Daily, TimeOfDay: "10:00", Timezone: "America/New_York"}

	t.Run("before time of day fires same day", func(t *testing.T) {
		anchor := time.Date(2024, 3, 12, 9, 0, 0, 0, ny)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 12, 10, 0, 0, 0, ny), next)
	})

	t.Run("after time of day rolls to tomorrow", func(t *testing.T) {
		anchor := time.Date(2024, 3, 12, 11, 0, 0, 0, ny)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 13, 10, 0, 0, 0, ny), next)
	})

	t.Run("exactly at time of day rolls to tomorrow", func(t *testing.T) {
		anchor := time.Date(2024, 3, 12, 10, 0, 0, 0, ny)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 13, 10, 0, 0, 0, ny), next)
	})

	t.Run("anchor in another zone still uses schedule timezone", func(t *testing.T) {
		// 13:00 UTC is 09:00 in New York during DST.
		anchor := time.Date(2024, 6, 12, 13, 0, 0, 0, time.UTC)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 6, 12, 10, 0, 0, 0, ny).UTC(), next.UTC())
	})
}

func TestNextWeekly(t *testing.T) {
	chi := mustLoc(t, "America/Chicago")
	wednesday := intPtr(3)
	spec := Spec{Frequency: Weekly, TimeOfDay: "10:00", Timezone: "America/Chicago", DayOfWeek: wednesday}

	t.Run("same weekday before time fires same day", func(t *testing.T) {
		// 2024-03-13 is a Wednesday.
		anchor := time.Date(2024, 3, 13, 9, 0, 0, 0, chi)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 13, 10, 0, 0, 0, chi), next)
	})

	t.Run("same weekday after time rolls a full week", func(t *testing.T) {
		anchor := time.Date(2024, 3, 13, 11, 0, 0, 0, chi)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 20, 10, 0, 0, 0, chi), next)
	})

	t.Run("earlier weekday fires later this week", func(t *testing.T) {
		// 2024-03-11 is a Monday.
		anchor := time.Date(2024, 3, 11, 12, 0, 0, 0, chi)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 13, 10, 0, 0, 0, chi), next)
	})

	t.Run("later weekday wraps to next week", func(t *testing.T) {
		// 2024-03-15 is a Friday.
		anchor := time.Date(2024, 3, 15, 12, 0, 0, 0, chi)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 20, 10, 0, 0, 0, chi), next)
	})

	t.Run("missing day of week is an error", func(t *testing.T) {
		bad := Spec{Frequency: Weekly, TimeOfDay: "10:00", Timezone: "America/Chicago"}
		_, err := Next(bad, time.Now())
		assert.Error(t, err)
	})
}

func TestNextMonthly(t *testing.T) {
	utc := time.UTC
	spec := Spec{Frequency: Monthly, TimeOfDay: "09:30", Timezone: "UTC", DayOfMonth: intPtr(31)}

	t.Run("day 31 in January fires January 31", func(t *testing.T) {
		anchor := time.Date(2024, 1, 15, 0, 0, 0, 0, utc)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 31, 9, 30, 0, 0, utc), next)
	})

	t.Run("day 31 in February clamps to last day", func(t *testing.T) {
		anchor := time.Date(2023, 2, 15, 0, 0, 0, 0, utc)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2023, 2, 28, 9, 30, 0, 0, utc), next)
	})

	t.Run("day 31 in leap-year February clamps to the 29th", func(t *testing.T) {
		anchor := time.Date(2024, 2, 15, 0, 0, 0, 0, utc)
		next, err := Next(spec, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 2, 29, 9, 30, 0, 0, utc), next)
	})

	t.Run("past this month's occurrence rolls to next month", func(t *testing.T) {
		s := Spec{Frequency: Monthly, TimeOfDay: "09:30", Timezone: "UTC", DayOfMonth: intPtr(10)}
		anchor := time.Date(2024, 4, 20, 0, 0, 0, 0, utc)
		next, err := Next(s, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 5, 10, 9, 30, 0, 0, utc), next)
	})

	t.Run("December rolls into January", func(t *testing.T) {
		s := Spec{Frequency: Monthly, TimeOfDay: "09:30", Timezone: "UTC", DayOfMonth: intPtr(5)}
		anchor := time.Date(2024, 12, 20, 0, 0, 0, 0, utc)
		next, err := Next(s, anchor)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 1, 5, 9, 30, 0, 0, utc), next)
	})

	t.Run("missing day of month is an error", func(t *testing.T) {
		bad := Spec{Frequency: Monthly, TimeOfDay: "09:30", Timezone: "UTC"}
		_, err := Next(bad, time.Now())
		assert.Error(t, err)
	})
}

func TestNextValidation(t *testing.T) {
	t.Run("bad time of day", func(t *testing.T) {
		_, err := Next(Spec{Frequency: Daily, TimeOfDay: "25:99", Timezone: "UTC"}, time.Now())
		assert.Error(t, err)
	})

	t.Run("bad timezone", func(t *testing.T) {
		_, err := Next(Spec{Frequency: Daily, TimeOfDay: "10:00", Timezone: "Mars/Olympus"}, time.Now())
		assert.Error(t, err)
	})

	t.Run("unknown frequency", func(t *testing.T) {
		_, err := Next(Spec{Frequency: "HOURLY", TimeOfDay: "10:00", Timezone: "UTC"}, time.Now())
		assert.Error(t, err)
	})

	t.Run("day of week out of range", func(t *testing.T) {
		_, err := Next(Spec{Frequency: Weekly, TimeOfDay: "10:00", Timezone: "UTC", DayOfWeek: intPtr(7)}, time.Now())
		assert.Error(t, err)
	})
}
