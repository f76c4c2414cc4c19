// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimpleRecurrenceAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := SimpleRecurrence{StartTime: start, Interval: time.Hour, RepeatCount: -1}

	first, ok := s.ComputeFirstFireTimeUtc(nil)
	require.True(t, ok)
	require.Equal(t, start, *first)

	next, ok := s.NextFireTimeAfter(start, nil)
	require.True(t, ok)
	require.Equal(t, start.Add(time.Hour), *next)
}

func TestSimpleRecurrenceRespectsRepeatCount(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := SimpleRecurrence{StartTime: start, Interval: time.Hour, RepeatCount: 1, FireCount: 1}
	_, ok := s.NextFireTimeAfter(start, nil)
	require.False(t, ok)
}

func TestCalendarIntervalClampsMonthEnd(t *testing.T) {
	start := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	c := CalendarIntervalRecurrence{StartTime: start, Unit: UnitMonth, Interval: 1}
	next, ok := c.NextFireTimeAfter(start, nil)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), *next)
}

func TestDailyTimeIntervalStaysInWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // Monday
	d := DailyTimeIntervalRecurrence{
		StartTime:      start,
		Interval:       2 * time.Hour,
		StartTimeOfDay: TimeOfDay{Hour: 9},
		EndTimeOfDay:   TimeOfDay{Hour: 17},
		DaysOfWeek:     map[time.Weekday]bool{time.Monday: true},
	}
	first, ok := d.ComputeFirstFireTimeUtc(nil)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *first)

	next, ok := d.NextFireTimeAfter(*first, nil)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), *next)

	last, ok := d.NextFireTimeAfter(time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC), nil)
	require.True(t, ok)
	// next Monday, since the next 2h slot after 16:00 is 17:00, the window's exclusive end
	require.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), *last)
}

func TestCronParsesAndMatches(t *testing.T) {
	c, err := ParseCron("*/15 9-17 * * 1-5")
	require.NoError(t, err)

	mon9 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday
	next, ok := c.NextFireTimeAfter(mon9, nil)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC), *next)
}

func TestCronRejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCron("* * *")
	require.Error(t, err)
}

func TestWeeklyCalendarExcludesWeekends(t *testing.T) {
	cal := WeeklyCalendar{ExcludedDays: map[time.Weekday]bool{time.Saturday: true, time.Sunday: true}}
	sat := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	mon := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	require.False(t, cal.IsTimeIncluded(sat))
	require.True(t, cal.IsTimeIncluded(mon))
}

func TestHolidayCalendarExcludesDate(t *testing.T) {
	cal := HolidayCalendar{ExcludedDates: map[string]bool{"2026-01-01": true}}
	require.False(t, cal.IsTimeIncluded(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
	require.True(t, cal.IsTimeIncluded(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)))
}
