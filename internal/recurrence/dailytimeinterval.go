// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package recurrence

import "time"

// TimeOfDay is a wall-clock time within a day, used by
// DailyTimeIntervalRecurrence's window bounds.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) onDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, d.Location())
}

// DailyTimeIntervalRecurrence fires every Interval inside
// [StartTimeOfDay, EndTimeOfDay) on each day named in DaysOfWeek
// (0=Sunday..6=Saturday).
type DailyTimeIntervalRecurrence struct {
	StartTime      time.Time
	Interval       time.Duration
	StartTimeOfDay TimeOfDay
	EndTimeOfDay   TimeOfDay
	DaysOfWeek     map[time.Weekday]bool
}

func (DailyTimeIntervalRecurrence) Kind() Kind { return DailyTimeInterval }

func (d DailyTimeIntervalRecurrence) ComputeFirstFireTimeUtc(cal Calendar) (*time.Time, bool) {
	return d.nextFrom(d.StartTime.UTC().Add(-time.Nanosecond), cal)
}

func (d DailyTimeIntervalRecurrence) NextFireTimeAfter(prev time.Time, cal Calendar) (*time.Time, bool) {
	return d.nextFrom(prev.UTC(), cal)
}

// UpdateAfterMisfire skips directly to the next legal slot after now,
// matching the "do nothing extra" default most Quartz daily-interval
// misfire policies fall back to.
func (d DailyTimeIntervalRecurrence) UpdateAfterMisfire(now time.Time, cal Calendar) (*time.Time, bool) {
	return d.nextFrom(now.UTC(), cal)
}

func (d DailyTimeIntervalRecurrence) allowsDay(day time.Weekday) bool {
	if len(d.DaysOfWeek) == 0 {
		return true
	}
	return d.DaysOfWeek[day]
}

func (d DailyTimeIntervalRecurrence) nextFrom(after time.Time, cal Calendar) (*time.Time, bool) {
	const maxDays = 366
	day := after
	for i := 0; i < maxDays; i++ {
		if d.allowsDay(day.Weekday()) {
			windowStart := d.StartTimeOfDay.onDate(day)
			windowEnd := d.EndTimeOfDay.onDate(day)
			candidate := windowStart
			if !after.Before(windowStart) {
				elapsed := after.Sub(windowStart)
				steps := elapsed/d.Interval + 1
				candidate = windowStart.Add(steps * d.Interval)
			}
			if !candidate.Before(windowStart) && candidate.Before(windowEnd) {
				if cal == nil {
					cal = NoCalendar
				}
				if cal.IsTimeIncluded(candidate) {
					return &candidate, true
				}
			}
		}
		day = day.AddDate(0, 0, 1)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		after = day.Add(-time.Nanosecond)
	}
	return nil, false
}
