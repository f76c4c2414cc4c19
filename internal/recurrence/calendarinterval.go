// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package recurrence

import "time"

// CalendarIntervalUnit names the calendar unit an interval is measured
// in, as opposed to SimpleRecurrence's fixed duration.
type CalendarIntervalUnit int

const (
	UnitDay CalendarIntervalUnit = iota
	UnitWeek
	UnitMonth
	UnitYear
)

// CalendarIntervalRecurrence fires every Interval calendar Units after
// StartTime, clamping to the last day of a shorter month instead of
// overflowing into the next one. Each step advances from the previous
// fire time, so after a clamp later fires stay on the clamped day.
type CalendarIntervalRecurrence struct {
	StartTime time.Time
	Unit      CalendarIntervalUnit
	Interval  int
}

func (CalendarIntervalRecurrence) Kind() Kind { return CalendarInterval }

func (c CalendarIntervalRecurrence) ComputeFirstFireTimeUtc(cal Calendar) (*time.Time, bool) {
	return skipExcluded(c.StartTime.UTC(), cal, c.advance)
}

func (c CalendarIntervalRecurrence) NextFireTimeAfter(prev time.Time, cal Calendar) (*time.Time, bool) {
	return skipExcluded(c.advance(prev.UTC()), cal, c.advance)
}

// UpdateAfterMisfire skips forward past now to the next legal calendar
// boundary, matching Quartz's CalendarIntervalTrigger "do nothing extra,
// just resume on schedule" default.
func (c CalendarIntervalRecurrence) UpdateAfterMisfire(now time.Time, cal Calendar) (*time.Time, bool) {
	t := c.StartTime.UTC()
	for !t.After(now) {
		t = c.advance(t)
	}
	return skipExcluded(t, cal, c.advance)
}

func (c CalendarIntervalRecurrence) advance(t time.Time) time.Time {
	switch c.Unit {
	case UnitWeek:
		return t.AddDate(0, 0, 7*c.Interval)
	case UnitMonth:
		return addMonthsClamped(t, c.Interval)
	case UnitYear:
		return addMonthsClamped(t, 12*c.Interval)
	default: // UnitDay
		return t.AddDate(0, 0, c.Interval)
	}
}

// addMonthsClamped adds months to t, clamping the day-of-month to the
// last day of the resulting month instead of overflowing into the
// following month the way time.AddDate does (e.g. Jan 31 + 1 month
// becomes Feb 28/29, not Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	day := t.Day()
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := firstOfMonth.AddDate(0, months, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
