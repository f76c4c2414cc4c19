// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package recurrence computes next fire times for the small family of
// trigger recurrence rules the store persists as a tagged variant
// (internal/model.Trigger.RecurrenceKind / RecurrenceData). It is a
// concrete-but-limited reference evaluator, not a general cron engine:
// full cron fidelity is out of scope for this store, and no suitable
// library for it was available to adopt.
package recurrence

import "time"

// Kind names which concrete Recurrence owns a trigger's RecurrenceData.
type Kind int

const (
	Simple Kind = iota
	Cron
	CalendarInterval
	DailyTimeInterval
)

// Calendar is the consumer-facing exclusion-ruleset interface; the
// store's Calendar entity carries the serialized configuration a
// concrete implementation (BaseCalendar, DailyCalendar, WeeklyCalendar,
// HolidayCalendar) needs to answer IsTimeIncluded.
type Calendar interface {
	IsTimeIncluded(t time.Time) bool
}

// Recurrence is the tagged-variant interface every concrete recurrence
// rule implements.
type Recurrence interface {
	Kind() Kind
	// ComputeFirstFireTimeUtc returns the first fire time on/after the
	// recurrence's own start time, skipping any instant excluded by cal.
	// The bool is false when the recurrence never fires (e.g. a repeat
	// count of zero with a start time already excluded with no way to
	// advance).
	ComputeFirstFireTimeUtc(cal Calendar) (*time.Time, bool)
	// UpdateAfterMisfire recomputes the next fire time under this
	// recurrence type's single fixed misfire policy, given the instant
	// the sweep observed; the trigger's misfire_instruction is not
	// consulted here. A false result means the recurrence is exhausted
	// and the owning trigger should move to Complete.
	UpdateAfterMisfire(now time.Time, cal Calendar) (*time.Time, bool)
	// NextFireTimeAfter returns the next fire strictly after prev,
	// skipping any instant excluded by cal.
	NextFireTimeAfter(prev time.Time, cal Calendar) (*time.Time, bool)
}

// noCalendar is used when a trigger has no calendar_name; every instant
// is included.
type noCalendar struct{}

func (noCalendar) IsTimeIncluded(time.Time) bool { return true }

// NoCalendar is the zero-value Calendar: nothing is excluded.
var NoCalendar Calendar = noCalendar{}

// skipExcluded advances candidate forward in step increments until cal
// includes it or maxIterations is exhausted (guards against a
// calendar/step combination that would otherwise loop indefinitely).
func skipExcluded(candidate time.Time, cal Calendar, step func(time.Time) time.Time) (*time.Time, bool) {
	if cal == nil {
		cal = NoCalendar
	}
	const maxIterations = 1000
	t := candidate
	for i := 0; i < maxIterations; i++ {
		if cal.IsTimeIncluded(t) {
			return &t, true
		}
		t = step(t)
	}
	return nil, false
}
