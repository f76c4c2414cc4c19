// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package recurrence

import "time"

// SimpleRecurrence repeats every Interval, RepeatCount times (or
// unlimited if RepeatCount < 0), analogous to Quartz's SimpleTrigger.
type SimpleRecurrence struct {
	StartTime   time.Time
	Interval    time.Duration
	RepeatCount int // negative means unlimited
	FireCount   int // how many fires have already happened
}

func (SimpleRecurrence) Kind() Kind { return Simple }

func (s SimpleRecurrence) ComputeFirstFireTimeUtc(cal Calendar) (*time.Time, bool) {
	return skipExcluded(s.StartTime.UTC(), cal, func(t time.Time) time.Time { return t.Add(s.Interval) })
}

func (s SimpleRecurrence) NextFireTimeAfter(prev time.Time, cal Calendar) (*time.Time, bool) {
	if s.RepeatCount >= 0 && s.FireCount >= s.RepeatCount {
		return nil, false
	}
	if s.Interval <= 0 {
		return nil, false
	}
	return skipExcluded(prev.UTC().Add(s.Interval), cal, func(t time.Time) time.Time { return t.Add(s.Interval) })
}

// UpdateAfterMisfire applies the "fire now, resume schedule" policy: the
// simplest legal misfire handling, matching Quartz's
// MISFIRE_INSTRUCTION_FIRE_NOW default for SimpleTrigger.
func (s SimpleRecurrence) UpdateAfterMisfire(now time.Time, cal Calendar) (*time.Time, bool) {
	if s.RepeatCount >= 0 && s.FireCount >= s.RepeatCount {
		return nil, false
	}
	return skipExcluded(now.UTC(), cal, func(t time.Time) time.Time { return t.Add(s.Interval) })
}
