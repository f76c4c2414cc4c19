// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/seakee/quartzmongo/internal/errs"
)

// CronRecurrence evaluates a 5-field cron expression (minute hour
// day-of-month month day-of-week). Supported syntax: "*", explicit
// lists ("1,2,3"), ranges ("1-5"), and step values ("*/15"). Extended
// syntax some dialects add (L, W, #) is not supported; see the open
// question recorded in DESIGN.md.
type CronRecurrence struct {
	minute, hour, dom, month, dow fieldSet
}

type fieldSet map[int]bool

// ParseCron compiles expr into a CronRecurrence.
func ParseCron(expr string) (*CronRecurrence, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, errs.Integrity("cron expression must have exactly 5 fields, got " + strconv.Itoa(len(fields)))
	}
	minute, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, err
	}
	hour, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, err
	}
	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, err
	}
	month, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, err
	}
	dow, err := parseField(fields[4], 0, 6)
	if err != nil {
		return nil, err
	}
	return &CronRecurrence{minute: minute, hour: hour, dom: dom, month: month, dow: dow}, nil
}

func parseField(raw string, min, max int) (fieldSet, error) {
	set := fieldSet{}
	for _, part := range strings.Split(raw, ",") {
		step := 1
		base := part
		if idx := strings.IndexByte(part, '/'); idx >= 0 {
			base = part[:idx]
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s <= 0 {
				return nil, errs.Integrity("invalid cron step in " + part)
			}
			step = s
		}

		lo, hi := min, max
		if base != "*" {
			if dash := strings.IndexByte(base, '-'); dash >= 0 {
				var err error
				lo, err = strconv.Atoi(base[:dash])
				if err != nil {
					return nil, errs.Integrity("invalid cron range in " + part)
				}
				hi, err = strconv.Atoi(base[dash+1:])
				if err != nil {
					return nil, errs.Integrity("invalid cron range in " + part)
				}
			} else {
				v, err := strconv.Atoi(base)
				if err != nil {
					return nil, errs.Integrity("invalid cron value " + base)
				}
				lo, hi = v, v
			}
		}
		if lo < min || hi > max || lo > hi {
			return nil, errs.Integrity("cron field out of range: " + part)
		}
		for v := lo; v <= hi; v += step {
			set[v] = true
		}
	}
	return set, nil
}

func (CronRecurrence) Kind() Kind { return Cron }

func (c *CronRecurrence) matches(t time.Time) bool {
	return c.minute[t.Minute()] && c.hour[t.Hour()] && c.dom[t.Day()] &&
		c.month[int(t.Month())] && c.dow[int(t.Weekday())]
}

func (c *CronRecurrence) ComputeFirstFireTimeUtc(cal Calendar) (*time.Time, bool) {
	return c.searchFrom(time.Now().UTC(), cal)
}

func (c *CronRecurrence) NextFireTimeAfter(prev time.Time, cal Calendar) (*time.Time, bool) {
	return c.searchFrom(prev.UTC().Add(time.Minute), cal)
}

func (c *CronRecurrence) UpdateAfterMisfire(now time.Time, cal Calendar) (*time.Time, bool) {
	return c.searchFrom(now.UTC(), cal)
}

// searchFrom scans minute-by-minute for up to four years, which bounds
// even a Feb-29-only expression; this is a reference evaluator, not a
// constraint solver.
func (c *CronRecurrence) searchFrom(from time.Time, cal Calendar) (*time.Time, bool) {
	if cal == nil {
		cal = NoCalendar
	}
	t := from.Truncate(time.Minute)
	if t.Before(from) {
		t = t.Add(time.Minute)
	}
	const maxMinutes = 4 * 366 * 24 * 60
	for i := 0; i < maxMinutes; i++ {
		if c.matches(t) && cal.IsTimeIncluded(t) {
			return &t, true
		}
		t = t.Add(time.Minute)
	}
	return nil, false
}
