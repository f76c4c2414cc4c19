// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package recurrence

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/seakee/quartzmongo/internal/errs"
	"github.com/seakee/quartzmongo/internal/model"
)

// simplePayload/cronPayload/etc mirror the BSON shape RecurrenceData
// carries for each Kind; they exist only to bridge the tagged variant
// stored by internal/model to the concrete structs in this package.
type simplePayload struct {
	StartTime   time.Time     `bson:"start_time"`
	Interval    time.Duration `bson:"interval"`
	RepeatCount int           `bson:"repeat_count"`
	FireCount   int           `bson:"fire_count"`
}

type cronPayload struct {
	Expression string `bson:"expression"`
}

type calendarIntervalPayload struct {
	StartTime time.Time `bson:"start_time"`
	Unit      int       `bson:"unit"`
	Interval  int        `bson:"interval"`
}

type dailyTimeIntervalPayload struct {
	StartTime      time.Time `bson:"start_time"`
	IntervalMillis int64     `bson:"interval_millis"`
	StartHour      int       `bson:"start_hour"`
	StartMinute    int       `bson:"start_minute"`
	StartSecond    int       `bson:"start_second"`
	EndHour        int       `bson:"end_hour"`
	EndMinute      int       `bson:"end_minute"`
	EndSecond      int       `bson:"end_second"`
	DaysOfWeek     []int     `bson:"days_of_week"`
}

// DecodeTrigger turns t's tagged RecurrenceKind/RecurrenceData into a
// concrete Recurrence.
func DecodeTrigger(t model.Trigger) (Recurrence, error) {
	switch t.RecurrenceKind {
	case "simple":
		var p simplePayload
		if err := bson.Unmarshal(t.RecurrenceData, &p); err != nil {
			return nil, errs.Integrity("decode simple recurrence: " + err.Error())
		}
		return SimpleRecurrence{StartTime: p.StartTime, Interval: p.Interval, RepeatCount: p.RepeatCount, FireCount: p.FireCount}, nil
	case "cron":
		var p cronPayload
		if err := bson.Unmarshal(t.RecurrenceData, &p); err != nil {
			return nil, errs.Integrity("decode cron recurrence: " + err.Error())
		}
		return ParseCron(p.Expression)
	case "calendar_interval":
		var p calendarIntervalPayload
		if err := bson.Unmarshal(t.RecurrenceData, &p); err != nil {
			return nil, errs.Integrity("decode calendar-interval recurrence: " + err.Error())
		}
		return CalendarIntervalRecurrence{StartTime: p.StartTime, Unit: CalendarIntervalUnit(p.Unit), Interval: p.Interval}, nil
	case "daily_time_interval":
		var p dailyTimeIntervalPayload
		if err := bson.Unmarshal(t.RecurrenceData, &p); err != nil {
			return nil, errs.Integrity("decode daily-time-interval recurrence: " + err.Error())
		}
		days := map[time.Weekday]bool{}
		for _, d := range p.DaysOfWeek {
			days[time.Weekday(d)] = true
		}
		return DailyTimeIntervalRecurrence{
			StartTime:      p.StartTime,
			Interval:       time.Duration(p.IntervalMillis) * time.Millisecond,
			StartTimeOfDay: TimeOfDay{Hour: p.StartHour, Minute: p.StartMinute, Second: p.StartSecond},
			EndTimeOfDay:   TimeOfDay{Hour: p.EndHour, Minute: p.EndMinute, Second: p.EndSecond},
			DaysOfWeek:     days,
		}, nil
	default:
		return nil, errs.Integrity("unknown recurrence kind: " + t.RecurrenceKind)
	}
}

type dailyCalendarPayload struct {
	ExcludeStartHour, ExcludeStartMinute int
	ExcludeEndHour, ExcludeEndMinute     int
	InvertTimeRange                      bool
}

type weeklyCalendarPayload struct {
	ExcludedDays []int `bson:"excluded_days"`
}

type holidayCalendarPayload struct {
	ExcludedDates []string `bson:"excluded_dates"`
}

// DecodeCalendar turns c's tagged Kind/Data into a concrete Calendar. A
// nil c decodes to NoCalendar.
func DecodeCalendar(c *model.Calendar) (Calendar, error) {
	if c == nil {
		return NoCalendar, nil
	}
	switch c.Kind {
	case "base", "":
		return BaseCalendar{}, nil
	case "daily":
		var p dailyCalendarPayload
		if err := bson.Unmarshal(c.Data, &p); err != nil {
			return nil, errs.Integrity("decode daily calendar: " + err.Error())
		}
		return DailyCalendar{
			ExcludeStart:    TimeOfDay{Hour: p.ExcludeStartHour, Minute: p.ExcludeStartMinute},
			ExcludeEnd:      TimeOfDay{Hour: p.ExcludeEndHour, Minute: p.ExcludeEndMinute},
			InvertTimeRange: p.InvertTimeRange,
		}, nil
	case "weekly":
		var p weeklyCalendarPayload
		if err := bson.Unmarshal(c.Data, &p); err != nil {
			return nil, errs.Integrity("decode weekly calendar: " + err.Error())
		}
		days := map[time.Weekday]bool{}
		for _, d := range p.ExcludedDays {
			days[time.Weekday(d)] = true
		}
		return WeeklyCalendar{ExcludedDays: days}, nil
	case "holiday":
		var p holidayCalendarPayload
		if err := bson.Unmarshal(c.Data, &p); err != nil {
			return nil, errs.Integrity("decode holiday calendar: " + err.Error())
		}
		dates := map[string]bool{}
		for _, d := range p.ExcludedDates {
			dates[d] = true
		}
		return HolidayCalendar{ExcludedDates: dates}, nil
	default:
		return nil, errs.Integrity("unknown calendar kind: " + c.Kind)
	}
}

// EncodeSimple marshals a SimpleRecurrence's parameters into the BSON
// payload DecodeTrigger expects for RecurrenceKind "simple". Used by
// startup recovery to synthesize a one-shot trigger that fires exactly
// once at fireTime (interval 0, repeat count 0).
func EncodeSimple(startTime time.Time, interval time.Duration, repeatCount int) (kind string, data bson.Raw, err error) {
	raw, err := bson.Marshal(simplePayload{StartTime: startTime, Interval: interval, RepeatCount: repeatCount})
	if err != nil {
		return "", nil, err
	}
	return "simple", raw, nil
}

// Decoder adapts the package-level Decode functions to firemgr's
// RecurrenceDecoder interface.
type Decoder struct{}

func (Decoder) DecodeTrigger(t model.Trigger) (Recurrence, error) { return DecodeTrigger(t) }
func (Decoder) DecodeCalendar(c *model.Calendar) (Calendar, error) { return DecodeCalendar(c) }
