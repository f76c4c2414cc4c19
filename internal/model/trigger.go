// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Trigger is a rule that schedules fires of a specific job. Concrete
// recurrence parameters (cron, simple interval, calendar interval, daily
// time window) are stored as a tagged variant: RecurrenceKind names which
// internal/recurrence implementation owns RecurrenceData, which is the
// raw BSON payload that implementation knows how to unmarshal. Only the
// fields below matter to the state machine and acquisition; the
// recurrence package is consulted solely to recompute NextFireTime.
type Trigger struct {
	TriggerKey `bson:",inline"`

	JobKey JobKey `bson:"job_key" json:"job_key"`

	NextFireTime     *time.Time `bson:"next_fire_time" json:"next_fire_time"`
	PreviousFireTime *time.Time `bson:"previous_fire_time" json:"previous_fire_time"`
	Priority         int        `bson:"priority" json:"priority"`
	StartTime        time.Time  `bson:"start_time" json:"start_time"`
	EndTime          *time.Time `bson:"end_time" json:"end_time"`
	CalendarName     string     `bson:"calendar_name,omitempty" json:"calendar_name,omitempty"`

	MisfireInstruction MisfireInstruction `bson:"misfire_instruction" json:"misfire_instruction"`
	Data               map[string]any     `bson:"data" json:"data"`
	State              State              `bson:"state" json:"state"`

	RecurrenceKind string   `bson:"recurrence_kind" json:"recurrence_kind"`
	RecurrenceData bson.Raw `bson:"recurrence_data" json:"-"`
}

// DefaultPriority is applied when a trigger is stored without an explicit
// priority").
const DefaultPriority = 5

// CollectionName returns the Mongo collection base name for triggers.
func (Trigger) CollectionName() string { return "triggers" }
