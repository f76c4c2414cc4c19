// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package model

import "time"

// FiredTrigger is created when a trigger is handed to a worker and
// deleted when completion is reported; it is the record that lets
// startup recovery reschedule work interrupted by a crash.
type FiredTrigger struct {
	FiredTriggerKey `bson:",inline"`

	InstanceID                    string    `bson:"instance_id" json:"instance_id"`
	TriggerKey                    TriggerKey `bson:"trigger_key" json:"trigger_key"`
	JobKey                        JobKey     `bson:"job_key" json:"job_key"`
	FiredTime                     time.Time  `bson:"fired_time" json:"fired_time"`
	ScheduledFireTime              time.Time  `bson:"scheduled_fire_time" json:"scheduled_fire_time"`
	RequestsRecovery               bool       `bson:"requests_recovery" json:"requests_recovery"`
	ConcurrentExecutionDisallowed  bool       `bson:"concurrent_execution_disallowed" json:"concurrent_execution_disallowed"`
}

// CollectionName returns the Mongo collection base name for fired
// triggers.
func (FiredTrigger) CollectionName() string { return "fired_triggers" }

// FiredInstanceIDPrefix builds the "trigger_name:trigger_group:instance_id"
// prefix used both to construct a new fired_instance_id (with a UTC-ticks
// suffix appended) and, with a trailing ":", to match all fired-trigger
// rows belonging to one trigger/instance pair for deletion in
// TriggeredJobComplete.
func FiredInstanceIDPrefix(triggerKey TriggerKey, instanceID string) string {
	return triggerKey.Name + ":" + triggerKey.Group + ":" + instanceID
}
