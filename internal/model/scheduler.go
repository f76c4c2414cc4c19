// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package model

import "time"

// SchedulerState describes what an instance registration reports about
// itself, independent of the Trigger State type above.
type SchedulerState string

const (
	SchedulerStateStarted SchedulerState = "STARTED"
	SchedulerStateRunning SchedulerState = "RUNNING"
	SchedulerStatePaused  SchedulerState = "PAUSED"
	SchedulerStateResumed SchedulerState = "RESUMED"
)

// Scheduler is the registration record an instance writes on startup.
// LastCheckIn is set at registration and is not refreshed by the sweeper
// afterwards.
type Scheduler struct {
	SchedulerKey `bson:",inline"`

	State        SchedulerState `bson:"state" json:"state"`
	LastCheckIn  time.Time      `bson:"last_check_in" json:"last_check_in"`
}

// CollectionName returns the Mongo collection base name for scheduler
// instance registrations.
func (Scheduler) CollectionName() string { return "schedulers" }
