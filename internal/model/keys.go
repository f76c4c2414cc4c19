// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package model

// JobKey identifies a job by (instance_name, group, name).
type JobKey struct {
	InstanceName string `bson:"instance_name" json:"instance_name"`
	Group        string `bson:"group" json:"group"`
	Name         string `bson:"name" json:"name"`
}

// TriggerKey identifies a trigger by (instance_name, group, name).
type TriggerKey struct {
	InstanceName string `bson:"instance_name" json:"instance_name"`
	Group        string `bson:"group" json:"group"`
	Name         string `bson:"name" json:"name"`
}

// CalendarKey identifies a calendar by (instance_name, name).
type CalendarKey struct {
	InstanceName string `bson:"instance_name" json:"instance_name"`
	Name         string `bson:"name" json:"name"`
}

// PausedGroupKey identifies a paused-group marker by (instance_name, group).
type PausedGroupKey struct {
	InstanceName string `bson:"instance_name" json:"instance_name"`
	Group        string `bson:"group" json:"group"`
}

// FiredTriggerKey identifies a fired-trigger record by
// (instance_name, fired_instance_id).
type FiredTriggerKey struct {
	InstanceName    string `bson:"instance_name" json:"instance_name"`
	FiredInstanceID string `bson:"fired_instance_id" json:"fired_instance_id"`
}

// SchedulerKey identifies a scheduler registration by
// (instance_name, instance_id).
type SchedulerKey struct {
	InstanceName string `bson:"instance_name" json:"instance_name"`
	InstanceID   string `bson:"instance_id" json:"instance_id"`
}

// LockType names the two cluster-wide mutexes.
type LockType string

const (
	LockTriggerAccess LockType = "TriggerAccess"
	LockStateAccess   LockType = "StateAccess"
)

// LockKey identifies a lock document by (instance_name, lock_type).
type LockKey struct {
	InstanceName string   `bson:"instance_name" json:"instance_name"`
	LockType     LockType `bson:"lock_type" json:"lock_type"`
}
