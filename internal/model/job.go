// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package model

// Job is a named, persistent unit of work referenced by one or more
// triggers. JobType is an opaque symbol the external worker pool
// resolves; this store never interprets it.
type Job struct {
	JobKey `bson:",inline"`

	Description                  string         `bson:"description" json:"description"`
	JobType                      string         `bson:"job_type" json:"job_type"`
	Durable                      bool           `bson:"durable" json:"durable"`
	PersistDataAfterExecution    bool           `bson:"persist_data_after_execution" json:"persist_data_after_execution"`
	ConcurrentExecutionDisallowed bool          `bson:"concurrent_execution_disallowed" json:"concurrent_execution_disallowed"`
	RequestsRecovery             bool           `bson:"requests_recovery" json:"requests_recovery"`
	Data                         map[string]any `bson:"data" json:"data"`
}

// CollectionName returns the Mongo collection base name for jobs (the
// store adapter prepends the configured collection prefix).
func (Job) CollectionName() string { return "jobs" }
