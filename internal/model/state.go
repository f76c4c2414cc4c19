// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package model defines the persisted entities of the scheduler store:
// jobs, triggers, calendars, paused trigger groups, fired-trigger
// records, scheduler registrations, and lock documents.
package model

// State is a trigger's position in the state machine (internal/statemachine
// is the authority on legal transitions between these values).
type State string

const (
	StateWaiting       State = "WAITING"
	StateAcquired      State = "ACQUIRED"
	StateExecuting     State = "EXECUTING"
	StatePaused        State = "PAUSED"
	StatePausedBlocked State = "PAUSED_BLOCKED"
	StateComplete      State = "COMPLETE"
	StateError         State = "ERROR"
	StateDeleted       State = "DELETED"
)

// MisfireInstruction enumerates trigger-specific misfire handling policy.
// MisfireInstructionIgnore is the sentinel -1 ("ignore misfire policy") —
// triggers carrying it are never selected by the misfire sweep.
type MisfireInstruction int

const MisfireInstructionIgnore MisfireInstruction = -1

// CompletionInstruction is the disposition TriggeredJobComplete applies
// to an Executing trigger on completion.
type CompletionInstruction int

const (
	CompletionNoop CompletionInstruction = iota // default: Executing -> Waiting
	CompletionDelete
	CompletionSetComplete
	CompletionSetError
	CompletionSetAllGroupComplete
)

// AllPausedGroup is the reserved paused-group name marking "future groups
// paused by default".
const AllPausedGroup = "<ALL_PAUSED>"

// RecoveringJobsGroup is the distinguished group name under which
// startup recovery synthesizes one-shot recovery triggers, so the
// scheduler API can filter/report on them distinctly.
const RecoveringJobsGroup = "RECOVERING_JOBS"
