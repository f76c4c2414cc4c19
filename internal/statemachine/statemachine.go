// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package statemachine is the authoritative, dependency-free reference
// for legal Trigger state transitions. It holds no connections and
// performs no I/O; internal/storagemgr and internal/firemgr call
// Transition to decide what a conditional repository update should
// write, then enforce it themselves via compare-and-set on old_state.
package statemachine

import (
	"fmt"

	"github.com/seakee/quartzmongo/internal/model"
)

// Event names an attempted transition. Events are requested by a caller;
// Transition either returns the resulting state or rejects the request.
type Event string

const (
	EventStore           Event = "store"
	EventAcquire         Event = "acquire"
	EventRelease         Event = "release"
	EventFire            Event = "fire"
	EventPause           Event = "pause"
	EventResume          Event = "resume"
	EventComplete        Event = "complete"
	EventMisfire         Event = "misfire"
	EventResetFromError  Event = "resetFromError"
)

// RejectedError reports an event that has no legal transition from the
// given current state.
type RejectedError struct {
	Current model.State
	Event   Event
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("statemachine: event %q not allowed from state %q", e.Event, e.Current)
}

// Options carries the extra facts some transitions need beyond current
// state and event. Only the fields relevant to the event are consulted.
type Options struct {
	// Completion selects among the complete(...) variants.
	Completion model.CompletionInstruction
	// JobBlocked is true when store(new) must land in PausedBlocked because
	// the enclosing job disallows concurrent execution and is Executing.
	// It takes precedence over GroupPaused.
	JobBlocked bool
	// GroupPaused is true when store(new) must land in Paused because the
	// trigger's group (or <ALL_PAUSED>) is in the paused set.
	GroupPaused bool
	// HasNextFire is true when a misfire's recomputed next fire time is
	// non-nil; false means the recurrence is exhausted.
	HasNextFire bool
	// Recovering is true during startup recovery's misfire sweep, which
	// leaves a recomputed trigger in place rather than forcing Waiting.
	Recovering bool
}

// Transition returns the state current moves to for event, or a
// *RejectedError if the event's precondition does not hold.
//
// complete(SetAllGroupComplete) is a group-wide fan-out the caller applies
// per-trigger; Transition accepts it from any current state (the table's
// "any in group") and always yields Complete.
func Transition(current model.State, event Event, opts Options) (model.State, error) {
	switch event {
	case EventStore:
		if opts.JobBlocked {
			return model.StatePausedBlocked, nil
		}
		if opts.GroupPaused {
			return model.StatePaused, nil
		}
		return model.StateWaiting, nil

	case EventAcquire:
		if current == model.StateWaiting {
			return model.StateAcquired, nil
		}
		return "", &RejectedError{current, event}

	case EventRelease:
		if current == model.StateAcquired {
			return model.StateWaiting, nil
		}
		return "", &RejectedError{current, event}

	case EventFire:
		if current == model.StateAcquired {
			return model.StateExecuting, nil
		}
		return "", &RejectedError{current, event}

	case EventPause:
		switch current {
		case model.StateWaiting, model.StateAcquired:
			return model.StatePaused, nil
		case model.StateExecuting:
			return model.StatePausedBlocked, nil
		default:
			return "", &RejectedError{current, event}
		}

	case EventResume:
		switch current {
		case model.StatePaused:
			return model.StateWaiting, nil
		case model.StatePausedBlocked:
			return model.StateExecuting, nil
		default:
			return "", &RejectedError{current, event}
		}

	case EventComplete:
		if opts.Completion == model.CompletionSetAllGroupComplete {
			return model.StateComplete, nil
		}
		if current != model.StateExecuting {
			return "", &RejectedError{current, event}
		}
		switch opts.Completion {
		case model.CompletionDelete:
			return model.StateDeleted, nil
		case model.CompletionSetComplete:
			return model.StateComplete, nil
		case model.CompletionSetError:
			return model.StateError, nil
		default:
			return model.StateWaiting, nil
		}

	case EventMisfire:
		if current != model.StateWaiting {
			return "", &RejectedError{current, event}
		}
		if !opts.HasNextFire {
			return model.StateComplete, nil
		}
		if opts.Recovering {
			return current, nil
		}
		return model.StateWaiting, nil

	case EventResetFromError:
		if current == model.StateError {
			return model.StateWaiting, nil
		}
		return "", &RejectedError{current, event}

	default:
		return "", &RejectedError{current, event}
	}
}
