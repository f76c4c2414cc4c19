// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package statemachine

import (
	"testing"

	"github.com/seakee/quartzmongo/internal/model"
)

func TestStoreNewPicksInitialState(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want model.State
	}{
		{"plain", Options{}, model.StateWaiting},
		{"group paused", Options{GroupPaused: true}, model.StatePaused},
		{"job blocked wins", Options{GroupPaused: true, JobBlocked: true}, model.StatePausedBlocked},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Transition("", EventStore, c.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("got %s, want %s", got, c.want)
			}
		})
	}
}

func TestAcquireReleaseFireRoundTrip(t *testing.T) {
	s, err := Transition(model.StateWaiting, EventAcquire, Options{})
	if err != nil || s != model.StateAcquired {
		t.Fatalf("acquire: got (%s, %v)", s, err)
	}
	s, err = Transition(s, EventFire, Options{})
	if err != nil || s != model.StateExecuting {
		t.Fatalf("fire: got (%s, %v)", s, err)
	}
	s, err = Transition(model.StateAcquired, EventRelease, Options{})
	if err != nil || s != model.StateWaiting {
		t.Fatalf("release: got (%s, %v)", s, err)
	}
}

func TestAcquireRejectsNonWaiting(t *testing.T) {
	_, err := Transition(model.StateExecuting, EventAcquire, Options{})
	if err == nil {
		t.Fatal("expected rejection")
	}
	var rej *RejectedError
	if !rejectedAs(err, &rej) {
		t.Fatalf("expected *RejectedError, got %T", err)
	}
}

func TestPauseDependsOnCurrentState(t *testing.T) {
	for _, current := range []model.State{model.StateWaiting, model.StateAcquired} {
		got, err := Transition(current, EventPause, Options{})
		if err != nil || got != model.StatePaused {
			t.Fatalf("pause from %s: got (%s, %v)", current, got, err)
		}
	}
	got, err := Transition(model.StateExecuting, EventPause, Options{})
	if err != nil || got != model.StatePausedBlocked {
		t.Fatalf("pause from Executing: got (%s, %v)", got, err)
	}
	if _, err := Transition(model.StateComplete, EventPause, Options{}); err == nil {
		t.Fatal("expected rejection pausing a Complete trigger")
	}
}

func TestResumeMirrorsPause(t *testing.T) {
	got, err := Transition(model.StatePaused, EventResume, Options{})
	if err != nil || got != model.StateWaiting {
		t.Fatalf("resume from Paused: got (%s, %v)", got, err)
	}
	got, err = Transition(model.StatePausedBlocked, EventResume, Options{})
	if err != nil || got != model.StateExecuting {
		t.Fatalf("resume from PausedBlocked: got (%s, %v)", got, err)
	}
}

func TestCompleteVariants(t *testing.T) {
	cases := []struct {
		instruction model.CompletionInstruction
		want        model.State
	}{
		{model.CompletionDelete, model.StateDeleted},
		{model.CompletionSetComplete, model.StateComplete},
		{model.CompletionSetError, model.StateError},
		{model.CompletionNoop, model.StateWaiting},
	}
	for _, c := range cases {
		got, err := Transition(model.StateExecuting, EventComplete, Options{Completion: c.instruction})
		if err != nil {
			t.Fatalf("instruction %v: unexpected error %v", c.instruction, err)
		}
		if got != c.want {
			t.Fatalf("instruction %v: got %s, want %s", c.instruction, got, c.want)
		}
	}
}

func TestCompleteRejectsNonExecutingUnlessGroupWide(t *testing.T) {
	if _, err := Transition(model.StateWaiting, EventComplete, Options{Completion: model.CompletionSetComplete}); err == nil {
		t.Fatal("expected rejection")
	}
	got, err := Transition(model.StateWaiting, EventComplete, Options{Completion: model.CompletionSetAllGroupComplete})
	if err != nil || got != model.StateComplete {
		t.Fatalf("group-wide complete: got (%s, %v)", got, err)
	}
}

func TestMisfireRecomputesOrFinalizes(t *testing.T) {
	got, err := Transition(model.StateWaiting, EventMisfire, Options{HasNextFire: true})
	if err != nil || got != model.StateWaiting {
		t.Fatalf("misfire with next fire: got (%s, %v)", got, err)
	}
	got, err = Transition(model.StateWaiting, EventMisfire, Options{HasNextFire: false})
	if err != nil || got != model.StateComplete {
		t.Fatalf("misfire exhausted: got (%s, %v)", got, err)
	}
	got, err = Transition(model.StateWaiting, EventMisfire, Options{HasNextFire: true, Recovering: true})
	if err != nil || got != model.StateWaiting {
		t.Fatalf("recovering misfire preserves state: got (%s, %v)", got, err)
	}
	if _, err := Transition(model.StateAcquired, EventMisfire, Options{HasNextFire: true}); err == nil {
		t.Fatal("expected rejection misfiring a non-Waiting trigger")
	}
}

func TestResetFromError(t *testing.T) {
	got, err := Transition(model.StateError, EventResetFromError, Options{})
	if err != nil || got != model.StateWaiting {
		t.Fatalf("got (%s, %v)", got, err)
	}
	if _, err := Transition(model.StateWaiting, EventResetFromError, Options{}); err == nil {
		t.Fatal("expected rejection")
	}
}

func rejectedAs(err error, target **RejectedError) bool {
	r, ok := err.(*RejectedError)
	if !ok {
		return false
	}
	*target = r
	return true
}
