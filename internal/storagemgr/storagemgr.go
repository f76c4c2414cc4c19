// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package storagemgr is the storage manager layer (C5): the write APIs
// that acquire TriggerAccess, validate preconditions, apply state
// transitions via conditional repository updates, and release the lock
// on every exit path. Every public method here takes the lock exactly
// once, even for composite operations, and returns errors from the internal/errs taxonomy,
// except that a missing document surfaces as mongo.ErrNoDocuments and a
// rejected transition as *statemachine.RejectedError.
package storagemgr

import (
	"context"

	"github.com/seakee/quartzmongo/internal/errs"
	"github.com/seakee/quartzmongo/internal/lock"
	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/recurrence"
	"github.com/seakee/quartzmongo/internal/repo"
	"github.com/seakee/quartzmongo/internal/statemachine"
)

// RecurrenceDecoder turns a trigger's tagged-variant recurrence fields and
// a calendar's tagged Kind/Data into their concrete internal/recurrence
// types. StoreCalendar depends on this interface rather than
// internal/recurrence's decoding functions directly so a fake can stand
// in without a live Mongo-backed Trigger/Calendar round trip.
type RecurrenceDecoder interface {
	DecodeTrigger(t model.Trigger) (recurrence.Recurrence, error)
	DecodeCalendar(c *model.Calendar) (recurrence.Calendar, error)
}

// Manager is the storage manager over one instance_name's data.
type Manager struct {
	instanceName string

	newLock func() *lock.Mutex
	decoder RecurrenceDecoder

	jobs     *repo.JobRepo
	triggers *repo.TriggerRepo
	cals     *repo.CalendarRepo
	paused   *repo.PausedGroupRepo
}

// New constructs a Manager. newLock must return a fresh TriggerAccess
// Mutex bound to this instance on every call (it is acquired once per
// public method and released before returning). decoder backs
// StoreCalendar's updateTriggers recomputation.
func New(instanceName string, newLock func() *lock.Mutex, decoder RecurrenceDecoder, jobs *repo.JobRepo, triggers *repo.TriggerRepo, cals *repo.CalendarRepo, paused *repo.PausedGroupRepo) *Manager {
	return &Manager{instanceName: instanceName, newLock: newLock, decoder: decoder, jobs: jobs, triggers: triggers, cals: cals, paused: paused}
}

// withTriggerAccess acquires TriggerAccess, runs fn, and always releases
// before returning — the pattern every write API in this package follows.
func (m *Manager) withTriggerAccess(ctx context.Context, traceID string, fn func(context.Context) error) error {
	l := m.newLock()
	if err := l.Acquire(ctx, traceID); err != nil {
		return err
	}
	defer l.Release(ctx, traceID)
	return fn(ctx)
}

// StoreJob upserts job. If it already exists and replace is false,
// returns errs.AlreadyExists.
func (m *Manager) StoreJob(ctx context.Context, traceID string, job model.Job, replace bool) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		if !replace {
			return m.jobs.Insert(ctx, traceID, job)
		}
		return m.jobs.Upsert(ctx, traceID, job)
	})
}

// StoreTrigger inserts or replaces t. The enclosing job must exist. The
// initial/retained state follows the documented "Store trigger" rule.
func (m *Manager) StoreTrigger(ctx context.Context, traceID string, t model.Trigger, replace, forceState bool) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		job, err := m.jobs.Get(ctx, traceID, t.JobKey)
		if err != nil {
			return errs.Integrity("trigger references nonexistent job " + t.JobKey.Group + "/" + t.JobKey.Name)
		}

		exists, err := m.triggers.Exists(ctx, traceID, t.TriggerKey)
		if err != nil {
			return err
		}
		if exists && !replace {
			return errs.AlreadyExists("trigger " + t.Group + "/" + t.Name + " already exists")
		}
		var existing *model.Trigger
		if exists {
			existing, err = m.triggers.Get(ctx, traceID, t.TriggerKey)
			if err != nil {
				return err
			}
			if replace && t.JobKey != existing.JobKey {
				return errs.Integrity("replace trigger must reference the same job key")
			}
		}

		if !exists || forceState {
			state, err := m.initialTriggerState(ctx, traceID, t, job)
			if err != nil {
				return err
			}
			t.State = state
		} else {
			t.State = existing.State
		}

		if t.Priority == 0 {
			t.Priority = model.DefaultPriority
		}

		return m.triggers.Replace(ctx, traceID, t)
	})
}

// initialTriggerState implements the "Store trigger" policy: job-blocked
// (PausedBlocked) beats group-paused or <ALL_PAUSED> (Paused) beats plain
// Waiting,
// and storing under <ALL_PAUSED> also records the group as paused so a
// later targeted resume is well-defined.
func (m *Manager) initialTriggerState(ctx context.Context, traceID string, t model.Trigger, job *model.Job) (model.State, error) {
	groupPaused, err := m.paused.IsPaused(ctx, traceID, m.instanceName, t.Group)
	if err != nil {
		return "", err
	}
	if groupPaused {
		allPaused, err := m.paused.IsPaused(ctx, traceID, m.instanceName, model.AllPausedGroup)
		if err == nil && allPaused {
			_ = m.paused.Add(ctx, traceID, m.instanceName, t.Group)
		}
	}

	jobBlocked := job.ConcurrentExecutionDisallowed
	if jobBlocked {
		executing, err := m.jobIsExecuting(ctx, traceID, job.JobKey)
		if err != nil {
			return "", err
		}
		jobBlocked = executing
	}

	state, err := statemachine.Transition("", statemachine.EventStore, statemachine.Options{
		JobBlocked:  jobBlocked,
		GroupPaused: groupPaused,
	})
	if err != nil {
		return "", err
	}
	return state, nil
}

func (m *Manager) jobIsExecuting(ctx context.Context, traceID string, jobKey model.JobKey) (bool, error) {
	triggers, err := m.triggers.ListByGroup(ctx, traceID, m.instanceName, repo.GroupMatcher{Operator: repo.MatchAnything})
	if err != nil {
		return false, err
	}
	for _, t := range triggers {
		if t.JobKey == jobKey && t.State == model.StateExecuting {
			return true, nil
		}
	}
	return false, nil
}

// RemoveTrigger deletes t and, if the enclosing job is non-durable and
// has no remaining triggers, deletes the job too.
func (m *Manager) RemoveTrigger(ctx context.Context, traceID string, key model.TriggerKey) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		t, err := m.triggers.Get(ctx, traceID, key)
		if err != nil {
			return err
		}
		if err := m.triggers.Delete(ctx, traceID, key); err != nil {
			return err
		}

		job, err := m.jobs.Get(ctx, traceID, t.JobKey)
		if err != nil {
			return nil // job already gone; nothing more to do
		}
		if job.Durable {
			return nil
		}
		remaining, err := m.triggers.CountByJob(ctx, traceID, t.JobKey)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return m.jobs.Delete(ctx, traceID, t.JobKey)
		}
		return nil
	})
}

// ReplaceTrigger overwrites an existing trigger; the replacement must
// reference the same job key.
func (m *Manager) ReplaceTrigger(ctx context.Context, traceID string, t model.Trigger) error {
	return m.StoreTrigger(ctx, traceID, t, true, false)
}

// StoreCalendar inserts or replaces cal. If it exists, replace=false
// returns errs.AlreadyExists. With replace=true and updateTriggers=true,
// every trigger referencing cal has its next_fire_time recomputed
// against the new calendar before this call returns, all within the one
// TriggerAccess hold this method already takes.
func (m *Manager) StoreCalendar(ctx context.Context, traceID string, cal model.Calendar, replace, updateTriggers bool) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		if !replace {
			return m.cals.Insert(ctx, traceID, cal)
		}
		if err := m.cals.Replace(ctx, traceID, cal); err != nil {
			return err
		}
		if !updateTriggers {
			return nil
		}
		return m.recomputeCalendarTriggers(ctx, traceID, cal)
	})
}

// recomputeCalendarTriggers recalculates next_fire_time for every trigger
// referencing cal. It must only be called from within an existing
// TriggerAccess hold.
func (m *Manager) recomputeCalendarTriggers(ctx context.Context, traceID string, cal model.Calendar) error {
	refs, err := m.triggers.ListByCalendar(ctx, traceID, m.instanceName, cal.Name)
	if err != nil {
		return err
	}
	calView, err := m.decoder.DecodeCalendar(&cal)
	if err != nil {
		return err
	}
	for _, t := range refs {
		rec, err := m.decoder.DecodeTrigger(t)
		if err != nil {
			return err
		}
		anchor := t.StartTime
		if t.NextFireTime != nil {
			anchor = *t.NextFireTime
		}
		next, _ := rec.NextFireTimeAfter(anchor, calView)
		t.NextFireTime = next
		if err := m.triggers.Replace(ctx, traceID, t); err != nil {
			return err
		}
	}
	return nil
}

// RemoveCalendar deletes the calendar unless a trigger still references it.
func (m *Manager) RemoveCalendar(ctx context.Context, traceID string, key model.CalendarKey) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		refs, err := m.triggers.ListByCalendar(ctx, traceID, key.InstanceName, key.Name)
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			return errs.Integrity("calendar " + key.Name + " is still referenced by a trigger")
		}
		return m.cals.Delete(ctx, traceID, key)
	})
}

// PauseTriggerGroup moves every Waiting|Acquired trigger in the group to
// Paused and Executing to PausedBlocked, then records the group paused.
func (m *Manager) PauseTriggerGroup(ctx context.Context, traceID string, group repo.GroupMatcher) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		return m.pauseGroupLocked(ctx, traceID, group)
	})
}

// ResumeTriggerGroup removes the group from the paused set and moves
// Paused|PausedBlocked triggers in it to Waiting. PausedBlocked does not
// go back to Executing on a group resume (a resumed blocked trigger
// waits for the next acquisition pass rather than resuming execution
// directly).
func (m *Manager) ResumeTriggerGroup(ctx context.Context, traceID string, group repo.GroupMatcher) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		return m.resumeGroupLocked(ctx, traceID, group)
	})
}

// pauseGroupLocked is PauseTriggerGroup's body with the lock acquisition
// stripped out, so PauseAll can fold it into a single TriggerAccess hold
// alongside the <ALL_PAUSED> marker update. Callers must already hold
// TriggerAccess.
func (m *Manager) pauseGroupLocked(ctx context.Context, traceID string, group repo.GroupMatcher) error {
	matched, err := m.triggers.ListByGroup(ctx, traceID, m.instanceName, group)
	if err != nil {
		return err
	}
	groups := map[string]bool{}
	for _, t := range matched {
		groups[t.Group] = true
		if t.State == model.StateWaiting || t.State == model.StateAcquired {
			if _, err := m.triggers.CASState(ctx, traceID, t.TriggerKey, t.State, model.StatePaused); err != nil {
				return err
			}
		} else if t.State == model.StateExecuting {
			if _, err := m.triggers.CASState(ctx, traceID, t.TriggerKey, t.State, model.StatePausedBlocked); err != nil {
				return err
			}
		}
	}
	for g := range groups {
		if err := m.paused.Add(ctx, traceID, m.instanceName, g); err != nil {
			return err
		}
	}
	return nil
}

// resumeGroupLocked is ResumeTriggerGroup's body with the lock
// acquisition stripped out, so ResumeAll can fold it into a single
// TriggerAccess hold alongside the <ALL_PAUSED> marker removal. Callers
// must already hold TriggerAccess.
func (m *Manager) resumeGroupLocked(ctx context.Context, traceID string, group repo.GroupMatcher) error {
	matched, err := m.triggers.ListByGroup(ctx, traceID, m.instanceName, group)
	if err != nil {
		return err
	}
	groups := map[string]bool{}
	for _, t := range matched {
		groups[t.Group] = true
		if t.State == model.StatePaused || t.State == model.StatePausedBlocked {
			if _, err := m.triggers.CASState(ctx, traceID, t.TriggerKey, t.State, model.StateWaiting); err != nil {
				return err
			}
		}
	}
	for g := range groups {
		if err := m.paused.Remove(ctx, traceID, m.instanceName, g); err != nil {
			return err
		}
	}
	return nil
}

// PauseAll pauses every group and additionally marks <ALL_PAUSED> so
// future groups are paused by default, all within a single TriggerAccess
// hold so no trigger stored in a new group mid-operation can land
// Waiting instead of Paused.
func (m *Manager) PauseAll(ctx context.Context, traceID string) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		if err := m.pauseGroupLocked(ctx, traceID, repo.GroupMatcher{Operator: repo.MatchAnything}); err != nil {
			return err
		}
		return m.paused.Add(ctx, traceID, m.instanceName, model.AllPausedGroup)
	})
}

// ResumeAll resumes every group and removes the <ALL_PAUSED> marker, all
// within a single TriggerAccess hold.
func (m *Manager) ResumeAll(ctx context.Context, traceID string) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		if err := m.resumeGroupLocked(ctx, traceID, repo.GroupMatcher{Operator: repo.MatchAnything}); err != nil {
			return err
		}
		return m.paused.Remove(ctx, traceID, m.instanceName, model.AllPausedGroup)
	})
}
