// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package firemgr is the fire manager (C6): the acquire/fire/complete
// protocol that hands triggers to worker pools with at-most-once firing,
// plus the misfire recovery sweep. Every public method acquires
// TriggerAccess exactly once, except SweepMisfiresLocked, which runs
// under a hold its caller already owns.
package firemgr

import (
	"context"
	"strconv"
	"time"

	"github.com/seakee/quartzmongo/internal/errs"
	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/notify"
	"github.com/seakee/quartzmongo/internal/recurrence"
	"github.com/seakee/quartzmongo/internal/repo"
	"github.com/seakee/quartzmongo/internal/statemachine"
)

// Bundle is what TriggersFired hands back per successfully-fired
// trigger: the job, the trigger snapshot, and the calendar in force (nil
// if the trigger has none).
type Bundle struct {
	Job      model.Job
	Trigger  model.Trigger
	Calendar *model.Calendar
}

// RecurrenceDecoder turns a trigger's tagged-variant RecurrenceKind/
// RecurrenceData into a concrete recurrence.Recurrence, and a
// calendar's Kind/Data into a recurrence.Calendar. internal/firemgr
// depends on this interface rather than internal/recurrence directly so
// the BSON tagged-variant decoding (which needs internal/model) lives
// with its caller, avoiding an import cycle between model and recurrence.
type RecurrenceDecoder interface {
	DecodeTrigger(t model.Trigger) (recurrence.Recurrence, error)
	DecodeCalendar(c *model.Calendar) (recurrence.Calendar, error)
}

// Locker is the subset of *lock.Mutex the fire manager needs; depending
// on the interface rather than the concrete type lets tests substitute a
// fake cluster-wide lock instead of requiring a live Mongo instance.
type Locker interface {
	Acquire(ctx context.Context, traceID string) error
	Release(ctx context.Context, traceID string) error
}

// JobStore is the subset of *repo.JobRepo the fire manager needs.
type JobStore interface {
	Get(ctx context.Context, traceID string, key model.JobKey) (*model.Job, error)
	UpdateData(ctx context.Context, traceID string, key model.JobKey, data map[string]any) error
}

// TriggerStore is the subset of *repo.TriggerRepo the fire manager needs.
type TriggerStore interface {
	Get(ctx context.Context, traceID string, key model.TriggerKey) (*model.Trigger, error)
	Delete(ctx context.Context, traceID string, key model.TriggerKey) error
	ListByGroup(ctx context.Context, traceID, instanceName string, m repo.GroupMatcher) ([]model.Trigger, error)
	CASState(ctx context.Context, traceID string, key model.TriggerKey, fromState, newState model.State) (bool, error)
	AcquireCandidates(ctx context.Context, traceID, instanceName string, now, noLaterThan time.Time, timeWindow, misfireThreshold time.Duration, maxCount int64) ([]repo.AcquisitionCandidate, error)
	CountMisfired(ctx context.Context, traceID, instanceName string, misfireFloor time.Time) (int64, error)
	ListMisfired(ctx context.Context, traceID, instanceName string, misfireFloor time.Time, maxCount int64) ([]model.Trigger, error)
	UpdateFireTimes(ctx context.Context, traceID string, key model.TriggerKey, fromState, newState model.State, next, prev *time.Time, preserveState bool) (bool, error)
}

// CalendarStore is the subset of *repo.CalendarRepo the fire manager needs.
type CalendarStore interface {
	Get(ctx context.Context, traceID string, key model.CalendarKey) (*model.Calendar, error)
}

// FiredTriggerStore is the subset of *repo.FiredTriggerRepo the fire
// manager needs.
type FiredTriggerStore interface {
	Insert(ctx context.Context, traceID string, ft model.FiredTrigger) error
	DeleteByPrefix(ctx context.Context, traceID, instanceName, prefix string) error
}

// Manager is the fire manager over one instance_name's data.
type Manager struct {
	instanceName string
	instanceID   string

	newLock func() Locker

	jobs     JobStore
	triggers TriggerStore
	cals     CalendarStore
	fired    FiredTriggerStore

	decoder RecurrenceDecoder
	sink    notify.Sink

	maxMisfiresPerPass int
	misfireThreshold   time.Duration
}

// Config bundles the construction-time knobs Manager needs beyond its
// repository handles.
type Config struct {
	InstanceName       string
	InstanceID         string
	MaxMisfiresPerPass int
	MisfireThreshold   time.Duration
}

func New(cfg Config, newLock func() Locker, jobs JobStore, triggers TriggerStore, cals CalendarStore, fired FiredTriggerStore, decoder RecurrenceDecoder, sink notify.Sink) *Manager {
	return &Manager{
		instanceName:       cfg.InstanceName,
		instanceID:         cfg.InstanceID,
		newLock:            newLock,
		jobs:               jobs,
		triggers:           triggers,
		cals:               cals,
		fired:              fired,
		decoder:            decoder,
		sink:               sink,
		maxMisfiresPerPass: cfg.MaxMisfiresPerPass,
		misfireThreshold:   cfg.MisfireThreshold,
	}
}

func (m *Manager) withTriggerAccess(ctx context.Context, traceID string, fn func(context.Context) error) error {
	l := m.newLock()
	if err := l.Acquire(ctx, traceID); err != nil {
		return err
	}
	defer l.Release(ctx, traceID)
	return fn(ctx)
}

// AcquireNextTriggers runs the acquisition query, then attempts a
// conditional Waiting->Acquired transition per candidate in order,
// skipping losers. Already-acquired candidates from this
// call are not rolled back if the caller cancels before returning; the
// caller must fire or release them.
func (m *Manager) AcquireNextTriggers(ctx context.Context, traceID string, noLaterThan time.Time, maxCount int64, timeWindow time.Duration) ([]model.Trigger, error) {
	var acquired []model.Trigger
	err := m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		now := time.Now().UTC()
		candidates, err := m.triggers.AcquireCandidates(ctx, traceID, m.instanceName, now, noLaterThan, timeWindow, m.misfireThreshold, maxCount)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				return errs.FromContext(ctx)
			}
			key := c.Key()
			ok, err := m.triggers.CASState(ctx, traceID, key, model.StateWaiting, model.StateAcquired)
			if err != nil {
				return err
			}
			if !ok {
				continue // lost the race to another acquirer or a pause
			}
			t, err := m.triggers.Get(ctx, traceID, key)
			if err != nil {
				continue
			}
			acquired = append(acquired, *t)
		}
		return nil
	})
	return acquired, err
}

// ReleaseAcquiredTrigger conditionally reverts Acquired->Waiting.
// Idempotent: a no-op if the trigger is no longer Acquired.
func (m *Manager) ReleaseAcquiredTrigger(ctx context.Context, traceID string, key model.TriggerKey) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		_, err := m.triggers.CASState(ctx, traceID, key, model.StateAcquired, model.StateWaiting)
		return err
	})
}

// TriggersFired transitions each Acquired trigger to Executing, records
// a fired-trigger row, and returns a Bundle per trigger. One trigger's
// failure (lost CAS, vanished job) does not prevent others in the batch
// from being reported.
func (m *Manager) TriggersFired(ctx context.Context, traceID string, keys []model.TriggerKey) ([]Bundle, []error) {
	var bundles []Bundle
	var fireErrs []error

	_ = m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		for _, key := range keys {
			b, err := m.fireOne(ctx, traceID, key)
			if err != nil {
				fireErrs = append(fireErrs, err)
				continue
			}
			bundles = append(bundles, *b)
		}
		return nil
	})
	return bundles, fireErrs
}

func (m *Manager) fireOne(ctx context.Context, traceID string, key model.TriggerKey) (*Bundle, error) {
	t, err := m.triggers.Get(ctx, traceID, key)
	if err != nil {
		return nil, err
	}
	job, err := m.jobs.Get(ctx, traceID, t.JobKey)
	if err != nil {
		return nil, errs.Integrity("fired trigger's job vanished: " + t.JobKey.Group + "/" + t.JobKey.Name)
	}

	ok, err := m.triggers.CASState(ctx, traceID, key, model.StateAcquired, model.StateExecuting)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Integrity("trigger " + key.Group + "/" + key.Name + " no longer Acquired")
	}
	t.State = model.StateExecuting

	var cal *model.Calendar
	if t.CalendarName != "" {
		cal, err = m.cals.Get(ctx, traceID, model.CalendarKey{InstanceName: m.instanceName, Name: t.CalendarName})
		if err != nil {
			cal = nil
		}
	}

	now := time.Now().UTC()
	firedInstanceID := model.FiredInstanceIDPrefix(key, m.instanceID) + ":" + strconv.FormatInt(now.UnixNano()/100, 36)
	ft := model.FiredTrigger{
		FiredTriggerKey: model.FiredTriggerKey{InstanceName: m.instanceName, FiredInstanceID: firedInstanceID},
		InstanceID:      m.instanceID,
		TriggerKey:      key,
		JobKey:          t.JobKey,
		FiredTime:       now,
		RequestsRecovery:              job.RequestsRecovery,
		ConcurrentExecutionDisallowed: job.ConcurrentExecutionDisallowed,
	}
	if t.NextFireTime != nil {
		ft.ScheduledFireTime = *t.NextFireTime
	}
	if err := m.fired.Insert(ctx, traceID, ft); err != nil {
		return nil, err
	}

	return &Bundle{Job: *job, Trigger: *t, Calendar: cal}, nil
}

// TriggeredJobComplete applies instruction's disposition to trigger,
// deletes its fired-trigger record(s), optionally persists the job's
// data map, and releases concurrency-blocked siblings.
func (m *Manager) TriggeredJobComplete(ctx context.Context, traceID string, t model.Trigger, job model.Job, instruction model.CompletionInstruction) error {
	return m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		if instruction == model.CompletionSetAllGroupComplete {
			group, err := m.triggers.ListByGroup(ctx, traceID, m.instanceName, repo.GroupMatcher{Operator: repo.MatchEquals, Value: t.Group})
			if err != nil {
				return err
			}
			for _, sibling := range group {
				if _, err := m.triggers.CASState(ctx, traceID, sibling.TriggerKey, sibling.State, model.StateComplete); err != nil {
					return err
				}
			}
		} else {
			newState, err := statemachine.Transition(model.StateExecuting, statemachine.EventComplete, statemachine.Options{Completion: instruction})
			if err != nil {
				return err
			}
			if newState == model.StateDeleted {
				if err := m.triggers.Delete(ctx, traceID, t.TriggerKey); err != nil {
					return err
				}
			} else {
				if _, err := m.triggers.CASState(ctx, traceID, t.TriggerKey, model.StateExecuting, newState); err != nil {
					return err
				}
			}
		}

		prefix := model.FiredInstanceIDPrefix(t.TriggerKey, m.instanceID) + ":"
		if err := m.fired.DeleteByPrefix(ctx, traceID, m.instanceName, prefix); err != nil {
			return err
		}

		if job.PersistDataAfterExecution {
			if err := m.jobs.UpdateData(ctx, traceID, job.JobKey, t.Data); err != nil {
				return err
			}
		}

		if job.ConcurrentExecutionDisallowed {
			siblings, err := m.triggers.ListByGroup(ctx, traceID, m.instanceName, repo.GroupMatcher{Operator: repo.MatchAnything})
			if err != nil {
				return err
			}
			for _, sibling := range siblings {
				if sibling.JobKey != job.JobKey {
					continue
				}
				switch sibling.State {
				case model.StatePausedBlocked:
					if _, err := m.triggers.CASState(ctx, traceID, sibling.TriggerKey, model.StatePausedBlocked, model.StatePaused); err != nil {
						return err
					}
				case model.StateExecuting:
					if _, err := m.triggers.CASState(ctx, traceID, sibling.TriggerKey, model.StateExecuting, model.StateWaiting); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}
