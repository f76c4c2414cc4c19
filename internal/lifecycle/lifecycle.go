// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package lifecycle is the lifecycle coordinator (C7): instance
// registration, startup crash recovery, the background misfire
// sweeper, and shutdown. It is the only component that folds several
// other managers' work into one TriggerAccess critical section, so it
// talks to trigger/fired-trigger storage directly rather
// than through internal/storagemgr or internal/firemgr's own
// lock-acquiring methods.
package lifecycle

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/seakee/quartzmongo/internal/firemgr"
	"github.com/seakee/quartzmongo/internal/logging"
	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/notify"
	"github.com/seakee/quartzmongo/internal/recurrence"
)

// Locker is the subset of *lock.Mutex the coordinator needs.
type Locker interface {
	Acquire(ctx context.Context, traceID string) error
	Release(ctx context.Context, traceID string) error
}

// TriggerStore is the subset of *repo.TriggerRepo the coordinator needs.
type TriggerStore interface {
	BulkCASState(ctx context.Context, traceID string, extraFilter bson.M, fromStates []model.State, newState model.State) (int64, error)
	DeleteByState(ctx context.Context, traceID, instanceName string, state model.State) error
	Insert(ctx context.Context, traceID string, t model.Trigger) error
	DeleteAll(ctx context.Context, traceID, instanceName string) error
}

// FiredTriggerStore is the subset of *repo.FiredTriggerRepo the
// coordinator needs.
type FiredTriggerStore interface {
	ListByInstance(ctx context.Context, traceID, instanceName, instanceID string) ([]model.FiredTrigger, error)
	DeleteByInstance(ctx context.Context, traceID, instanceName, instanceID string) error
	DeleteAll(ctx context.Context, traceID, instanceName string) error
}

// SchedulerStore is the subset of *repo.SchedulerRepo the coordinator needs.
type SchedulerStore interface {
	Upsert(ctx context.Context, traceID string, key model.SchedulerKey, state model.SchedulerState, checkIn time.Time) error
	SetState(ctx context.Context, traceID string, key model.SchedulerKey, state model.SchedulerState) error
	Delete(ctx context.Context, traceID string, key model.SchedulerKey) error
	DeleteAll(ctx context.Context, traceID, instanceName string) error
}

// TruncatableStore is satisfied by every other per-instance collection
// repo (*repo.JobRepo, *repo.CalendarRepo, *repo.PausedGroupRepo) for
// ClearAllSchedulingData.
type TruncatableStore interface {
	DeleteAll(ctx context.Context, traceID, instanceName string) error
}

// FireSweeper is the subset of *firemgr.Manager the coordinator needs.
type FireSweeper interface {
	SweepMisfires(ctx context.Context, traceID string, recovering bool) (firemgr.SweepResult, error)
	SweepMisfiresLocked(ctx context.Context, traceID string, recovering bool) (firemgr.SweepResult, error)
}

// Config bundles the coordinator's construction-time knobs.
type Config struct {
	InstanceName                      string
	InstanceID                        string
	MisfireThreshold                  time.Duration
	DbRetryInterval                   time.Duration
	RetryableActionErrorLogThreshold  int
}

// Manager is the lifecycle coordinator for one scheduler instance.
type Manager struct {
	cfg Config

	newLock func() Locker

	triggers   TriggerStore
	fired      FiredTriggerStore
	schedulers SchedulerStore
	jobs       TruncatableStore
	cals       TruncatableStore
	paused     TruncatableStore

	fire FireSweeper
	sink notify.Sink
	log  *logging.Logger

	stop          chan struct{}
	done          chan struct{}
	failureStreak int
}

// New constructs a Manager. Validating configuration is the caller's
// responsibility (bootstrap wiring) before calling New; New itself only
// assembles the already-validated dependencies.
func New(cfg Config, newLock func() Locker, triggers TriggerStore, fired FiredTriggerStore, schedulers SchedulerStore, jobs, cals, paused TruncatableStore, fire FireSweeper, sink notify.Sink, log *logging.Logger) *Manager {
	return &Manager{
		cfg:        cfg,
		newLock:    newLock,
		triggers:   triggers,
		fired:      fired,
		schedulers: schedulers,
		jobs:       jobs,
		cals:       cals,
		paused:     paused,
		fire:       fire,
		sink:       sink,
		log:        log,
	}
}

func (m *Manager) key() model.SchedulerKey {
	return model.SchedulerKey{InstanceName: m.cfg.InstanceName, InstanceID: m.cfg.InstanceID}
}

// SchedulerStarted registers this instance, runs startup crash recovery,
// and launches the background sweeper.
func (m *Manager) SchedulerStarted(ctx context.Context, traceID string) error {
	if err := m.schedulers.Upsert(ctx, traceID, m.key(), model.SchedulerStateStarted, time.Now().UTC()); err != nil {
		return err
	}
	if err := m.recover(ctx, traceID); err != nil {
		return err
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.runSweeper(ctx)
	return nil
}

// recover performs the startup recovery sequence inside one TriggerAccess
// critical section.
func (m *Manager) recover(ctx context.Context, traceID string) error {
	l := m.newLock()
	if err := l.Acquire(ctx, traceID); err != nil {
		return err
	}
	defer l.Release(ctx, traceID)

	scope := bson.M{"instance_name": m.cfg.InstanceName}
	if _, err := m.triggers.BulkCASState(ctx, traceID, scope, []model.State{model.StateAcquired, model.StateExecuting}, model.StateWaiting); err != nil {
		return err
	}
	if _, err := m.triggers.BulkCASState(ctx, traceID, scope, []model.State{model.StatePausedBlocked}, model.StatePaused); err != nil {
		return err
	}

	owned, err := m.fired.ListByInstance(ctx, traceID, m.cfg.InstanceName, m.cfg.InstanceID)
	if err != nil {
		return err
	}
	for _, ft := range owned {
		if !ft.RequestsRecovery {
			continue
		}
		kind, data, err := recurrence.EncodeSimple(ft.ScheduledFireTime, 0, 0)
		if err != nil {
			return err
		}
		recoveryTrigger := model.Trigger{
			TriggerKey: model.TriggerKey{
				InstanceName: m.cfg.InstanceName,
				Group:        model.RecoveringJobsGroup,
				Name:         ft.FiredInstanceID,
			},
			JobKey:             ft.JobKey,
			NextFireTime:       &ft.ScheduledFireTime,
			Priority:           model.DefaultPriority,
			StartTime:          ft.ScheduledFireTime,
			MisfireInstruction: model.MisfireInstructionIgnore,
			State:              model.StateWaiting,
			RecurrenceKind:     kind,
			RecurrenceData:     data,
		}
		if err := m.triggers.Insert(ctx, traceID, recoveryTrigger); err != nil {
			return err
		}
	}
	if err := m.fired.DeleteByInstance(ctx, traceID, m.cfg.InstanceName, m.cfg.InstanceID); err != nil {
		return err
	}

	if _, err := m.fire.SweepMisfiresLocked(ctx, traceID, true); err != nil {
		return err
	}

	return m.triggers.DeleteByState(ctx, traceID, m.cfg.InstanceName, model.StateComplete)
}

// SchedulerPaused/SchedulerResumed CAS this instance's registration state.
func (m *Manager) SchedulerPaused(ctx context.Context, traceID string) error {
	return m.schedulers.SetState(ctx, traceID, m.key(), model.SchedulerStatePaused)
}

func (m *Manager) SchedulerResumed(ctx context.Context, traceID string) error {
	return m.schedulers.SetState(ctx, traceID, m.key(), model.SchedulerStateResumed)
}

// Shutdown stops the background sweeper, waits for it to join, and
// deletes this instance's registration. It never touches another
// instance's state.
func (m *Manager) Shutdown(ctx context.Context, traceID string) error {
	if m.stop != nil {
		close(m.stop)
		<-m.done
	}
	return m.schedulers.Delete(ctx, traceID, m.key())
}

// ClearAllSchedulingData truncates every collection scoped to this
// instance_name, under TriggerAccess.
func (m *Manager) ClearAllSchedulingData(ctx context.Context, traceID string) error {
	l := m.newLock()
	if err := l.Acquire(ctx, traceID); err != nil {
		return err
	}
	defer l.Release(ctx, traceID)

	for _, del := range []func(context.Context, string, string) error{
		m.jobs.DeleteAll,
		m.triggers.DeleteAll,
		m.cals.DeleteAll,
		m.fired.DeleteAll,
		m.paused.DeleteAll,
		m.schedulers.DeleteAll,
	} {
		if err := del(ctx, traceID, m.cfg.InstanceName); err != nil {
			return err
		}
	}
	return nil
}
