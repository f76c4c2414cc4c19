// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/seakee/quartzmongo/internal/firemgr"
	"github.com/seakee/quartzmongo/internal/model"
)

type fakeLock struct{ acquired, released int }

func (f *fakeLock) Acquire(ctx context.Context, traceID string) error { f.acquired++; return nil }
func (f *fakeLock) Release(ctx context.Context, traceID string) error { f.released++; return nil }

type fakeTriggers struct {
	bulkCASCalls []model.State
	deletedState model.State
	inserted     []model.Trigger
	deletedAll   bool
}

func (f *fakeTriggers) BulkCASState(ctx context.Context, traceID string, extraFilter bson.M, fromStates []model.State, newState model.State) (int64, error) {
	f.bulkCASCalls = append(f.bulkCASCalls, newState)
	return 1, nil
}

func (f *fakeTriggers) DeleteByState(ctx context.Context, traceID, instanceName string, state model.State) error {
	f.deletedState = state
	return nil
}

func (f *fakeTriggers) Insert(ctx context.Context, traceID string, t model.Trigger) error {
	f.inserted = append(f.inserted, t)
	return nil
}

func (f *fakeTriggers) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	f.deletedAll = true
	return nil
}

type fakeFired struct {
	rows             []model.FiredTrigger
	deletedInstance  bool
	deletedAll       bool
}

func (f *fakeFired) ListByInstance(ctx context.Context, traceID, instanceName, instanceID string) ([]model.FiredTrigger, error) {
	return f.rows, nil
}

func (f *fakeFired) DeleteByInstance(ctx context.Context, traceID, instanceName, instanceID string) error {
	f.deletedInstance = true
	return nil
}

func (f *fakeFired) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	f.deletedAll = true
	return nil
}

type fakeSchedulers struct {
	upserted   model.SchedulerState
	setStates  []model.SchedulerState
	deleted    bool
	deletedAll bool
}

func (f *fakeSchedulers) Upsert(ctx context.Context, traceID string, key model.SchedulerKey, state model.SchedulerState, checkIn time.Time) error {
	f.upserted = state
	return nil
}

func (f *fakeSchedulers) SetState(ctx context.Context, traceID string, key model.SchedulerKey, state model.SchedulerState) error {
	f.setStates = append(f.setStates, state)
	return nil
}

func (f *fakeSchedulers) Delete(ctx context.Context, traceID string, key model.SchedulerKey) error {
	f.deleted = true
	return nil
}

func (f *fakeSchedulers) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	f.deletedAll = true
	return nil
}

type fakeTruncatable struct{ deletedAll bool }

func (f *fakeTruncatable) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	f.deletedAll = true
	return nil
}

type fakeSweeper struct {
	lockedCalls int
	sweepCalls  int
}

func (f *fakeSweeper) SweepMisfires(ctx context.Context, traceID string, recovering bool) (firemgr.SweepResult, error) {
	f.sweepCalls++
	return firemgr.SweepResult{}, nil
}

func (f *fakeSweeper) SweepMisfiresLocked(ctx context.Context, traceID string, recovering bool) (firemgr.SweepResult, error) {
	f.lockedCalls++
	return firemgr.SweepResult{}, nil
}

func TestSchedulerStartedRunsRecoverySequence(t *testing.T) {
	triggers := &fakeTriggers{}
	jobKey := model.JobKey{InstanceName: "inst", Group: "g", Name: "j"}
	fired := &fakeFired{rows: []model.FiredTrigger{
		{
			FiredTriggerKey:  model.FiredTriggerKey{InstanceName: "inst", FiredInstanceID: "t:g:node-1:abc"},
			InstanceID:       "node-1",
			JobKey:           jobKey,
			RequestsRecovery: true,
			ScheduledFireTime: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		},
		{
			FiredTriggerKey:  model.FiredTriggerKey{InstanceName: "inst", FiredInstanceID: "t:g:node-1:def"},
			InstanceID:       "node-1",
			JobKey:           jobKey,
			RequestsRecovery: false,
		},
	}}
	schedulers := &fakeSchedulers{}
	sweeper := &fakeSweeper{}
	lock := &fakeLock{}

	m := New(
		Config{InstanceName: "inst", InstanceID: "node-1", MisfireThreshold: time.Minute, DbRetryInterval: 15 * time.Second},
		func() Locker { return lock },
		triggers, fired, schedulers,
		&fakeTruncatable{}, &fakeTruncatable{}, &fakeTruncatable{},
		sweeper, nil, nil,
	)

	err := m.SchedulerStarted(context.Background(), "trace")
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background(), "trace") }()

	require.Equal(t, model.SchedulerStateStarted, schedulers.upserted)
	require.Equal(t, []model.State{model.StateWaiting, model.StatePaused}, triggers.bulkCASCalls)
	require.Len(t, triggers.inserted, 1, "only the requests_recovery row should synthesize a recovery trigger")
	require.Equal(t, model.RecoveringJobsGroup, triggers.inserted[0].Group)
	require.Equal(t, jobKey, triggers.inserted[0].JobKey)
	require.True(t, fired.deletedInstance)
	require.Equal(t, 1, sweeper.lockedCalls)
	require.Equal(t, model.StateComplete, triggers.deletedState)
	require.Equal(t, 1, lock.acquired)
	require.Equal(t, 1, lock.released)
}

func TestShutdownStopsSweeperAndDeletesRegistration(t *testing.T) {
	schedulers := &fakeSchedulers{}
	sweeper := &fakeSweeper{}
	m := New(
		Config{InstanceName: "inst", InstanceID: "node-1", MisfireThreshold: time.Hour, DbRetryInterval: time.Second},
		func() Locker { return &fakeLock{} },
		&fakeTriggers{}, &fakeFired{}, schedulers,
		&fakeTruncatable{}, &fakeTruncatable{}, &fakeTruncatable{},
		sweeper, nil, nil,
	)

	require.NoError(t, m.SchedulerStarted(context.Background(), "trace"))
	require.NoError(t, m.Shutdown(context.Background(), "trace"))
	require.True(t, schedulers.deleted)
}

func TestClearAllSchedulingDataTruncatesEveryCollection(t *testing.T) {
	jobs, cals, paused := &fakeTruncatable{}, &fakeTruncatable{}, &fakeTruncatable{}
	triggers := &fakeTriggers{}
	fired := &fakeFired{}
	schedulers := &fakeSchedulers{}

	m := New(
		Config{InstanceName: "inst", InstanceID: "node-1"},
		func() Locker { return &fakeLock{} },
		triggers, fired, schedulers, jobs, cals, paused,
		&fakeSweeper{}, nil, nil,
	)

	require.NoError(t, m.ClearAllSchedulingData(context.Background(), "trace"))
	require.True(t, jobs.deletedAll)
	require.True(t, cals.deletedAll)
	require.True(t, paused.deletedAll)
	require.True(t, triggers.deletedAll)
	require.True(t, fired.deletedAll)
	require.True(t, schedulers.deletedAll)
}
