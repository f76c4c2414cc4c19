// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package firemgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/recurrence"
	"github.com/seakee/quartzmongo/internal/repo"
)

// fakeLock is a no-op Locker: every test here exercises the protocol
// logic, not cluster-wide mutual exclusion (internal/lock has its own
// tests for that).
type fakeLock struct{}

func (fakeLock) Acquire(ctx context.Context, traceID string) error { return nil }
func (fakeLock) Release(ctx context.Context, traceID string) error { return nil }

type fakeTriggers struct {
	byKey      map[model.TriggerKey]*model.Trigger
	candidates []repo.AcquisitionCandidate
	misfired   []model.Trigger
}

func newFakeTriggers() *fakeTriggers {
	return &fakeTriggers{byKey: map[model.TriggerKey]*model.Trigger{}}
}

func (f *fakeTriggers) put(t model.Trigger) { f.byKey[t.TriggerKey] = &t }

func (f *fakeTriggers) Get(ctx context.Context, traceID string, key model.TriggerKey) (*model.Trigger, error) {
	t, ok := f.byKey[key]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTriggers) Delete(ctx context.Context, traceID string, key model.TriggerKey) error {
	delete(f.byKey, key)
	return nil
}

func (f *fakeTriggers) ListByGroup(ctx context.Context, traceID, instanceName string, m repo.GroupMatcher) ([]model.Trigger, error) {
	var out []model.Trigger
	for _, t := range f.byKey {
		if t.InstanceName == instanceName && m.Regexp().MatchString(t.Group) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTriggers) CASState(ctx context.Context, traceID string, key model.TriggerKey, fromState, newState model.State) (bool, error) {
	t, ok := f.byKey[key]
	if !ok || t.State != fromState {
		return false, nil
	}
	t.State = newState
	return true, nil
}

func (f *fakeTriggers) AcquireCandidates(ctx context.Context, traceID, instanceName string, now, noLaterThan time.Time, timeWindow, misfireThreshold time.Duration, maxCount int64) ([]repo.AcquisitionCandidate, error) {
	return f.candidates, nil
}

func (f *fakeTriggers) CountMisfired(ctx context.Context, traceID, instanceName string, misfireFloor time.Time) (int64, error) {
	return int64(len(f.misfired)), nil
}

func (f *fakeTriggers) ListMisfired(ctx context.Context, traceID, instanceName string, misfireFloor time.Time, maxCount int64) ([]model.Trigger, error) {
	if int64(len(f.misfired)) > maxCount {
		return f.misfired[:maxCount], nil
	}
	return f.misfired, nil
}

func (f *fakeTriggers) UpdateFireTimes(ctx context.Context, traceID string, key model.TriggerKey, fromState, newState model.State, next, prev *time.Time, preserveState bool) (bool, error) {
	t, ok := f.byKey[key]
	if !ok || t.State != fromState {
		return false, nil
	}
	t.NextFireTime = next
	t.PreviousFireTime = prev
	if !preserveState {
		t.State = newState
	}
	return true, nil
}

type fakeJobs struct {
	byKey map[model.JobKey]*model.Job
}

func (f *fakeJobs) Get(ctx context.Context, traceID string, key model.JobKey) (*model.Job, error) {
	j, ok := f.byKey[key]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) UpdateData(ctx context.Context, traceID string, key model.JobKey, data map[string]any) error {
	if j, ok := f.byKey[key]; ok {
		j.Data = data
	}
	return nil
}

type fakeCalendars struct{}

func (fakeCalendars) Get(ctx context.Context, traceID string, key model.CalendarKey) (*model.Calendar, error) {
	return nil, errors.New("not found")
}

type fakeFired struct {
	inserted int
	deleted  []string
}

func (f *fakeFired) Insert(ctx context.Context, traceID string, ft model.FiredTrigger) error {
	f.inserted++
	return nil
}

func (f *fakeFired) DeleteByPrefix(ctx context.Context, traceID, instanceName, prefix string) error {
	f.deleted = append(f.deleted, prefix)
	return nil
}

type fakeDecoder struct {
	rec recurrence.Recurrence
	cal recurrence.Calendar
}

func (d fakeDecoder) DecodeTrigger(t model.Trigger) (recurrence.Recurrence, error) { return d.rec, nil }
func (d fakeDecoder) DecodeCalendar(c *model.Calendar) (recurrence.Calendar, error) {
	return d.cal, nil
}

func newTestManager(triggers *fakeTriggers, jobs *fakeJobs) *Manager {
	return New(
		Config{InstanceName: "inst", InstanceID: "node-1", MaxMisfiresPerPass: 10, MisfireThreshold: time.Minute},
		func() Locker { return fakeLock{} },
		jobs, triggers, fakeCalendars{}, &fakeFired{},
		fakeDecoder{rec: recurrence.SimpleRecurrence{Interval: time.Minute, RepeatCount: -1}, cal: recurrence.NoCalendar},
		nil,
	)
}

func TestAcquireNextTriggersSkipsLostRaces(t *testing.T) {
	triggers := newFakeTriggers()
	key1 := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "t1"}
	key2 := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "t2"}
	triggers.put(model.Trigger{TriggerKey: key1, JobKey: model.JobKey{InstanceName: "inst", Group: "g", Name: "j"}, State: model.StateWaiting})
	// t2 lost the race to another acquirer between candidate selection and CAS.
	triggers.put(model.Trigger{TriggerKey: key2, JobKey: model.JobKey{InstanceName: "inst", Group: "g", Name: "j"}, State: model.StateAcquired})
	triggers.candidates = []repo.AcquisitionCandidate{
		{InstanceName: "inst", Group: "g", Name: "t1"},
		{InstanceName: "inst", Group: "g", Name: "t2"},
	}

	m := newTestManager(triggers, &fakeJobs{byKey: map[model.JobKey]*model.Job{}})
	acquired, err := m.AcquireNextTriggers(context.Background(), "trace", time.Now(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 1)
	require.Equal(t, key1, acquired[0].TriggerKey)
	require.Equal(t, model.StateAcquired, triggers.byKey[key1].State)
}

func TestTriggersFiredCollectsPartialFailures(t *testing.T) {
	triggers := newFakeTriggers()
	jobKey := model.JobKey{InstanceName: "inst", Group: "g", Name: "j"}
	okKey := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "ok"}
	goneKey := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "gone"}
	triggers.put(model.Trigger{TriggerKey: okKey, JobKey: jobKey, State: model.StateAcquired})
	// goneKey is never inserted, simulating a trigger deleted between
	// acquisition and firing.

	jobs := &fakeJobs{byKey: map[model.JobKey]*model.Job{jobKey: {JobKey: jobKey}}}
	fired := &fakeFired{}
	m := New(
		Config{InstanceName: "inst", InstanceID: "node-1"},
		func() Locker { return fakeLock{} },
		jobs, triggers, fakeCalendars{}, fired,
		fakeDecoder{rec: recurrence.SimpleRecurrence{}, cal: recurrence.NoCalendar},
		nil,
	)

	bundles, errs := m.TriggersFired(context.Background(), "trace", []model.TriggerKey{okKey, goneKey})
	require.Len(t, bundles, 1)
	require.Equal(t, okKey, bundles[0].Trigger.TriggerKey)
	require.Len(t, errs, 1)
	require.Equal(t, 1, fired.inserted)
	require.Equal(t, model.StateExecuting, triggers.byKey[okKey].State)
}

func TestTriggeredJobCompleteDispatchesByInstruction(t *testing.T) {
	cases := []struct {
		name        string
		instruction model.CompletionInstruction
		wantDeleted bool
		wantState   model.State
	}{
		{"noop returns to waiting", model.CompletionNoop, false, model.StateWaiting},
		{"delete removes the trigger", model.CompletionDelete, true, ""},
		{"set complete", model.CompletionSetComplete, false, model.StateComplete},
		{"set error", model.CompletionSetError, false, model.StateError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			triggers := newFakeTriggers()
			jobKey := model.JobKey{InstanceName: "inst", Group: "g", Name: "j"}
			key := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "t"}
			trig := model.Trigger{TriggerKey: key, JobKey: jobKey, State: model.StateExecuting}
			triggers.put(trig)
			jobs := &fakeJobs{byKey: map[model.JobKey]*model.Job{jobKey: {JobKey: jobKey}}}
			fired := &fakeFired{}
			m := New(Config{InstanceName: "inst", InstanceID: "node-1"}, func() Locker { return fakeLock{} },
				jobs, triggers, fakeCalendars{}, fired, fakeDecoder{}, nil)

			err := m.TriggeredJobComplete(context.Background(), "trace", trig, *jobs.byKey[jobKey], tc.instruction)
			require.NoError(t, err)

			_, stillThere := triggers.byKey[key]
			if tc.wantDeleted {
				require.False(t, stillThere)
			} else {
				require.True(t, stillThere)
				require.Equal(t, tc.wantState, triggers.byKey[key].State)
			}
			require.Len(t, fired.deleted, 1)
		})
	}
}

func TestTriggeredJobCompleteSetAllGroupCompleteMarksWholeGroup(t *testing.T) {
	triggers := newFakeTriggers()
	jobKey := model.JobKey{InstanceName: "inst", Group: "g", Name: "j"}
	key1 := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "t1"}
	key2 := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "t2"}
	triggers.put(model.Trigger{TriggerKey: key1, JobKey: jobKey, State: model.StateExecuting})
	triggers.put(model.Trigger{TriggerKey: key2, JobKey: jobKey, State: model.StateWaiting})

	jobs := &fakeJobs{byKey: map[model.JobKey]*model.Job{jobKey: {JobKey: jobKey}}}
	m := New(Config{InstanceName: "inst", InstanceID: "node-1"}, func() Locker { return fakeLock{} },
		jobs, triggers, fakeCalendars{}, &fakeFired{}, fakeDecoder{}, nil)

	err := m.TriggeredJobComplete(context.Background(), "trace", *triggers.byKey[key1], *jobs.byKey[jobKey], model.CompletionSetAllGroupComplete)
	require.NoError(t, err)
	require.Equal(t, model.StateComplete, triggers.byKey[key1].State)
	require.Equal(t, model.StateComplete, triggers.byKey[key2].State)
}

func TestSweepMisfiresRecomputesAndReportsCount(t *testing.T) {
	triggers := newFakeTriggers()
	key := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "t"}
	triggers.put(model.Trigger{TriggerKey: key, JobKey: model.JobKey{InstanceName: "inst", Group: "g", Name: "j"}, State: model.StateWaiting})
	triggers.misfired = []model.Trigger{*triggers.byKey[key]}

	m := New(
		Config{InstanceName: "inst", InstanceID: "node-1", MaxMisfiresPerPass: 10, MisfireThreshold: time.Minute},
		func() Locker { return fakeLock{} },
		&fakeJobs{byKey: map[model.JobKey]*model.Job{}}, triggers, fakeCalendars{}, &fakeFired{},
		fakeDecoder{rec: recurrence.SimpleRecurrence{Interval: time.Minute, RepeatCount: -1}, cal: recurrence.NoCalendar},
		nil,
	)

	result, err := m.SweepMisfires(context.Background(), "trace", false)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.False(t, result.HasMore)
	require.NotNil(t, result.EarliestNewFireTime)
	require.Equal(t, model.StateWaiting, triggers.byKey[key].State)
	require.NotNil(t, triggers.byKey[key].NextFireTime)
}

func TestSweepMisfiresReportsHasMoreWhenCountExceedsPass(t *testing.T) {
	triggers := newFakeTriggers()
	jobKey := model.JobKey{InstanceName: "inst", Group: "g", Name: "j"}
	key := model.TriggerKey{InstanceName: "inst", Group: "g", Name: "t"}
	triggers.put(model.Trigger{TriggerKey: key, JobKey: jobKey, State: model.StateWaiting})
	// misfired holds only the one selected row, but the repo's count is
	// larger, simulating more misfired rows than fit in one pass.
	triggers.misfired = []model.Trigger{*triggers.byKey[key]}

	m := &Manager{
		instanceName:       "inst",
		instanceID:         "node-1",
		newLock:            func() Locker { return fakeLock{} },
		jobs:               &fakeJobs{byKey: map[model.JobKey]*model.Job{}},
		triggers:           &countInflatingTriggers{fakeTriggers: triggers, inflatedCount: 5},
		cals:               fakeCalendars{},
		fired:              &fakeFired{},
		decoder:            fakeDecoder{rec: recurrence.SimpleRecurrence{Interval: time.Minute, RepeatCount: -1}, cal: recurrence.NoCalendar},
		maxMisfiresPerPass: 1,
		misfireThreshold:   time.Minute,
	}

	result, err := m.SweepMisfires(context.Background(), "trace", false)
	require.NoError(t, err)
	require.True(t, result.HasMore)
	require.Equal(t, 1, result.Count)
}

// countInflatingTriggers wraps fakeTriggers to report a CountMisfired
// larger than the rows ListMisfired actually returns, exercising
// SweepMisfires's HasMore computation without needing hundreds of fake
// trigger documents.
type countInflatingTriggers struct {
	*fakeTriggers
	inflatedCount int64
}

func (c *countInflatingTriggers) CountMisfired(ctx context.Context, traceID, instanceName string, misfireFloor time.Time) (int64, error) {
	return c.inflatedCount, nil
}
