// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seakee/quartzmongo/internal/model"
)

type fakeSink struct {
	misfiredCalls   int
	finalizedCalls  int
	errorCalls      int
	misfiredErr     error
}

func (f *fakeSink) NotifyTriggerMisfired(ctx context.Context, t TriggerView) error {
	f.misfiredCalls++
	return f.misfiredErr
}

func (f *fakeSink) NotifySchedulerListenersFinalized(ctx context.Context, t TriggerView) error {
	f.finalizedCalls++
	return nil
}

func (f *fakeSink) NotifySchedulerError(ctx context.Context, msg string, err error) {
	f.errorCalls++
}

func TestMultiSinkFansOutAndSwallowsErrors(t *testing.T) {
	a := &fakeSink{misfiredErr: errors.New("boom")}
	b := &fakeSink{}
	m := NewMultiSink(nil, a, b)

	view := TriggerView{Key: model.TriggerKey{Name: "t1", Group: "g1"}}
	err := m.NotifyTriggerMisfired(context.Background(), view)
	require.NoError(t, err)
	require.Equal(t, 1, a.misfiredCalls)
	require.Equal(t, 1, b.misfiredCalls)
}

func TestMultiSinkBroadcastsSchedulerError(t *testing.T) {
	a := &fakeSink{}
	b := &fakeSink{}
	m := NewMultiSink(nil, a, b)

	m.NotifySchedulerError(context.Background(), "sweep failed", errors.New("x"))
	require.Equal(t, 1, a.errorCalls)
	require.Equal(t, 1, b.errorCalls)
}
