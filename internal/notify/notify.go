// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package notify implements the store's external notification
// collaborators: misfire/finalize events and operational error alerts.
// Every sink call is best-effort and swallows (but logs) its own
// failures so a notification outage never blocks the CAS-guarded
// critical path.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/seakee/quartzmongo/internal/logging"
	"github.com/seakee/quartzmongo/internal/model"
)

// TriggerView is the read-only snapshot handed to sinks; it never
// carries enough to mutate state, keeping notification strictly a side
// channel.
type TriggerView struct {
	Key          model.TriggerKey
	JobKey       model.JobKey
	State        model.State
	NextFireTime *string
}

// Sink is the notification collaborator interface.
type Sink interface {
	NotifyTriggerMisfired(ctx context.Context, trigger TriggerView) error
	NotifySchedulerListenersFinalized(ctx context.Context, trigger TriggerView) error
	NotifySchedulerError(ctx context.Context, msg string, err error)
}

// MultiSink fans out to every configured Sink, logging (never
// returning) an individual sink's failure.
type MultiSink struct {
	sinks []Sink
	log   *logging.Logger
}

// NewMultiSink builds a fan-out sink from zero or more sinks.
func NewMultiSink(log *logging.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, log: log}
}

func (m *MultiSink) NotifyTriggerMisfired(ctx context.Context, t TriggerView) error {
	for _, s := range m.sinks {
		if err := s.NotifyTriggerMisfired(ctx, t); err != nil {
			m.logFailure(ctx, "NotifyTriggerMisfired", err)
		}
	}
	return nil
}

func (m *MultiSink) NotifySchedulerListenersFinalized(ctx context.Context, t TriggerView) error {
	for _, s := range m.sinks {
		if err := s.NotifySchedulerListenersFinalized(ctx, t); err != nil {
			m.logFailure(ctx, "NotifySchedulerListenersFinalized", err)
		}
	}
	return nil
}

func (m *MultiSink) NotifySchedulerError(ctx context.Context, msg string, err error) {
	for _, s := range m.sinks {
		s.NotifySchedulerError(ctx, msg, err)
	}
}

func (m *MultiSink) logFailure(ctx context.Context, op string, err error) {
	if m.log != nil {
		m.log.Warn(ctx, "notify: sink call failed", zap.String("op", op), zap.Error(err))
	}
}
