// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package notify

import (
	"context"

	"github.com/sk-pkg/feishu"
	"go.uber.org/zap"

	"github.com/seakee/quartzmongo/internal/logging"
)

// FeishuSink posts operational alerts to a Feishu group webhook through
// the configured feishu.Manager. It only implements NotifySchedulerError; the
// per-trigger callbacks are no-ops here (handled by WebhookSink) so a
// FeishuSink can be composed into a MultiSink purely for alerting.
type FeishuSink struct {
	client *feishu.Manager
	log    *logging.Logger
}

// NewFeishuSink wraps an already-constructed feishu.Manager.
func NewFeishuSink(client *feishu.Manager, log *logging.Logger) *FeishuSink {
	return &FeishuSink{client: client, log: log}
}

func (f *FeishuSink) NotifyTriggerMisfired(ctx context.Context, t TriggerView) error {
	return nil
}

func (f *FeishuSink) NotifySchedulerListenersFinalized(ctx context.Context, t TriggerView) error {
	return nil
}

// NotifySchedulerError posts a text card describing a sweeper failure or
// crash-recovery event. Failures to reach Feishu are logged, never
// propagated: this is an alerting side channel, not part of any
// critical section.
func (f *FeishuSink) NotifySchedulerError(ctx context.Context, msg string, err error) {
	if f.client == nil {
		return
	}
	text := msg
	if err != nil {
		text = msg + ": " + err.Error()
	}
	if sendErr := f.client.SendTextMessage(text); sendErr != nil && f.log != nil {
		f.log.Warn(ctx, "notify: feishu send failed", zap.Error(sendErr))
	}
}
