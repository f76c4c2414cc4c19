// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package notify

import (
	"context"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/seakee/quartzmongo/internal/logging"
)

// WebhookSink POSTs a JSON payload describing a trigger event to a
// configurable URL, standing in for the scheduler engine's listener
// registration since this store has no in-process
// scheduler API of its own to call back into directly.
type WebhookSink struct {
	client *resty.Client
	url    string
	log    *logging.Logger
}

// NewWebhookSink builds a sink posting to url via client.
func NewWebhookSink(client *resty.Client, url string, log *logging.Logger) *WebhookSink {
	return &WebhookSink{client: client, url: url, log: log}
}

type webhookPayload struct {
	Event  string       `json:"event"`
	Key    string       `json:"trigger_key"`
	JobKey string       `json:"job_key"`
	State  string       `json:"state"`
}

func (w *WebhookSink) post(ctx context.Context, event string, t TriggerView) error {
	if w.client == nil || w.url == "" {
		return nil
	}
	payload := webhookPayload{
		Event:  event,
		Key:    t.Key.Group + "/" + t.Key.Name,
		JobKey: t.JobKey.Group + "/" + t.JobKey.Name,
		State:  string(t.State),
	}
	_, err := w.client.R().SetContext(ctx).SetBody(payload).Post(w.url)
	return err
}

func (w *WebhookSink) NotifyTriggerMisfired(ctx context.Context, t TriggerView) error {
	return w.post(ctx, "trigger_misfired", t)
}

func (w *WebhookSink) NotifySchedulerListenersFinalized(ctx context.Context, t TriggerView) error {
	return w.post(ctx, "trigger_finalized", t)
}

// NotifySchedulerError posts nothing for WebhookSink and only logs a
// warning: operational alerts go through FeishuSink, per-trigger
// lifecycle events go through here.
func (w *WebhookSink) NotifySchedulerError(ctx context.Context, msg string, err error) {
	if w.log != nil {
		w.log.Warn(ctx, "notify: scheduler error (no webhook route)", zap.String("msg", msg), zap.Error(err))
	}
}
