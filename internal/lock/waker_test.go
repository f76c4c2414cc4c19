// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seakee/quartzmongo/internal/model"
)

// A nil *redis.Manager exercises RedisWaker's degraded path: no panic,
// and Wait behaves like a plain timeout/cancellation select. (Bootstrap
// without Redis configured passes a nil Waker instead, so Mutex falls
// back to its own poll timer.)
func TestRedisWakerPublishIsNoOpWithoutRedis(t *testing.T) {
	w := NewRedisWaker(nil)
	require.NotPanics(t, func() {
		w.Publish(context.Background(), "cluster-a", model.LockTriggerAccess)
	})
}

func TestRedisWakerWaitRespectsTimeoutWithoutRedis(t *testing.T) {
	w := NewRedisWaker(nil)
	start := time.Now()
	w.Wait(context.Background(), "cluster-a", model.LockTriggerAccess, 20*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRedisWakerWaitReturnsEarlyOnContextCancellation(t *testing.T) {
	w := NewRedisWaker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	w.Wait(ctx, "cluster-a", model.LockTriggerAccess, time.Second)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
