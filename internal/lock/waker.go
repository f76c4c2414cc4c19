// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package lock

import (
	"context"
	"time"

	"github.com/sk-pkg/redis"
	"github.com/sk-pkg/util"

	"github.com/seakee/quartzmongo/internal/model"
)

// RedisWaker is a Waker backed by a single sk-pkg/redis connection,
// driving the lock's generation counter through the same SET NX/EXPIRE/
// DEL-style *redis.Manager.Do calls a plain distributed lock uses.
// Publish bumps a per-lock generation counter; Wait polls that counter
// in short ticks until it changes or
// timeout elapses. This is deliberately not a blocking SUBSCRIBE: it
// shortens the average wait below pollInterval without requiring a
// dedicated long-lived connection per waiter, and a missed or delayed
// bump only costs latency, never correctness, per the Waker contract.
type RedisWaker struct {
	redis *redis.Manager
}

// NewRedisWaker wraps an already-constructed redis.Manager.
func NewRedisWaker(r *redis.Manager) *RedisWaker {
	return &RedisWaker{redis: r}
}

const wakerPollTick = 20 * time.Millisecond

func (w *RedisWaker) key(instanceName string, lockType model.LockType) string {
	return util.SpliceStr(w.redis.Prefix, "quartzmongo:lockgen:", instanceName, ":", string(lockType))
}

// Publish bumps the generation counter for instanceName/lockType.
func (w *RedisWaker) Publish(ctx context.Context, instanceName string, lockType model.LockType) {
	if w.redis == nil {
		return
	}
	_, _ = w.redis.Do("INCR", w.key(instanceName, lockType))
}

// Wait blocks until the generation counter changes or timeout elapses,
// whichever comes first.
func (w *RedisWaker) Wait(ctx context.Context, instanceName string, lockType model.LockType, timeout time.Duration) {
	if w.redis == nil {
		select {
		case <-ctx.Done():
		case <-time.After(timeout):
		}
		return
	}

	key := w.key(instanceName, lockType)
	start, _ := w.redis.GetString(key)

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(wakerPollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, _ := w.redis.GetString(key)
			if cur != start {
				return
			}
			if time.Now().After(deadline) {
				return
			}
		}
	}
}
