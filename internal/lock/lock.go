// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package lock is the distributed mutex (C2): named, non-reentrant,
// cluster-wide mutual exclusion over the locks collection, with a
// Redis wake-up fast path layered on top as a pure latency optimization
// (correctness never depends on it).
package lock

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/seakee/quartzmongo/internal/errs"
	"github.com/seakee/quartzmongo/internal/logging"
	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/store"
)

// DefaultTTL and DefaultPollInterval are this lock's out-of-the-box
// tuning values.
const (
	DefaultTTL          = 30 * time.Second
	DefaultPollInterval = time.Second
)

// Waker is the best-effort wake-up channel (RedisWaker signals through a
// Redis generation counter). A nil Waker degrades to fixed-interval
// polling, and a Waker that fails to deliver a signal only costs the
// waiter the full poll interval, with no loss of correctness.
type Waker interface {
	// Publish notifies blocked acquirers that lockType may be free.
	Publish(ctx context.Context, instanceName string, lockType model.LockType)
	// Wait blocks until a Publish for lockType arrives or timeout elapses.
	Wait(ctx context.Context, instanceName string, lockType model.LockType, timeout time.Duration)
}

// Mutex is a handle on one named cluster-wide lock.
type Mutex struct {
	store        *store.Store
	log          *logging.Logger
	waker        Waker
	instanceName string
	ownerID      string
	lockType     model.LockType
	ttl          time.Duration
	pollInterval time.Duration
}

// Option adjusts a Mutex's TTL or poll interval away from the package
// defaults (bootstrap wiring uses these for the configured lock_ttl and
// lock_poll_interval values).
type Option func(*Mutex)

// WithTTL overrides DefaultTTL. A non-positive ttl is ignored.
func WithTTL(ttl time.Duration) Option {
	return func(m *Mutex) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithPollInterval overrides DefaultPollInterval. A non-positive interval
// is ignored.
func WithPollInterval(interval time.Duration) Option {
	return func(m *Mutex) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// New constructs a Mutex for lockType, owned by ownerID (the scheduler
// instance id) within instanceName's cluster. waker may be nil.
func New(s *store.Store, log *logging.Logger, waker Waker, instanceName, ownerID string, lockType model.LockType, opts ...Option) *Mutex {
	m := &Mutex{
		store:        s,
		log:          log,
		waker:        waker,
		instanceName: instanceName,
		ownerID:      ownerID,
		lockType:     lockType,
		ttl:          DefaultTTL,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mutex) coll() *mongo.Collection { return m.store.Collection("locks") }

func (m *Mutex) key() model.LockKey {
	return model.LockKey{InstanceName: m.instanceName, LockType: m.lockType}
}

// Acquire blocks until the lock is claimed or ctx is cancelled. A process
// that already holds this Mutex must not call Acquire again; the
// document's owner condition does not recognise the caller as the
// holder, so a self-acquire attempt waits like any other contender until
// its own row expires, which is the non-reentrancy guarantee. The expiry
// condition is evaluated against the current time on every attempt.
func (m *Mutex) Acquire(ctx context.Context, traceID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return errs.FromContext(ctx)
		}

		filter := bson.M{
			"instance_name": m.instanceName,
			"lock_type":     m.lockType,
			"$or": []bson.M{
				{"owner": bson.M{"$exists": false}},
				{"expire_at": bson.M{"$lt": time.Now().UTC()}},
			},
		}
		claimed, err := m.tryClaim(ctx, traceID, filter)
		if err != nil {
			return err
		}
		if claimed {
			return nil
		}

		if m.log != nil {
			m.log.Info(ctx, "lock: contended, waiting",
				zap.String("trace_id", traceID),
				zap.String("lock_type", string(m.lockType)))
		}

		if m.waker != nil {
			m.waker.Wait(ctx, m.instanceName, m.lockType, m.pollInterval)
		} else {
			timer := time.NewTimer(m.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errs.FromContext(ctx)
			case <-timer.C:
			}
		}
	}
}

// tryClaim attempts the single atomic upsert that either claims the lock
// or fails without side effects. A duplicate-key error from a losing
// race is treated as "not claimed", not a fault.
func (m *Mutex) tryClaim(ctx context.Context, traceID string, filter bson.M) (bool, error) {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"owner":      m.ownerID,
		"acquired_at": now,
		"expire_at":   now.Add(m.ttl),
	}}

	var claimed bool
	err := m.store.Do(ctx, traceID, "lock.acquire", func(ctx context.Context) error {
		res, err := m.coll().UpdateOne(ctx, filter, update)
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			claimed = true
			return nil
		}
		// No document matched the conditional filter: either no document
		// exists yet, or one exists but is owned by someone else and not
		// expired. Retry the same conditional filter with upsert so the
		// unclaimable case inserts nothing: a racer's insert (or an
		// existing unexpired owner) collides with the unique index on
		// (instance_name, lock_type), turning into a duplicate-key error
		// we swallow as "not claimed" rather than stealing the lock.
		_, err = m.coll().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err != nil {
			if isDuplicateKey(err) {
				return nil
			}
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// Release conditionally deletes the lock document if owned by m. A
// missing document (TTL-reaped) is a silent no-op. Releasing a lock
// owned by someone else is rejected.
func (m *Mutex) Release(ctx context.Context, traceID string) error {
	filter := bson.M{"instance_name": m.instanceName, "lock_type": m.lockType, "owner": m.ownerID}
	var deleted int64
	err := m.store.Do(ctx, traceID, "lock.release", func(ctx context.Context) error {
		res, err := m.coll().DeleteOne(ctx, filter)
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		owned, existsErr := m.owned(ctx, traceID)
		if existsErr == nil && !owned {
			return errs.Integrity("lock " + string(m.lockType) + " not owned by " + m.ownerID)
		}
	}
	if m.waker != nil {
		m.waker.Publish(ctx, m.instanceName, m.lockType)
	}
	return nil
}

func (m *Mutex) owned(ctx context.Context, traceID string) (bool, error) {
	var doc model.LockDocument
	err := m.store.Do(ctx, traceID, "lock.owned", func(ctx context.Context) error {
		return m.coll().FindOne(ctx, bson.M{"instance_name": m.instanceName, "lock_type": m.lockType}).Decode(&doc)
	})
	if err == mongo.ErrNoDocuments {
		return true, nil // absent counts as "nothing to reject release of"
	}
	if err != nil {
		return false, err
	}
	return doc.Owner == m.ownerID, nil
}

func isDuplicateKey(err error) bool {
	we, ok := err.(mongo.WriteException)
	if !ok {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 11000 {
			return true
		}
	}
	return false
}
