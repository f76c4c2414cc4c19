// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package store is the document-store adapter (C1): typed collection
// handles, first-use index bootstrap, and the retry wrapper every
// repository write passes through. Nothing above this package talks to
// the driver directly.
package store

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/seakee/quartzmongo/internal/errs"
	"github.com/seakee/quartzmongo/internal/logging"
)

// Store owns the database handle and collection prefix. Repositories
// obtain collections through it rather than touching *mongo.Database
// directly, so every access goes through the same retry policy.
type Store struct {
	db     *mongo.Database
	prefix string
	retry  RetryPolicy
	log    *logging.Logger
}

// RetryPolicy configures the exponential-backoff retry wrapper:
// transient errors retry up to Attempts times, sleeping
// base*2^(attempt-1) plus uniform jitter in [0, min(JitterCap, backoff)].
type RetryPolicy struct {
	Attempts  int
	Base      time.Duration
	JitterCap time.Duration
}

// DefaultRetryPolicy is the out-of-the-box retry tuning.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: 200 * time.Millisecond, JitterCap: time.Second}
}

// New connects to uri and returns a Store scoped to prefix. It does not
// bootstrap indexes; call EnsureIndexes once after construction.
func New(ctx context.Context, uri, dbName, prefix string, retry RetryPolicy, log *logging.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errs.Persistence(err, "connect to document store")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errs.Persistence(err, "ping document store")
	}
	return &Store{db: client.Database(dbName), prefix: prefix, retry: retry, log: log}, nil
}

// Collection returns the prefixed handle for base (e.g. "triggers").
func (s *Store) Collection(base string) *mongo.Collection {
	return s.db.Collection(s.prefix + base)
}

// Client exposes the underlying driver client; the admin readiness
// handler uses it to ping the deployment.
func (s *Store) Client() *mongo.Client { return s.db.Client() }

// Disconnect closes the underlying connection.
func (s *Store) Disconnect(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// Do runs op under the retry policy, classifying errors as retryable or
// permanent. traceID is attached to each retry warning log line so a
// slow sweep or lock poll can be correlated across attempts.
func (s *Store) Do(ctx context.Context, traceID, opName string, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.FromContext(ctx)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if lastErr == mongo.ErrNoDocuments {
			// Not found is an ordinary outcome, not a persistence fault;
			// callers branch on it with errors.Is(err, mongo.ErrNoDocuments).
			return lastErr
		}
		if !isTransient(lastErr) {
			return errs.Persistence(lastErr, opName)
		}

		if attempt == s.retry.Attempts {
			break
		}

		backoff := s.retry.Base * (1 << (attempt - 1))
		jitterCap := s.retry.JitterCap
		if backoff < jitterCap {
			jitterCap = backoff
		}
		delay := backoff + time.Duration(rand.Int63n(int64(jitterCap)+1))

		if s.log != nil {
			s.log.Warn(ctx, "store: transient error, retrying",
				zap.String("trace_id", traceID),
				zap.String("op", opName),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errs.FromContext(ctx)
		case <-timer.C:
		}
	}
	return errs.Persistence(lastErr, opName)
}

// isTransient classifies a driver error as retryable:
// connection errors, execution timeouts, and timeout-caused write
// failures. Duplicate key and other validation failures are permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.HasErrorLabel("NetworkError") || cmdErr.HasErrorLabel("RetryableWriteError")
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 { // duplicate key
				return false
			}
		}
		return we.WriteConcernError != nil
	}
	return false
}
