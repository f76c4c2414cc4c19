// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package repo

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/store"
)

// FiredTriggerRepo tracks in-flight firings, used both to report
// completion and to recover work an instance never got to report.
type FiredTriggerRepo struct {
	store *store.Store
}

func NewFiredTriggerRepo(s *store.Store) *FiredTriggerRepo { return &FiredTriggerRepo{store: s} }

func (r *FiredTriggerRepo) coll() *mongo.Collection { return r.store.Collection("fired_triggers") }

func (r *FiredTriggerRepo) Insert(ctx context.Context, traceID string, ft model.FiredTrigger) error {
	return r.store.Do(ctx, traceID, "firedTrigger.insert", func(ctx context.Context) error {
		_, err := r.coll().InsertOne(ctx, ft)
		return err
	})
}

// DeleteByPrefix removes every fired-trigger row whose fired_instance_id
// starts with prefix ("trigger_name:trigger_group:instance_id:"), the
// cleanup TriggeredJobComplete performs once a trigger finishes.
func (r *FiredTriggerRepo) DeleteByPrefix(ctx context.Context, traceID, instanceName, prefix string) error {
	filter := bson.M{
		"instance_name":     instanceName,
		"fired_instance_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
	}
	return r.store.Do(ctx, traceID, "firedTrigger.deleteByPrefix", func(ctx context.Context) error {
		_, err := r.coll().DeleteMany(ctx, filter)
		return err
	})
}

// ListByInstance returns every fired-trigger row owned by instanceID,
// consulted at startup to synthesize recovery triggers.
func (r *FiredTriggerRepo) ListByInstance(ctx context.Context, traceID, instanceName, instanceID string) ([]model.FiredTrigger, error) {
	var out []model.FiredTrigger
	err := r.store.Do(ctx, traceID, "firedTrigger.listByInstance", func(ctx context.Context) error {
		cur, err := r.coll().Find(ctx, bson.M{"instance_name": instanceName, "instance_id": instanceID})
		if err != nil {
			return err
		}
		defer cur.Close(ctx)
		out = nil
		for cur.Next(ctx) {
			var ft model.FiredTrigger
			if err := cur.Decode(&ft); err != nil {
				return err
			}
			out = append(out, ft)
		}
		return cur.Err()
	})
	return out, err
}

// DeleteByInstance removes every fired-trigger row owned by instanceID.
func (r *FiredTriggerRepo) DeleteByInstance(ctx context.Context, traceID, instanceName, instanceID string) error {
	return r.store.Do(ctx, traceID, "firedTrigger.deleteByInstance", func(ctx context.Context) error {
		_, err := r.coll().DeleteMany(ctx, bson.M{"instance_name": instanceName, "instance_id": instanceID})
		return err
	})
}

func (r *FiredTriggerRepo) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	return r.store.Do(ctx, traceID, "firedTrigger.deleteAll", func(ctx context.Context) error {
		_, err := r.coll().DeleteMany(ctx, bson.M{"instance_name": instanceName})
		return err
	})
}
