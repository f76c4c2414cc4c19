// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/store"
)

// SchedulerRepo manages instance registration/heartbeat documents.
type SchedulerRepo struct {
	store *store.Store
}

func NewSchedulerRepo(s *store.Store) *SchedulerRepo { return &SchedulerRepo{store: s} }

func (r *SchedulerRepo) coll() *mongo.Collection { return r.store.Collection("schedulers") }

func schedulerKeyFilter(k model.SchedulerKey) bson.M {
	return bson.M{"instance_name": k.InstanceName, "instance_id": k.InstanceID}
}

// Upsert writes the registration state and heartbeat time.
func (r *SchedulerRepo) Upsert(ctx context.Context, traceID string, key model.SchedulerKey, state model.SchedulerState, checkIn time.Time) error {
	doc := model.Scheduler{SchedulerKey: key, State: state, LastCheckIn: checkIn}
	opts := options.Replace().SetUpsert(true)
	return r.store.Do(ctx, traceID, "scheduler.upsert", func(ctx context.Context) error {
		_, err := r.coll().ReplaceOne(ctx, schedulerKeyFilter(key), doc, opts)
		return err
	})
}

// SetState conditionally updates only the state field, used for
// SchedulerPaused/SchedulerResumed.
func (r *SchedulerRepo) SetState(ctx context.Context, traceID string, key model.SchedulerKey, state model.SchedulerState) error {
	return r.store.Do(ctx, traceID, "scheduler.setState", func(ctx context.Context) error {
		_, err := r.coll().UpdateOne(ctx, schedulerKeyFilter(key), bson.M{"$set": bson.M{"state": state}})
		return err
	})
}

func (r *SchedulerRepo) Delete(ctx context.Context, traceID string, key model.SchedulerKey) error {
	return r.store.Do(ctx, traceID, "scheduler.delete", func(ctx context.Context) error {
		_, err := r.coll().DeleteOne(ctx, schedulerKeyFilter(key))
		return err
	})
}

// List returns every registration for instanceName, used by the admin
// introspection endpoint.
func (r *SchedulerRepo) List(ctx context.Context, traceID, instanceName string) ([]model.Scheduler, error) {
	var out []model.Scheduler
	err := r.store.Do(ctx, traceID, "scheduler.list", func(ctx context.Context) error {
		cur, err := r.coll().Find(ctx, bson.M{"instance_name": instanceName})
		if err != nil {
			return err
		}
		defer cur.Close(ctx)
		out = nil
		for cur.Next(ctx) {
			var s model.Scheduler
			if err := cur.Decode(&s); err != nil {
				return err
			}
			out = append(out, s)
		}
		return cur.Err()
	})
	return out, err
}

func (r *SchedulerRepo) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	return r.store.Do(ctx, traceID, "scheduler.deleteAll", func(ctx context.Context) error {
		_, err := r.coll().DeleteMany(ctx, bson.M{"instance_name": instanceName})
		return err
	})
}
