// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package repo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seakee/quartzmongo/internal/errs"
	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/store"
)

// JobRepo is the typed façade over the jobs collection.
type JobRepo struct {
	store *store.Store
}

func NewJobRepo(s *store.Store) *JobRepo { return &JobRepo{store: s} }

func (r *JobRepo) coll() *mongo.Collection { return r.store.Collection("jobs") }

func keyFilter(k model.JobKey) bson.M {
	return bson.M{"instance_name": k.InstanceName, "group": k.Group, "name": k.Name}
}

// Exists reports whether a job with key is present.
func (r *JobRepo) Exists(ctx context.Context, traceID string, key model.JobKey) (bool, error) {
	var n int64
	err := r.store.Do(ctx, traceID, "job.exists", func(ctx context.Context) error {
		var e error
		n, e = r.coll().CountDocuments(ctx, keyFilter(key))
		return e
	})
	return n > 0, err
}

// Get returns the job for key, or the unwrapped mongo.ErrNoDocuments when absent.
func (r *JobRepo) Get(ctx context.Context, traceID string, key model.JobKey) (*model.Job, error) {
	var job model.Job
	err := r.store.Do(ctx, traceID, "job.get", func(ctx context.Context) error {
		return r.coll().FindOne(ctx, keyFilter(key)).Decode(&job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Upsert inserts or fully replaces the job at its key.
func (r *JobRepo) Upsert(ctx context.Context, traceID string, job model.Job) error {
	opts := options.Replace().SetUpsert(true)
	return r.store.Do(ctx, traceID, "job.upsert", func(ctx context.Context) error {
		_, err := r.coll().ReplaceOne(ctx, keyFilter(job.JobKey), job, opts)
		return err
	})
}

// Insert fails with errs.AlreadyExists if the job's key is already taken;
// storage managers use this to implement replace=false semantics.
func (r *JobRepo) Insert(ctx context.Context, traceID string, job model.Job) error {
	exists, err := r.Exists(ctx, traceID, job.JobKey)
	if err != nil {
		return err
	}
	if exists {
		return errs.AlreadyExists("job " + job.Group + "/" + job.Name + " already exists")
	}
	return r.store.Do(ctx, traceID, "job.insert", func(ctx context.Context) error {
		_, err := r.coll().InsertOne(ctx, job)
		return err
	})
}

// Delete removes the job at key. Idempotent.
func (r *JobRepo) Delete(ctx context.Context, traceID string, key model.JobKey) error {
	return r.store.Do(ctx, traceID, "job.delete", func(ctx context.Context) error {
		_, err := r.coll().DeleteOne(ctx, keyFilter(key))
		return err
	})
}

// UpdateData rewrites a job's data map in place, used by
// TriggeredJobComplete's persist_data_after_execution path.
func (r *JobRepo) UpdateData(ctx context.Context, traceID string, key model.JobKey, data map[string]any) error {
	return r.store.Do(ctx, traceID, "job.updateData", func(ctx context.Context) error {
		_, err := r.coll().UpdateOne(ctx, keyFilter(key), bson.M{"$set": bson.M{"data": data}})
		return err
	})
}
