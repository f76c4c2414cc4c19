// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package repo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/store"
)

// PausedGroupRepo manages the set of paused trigger groups, including
// the reserved model.AllPausedGroup marker.
type PausedGroupRepo struct {
	store *store.Store
}

func NewPausedGroupRepo(s *store.Store) *PausedGroupRepo { return &PausedGroupRepo{store: s} }

func (r *PausedGroupRepo) coll() *mongo.Collection { return r.store.Collection("paused_trigger_groups") }

func pausedGroupFilter(instanceName, group string) bson.M {
	return bson.M{"instance_name": instanceName, "group": group}
}

// IsPaused reports whether group, or the <ALL_PAUSED> marker, is present
// for instanceName.
func (r *PausedGroupRepo) IsPaused(ctx context.Context, traceID, instanceName, group string) (bool, error) {
	var n int64
	err := r.store.Do(ctx, traceID, "pausedGroup.isPaused", func(ctx context.Context) error {
		var e error
		n, e = r.coll().CountDocuments(ctx, bson.M{
			"instance_name": instanceName,
			"group":         bson.M{"$in": []string{group, model.AllPausedGroup}},
		})
		return e
	})
	return n > 0, err
}

// Add inserts the marker for group if absent (idempotent upsert).
func (r *PausedGroupRepo) Add(ctx context.Context, traceID, instanceName, group string) error {
	opts := options.Replace().SetUpsert(true)
	doc := model.PausedGroup{PausedGroupKey: model.PausedGroupKey{InstanceName: instanceName, Group: group}}
	return r.store.Do(ctx, traceID, "pausedGroup.add", func(ctx context.Context) error {
		_, err := r.coll().ReplaceOne(ctx, pausedGroupFilter(instanceName, group), doc, opts)
		return err
	})
}

// Remove deletes the marker for group. Idempotent.
func (r *PausedGroupRepo) Remove(ctx context.Context, traceID, instanceName, group string) error {
	return r.store.Do(ctx, traceID, "pausedGroup.remove", func(ctx context.Context) error {
		_, err := r.coll().DeleteOne(ctx, pausedGroupFilter(instanceName, group))
		return err
	})
}

// ListGroups returns every paused group name for instanceName (including
// <ALL_PAUSED> if present).
func (r *PausedGroupRepo) ListGroups(ctx context.Context, traceID, instanceName string) ([]string, error) {
	var groups []string
	err := r.store.Do(ctx, traceID, "pausedGroup.listGroups", func(ctx context.Context) error {
		cur, err := r.coll().Find(ctx, bson.M{"instance_name": instanceName})
		if err != nil {
			return err
		}
		defer cur.Close(ctx)
		groups = nil
		for cur.Next(ctx) {
			var g model.PausedGroup
			if err := cur.Decode(&g); err != nil {
				return err
			}
			groups = append(groups, g.Group)
		}
		return cur.Err()
	})
	return groups, err
}

func (r *PausedGroupRepo) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	return r.store.Do(ctx, traceID, "pausedGroup.deleteAll", func(ctx context.Context) error {
		_, err := r.coll().DeleteMany(ctx, bson.M{"instance_name": instanceName})
		return err
	})
}
