// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seakee/quartzmongo/internal/errs"
)

// EnsureIndexes creates every index this store relies on if it does not
// already exist. Safe to call on every startup: CreateMany is a no-op
// for indexes that already match.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if err := s.ensureTriggerIndexes(ctx); err != nil {
		return err
	}
	if err := s.ensureLockIndexes(ctx); err != nil {
		return err
	}
	if err := s.ensureFiredTriggerIndexes(ctx); err != nil {
		return err
	}
	if err := s.ensurePrimaryKeyIndexes(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Store) ensureTriggerIndexes(ctx context.Context) error {
	coll := s.Collection("triggers")
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "instance_name", Value: 1},
				{Key: "state", Value: 1},
				{Key: "next_fire_time", Value: 1},
				{Key: "priority", Value: -1},
			},
			Options: options.Index().SetName("acquisition"),
		},
		{
			Keys:    bson.D{{Key: "instance_name", Value: 1}, {Key: "job_key", Value: 1}},
			Options: options.Index().SetName("by_job_key"),
		},
		{
			Keys:    bson.D{{Key: "instance_name", Value: 1}, {Key: "calendar_name", Value: 1}},
			Options: options.Index().SetName("by_calendar_name"),
		},
	})
	if err != nil {
		return errs.Persistence(err, "ensure trigger indexes")
	}
	return nil
}

func (s *Store) ensureLockIndexes(ctx context.Context) error {
	coll := s.Collection("locks")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expire_at", Value: 1}},
		Options: options.Index().SetName("ttl").SetExpireAfterSeconds(0),
	})
	if err != nil {
		return errs.Persistence(err, "ensure lock TTL index")
	}
	return nil
}

func (s *Store) ensureFiredTriggerIndexes(ctx context.Context) error {
	coll := s.Collection("fired_triggers")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "instance_name", Value: 1}, {Key: "instance_id", Value: 1}},
		Options: options.Index().SetName("by_instance"),
	})
	if err != nil {
		return errs.Persistence(err, "ensure fired-trigger indexes")
	}
	return nil
}

// ensurePrimaryKeyIndexes enforces the composite uniqueness each entity's
// key requires when that key is not already the _id.
func (s *Store) ensurePrimaryKeyIndexes(ctx context.Context) error {
	unique := func(coll *mongo.Collection, name string, keys bson.D) error {
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetName(name).SetUnique(true),
		})
		return err
	}

	type spec struct {
		collection string
		name       string
		keys       bson.D
	}
	specs := []spec{
		{"jobs", "pk", bson.D{{Key: "instance_name", Value: 1}, {Key: "group", Value: 1}, {Key: "name", Value: 1}}},
		{"triggers", "pk", bson.D{{Key: "instance_name", Value: 1}, {Key: "group", Value: 1}, {Key: "name", Value: 1}}},
		{"calendars", "pk", bson.D{{Key: "instance_name", Value: 1}, {Key: "name", Value: 1}}},
		{"paused_trigger_groups", "pk", bson.D{{Key: "instance_name", Value: 1}, {Key: "group", Value: 1}}},
		{"fired_triggers", "pk", bson.D{{Key: "instance_name", Value: 1}, {Key: "fired_instance_id", Value: 1}}},
		{"schedulers", "pk", bson.D{{Key: "instance_name", Value: 1}, {Key: "instance_id", Value: 1}}},
		{"locks", "pk", bson.D{{Key: "instance_name", Value: 1}, {Key: "lock_type", Value: 1}}},
	}
	for _, sp := range specs {
		if err := unique(s.Collection(sp.collection), sp.name, sp.keys); err != nil {
			return errs.Persistence(err, "ensure primary key index on "+sp.collection)
		}
	}
	return nil
}
