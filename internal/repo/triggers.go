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

	"github.com/seakee/quartzmongo/internal/errs"
	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/store"
)

// TriggerRepo is the typed façade over the triggers collection.
type TriggerRepo struct {
	store *store.Store
}

func NewTriggerRepo(s *store.Store) *TriggerRepo { return &TriggerRepo{store: s} }

func (r *TriggerRepo) coll() *mongo.Collection { return r.store.Collection("triggers") }

func triggerKeyFilter(k model.TriggerKey) bson.M {
	return bson.M{"instance_name": k.InstanceName, "group": k.Group, "name": k.Name}
}

func (r *TriggerRepo) Exists(ctx context.Context, traceID string, key model.TriggerKey) (bool, error) {
	var n int64
	err := r.store.Do(ctx, traceID, "trigger.exists", func(ctx context.Context) error {
		var e error
		n, e = r.coll().CountDocuments(ctx, triggerKeyFilter(key))
		return e
	})
	return n > 0, err
}

func (r *TriggerRepo) Get(ctx context.Context, traceID string, key model.TriggerKey) (*model.Trigger, error) {
	var t model.Trigger
	err := r.store.Do(ctx, traceID, "trigger.get", func(ctx context.Context) error {
		return r.coll().FindOne(ctx, triggerKeyFilter(key)).Decode(&t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Insert fails with errs.AlreadyExists if the key is taken.
func (r *TriggerRepo) Insert(ctx context.Context, traceID string, t model.Trigger) error {
	exists, err := r.Exists(ctx, traceID, t.TriggerKey)
	if err != nil {
		return err
	}
	if exists {
		return errs.AlreadyExists("trigger " + t.Group + "/" + t.Name + " already exists")
	}
	return r.store.Do(ctx, traceID, "trigger.insert", func(ctx context.Context) error {
		_, err := r.coll().InsertOne(ctx, t)
		return err
	})
}

// Replace fully overwrites the trigger at its key, upserting if absent.
func (r *TriggerRepo) Replace(ctx context.Context, traceID string, t model.Trigger) error {
	opts := options.Replace().SetUpsert(true)
	return r.store.Do(ctx, traceID, "trigger.replace", func(ctx context.Context) error {
		_, err := r.coll().ReplaceOne(ctx, triggerKeyFilter(t.TriggerKey), t, opts)
		return err
	})
}

func (r *TriggerRepo) Delete(ctx context.Context, traceID string, key model.TriggerKey) error {
	return r.store.Do(ctx, traceID, "trigger.delete", func(ctx context.Context) error {
		_, err := r.coll().DeleteOne(ctx, triggerKeyFilter(key))
		return err
	})
}

// CountByJob counts triggers referencing jobKey, used to decide whether
// a non-durable job should be deleted after its last trigger is removed.
func (r *TriggerRepo) CountByJob(ctx context.Context, traceID string, jobKey model.JobKey) (int64, error) {
	var n int64
	err := r.store.Do(ctx, traceID, "trigger.countByJob", func(ctx context.Context) error {
		var e error
		n, e = r.coll().CountDocuments(ctx, bson.M{"instance_name": jobKey.InstanceName, "job_key": jobKey})
		return e
	})
	return n, err
}

// ListByGroup returns every trigger in instanceName whose group matches m.
func (r *TriggerRepo) ListByGroup(ctx context.Context, traceID, instanceName string, m GroupMatcher) ([]model.Trigger, error) {
	filter := bson.M{"instance_name": instanceName, "group": bson.M{"$regex": m.Regexp()}}
	return r.list(ctx, traceID, "trigger.listByGroup", filter)
}

// ListByCalendar returns every trigger in instanceName referencing
// calendarName, used to validate calendar deletion and to recompute fire
// times when a calendar is updated.
func (r *TriggerRepo) ListByCalendar(ctx context.Context, traceID, instanceName, calendarName string) ([]model.Trigger, error) {
	filter := bson.M{"instance_name": instanceName, "calendar_name": calendarName}
	return r.list(ctx, traceID, "trigger.listByCalendar", filter)
}

// ListByState returns every trigger in instanceName currently in state.
func (r *TriggerRepo) ListByState(ctx context.Context, traceID, instanceName string, state model.State) ([]model.Trigger, error) {
	filter := bson.M{"instance_name": instanceName, "state": state}
	return r.list(ctx, traceID, "trigger.listByState", filter)
}

func (r *TriggerRepo) list(ctx context.Context, traceID, opName string, filter bson.M) ([]model.Trigger, error) {
	var out []model.Trigger
	err := r.store.Do(ctx, traceID, opName, func(ctx context.Context) error {
		cur, err := r.coll().Find(ctx, filter)
		if err != nil {
			return err
		}
		defer cur.Close(ctx)
		out = nil
		for cur.Next(ctx) {
			var t model.Trigger
			if err := cur.Decode(&t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return cur.Err()
	})
	return out, err
}

// CASState conditionally writes newState if the stored state still
// equals fromState, the sole concurrency-safety mechanism across
// instances. Returns false, nil if the CAS lost the race.
func (r *TriggerRepo) CASState(ctx context.Context, traceID string, key model.TriggerKey, fromState, newState model.State) (bool, error) {
	filter := triggerKeyFilter(key)
	filter["state"] = fromState
	var matched int64
	err := r.store.Do(ctx, traceID, "trigger.casState", func(ctx context.Context) error {
		res, err := r.coll().UpdateOne(ctx, filter, bson.M{"$set": bson.M{"state": newState}})
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	return matched > 0, err
}

// BulkCASState applies a conditional state update to every document
// matching extraFilter currently in one of fromStates, in one shot; used
// by startup recovery to move this cluster's Acquired/Executing triggers
// back to Waiting and PausedBlocked back to Paused.
func (r *TriggerRepo) BulkCASState(ctx context.Context, traceID string, extraFilter bson.M, fromStates []model.State, newState model.State) (int64, error) {
	filter := bson.M{}
	for k, v := range extraFilter {
		filter[k] = v
	}
	filter["state"] = bson.M{"$in": fromStates}
	var modified int64
	err := r.store.Do(ctx, traceID, "trigger.bulkCASState", func(ctx context.Context) error {
		res, err := r.coll().UpdateMany(ctx, filter, bson.M{"$set": bson.M{"state": newState}})
		if err != nil {
			return err
		}
		modified = res.ModifiedCount
		return nil
	})
	return modified, err
}

// UpdateFireTimes writes the recomputed next/previous fire time and,
// unless preserveState, the target state, as one document update. Used
// by misfire recovery.
func (r *TriggerRepo) UpdateFireTimes(ctx context.Context, traceID string, key model.TriggerKey, fromState, newState model.State, next, prev *time.Time, preserveState bool) (bool, error) {
	filter := triggerKeyFilter(key)
	filter["state"] = fromState
	set := bson.M{"next_fire_time": next, "previous_fire_time": prev}
	if !preserveState {
		set["state"] = newState
	}
	var matched int64
	err := r.store.Do(ctx, traceID, "trigger.updateFireTimes", func(ctx context.Context) error {
		res, err := r.coll().UpdateOne(ctx, filter, bson.M{"$set": set})
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	return matched > 0, err
}

// AcquisitionCandidate is the projection the acquisition query returns:
// composite id only.
type AcquisitionCandidate struct {
	InstanceName string `bson:"instance_name"`
	Group        string `bson:"group"`
	Name         string `bson:"name"`
}

func (c AcquisitionCandidate) Key() model.TriggerKey {
	return model.TriggerKey{InstanceName: c.InstanceName, Group: c.Group, Name: c.Name}
}

// AcquireCandidates runs the acquisition query: Waiting triggers due by
// noLaterThan+timeWindow, excluding ones already past
// the misfire floor, ordered by next_fire_time asc, priority desc,
// capped at maxCount.
func (r *TriggerRepo) AcquireCandidates(ctx context.Context, traceID, instanceName string, now, noLaterThan time.Time, timeWindow, misfireThreshold time.Duration, maxCount int64) ([]AcquisitionCandidate, error) {
	deadline := noLaterThan.Add(timeWindow)
	misfireFloor := now.Add(-misfireThreshold)

	filter := bson.M{
		"instance_name":  instanceName,
		"state":          model.StateWaiting,
		"next_fire_time": bson.M{"$lte": deadline},
		"$or": []bson.M{
			{"misfire_instruction": model.MisfireInstructionIgnore},
			{"next_fire_time": bson.M{"$gte": misfireFloor}},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "next_fire_time", Value: 1}, {Key: "priority", Value: -1}}).
		SetLimit(maxCount).
		SetProjection(bson.M{"instance_name": 1, "group": 1, "name": 1})

	var out []AcquisitionCandidate
	err := r.store.Do(ctx, traceID, "trigger.acquireCandidates", func(ctx context.Context) error {
		cur, err := r.coll().Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cur.Close(ctx)
		out = nil
		for cur.Next(ctx) {
			var c AcquisitionCandidate
			if err := cur.Decode(&c); err != nil {
				return err
			}
			out = append(out, c)
		}
		return cur.Err()
	})
	return out, err
}

// CountMisfired counts Waiting triggers whose next_fire_time has already
// passed misfireFloor and whose misfire policy is not "ignore".
func (r *TriggerRepo) CountMisfired(ctx context.Context, traceID, instanceName string, misfireFloor time.Time) (int64, error) {
	var n int64
	err := r.store.Do(ctx, traceID, "trigger.countMisfired", func(ctx context.Context) error {
		var e error
		n, e = r.coll().CountDocuments(ctx, misfiredFilter(instanceName, misfireFloor))
		return e
	})
	return n, err
}

// ListMisfired returns up to maxCount misfired triggers ordered by
// (next_fire_time asc, priority desc).
func (r *TriggerRepo) ListMisfired(ctx context.Context, traceID, instanceName string, misfireFloor time.Time, maxCount int64) ([]model.Trigger, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "next_fire_time", Value: 1}, {Key: "priority", Value: -1}}).
		SetLimit(maxCount)
	var out []model.Trigger
	err := r.store.Do(ctx, traceID, "trigger.listMisfired", func(ctx context.Context) error {
		cur, err := r.coll().Find(ctx, misfiredFilter(instanceName, misfireFloor), opts)
		if err != nil {
			return err
		}
		defer cur.Close(ctx)
		out = nil
		for cur.Next(ctx) {
			var t model.Trigger
			if err := cur.Decode(&t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return cur.Err()
	})
	return out, err
}

func misfiredFilter(instanceName string, misfireFloor time.Time) bson.M {
	return bson.M{
		"instance_name":        instanceName,
		"state":                model.StateWaiting,
		"misfire_instruction":  bson.M{"$ne": model.MisfireInstructionIgnore},
		"next_fire_time":       bson.M{"$lt": misfireFloor},
	}
}

// DeleteByState removes every trigger in instanceName currently in
// state, used to clear Complete triggers during startup recovery.
func (r *TriggerRepo) DeleteByState(ctx context.Context, traceID, instanceName string, state model.State) error {
	return r.store.Do(ctx, traceID, "trigger.deleteByState", func(ctx context.Context) error {
		_, err := r.coll().DeleteMany(ctx, bson.M{"instance_name": instanceName, "state": state})
		return err
	})
}

// DeleteAll removes every trigger scoped to instanceName.
func (r *TriggerRepo) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	return r.store.Do(ctx, traceID, "trigger.deleteAll", func(ctx context.Context) error {
		_, err := r.coll().DeleteMany(ctx, bson.M{"instance_name": instanceName})
		return err
	})
}
