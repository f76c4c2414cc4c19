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

// CalendarRepo is the typed façade over the calendars collection.
type CalendarRepo struct {
	store *store.Store
}

func NewCalendarRepo(s *store.Store) *CalendarRepo { return &CalendarRepo{store: s} }

func (r *CalendarRepo) coll() *mongo.Collection { return r.store.Collection("calendars") }

func calendarKeyFilter(k model.CalendarKey) bson.M {
	return bson.M{"instance_name": k.InstanceName, "name": k.Name}
}

func (r *CalendarRepo) Exists(ctx context.Context, traceID string, key model.CalendarKey) (bool, error) {
	var n int64
	err := r.store.Do(ctx, traceID, "calendar.exists", func(ctx context.Context) error {
		var e error
		n, e = r.coll().CountDocuments(ctx, calendarKeyFilter(key))
		return e
	})
	return n > 0, err
}

func (r *CalendarRepo) Get(ctx context.Context, traceID string, key model.CalendarKey) (*model.Calendar, error) {
	var c model.Calendar
	err := r.store.Do(ctx, traceID, "calendar.get", func(ctx context.Context) error {
		return r.coll().FindOne(ctx, calendarKeyFilter(key)).Decode(&c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CalendarRepo) Insert(ctx context.Context, traceID string, c model.Calendar) error {
	exists, err := r.Exists(ctx, traceID, c.CalendarKey)
	if err != nil {
		return err
	}
	if exists {
		return errs.AlreadyExists("calendar " + c.Name + " already exists")
	}
	return r.store.Do(ctx, traceID, "calendar.insert", func(ctx context.Context) error {
		_, err := r.coll().InsertOne(ctx, c)
		return err
	})
}

func (r *CalendarRepo) Replace(ctx context.Context, traceID string, c model.Calendar) error {
	opts := options.Replace().SetUpsert(true)
	return r.store.Do(ctx, traceID, "calendar.replace", func(ctx context.Context) error {
		_, err := r.coll().ReplaceOne(ctx, calendarKeyFilter(c.CalendarKey), c, opts)
		return err
	})
}

func (r *CalendarRepo) Delete(ctx context.Context, traceID string, key model.CalendarKey) error {
	return r.store.Do(ctx, traceID, "calendar.delete", func(ctx context.Context) error {
		_, err := r.coll().DeleteOne(ctx, calendarKeyFilter(key))
		return err
	})
}

func (r *CalendarRepo) DeleteAll(ctx context.Context, traceID, instanceName string) error {
	return r.store.Do(ctx, traceID, "calendar.deleteAll", func(ctx context.Context) error {
		_, err := r.coll().DeleteMany(ctx, bson.M{"instance_name": instanceName})
		return err
	})
}
