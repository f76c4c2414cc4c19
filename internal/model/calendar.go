// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package model

import "go.mongodb.org/mongo-driver/bson"

// Calendar is an opaque exclusion ruleset used to skip scheduled fires.
// Like Trigger's recurrence, the concrete ruleset (base/daily/weekly/
// holiday) is a tagged variant: Kind names the internal/recurrence
// calendar implementation and Data is its raw BSON payload. TimeZone is
// an opaque IANA zone name that is stored and returned as-is; the
// recurrence package's DecodeCalendar does not read it.
type Calendar struct {
	CalendarKey `bson:",inline"`

	Kind        string   `bson:"kind" json:"kind"`
	Description string   `bson:"description" json:"description"`
	TimeZone    string   `bson:"time_zone,omitempty" json:"time_zone,omitempty"`
	Data        bson.Raw `bson:"data" json:"-"`
}

// CollectionName returns the Mongo collection base name for calendars.
func (Calendar) CollectionName() string { return "calendars" }
