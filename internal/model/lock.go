// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package model

import "time"

// LockDocument is the persisted form of a held distributed mutex. A row's
// absence means the lock is free; a row whose ExpireAt has passed is
// reapable by anyone, not just Owner.
type LockDocument struct {
	LockKey `bson:",inline"`

	Owner      string    `bson:"owner" json:"owner"`
	AcquiredAt time.Time `bson:"acquired_at" json:"acquired_at"`
	ExpireAt   time.Time `bson:"expire_at" json:"expire_at"`
}

// CollectionName returns the Mongo collection base name for locks.
func (LockDocument) CollectionName() string { return "locks" }
