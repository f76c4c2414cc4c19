// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package model

// PausedGroup marks a trigger group as paused. Presence of a document is
// the marker; there are no other attributes.
type PausedGroup struct {
	PausedGroupKey `bson:",inline"`
}

// CollectionName returns the Mongo collection base name for paused
// trigger groups.
func (PausedGroup) CollectionName() string { return "paused_trigger_groups" }
