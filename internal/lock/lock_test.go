// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/seakee/quartzmongo/internal/model"
)

func TestNewAppliesDefaultsWithoutOptions(t *testing.T) {
	m := New(nil, nil, nil, "cluster-a", "owner-1", model.LockTriggerAccess)
	require.Equal(t, DefaultTTL, m.ttl)
	require.Equal(t, DefaultPollInterval, m.pollInterval)
	require.Equal(t, "cluster-a", m.instanceName)
	require.Equal(t, "owner-1", m.ownerID)
	require.Equal(t, model.LockTriggerAccess, m.lockType)
}

func TestWithTTLOverridesDefault(t *testing.T) {
	m := New(nil, nil, nil, "cluster-a", "owner-1", model.LockTriggerAccess, WithTTL(5*time.Second))
	require.Equal(t, 5*time.Second, m.ttl)
}

func TestWithTTLIgnoresNonPositiveValue(t *testing.T) {
	m := New(nil, nil, nil, "cluster-a", "owner-1", model.LockTriggerAccess, WithTTL(0), WithTTL(-time.Second))
	require.Equal(t, DefaultTTL, m.ttl)
}

func TestWithPollIntervalOverridesDefault(t *testing.T) {
	m := New(nil, nil, nil, "cluster-a", "owner-1", model.LockTriggerAccess, WithPollInterval(250*time.Millisecond))
	require.Equal(t, 250*time.Millisecond, m.pollInterval)
}

func TestWithPollIntervalIgnoresNonPositiveValue(t *testing.T) {
	m := New(nil, nil, nil, "cluster-a", "owner-1", model.LockTriggerAccess, WithPollInterval(0))
	require.Equal(t, DefaultPollInterval, m.pollInterval)
}

func TestIsDuplicateKeyDetectsCode11000(t *testing.T) {
	err := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	require.True(t, isDuplicateKey(err))
}

func TestIsDuplicateKeyRejectsOtherErrors(t *testing.T) {
	require.False(t, isDuplicateKey(mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 12}}}))
	require.False(t, isDuplicateKey(mongo.CommandError{Labels: []string{"NetworkError"}}))
}
