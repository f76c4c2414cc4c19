// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package errs

import (
	"context"
	"errors"
	"testing"
)

func TestWrapIsAndUnwrap(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Persistence(cause, "insert job")

	if !IsPersistence(err) {
		t.Fatalf("expected IsPersistence, got %v", err)
	}
	if IsIntegrity(err) {
		t.Fatalf("did not expect IsIntegrity for %v", err)
	}
	if errors.Unwrap(err) == nil {
		t.Fatal("expected non-nil unwrap")
	}
}

func TestAlreadyExistsHasNoCause(t *testing.T) {
	err := AlreadyExists("job already exists")
	if !IsAlreadyExists(err) {
		t.Fatalf("expected IsAlreadyExists, got %v", err)
	}
	if errors.Unwrap(err) != nil {
		t.Fatalf("expected nil cause, got %v", errors.Unwrap(err))
	}
}

func TestFromContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := FromContext(ctx)
	if !IsCancelled(err) {
		t.Fatalf("expected IsCancelled, got %v", err)
	}
}

func TestFromContextLive(t *testing.T) {
	if err := FromContext(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
