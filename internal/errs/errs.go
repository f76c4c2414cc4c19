// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package errs implements the store's error taxonomy: AlreadyExists,
// Integrity, Persistence, Cancelled, NotImplemented. Repository and
// manager methods in this module return errors built with this package
// instead of raw driver errors, so callers can branch with errors.Is, with
// two exceptions: a missing document is returned as the driver's bare
// mongo.ErrNoDocuments, and a rejected state transition as
// *statemachine.RejectedError.
package errs

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel kinds. Wrap a cause with Wrap(kind, cause, msg) and test with
// errors.Is(err, KindAlreadyExists) etc.
var (
	KindAlreadyExists  = errors.New("already exists")
	KindIntegrity      = errors.New("integrity violation")
	KindPersistence    = errors.New("persistence error")
	KindCancelled      = errors.New("cancelled")
	KindNotImplemented = errors.New("not implemented")
)

// kindErr pairs a sentinel kind with a wrapped, stack-carrying cause so
// both errors.Is(err, KindX) and errors.Unwrap(err) work as expected.
type kindErr struct {
	kind  error
	cause error
	msg   string
}

func (e *kindErr) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *kindErr) Unwrap() error { return e.cause }

func (e *kindErr) Is(target error) bool { return target == e.kind }

// Wrap builds a taxonomy error of the given kind around cause, annotated
// with msg. cause may be nil (e.g. AlreadyExists has no underlying driver
// error).
func Wrap(kind error, cause error, msg string) error {
	var wrapped error
	if cause != nil {
		wrapped = pkgerrors.WithMessage(cause, msg)
	}
	return &kindErr{kind: kind, cause: wrapped, msg: msg}
}

// AlreadyExists builds an AlreadyExists error.
func AlreadyExists(msg string) error { return Wrap(KindAlreadyExists, nil, msg) }

// Integrity builds an Integrity error.
func Integrity(msg string) error { return Wrap(KindIntegrity, nil, msg) }

// Persistence wraps an unexpected driver failure that survived retry.
func Persistence(cause error, msg string) error { return Wrap(KindPersistence, cause, msg) }

// NotImplemented builds a NotImplemented error for the two knowingly
// unimplemented introspection operations.
func NotImplemented(msg string) error { return Wrap(KindNotImplemented, nil, msg) }

// Cancelled always propagates the underlying context error untouched, per
// spec: "Cancelled always propagates untouched." FromContext returns nil
// when ctx carries no cancellation.
func FromContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Wrap(KindCancelled, err, "operation cancelled")
	}
	return nil
}

// IsAlreadyExists, IsIntegrity, IsPersistence, IsCancelled,
// IsNotImplemented are errors.Is convenience wrappers matching the five
// members of the taxonomy.
func IsAlreadyExists(err error) bool  { return errors.Is(err, KindAlreadyExists) }
func IsIntegrity(err error) bool      { return errors.Is(err, KindIntegrity) }
func IsPersistence(err error) bool    { return errors.Is(err, KindPersistence) }
func IsCancelled(err error) bool      { return errors.Is(err, KindCancelled) }
func IsNotImplemented(err error) bool { return errors.Is(err, KindNotImplemented) }
