// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package middleware provides shared Gin middleware for the admin HTTP
// surface (C12).
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/seakee/quartzmongo/internal/logging"
	"github.com/seakee/quartzmongo/internal/trace"
)

type (
	// Middleware groups all middleware factories used by the admin router.
	Middleware interface {
		// Cors adds CORS headers and handles preflight requests.
		Cors() gin.HandlerFunc

		// RequestLogger emits structured logs for incoming requests.
		RequestLogger() gin.HandlerFunc

		// SetTraceID attaches trace IDs to requests and responses.
		SetTraceID() gin.HandlerFunc
	}

	// middleware is the default Middleware implementation.
	middleware struct {
		logger  *logging.Logger
		traceID *trace.ID
	}
)

// New creates a middleware factory with shared runtime dependencies.
func New(logger *logging.Logger, traceID *trace.ID) Middleware {
	return &middleware{logger: logger, traceID: traceID}
}
