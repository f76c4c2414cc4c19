// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package logging wraps sk-pkg/logger so every component in this module
// logs the same way: a structured, trace-ID-keyed zap logger reached
// through context.Context, never fmt.Println or the stdlib log package.
package logging

import (
	"context"

	"github.com/sk-pkg/logger"
	"go.uber.org/zap"
)

// Logger is the structured logger every component depends on. It is a
// thin alias over *logger.Manager so call sites read exactly like the
// teacher's (ctx, msg, zap.Field...) idiom.
type Logger = logger.Manager

// New builds a logger manager from driver/level/path settings.
//
// Parameters:
//   - driver: "stdout" or "file".
//   - level: debug, info, warn, error, fatal.
//   - path: log file path, used only when driver is "file".
//
// Returns:
//   - *Logger: initialized logger manager.
//   - error: returned when the underlying driver fails to initialize.
func New(driver, level, path string) (*Logger, error) {
	return logger.New(
		logger.WithDriver(driver),
		logger.WithLevel(level),
		logger.WithLogPath(path),
	)
}

// WithTraceID returns a context carrying the given trace ID, ready for
// use with any Logger method.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, logger.TraceIDKey, traceID)
}

// Fields is a convenience alias so callers outside this package do not
// need to import go.uber.org/zap directly just to build log fields.
type Fields = []zap.Field
