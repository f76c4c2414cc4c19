// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package admin implements the read-only operator status endpoints of
// the admin HTTP surface (C12): liveness, readiness, scheduler
// registrations, and the current misfire count. None of these routes
// mutate scheduling state or take the TriggerAccess lock.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/store"
)

// SchedulerLister is the subset of *repo.SchedulerRepo this controller needs.
type SchedulerLister interface {
	List(ctx context.Context, traceID, instanceName string) ([]model.Scheduler, error)
}

// MisfireCounter is the subset of *repo.TriggerRepo this controller needs.
type MisfireCounter interface {
	CountMisfired(ctx context.Context, traceID, instanceName string, misfireFloor time.Time) (int64, error)
}

// Handler holds the dependencies backing every admin route.
type Handler struct {
	store            *store.Store
	schedulers       SchedulerLister
	triggers         MisfireCounter
	instanceName     string
	misfireThreshold time.Duration
}

// New builds a Handler.
func New(s *store.Store, schedulers SchedulerLister, triggers MisfireCounter, instanceName string, misfireThreshold time.Duration) *Handler {
	return &Handler{store: s, schedulers: schedulers, triggers: triggers, instanceName: instanceName, misfireThreshold: misfireThreshold}
}

func traceID(c *gin.Context) string {
	if v, ok := c.Get("trace_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Healthz reports process liveness unconditionally.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz pings the document store and reports whether this instance is
// ready to serve. It never takes the TriggerAccess lock.
func (h *Handler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Client().Ping(ctx, nil); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Schedulers lists every instance registration for this cluster's
// instance_name.
func (h *Handler) Schedulers(c *gin.Context) {
	regs, err := h.schedulers.List(c.Request.Context(), traceID(c), h.instanceName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedulers": regs})
}

// MisfiredTriggers reports the current count of triggers past the
// misfire floor, without taking the TriggerAccess lock.
func (h *Handler) MisfiredTriggers(c *gin.Context) {
	floor := time.Now().UTC().Add(-h.misfireThreshold)
	count, err := h.triggers.CountMisfired(c.Request.Context(), traceID(c), h.instanceName, floor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"misfired_count": count})
}
