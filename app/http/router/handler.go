// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package router wires the admin HTTP surface's route groups (C12).
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/seakee/quartzmongo/app/http/controller/admin"
	"github.com/seakee/quartzmongo/app/http/middleware"
)

// Core bundles the shared dependencies every admin route needs.
type Core struct {
	Middleware middleware.Middleware
	Admin      *admin.Handler
}

// New registers the admin API group.
//
// Parameters:
//   - mux: gin engine that receives route registrations.
//   - core: shared dependency container for handlers.
//
// Returns:
//   - *gin.Engine: the same engine after route registration.
//
// Example:
//
//	router.New(mux, core)
func New(mux *gin.Engine, core *Core) *gin.Engine {
	mux.GET("healthz", core.Admin.Healthz)
	mux.GET("readyz", core.Admin.Readyz)

	v1 := mux.Group("v1")
	v1.GET("schedulers", core.Admin.Schedulers)
	v1.GET("triggers/misfired", core.Admin.MisfiredTriggers)

	return mux
}
