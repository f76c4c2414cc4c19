// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package bootstrap initializes service dependencies and starts runtime workers.
package bootstrap

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/sk-pkg/feishu"
	"github.com/sk-pkg/redis"

	"github.com/seakee/quartzmongo/app"
	"github.com/seakee/quartzmongo/app/http/middleware"
	"github.com/seakee/quartzmongo/internal/firemgr"
	"github.com/seakee/quartzmongo/internal/lifecycle"
	"github.com/seakee/quartzmongo/internal/lock"
	"github.com/seakee/quartzmongo/internal/logging"
	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/notify"
	"github.com/seakee/quartzmongo/internal/recurrence"
	"github.com/seakee/quartzmongo/internal/repo"
	"github.com/seakee/quartzmongo/internal/storagemgr"
	"github.com/seakee/quartzmongo/internal/store"
	"github.com/seakee/quartzmongo/internal/trace"
)

// App stores every initialized dependency the service needs: the
// document store and its repositories, the coordination managers built
// on top of them, the notification sinks, and (optionally) the admin
// HTTP surface.
type App struct {
	Config *app.Config

	TraceID *trace.ID
	Logger  *logging.Logger
	Redis   map[string]*redis.Manager
	Feishu  *feishu.Manager

	Store      *store.Store
	Jobs       *repo.JobRepo
	Triggers   *repo.TriggerRepo
	Calendars  *repo.CalendarRepo
	Paused     *repo.PausedGroupRepo
	Fired      *repo.FiredTriggerRepo
	Schedulers *repo.SchedulerRepo

	Storage   *storagemgr.Manager
	Fire      *firemgr.Manager
	Lifecycle *lifecycle.Manager
	Notify    *notify.MultiSink

	Middleware middleware.Middleware
	Mux        *gin.Engine
}

// NewApp creates a fully initialized application container.
//
// Parameters:
//   - config: parsed runtime configuration loaded from JSON files.
//
// Returns:
//   - *App: initialized app with store, repositories, coordination
//     managers, and (if configured) the admin HTTP mux.
//   - error: returned when any dependency initialization step fails.
//
// Example:
//
//	cfg, _ := app.LoadConfig()
//	a, err := bootstrap.NewApp(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
func NewApp(config *app.Config) (*App, error) {
	a := &App{Config: config, Redis: map[string]*redis.Manager{}}

	// Trace IDs must be ready before logger initialization.
	a.loadTrace()

	ctx := logging.WithTraceID(context.Background(), a.TraceID.New())

	if err := a.loadLogger(ctx); err != nil {
		return nil, err
	}

	if err := a.loadRedis(ctx); err != nil {
		return nil, err
	}

	if err := a.loadFeishu(ctx); err != nil {
		return nil, err
	}

	if err := a.loadStore(ctx); err != nil {
		return nil, err
	}

	a.loadRepos()
	a.loadNotify(ctx)
	a.loadManagers(ctx)

	a.loadHTTPMiddlewares(ctx)
	a.loadMux(ctx)

	return a, nil
}

// Start launches all background subsystems of the application.
//
// Behavior:
//   - Registers this instance and runs startup crash recovery, then
//     starts the background misfire sweeper.
//   - Starts the admin HTTP server concurrently.
func (a *App) Start(ctx context.Context) error {
	if err := a.Lifecycle.SchedulerStarted(ctx, a.TraceID.New()); err != nil {
		return err
	}
	go a.startHTTPServer(ctx)
	return nil
}

// Shutdown stops the background sweeper and deletes this instance's
// scheduler registration.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Lifecycle.Shutdown(ctx, a.TraceID.New())
}

// loadTrace initializes the trace ID generator.
func (a *App) loadTrace() {
	a.TraceID = trace.NewTraceID()
}

// loadLogger initializes the logger manager.
func (a *App) loadLogger(ctx context.Context) error {
	var err error
	a.Logger, err = logging.New(a.Config.Log.Driver, a.Config.Log.Level, a.Config.Log.LogPath)

	if err == nil {
		a.Logger.Info(ctx, "Loggers loaded successfully")
	}

	return err
}

// loadRedis initializes configured Redis clients and stores them by name.
// Redis is used only for the distributed-lock wake-up optimization
// (internal/lock); correctness never depends on it being enabled.
func (a *App) loadRedis(ctx context.Context) error {
	for _, cfg := range a.Config.Redis {
		if cfg.Enable {
			r, err := redis.New(
				redis.WithPrefix(cfg.Prefix),
				redis.WithAddress(cfg.Host),
				redis.WithPassword(cfg.Auth),
				redis.WithIdleTimeout(cfg.IdleTimeout*time.Minute),
				redis.WithMaxActive(cfg.MaxActive),
				redis.WithMaxIdle(cfg.MaxIdle),
				redis.WithDB(cfg.DB),
			)

			if err != nil {
				return err
			}

			a.Redis[cfg.Name] = r
		}
	}

	a.Logger.Info(ctx, "Redis loaded successfully")

	return nil
}

// loadFeishu initializes Feishu integration when enabled.
func (a *App) loadFeishu(ctx context.Context) error {
	var err error

	if a.Config.Feishu.Enable {
		a.Feishu, err = feishu.New(
			feishu.WithGroupWebhook(a.Config.Feishu.GroupWebhook),
			feishu.WithAppID(a.Config.Feishu.AppID),
			feishu.WithAppSecret(a.Config.Feishu.AppSecret),
			feishu.WithEncryptKey(a.Config.Feishu.EncryptKey),
			feishu.WithLog(a.Logger.Zap),
		)

		if err == nil {
			a.Logger.Info(ctx, "Feishu loaded successfully")
		}
	}

	return err
}

// loadStore connects to the document store and bootstraps its indexes.
func (a *App) loadStore(ctx context.Context) error {
	retry := store.RetryPolicy{
		Attempts:  a.Config.Mongo.RetryAttempts,
		Base:      time.Duration(a.Config.Mongo.RetryBaseMs) * time.Millisecond,
		JitterCap: time.Duration(a.Config.Mongo.RetryJitterCapMs) * time.Millisecond,
	}
	if retry.Attempts == 0 {
		retry = store.DefaultRetryPolicy()
	}

	s, err := store.New(ctx, a.Config.Mongo.ConnectionString, a.Config.Mongo.Database, a.Config.Mongo.CollectionPrefix, retry, a.Logger)
	if err != nil {
		return err
	}
	a.Store = s

	if err := a.Store.EnsureIndexes(ctx); err != nil {
		return err
	}

	a.Logger.Info(ctx, "Document store loaded successfully")

	return nil
}

// loadRepos constructs every entity repository over the store.
func (a *App) loadRepos() {
	a.Jobs = repo.NewJobRepo(a.Store)
	a.Triggers = repo.NewTriggerRepo(a.Store)
	a.Calendars = repo.NewCalendarRepo(a.Store)
	a.Paused = repo.NewPausedGroupRepo(a.Store)
	a.Fired = repo.NewFiredTriggerRepo(a.Store)
	a.Schedulers = repo.NewSchedulerRepo(a.Store)
}

// loadNotify builds the fan-out notification sink from whichever
// channels are enabled.
func (a *App) loadNotify(ctx context.Context) {
	var sinks []notify.Sink

	if a.Config.Feishu.Enable && a.Feishu != nil {
		sinks = append(sinks, notify.NewFeishuSink(a.Feishu, a.Logger))
	}
	if a.Config.Webhook.Enable && a.Config.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhookSink(resty.New(), a.Config.Webhook.URL, a.Logger))
	}

	a.Notify = notify.NewMultiSink(a.Logger, sinks...)
	a.Logger.Info(ctx, "Notification sinks loaded successfully")
}

// newLockFactory returns a closure producing a fresh Mutex for lockType,
// scoped to this instance and wired to the first enabled Redis profile
// in config order (if any) as its wake-up channel.
func (a *App) newLockFactory(lockType model.LockType) func() *lock.Mutex {
	var waker lock.Waker
	for _, cfg := range a.Config.Redis {
		if r, ok := a.Redis[cfg.Name]; ok && cfg.Enable {
			waker = lock.NewRedisWaker(r)
			break
		}
	}

	return func() *lock.Mutex {
		return lock.New(a.Store, a.Logger, waker, a.Config.System.InstanceName, a.Config.System.InstanceID, lockType,
			lock.WithTTL(a.Config.Scheduler.LockTTL),
			lock.WithPollInterval(a.Config.Scheduler.LockPollInterval),
		)
	}
}

// loadManagers wires the storage manager, fire manager, and lifecycle
// coordinator over the repositories and lock factories above.
func (a *App) loadManagers(ctx context.Context) {
	newTriggerLock := a.newLockFactory(model.LockTriggerAccess)

	a.Storage = storagemgr.New(a.Config.System.InstanceName, newTriggerLock, recurrence.Decoder{}, a.Jobs, a.Triggers, a.Calendars, a.Paused)

	a.Fire = firemgr.New(
		firemgr.Config{
			InstanceName:       a.Config.System.InstanceName,
			InstanceID:         a.Config.System.InstanceID,
			MaxMisfiresPerPass: a.Config.Scheduler.MaxMisfiresPerPass,
			MisfireThreshold:   a.Config.Scheduler.MisfireThreshold,
		},
		func() firemgr.Locker { return newTriggerLock() },
		a.Jobs, a.Triggers, a.Calendars, a.Fired,
		recurrence.Decoder{}, a.Notify,
	)

	a.Lifecycle = lifecycle.New(
		lifecycle.Config{
			InstanceName:                     a.Config.System.InstanceName,
			InstanceID:                       a.Config.System.InstanceID,
			MisfireThreshold:                 a.Config.Scheduler.MisfireThreshold,
			DbRetryInterval:                  a.Config.Scheduler.DbRetryInterval,
			RetryableActionErrorLogThreshold: a.Config.Scheduler.RetryableActionErrorLogThreshold,
		},
		func() lifecycle.Locker { return newTriggerLock() },
		a.Triggers, a.Fired, a.Schedulers, a.Jobs, a.Calendars, a.Paused,
		a.Fire, a.Notify, a.Logger,
	)

	a.Logger.Info(ctx, "Coordination managers loaded successfully")
}

// loadHTTPMiddlewares builds middleware dependencies shared by all routes.
func (a *App) loadHTTPMiddlewares(ctx context.Context) {
	a.Middleware = middleware.New(a.Logger, a.TraceID)
	a.Logger.Info(ctx, "Middlewares loaded successfully")
}
