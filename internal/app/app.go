// Package app wires the engines of one signed-in session together
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/existflow/duetask/internal/clock"
	"github.com/existflow/duetask/internal/config"
	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/friends"
	"github.com/existflow/duetask/internal/lifecycle"
	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/internal/session"
	"github.com/existflow/duetask/internal/sharing"
	"github.com/existflow/duetask/internal/sync"
)

// CredentialsFile is the name of the credentials file inside config.Dir
const CredentialsFile = "auth.json"

// App holds one session: the local store, the remote and every engine
type App struct {
	Config    *config.Config
	DB        *db.DB
	Remote    remote.Store
	Auth      session.Provider
	Clock     clock.Clock
	Sync      *sync.Engine
	Sharing   *sharing.Engine
	Friends   *friends.Engine
	Lifecycle *lifecycle.Scheduler

	// Client is set when the remote is the HTTP server
	Client *remote.Client
}

// Open opens the local store named in cfg and connects the engines to the
// configured server. The session comes from the cached credentials.
func Open(cfg *config.Config) (*App, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client, err := remote.NewClient(cfg.ServerURL, filepath.Join(config.Dir(), CredentialsFile))
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	a := New(cfg, database, client, client, clock.Real())
	a.Client = client
	return a, nil
}

// New builds an App from its parts
func New(cfg *config.Config, database *db.DB, store remote.Store, auth session.Provider, clk clock.Clock) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if clk == nil {
		clk = clock.Real()
	}

	shared := sharing.NewEngine(database, store, auth, clk)
	return &App{
		Config:    cfg,
		DB:        database,
		Remote:    store,
		Auth:      auth,
		Clock:     clk,
		Sync:      sync.NewEngine(database, store, auth, clk),
		Sharing:   shared,
		Friends:   friends.NewEngine(database, store, auth, clk),
		Lifecycle: lifecycle.New(database, auth, clk, shared, cfg.SyncInterval),
	}
}

// AutoSync returns the background loop: lifecycle tick, upload of private
// changes, then a pull of shared tasks
func (a *App) AutoSync() *sync.AutoSync {
	return sync.NewAutoSync(a.Sync, sync.AutoOptions{
		Interval: a.Config.SyncInterval,
		Debounce: a.Config.Debounce,
		Before:   []sync.Hook{a.Lifecycle.Hook},
		After: []sync.Hook{func(ctx context.Context) error {
			_, err := a.Sharing.SyncSharedTasks(ctx)
			return err
		}},
	})
}

// flushTimeout bounds the final upload when Serve stops
const flushTimeout = 10 * time.Second

// Serve runs the background loop until ctx is done. With auto-sync off only
// the lifecycle scheduler runs and nothing is uploaded. Each value received
// on nudge schedules a debounced upload; one still pending at shutdown is
// flushed before Serve returns its result.
func (a *App) Serve(ctx context.Context, nudge <-chan struct{}, onTick func(*sync.Result)) *sync.Result {
	if !a.Config.AutoSync {
		logger.Info("Auto-sync is off, running the lifecycle scheduler only")
		a.Lifecycle.Run(ctx)
		return nil
	}

	auto := a.AutoSync()
	if onTick != nil {
		auto.SetOnTick(onTick)
	}
	auto.Start(ctx)

	for {
		select {
		case <-nudge:
			auto.TriggerSync(ctx)
		case <-ctx.Done():
			auto.Stop()
			if !auto.IsPending() {
				return nil
			}
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
			return auto.SyncNowIfPending(flushCtx)
		}
	}
}

// SyncEverything runs a full private sync followed by a shared-task pull
// and a refresh of the friend graph
func (a *App) SyncEverything(ctx context.Context) (*sync.Result, sharing.Lists, error) {
	res, err := a.Sync.SyncAll(ctx)
	if err != nil {
		return res, sharing.Lists{}, err
	}
	lists, err := a.Sharing.SyncSharedTasks(ctx)
	if err != nil {
		return res, lists, err
	}
	if _, err := a.Friends.FetchFriends(ctx); err != nil {
		logger.Warn("Friend refresh failed", logger.Err(err))
	}
	if _, err := a.Friends.FetchPendingFriendRequests(ctx); err != nil {
		logger.Warn("Friend request refresh failed", logger.Err(err))
	}
	return res, lists, nil
}

// Close releases the local store
func (a *App) Close() error {
	return a.DB.Close()
}
