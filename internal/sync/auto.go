package sync

import (
	"context"
	"sync"
	"time"

	"github.com/existflow/duetask/internal/clock"
	"github.com/existflow/duetask/internal/logger"
)

// Hook is extra work run on every auto-sync tick
type Hook func(ctx context.Context) error

// AutoOptions configures an AutoSync
type AutoOptions struct {
	Interval time.Duration // tick period (default 60s)
	Debounce time.Duration // delay between TriggerSync and the upload (default 2s)
	Before   []Hook        // run before the upload, e.g. the lifecycle tick
	After    []Hook        // run after the upload, e.g. the shared-task sync
}

// AutoSync manages automatic background syncing. Every tick runs the Before
// hooks, a quick sync and then the After hooks. TriggerSync schedules a
// debounced quick sync after local edits.
type AutoSync struct {
	engine       *Engine
	clock        clock.Clock
	pollInterval time.Duration
	debounceTime time.Duration
	before       []Hook
	after        []Hook

	mu      sync.Mutex
	pending bool
	onTick  func(*Result)
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewAutoSync creates a new auto-sync manager. Call Start to run it.
func NewAutoSync(engine *Engine, opts AutoOptions) *AutoSync {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	return &AutoSync{
		engine:       engine,
		clock:        engine.clock,
		pollInterval: opts.Interval,
		debounceTime: opts.Debounce,
		before:       opts.Before,
		after:        opts.After,
		stopCh:       make(chan struct{}),
	}
}

// SetOnTick sets a callback invoked with the upload result of every tick
func (a *AutoSync) SetOnTick(callback func(*Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onTick = callback
}

// Start runs the tick loop until ctx is done or Stop is called
func (a *AutoSync) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.pollLoop(ctx)
}

func (a *AutoSync) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := a.clock.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Tick(ctx)
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one iteration synchronously
func (a *AutoSync) Tick(ctx context.Context) *Result {
	for _, h := range a.before {
		if err := h(ctx); err != nil {
			logger.Warn("Auto-sync hook failed", logger.Err(err))
		}
	}

	res := a.engine.QuickSync(ctx)

	for _, h := range a.after {
		if err := h(ctx); err != nil {
			logger.Warn("Auto-sync hook failed", logger.Err(err))
		}
	}

	a.mu.Lock()
	callback := a.onTick
	a.mu.Unlock()
	if callback != nil {
		callback(res)
	}
	return res
}

// TriggerSync marks that a sync is needed (debounced)
func (a *AutoSync) TriggerSync(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending {
		return
	}
	a.pending = true
	a.wg.Add(1)
	go a.debouncedSync(ctx)
}

func (a *AutoSync) debouncedSync(ctx context.Context) {
	defer a.wg.Done()

	select {
	case <-a.clock.After(a.debounceTime):
		a.performSync(ctx)
	case <-a.stopCh:
	case <-ctx.Done():
	}
}

func (a *AutoSync) performSync(ctx context.Context) {
	a.mu.Lock()
	a.pending = false
	a.mu.Unlock()

	res := a.engine.QuickSync(ctx)
	logger.Debug("Debounced sync finished", logger.F("pushed", res.Pushed), logger.F("skipped", res.Skipped))
}

// SyncNowIfPending performs an immediate upload if one is scheduled
func (a *AutoSync) SyncNowIfPending(ctx context.Context) *Result {
	a.mu.Lock()
	isPending := a.pending
	a.pending = false
	a.mu.Unlock()

	if !isPending {
		return nil
	}
	return a.engine.QuickSync(ctx)
}

// IsPending returns true if a debounced sync is scheduled
func (a *AutoSync) IsPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Stop stops the loop and waits for in-flight work
func (a *AutoSync) Stop() {
	a.mu.Lock()
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
	a.mu.Unlock()
	a.wg.Wait()
}
