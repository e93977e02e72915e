// Package lifecycle advances overdue tasks on a timer. Tasks with the
// auto-complete policy become done, tasks with the auto-fail policy become
// failed. Both moves are one-way.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/existflow/duetask/internal/clock"
	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/session"
)

// DefaultInterval is the tick period of Run
const DefaultInterval = 60 * time.Second

// StatusUpdater reports the status of a received shared task to both
// parties. It is implemented by the sharing engine.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, taskID string, s model.Status) (model.Task, error)
}

// Result counts what one tick did
type Result struct {
	Completed int
	Failed    int
	Skipped   int // shared tasks the caller sent
}

// Scheduler runs lifecycle ticks for the signed-in user
type Scheduler struct {
	db       *db.DB
	auth     session.Provider
	clock    clock.Clock
	shared   StatusUpdater
	interval time.Duration
}

// New creates a scheduler. A nil clock uses the wall clock; a non-positive
// interval uses DefaultInterval.
func New(database *db.DB, auth session.Provider, clk clock.Clock, shared StatusUpdater, interval time.Duration) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{db: database, auth: auth, clock: clk, shared: shared, interval: interval}
}

// Tick moves every overdue task of the caller once. Private tasks are
// changed locally and marked dirty for the next upload. Received shared
// tasks go through the sharing status path so both copies change.
func (s *Scheduler) Tick(ctx context.Context) (Result, error) {
	var res Result

	id, err := session.Require(ctx, s.auth)
	if err != nil {
		return res, err
	}
	now := s.clock.Now()

	var candidates []model.Task
	err = s.db.View(ctx, func(q *db.Queries) error {
		candidates, err = q.ListLifecycleCandidates(ctx, id.UserID, now)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("lifecycle candidates: %w", err)
	}

	var errs []error
	for _, t := range candidates {
		status := model.StatusCompleted
		if t.AutoFail {
			status = model.StatusFailed
		}

		switch {
		case t.IsPrivate():
			err = s.applyPrivate(ctx, t.ID, status, now)
		case t.IsReceiver(id.UserID):
			if s.shared == nil {
				res.Skipped++
				continue
			}
			_, err = s.shared.UpdateStatus(ctx, t.ID, status)
		default:
			res.Skipped++
			continue
		}
		if err != nil {
			logger.Warn("Lifecycle update failed", logger.F("task", t.ID), logger.Err(err))
			errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
			continue
		}

		if status == model.StatusCompleted {
			res.Completed++
		} else {
			res.Failed++
		}
	}

	if res.Completed+res.Failed > 0 {
		logger.Info("Lifecycle tick",
			logger.F("completed", res.Completed),
			logger.F("failed", res.Failed),
			logger.F("skipped", res.Skipped))
	}
	return res, errors.Join(errs...)
}

func (s *Scheduler) applyPrivate(ctx context.Context, taskID string, status model.Status, now time.Time) error {
	return s.db.Update(ctx, func(q *db.Queries) error {
		t, err := q.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		// Edited since the candidate query.
		if t.IsResolved() || !t.Due.Before(now) || (!t.AutoComplete && !t.AutoFail) {
			return nil
		}
		t.ApplyStatus(status, now)
		t.MarkDirty(now)
		return q.UpdateTask(ctx, t)
	})
}

// Run ticks until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				logger.Warn("Lifecycle tick failed", logger.Err(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Hook adapts Tick to the auto-sync hook signature
func (s *Scheduler) Hook(ctx context.Context) error {
	_, err := s.Tick(ctx)
	return err
}
