// Package sharing transfers tasks between two users. A shared task lives as
// two documents with the same id: the sender's outgoing copy and the
// receiver's incoming copy. The sender owns the content (title,
// description, due date) and may delete the task; the receiver only
// reports a status.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/existflow/duetask/internal/clock"
	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/docs"
	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/internal/session"
)

var (
	ErrForbidden   = errors.New("operation not permitted for this role")
	ErrInvalidTask = errors.New("not a valid shared task")
)

// SendRequest describes a task to hand to a friend
type SendRequest struct {
	Title       string
	Description string
	Due         time.Time
	FriendUID   string
	FriendName  string
	Options     []model.Option
}

// Update carries the optional fields of UpdateSharedTask. Nil fields are
// left unchanged.
type Update struct {
	Status      *model.Status
	Title       *string
	Description *string
	Due         *time.Time
}

func (u Update) hasContent() bool {
	return u.Title != nil || u.Description != nil || u.Due != nil
}

// Lists is the cached view of the signed-in user's shared tasks
type Lists struct {
	Incoming []model.Task
	Outgoing []model.Task
}

// Engine runs the sharing protocol for the signed-in user
type Engine struct {
	db     *db.DB
	remote remote.Store
	auth   session.Provider
	clock  clock.Clock

	mu    sync.RWMutex
	lists Lists
}

// NewEngine creates a sharing engine. A nil clock uses the wall clock.
func NewEngine(database *db.DB, store remote.Store, auth session.Provider, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	return &Engine{db: database, remote: store, auth: auth, clock: clk}
}

func outgoingDoc(t model.Task) string {
	return remote.Doc(remote.UserCollection(t.FromUserID, remote.OutgoingTasks), t.RemoteID)
}

func incomingDoc(t model.Task) string {
	return remote.Doc(remote.UserCollection(t.ToUserID, remote.IncomingTasks), t.RemoteID)
}

// SendTaskToFriend creates a shared task from the signed-in user to a
// friend. The task is stored locally first; if the remote write fails the
// local row is removed again and the error returned.
func (e *Engine) SendTaskToFriend(ctx context.Context, req SendRequest) (model.Task, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return model.Task{}, err
	}
	if req.FriendUID == "" || req.FriendUID == id.UserID {
		return model.Task{}, fmt.Errorf("%w: receiver %q", ErrInvalidTask, req.FriendUID)
	}

	t, err := model.NewTask(req.Title, req.Due, req.Description, req.Options...)
	if err != nil {
		return model.Task{}, err
	}
	now := e.clock.Now()
	t.RemoteID = remote.NewID()
	t.Shared = true
	t.FromUserID = id.UserID
	t.ToUserID = req.FriendUID
	t.FromUserName = id.Name()
	t.ToUserName = req.FriendName
	if strings.TrimSpace(t.ToUserName) == "" {
		t.ToUserName = session.DefaultDisplayName
	}
	t.ReceivedAt = &now
	t.CreatedAt, t.UpdatedAt = now, now
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}

	if err := e.db.Update(ctx, func(q *db.Queries) error { return q.CreateTask(ctx, t) }); err != nil {
		return model.Task{}, err
	}

	data := docs.EncodeTask(t)
	digest := docs.Digest(data)
	data[docs.FieldLastModified] = remote.ServerTimestamp

	batch := remote.NewBatch().
		Set(outgoingDoc(t), data).
		Set(incomingDoc(t), data)
	if err := e.remote.Commit(ctx, batch); err != nil {
		logger.Warn("Sharing task failed, removing local copy", logger.F("task", t.ID), logger.Err(err))
		if derr := e.db.Update(ctx, func(q *db.Queries) error { return q.DeleteTask(ctx, t.ID) }); derr != nil {
			return model.Task{}, errors.Join(fmt.Errorf("share task %s: %w", t.ID, err), derr)
		}
		return model.Task{}, fmt.Errorf("share task %s: %w", t.ID, err)
	}

	err = e.db.Update(ctx, func(q *db.Queries) error {
		_, err := q.MarkTaskSynced(ctx, t.ID, t.RemoteID, digest, t.Revision)
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	t.Synced = true
	t.RemoteDigest = digest

	logger.Info("Task shared", logger.F("task", t.ID), logger.F("to", t.ToUserID))
	return t, nil
}

// SyncSharedTasks pulls the incoming and outgoing collections, overwrites
// local copies with the remote state, drops local shared rows whose
// documents are gone and refreshes the cached lists. The two directions
// are independent; the returned error joins their failures.
func (e *Engine) SyncSharedTasks(ctx context.Context) (Lists, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return Lists{}, err
	}

	var pulled, pruned int
	errs := []error{
		e.pull(ctx, id.UserID, db.KindIncoming, &pulled, &pruned),
		e.pull(ctx, id.UserID, db.KindOutgoing, &pulled, &pruned),
	}

	lists, err := e.refresh(ctx, id.UserID)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		logger.Warn("Shared task sync finished with errors", logger.Err(err))
		return lists, err
	}
	logger.Info("Shared tasks synced",
		logger.F("incoming", len(lists.Incoming)),
		logger.F("outgoing", len(lists.Outgoing)),
		logger.F("pulled", pulled),
		logger.F("pruned", pruned))
	return lists, nil
}

func (e *Engine) pull(ctx context.Context, uid string, kind db.TaskKind, pulled, pruned *int) error {
	coll, phase := remote.IncomingTasks, "incoming"
	if kind == db.KindOutgoing {
		coll, phase = remote.OutgoingTasks, "outgoing"
	}

	docsList, err := e.remote.List(ctx, remote.UserCollection(uid, coll))
	if err != nil {
		return fmt.Errorf("%s download: %w", phase, err)
	}

	now := e.clock.Now()
	var errs []error
	seen := make(map[string]bool, len(docsList))
	for _, doc := range docsList {
		seen[doc.ID] = true

		t, err := docs.DecodeTask(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s task %s: %w", phase, doc.ID, err))
			continue
		}
		t.Shared = true
		t.OwnerID = ""
		if (kind == db.KindIncoming && t.ToUserID != uid) || (kind == db.KindOutgoing && t.FromUserID != uid) {
			errs = append(errs, fmt.Errorf("%s task %s: %w", phase, doc.ID, ErrInvalidTask))
			continue
		}
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s task %s: %w", phase, doc.ID, err))
			continue
		}

		err = e.db.Update(ctx, func(q *db.Queries) error {
			local, err := q.GetTaskByRemoteID(ctx, t.RemoteID)
			switch {
			case errors.Is(err, db.ErrNotFound):
				t.ID = uuid.NewString()
				t.Revision = 1
				t.CreatedAt = now
				if t.UpdatedAt.IsZero() {
					t.UpdatedAt = now
				}
				*pulled++
				return q.CreateTask(ctx, t)
			case err != nil:
				return err
			case local.Synced && local.RemoteDigest == t.RemoteDigest:
				return nil
			}
			// Shared tasks carry no local edits; the remote copy wins.
			t.ID = local.ID
			t.Revision = local.Revision
			t.CreatedAt = local.CreatedAt
			if t.UpdatedAt.IsZero() {
				t.UpdatedAt = now
			}
			*pulled++
			return q.UpdateTask(ctx, t)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("apply %s task %s: %w", phase, doc.ID, err))
		}
	}

	err = e.db.Update(ctx, func(q *db.Queries) error {
		local, err := q.ListTasks(ctx, db.TaskFilter{Kind: kind, UserID: uid})
		if err != nil {
			return err
		}
		for _, t := range local {
			if t.RemoteID == "" || seen[t.RemoteID] {
				continue
			}
			logger.Debug("Removing shared task deleted remotely", logger.F("task", t.ID))
			if err := q.DeleteTask(ctx, t.ID); err != nil {
				return err
			}
			*pruned++
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("prune %s tasks: %w", phase, err))
	}
	return errors.Join(errs...)
}

func (e *Engine) refresh(ctx context.Context, uid string) (Lists, error) {
	var lists Lists
	err := e.db.View(ctx, func(q *db.Queries) error {
		var err error
		if lists.Incoming, err = q.ListTasks(ctx, db.TaskFilter{Kind: db.KindIncoming, UserID: uid}); err != nil {
			return err
		}
		lists.Outgoing, err = q.ListTasks(ctx, db.TaskFilter{Kind: db.KindOutgoing, UserID: uid})
		return err
	})
	if err != nil {
		return Lists{}, fmt.Errorf("refresh shared lists: %w", err)
	}

	e.mu.Lock()
	e.lists = lists
	e.mu.Unlock()
	return lists, nil
}

// Incoming returns the cached incoming list from the last sync
func (e *Engine) Incoming() []model.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Task(nil), e.lists.Incoming...)
}

// Outgoing returns the cached outgoing list from the last sync
func (e *Engine) Outgoing() []model.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Task(nil), e.lists.Outgoing...)
}

// load returns a local shared task and the caller's identity
func (e *Engine) load(ctx context.Context, taskID string) (model.Task, session.Identity, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return model.Task{}, session.Identity{}, err
	}

	var t model.Task
	err = e.db.View(ctx, func(q *db.Queries) error {
		t, err = q.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return model.Task{}, session.Identity{}, err
	}
	if !t.Shared || t.RemoteID == "" {
		return model.Task{}, session.Identity{}, fmt.Errorf("%w: %s", ErrInvalidTask, taskID)
	}
	return t, id, nil
}

// UpdateSharedTask applies the fields of u the caller's role allows: the
// status for the receiver, the content for the sender. Other fields are
// dropped. With nothing applicable the task is returned unchanged.
func (e *Engine) UpdateSharedTask(ctx context.Context, taskID string, u Update) (model.Task, error) {
	t, id, err := e.load(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}

	switch {
	case t.IsReceiver(id.UserID):
		if u.Status == nil {
			logger.Debug("Shared update has no field for the receiver", logger.F("task", t.ID))
			return t, nil
		}
		return e.UpdateStatus(ctx, taskID, *u.Status)

	case t.IsSender(id.UserID):
		if !u.hasContent() {
			logger.Debug("Shared update has no field for the sender", logger.F("task", t.ID))
			return t, nil
		}
		title, desc, due := t.Title, t.Description, t.Due
		if u.Title != nil {
			title = *u.Title
		}
		if u.Description != nil {
			desc = *u.Description
		}
		if u.Due != nil {
			due = *u.Due
		}
		return e.UpdateContent(ctx, taskID, title, desc, due)

	default:
		return model.Task{}, ErrForbidden
	}
}

// UpdateStatus reports a status for a task the caller received. Both
// remote copies are patched in one batch before the local row changes.
func (e *Engine) UpdateStatus(ctx context.Context, taskID string, s model.Status) (model.Task, error) {
	t, id, err := e.load(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if !t.IsReceiver(id.UserID) {
		return model.Task{}, ErrForbidden
	}
	if s != model.StatusCompleted && s != model.StatusFailed {
		return model.Task{}, fmt.Errorf("unknown status %d", s)
	}

	now := e.clock.Now()
	patch := docs.TaskStatusFields(s, now)
	if err := e.patchBoth(ctx, t, patch); err != nil {
		return model.Task{}, fmt.Errorf("update status of %s: %w", t.ID, err)
	}

	t.ApplyStatus(s, now)
	if err := e.saveApplied(ctx, &t, now); err != nil {
		return model.Task{}, err
	}
	logger.Info("Shared task status updated", logger.F("task", t.ID), logger.F("status", s))
	return t, nil
}

// UpdateContent edits a task the caller sent
func (e *Engine) UpdateContent(ctx context.Context, taskID, title, desc string, due time.Time) (model.Task, error) {
	t, id, err := e.load(ctx, taskID)
	if err != nil {
		return model.Task{}, err
	}
	if !t.IsSender(id.UserID) {
		return model.Task{}, ErrForbidden
	}
	if strings.TrimSpace(title) == "" {
		return model.Task{}, model.ErrEmptyTitle
	}

	patch := docs.TaskContentFields(title, desc, due)
	if err := e.patchBoth(ctx, t, patch); err != nil {
		return model.Task{}, fmt.Errorf("update content of %s: %w", t.ID, err)
	}

	now := e.clock.Now()
	t.Title, t.Description, t.Due = title, desc, due
	if err := e.saveApplied(ctx, &t, now); err != nil {
		return model.Task{}, err
	}
	logger.Info("Shared task updated", logger.F("task", t.ID))
	return t, nil
}

func (e *Engine) patchBoth(ctx context.Context, t model.Task, patch remote.Data) error {
	return e.remote.Commit(ctx, remote.NewBatch().
		Update(outgoingDoc(t), patch).
		Update(incomingDoc(t), patch))
}

// saveApplied writes a change that is already on both remote copies
func (e *Engine) saveApplied(ctx context.Context, t *model.Task, now time.Time) error {
	t.Revision++
	t.UpdatedAt = now
	t.Synced = true
	t.RemoteDigest = docs.Digest(docs.EncodeTask(*t))
	return e.db.Update(ctx, func(q *db.Queries) error { return q.UpdateTask(ctx, *t) })
}

// DeleteSharedTask removes a task the caller sent from both users. When
// the remote batch fails the local copy is kept so the call can be retried.
func (e *Engine) DeleteSharedTask(ctx context.Context, taskID string) error {
	t, id, err := e.load(ctx, taskID)
	if err != nil {
		return err
	}
	if !t.IsSender(id.UserID) {
		return ErrForbidden
	}

	batch := remote.NewBatch().
		Delete(incomingDoc(t)).
		Delete(outgoingDoc(t))
	if err := e.remote.Commit(ctx, batch); err != nil {
		return fmt.Errorf("delete shared task %s: %w", t.ID, err)
	}

	if err := e.db.Update(ctx, func(q *db.Queries) error { return q.DeleteTask(ctx, t.ID) }); err != nil {
		return err
	}
	logger.Info("Shared task deleted", logger.F("task", t.ID))
	return nil
}
