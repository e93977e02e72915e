// Package sync keeps a user's private tasks and tags in step with the
// remote document service.
//
// The local store is authoritative while offline. Uploads overwrite the
// remote copy; downloads only replace rows that carry no unsynced local
// edit, so the last local edit wins over a concurrent remote one.
package sync

import (
	"context"
	"errors"
	"fmt"
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

// Result holds sync statistics
type Result struct {
	Pushed  int // documents uploaded
	Pulled  int // rows inserted or overwritten from remote
	Kept    int // remote changes ignored because the local row is dirty
	Pruned  int // local rows removed because the remote document is gone
	Linked  int // tasks re-linked to their tag
	Skipped bool
}

// Engine synchronizes private data of the signed-in user
type Engine struct {
	db     *db.DB
	remote remote.Store
	auth   session.Provider
	clock  clock.Clock
	sem    chan struct{}
}

// NewEngine creates a sync engine. A nil clock uses the wall clock.
func NewEngine(database *db.DB, store remote.Store, auth session.Provider, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	return &Engine{
		db:     database,
		remote: store,
		auth:   auth,
		clock:  clk,
		sem:    make(chan struct{}, 1),
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) tryAcquire() bool {
	select {
	case e.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) release() { <-e.sem }

// SyncAll runs a full sync: tag upload, tag download, task upload, task
// download and the link pass, in that order. A failing phase does not stop
// later ones and nothing is rolled back; the returned error joins every
// failure. LastSyncAt is only stamped when all phases succeed.
func (e *Engine) SyncAll(ctx context.Context) (*Result, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return nil, err
	}
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	logger.Info("Starting full sync", logger.F("user", id.UserID))
	res := &Result{}

	errs := []error{
		e.pushTags(ctx, id.UserID, res),
		e.pullTags(ctx, id.UserID, res),
		e.pushTasks(ctx, id.UserID, res),
		e.pullTasks(ctx, id.UserID, res),
		e.linkTasks(ctx, res),
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("Full sync finished with errors", logger.Err(err))
		return res, err
	}

	if err := e.stampSync(ctx, id); err != nil {
		return res, err
	}

	logger.Info("Full sync completed",
		logger.F("pushed", res.Pushed),
		logger.F("pulled", res.Pulled),
		logger.F("kept", res.Kept),
		logger.F("pruned", res.Pruned),
		logger.F("linked", res.Linked))
	return res, nil
}

// QuickSync uploads dirty tags and tasks without pulling anything. It is
// best effort: failures are logged and the rows stay dirty. When another
// sync is running it returns immediately with Skipped set.
func (e *Engine) QuickSync(ctx context.Context) *Result {
	res := &Result{}

	id, err := session.Require(ctx, e.auth)
	if err != nil {
		logger.Debug("Quick sync skipped", logger.Err(err))
		res.Skipped = true
		return res
	}
	if !e.tryAcquire() {
		logger.Debug("Quick sync skipped, sync in progress")
		res.Skipped = true
		return res
	}
	defer e.release()

	if err := e.pushTags(ctx, id.UserID, res); err != nil {
		logger.Warn("Quick sync tag upload failed", logger.Err(err))
	}
	if err := e.pushTasks(ctx, id.UserID, res); err != nil {
		logger.Warn("Quick sync task upload failed", logger.Err(err))
	}
	if res.Pushed > 0 {
		logger.Info("Quick sync uploaded changes", logger.F("pushed", res.Pushed))
	}
	return res
}

func (e *Engine) stampSync(ctx context.Context, id session.Identity) error {
	now := e.clock.Now()
	return e.db.Update(ctx, func(q *db.Queries) error {
		if _, err := q.GetUser(ctx, id.UserID); errors.Is(err, db.ErrNotFound) {
			if err := q.UpsertUser(ctx, model.NewUser(id.UserID, id.Name(), id.Email)); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		return q.SetLastSync(ctx, id.UserID, now)
	})
}

// LastSync returns the cached user record, which carries LastSyncAt
func (e *Engine) LastSync(ctx context.Context) (model.User, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	err = e.db.View(ctx, func(q *db.Queries) error {
		u, err = q.GetUser(ctx, id.UserID)
		return err
	})
	return u, err
}

// pushTags uploads every dirty tag of uid
func (e *Engine) pushTags(ctx context.Context, uid string, res *Result) error {
	var tags []model.Tag
	err := e.db.View(ctx, func(q *db.Queries) error {
		var err error
		tags, err = q.ListDirtyTags(ctx, uid)
		return err
	})
	if err != nil {
		return fmt.Errorf("tag upload: %w", err)
	}

	logger.Debug("Found tags to upload", logger.F("count", len(tags)))

	var errs []error
	for _, t := range tags {
		if err := e.pushTag(ctx, uid, t); err != nil {
			logger.Warn("Tag upload failed", logger.F("tag", t.ID), logger.Err(err))
			errs = append(errs, fmt.Errorf("upload tag %s: %w", t.ID, err))
			continue
		}
		res.Pushed++
	}
	return errors.Join(errs...)
}

func (e *Engine) pushTag(ctx context.Context, uid string, t model.Tag) error {
	data := docs.EncodeTag(t)
	digest := docs.Digest(data)
	data[docs.FieldLastModified] = remote.ServerTimestamp

	coll := remote.UserCollection(uid, remote.Tags)
	remoteID := t.RemoteID
	var err error
	if remoteID == "" {
		remoteID, err = e.remote.Create(ctx, coll, data)
	} else {
		err = e.remote.Set(ctx, remote.Doc(coll, remoteID), data)
	}
	if err != nil {
		return err
	}

	gone := false
	err = e.db.Update(ctx, func(q *db.Queries) error {
		_, err := q.MarkTagSynced(ctx, t.ID, remoteID, digest, t.Revision)
		if errors.Is(err, db.ErrNotFound) {
			gone = true
			return nil
		}
		return err
	})
	if err != nil || !gone {
		return err
	}
	return e.discard(ctx, remote.Doc(coll, remoteID))
}

// discard deletes a document uploaded for a row that was deleted locally
// while the upload was in flight, so the next pull does not bring it back.
func (e *Engine) discard(ctx context.Context, path string) error {
	logger.Debug("Removing upload of deleted row", logger.F("path", path))
	if err := e.remote.Delete(ctx, path); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("remove orphaned upload %s: %w", path, err)
	}
	return nil
}

// pullTags applies the remote tags of uid to the local store
func (e *Engine) pullTags(ctx context.Context, uid string, res *Result) error {
	docsList, err := e.remote.List(ctx, remote.UserCollection(uid, remote.Tags))
	if err != nil {
		return fmt.Errorf("tag download: %w", err)
	}

	logger.Debug("Received tags from server", logger.F("count", len(docsList)))

	var errs []error
	seen := make(map[string]bool, len(docsList))
	for _, doc := range docsList {
		seen[doc.ID] = true

		tag, err := docs.DecodeTag(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode tag %s: %w", doc.ID, err))
			continue
		}
		tag.OwnerID = uid

		if err := e.db.Update(ctx, func(q *db.Queries) error {
			return applyRemoteTag(ctx, q, tag, res)
		}); err != nil {
			errs = append(errs, fmt.Errorf("apply tag %s: %w", doc.ID, err))
		}
	}

	if err := e.db.Update(ctx, func(q *db.Queries) error {
		tags, err := q.ListTags(ctx, uid)
		if err != nil {
			return err
		}
		for _, t := range tags {
			if t.RemoteID == "" || !t.Synced || seen[t.RemoteID] {
				continue
			}
			logger.Debug("Pruning tag deleted remotely", logger.F("tag", t.ID))
			if err := q.DeleteTag(ctx, t.ID); err != nil {
				return err
			}
			res.Pruned++
		}
		return nil
	}); err != nil {
		errs = append(errs, fmt.Errorf("prune tags: %w", err))
	}

	return errors.Join(errs...)
}

func applyRemoteTag(ctx context.Context, q *db.Queries, tag model.Tag, res *Result) error {
	local, err := q.GetTagByRemoteID(ctx, tag.RemoteID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		byName, err := q.GetTagByName(ctx, tag.OwnerID, tag.Name)
		if err == nil {
			if byName.RemoteID != "" {
				logger.Warn("Skipping remote tag, name already taken",
					logger.F("name", tag.Name), logger.F("remote", tag.RemoteID))
				return nil
			}
			// Same tag created offline on this device: adopt the remote id
			// and keep the local edit dirty so it is uploaded next.
			byName.RemoteID = tag.RemoteID
			res.Kept++
			return q.UpdateTag(ctx, byName)
		}
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		tag.ID = uuid.NewString()
		tag.Revision = 1
		res.Pulled++
		return q.CreateTag(ctx, tag)

	case err != nil:
		return err

	case !local.Synced:
		res.Kept++
		return nil

	case local.RemoteDigest == tag.RemoteDigest:
		return nil

	default:
		tag.ID = local.ID
		tag.Revision = local.Revision
		tag.CreatedAt = local.CreatedAt
		res.Pulled++
		return q.UpdateTag(ctx, tag)
	}
}

// pushTasks uploads every dirty private task of uid
func (e *Engine) pushTasks(ctx context.Context, uid string, res *Result) error {
	var tasks []model.Task
	err := e.db.View(ctx, func(q *db.Queries) error {
		var err error
		tasks, err = q.ListTasks(ctx, db.TaskFilter{Kind: db.KindPrivate, UserID: uid, DirtyOnly: true})
		if err != nil {
			return err
		}
		for i := range tasks {
			if tasks[i].TagID == "" {
				continue
			}
			tag, err := q.GetTag(ctx, tasks[i].TagID)
			if err != nil {
				if errors.Is(err, db.ErrNotFound) {
					continue
				}
				return err
			}
			if tag.RemoteID != "" {
				tasks[i].TagRemoteID = tag.RemoteID
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("task upload: %w", err)
	}

	logger.Debug("Found tasks to upload", logger.F("count", len(tasks)))

	var errs []error
	for _, t := range tasks {
		if err := e.pushTask(ctx, uid, t); err != nil {
			logger.Warn("Task upload failed", logger.F("task", t.ID), logger.Err(err))
			errs = append(errs, fmt.Errorf("upload task %s: %w", t.ID, err))
			continue
		}
		res.Pushed++
	}
	return errors.Join(errs...)
}

func (e *Engine) pushTask(ctx context.Context, uid string, t model.Task) error {
	t.OwnerID = uid
	data := docs.EncodeTask(t)
	digest := docs.Digest(data)
	data[docs.FieldLastModified] = remote.ServerTimestamp

	coll := remote.UserCollection(uid, remote.PersonalTasks)
	remoteID := t.RemoteID
	var err error
	if remoteID == "" {
		remoteID, err = e.remote.Create(ctx, coll, data)
	} else {
		err = e.remote.Set(ctx, remote.Doc(coll, remoteID), data)
	}
	if err != nil {
		return err
	}

	gone := false
	err = e.db.Update(ctx, func(q *db.Queries) error {
		_, err := q.MarkTaskSynced(ctx, t.ID, remoteID, digest, t.Revision)
		if errors.Is(err, db.ErrNotFound) {
			gone = true
			return nil
		}
		if err != nil {
			return err
		}
		return q.SetTaskTagRemoteID(ctx, t.ID, t.TagRemoteID)
	})
	if err != nil || !gone {
		return err
	}
	return e.discard(ctx, remote.Doc(coll, remoteID))
}

// pullTasks applies the remote private tasks of uid to the local store
func (e *Engine) pullTasks(ctx context.Context, uid string, res *Result) error {
	docsList, err := e.remote.List(ctx, remote.UserCollection(uid, remote.PersonalTasks))
	if err != nil {
		return fmt.Errorf("task download: %w", err)
	}

	logger.Debug("Received tasks from server", logger.F("count", len(docsList)))

	now := e.clock.Now()
	var errs []error
	seen := make(map[string]bool, len(docsList))
	for _, doc := range docsList {
		seen[doc.ID] = true

		task, err := docs.DecodeTask(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode task %s: %w", doc.ID, err))
			continue
		}
		// Everything under personal_tasks is private to uid.
		task.OwnerID = uid
		task.Shared = false
		task.FromUserID, task.ToUserID = "", ""
		if err := task.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", doc.ID, err))
			continue
		}

		if err := e.db.Update(ctx, func(q *db.Queries) error {
			return applyRemoteTask(ctx, q, task, now, res)
		}); err != nil {
			errs = append(errs, fmt.Errorf("apply task %s: %w", doc.ID, err))
		}
	}

	if err := e.db.Update(ctx, func(q *db.Queries) error {
		tasks, err := q.ListTasks(ctx, db.TaskFilter{Kind: db.KindPrivate, UserID: uid})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.RemoteID == "" || !t.Synced || seen[t.RemoteID] {
				continue
			}
			logger.Debug("Pruning task deleted remotely", logger.F("task", t.ID))
			if err := q.DeleteTask(ctx, t.ID); err != nil {
				return err
			}
			res.Pruned++
		}
		return nil
	}); err != nil {
		errs = append(errs, fmt.Errorf("prune tasks: %w", err))
	}

	return errors.Join(errs...)
}

func applyRemoteTask(ctx context.Context, q *db.Queries, task model.Task, now time.Time, res *Result) error {
	local, err := q.GetTaskByRemoteID(ctx, task.RemoteID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		task.ID = uuid.NewString()
		task.Revision = 1
		task.CreatedAt = now
		if task.UpdatedAt.IsZero() {
			task.UpdatedAt = now
		}
		res.Pulled++
		return q.CreateTask(ctx, task)

	case err != nil:
		return err

	case !local.Synced:
		logger.Debug("Keeping local edit over remote change", logger.F("task", local.ID))
		res.Kept++
		return nil

	case local.RemoteDigest == task.RemoteDigest:
		return nil

	default:
		task.ID = local.ID
		task.Revision = local.Revision
		task.CreatedAt = local.CreatedAt
		if task.UpdatedAt.IsZero() {
			task.UpdatedAt = now
		}
		if task.TagRemoteID == local.TagRemoteID {
			task.TagID = local.TagID
		}
		res.Pulled++
		return q.UpdateTask(ctx, task)
	}
}

// linkTasks resolves tag references of downloaded tasks
func (e *Engine) linkTasks(ctx context.Context, res *Result) error {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return err
	}
	err = e.db.Update(ctx, func(q *db.Queries) error {
		tags, err := q.ListTags(ctx, id.UserID)
		if err != nil {
			return err
		}
		for _, t := range tags {
			if t.RemoteID == "" {
				continue
			}
			n, err := q.LinkTasksToTag(ctx, t.RemoteID, t.ID)
			if err != nil {
				return err
			}
			res.Linked += int(n)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("link pass: %w", err)
	}
	return nil
}
