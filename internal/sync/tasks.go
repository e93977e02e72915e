package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/internal/session"
)

var (
	// ErrSharedTask is returned when a private-task operation is applied to
	// a shared task; those go through the sharing engine
	ErrSharedTask = errors.New("task is shared")
	ErrNotOwner   = errors.New("task belongs to another user")
)

// Tasks lists the signed-in user's tasks. The filter's UserID is filled in.
func (e *Engine) Tasks(ctx context.Context, f db.TaskFilter) ([]model.Task, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return nil, err
	}
	f.UserID = id.UserID

	var tasks []model.Task
	err = e.db.View(ctx, func(q *db.Queries) error {
		tasks, err = q.ListTasks(ctx, f)
		return err
	})
	return tasks, err
}

// Tags lists the signed-in user's tags
func (e *Engine) Tags(ctx context.Context) ([]model.Tag, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return nil, err
	}

	var tags []model.Tag
	err = e.db.View(ctx, func(q *db.Queries) error {
		tags, err = q.ListTags(ctx, id.UserID)
		return err
	})
	return tags, err
}

// FindTask resolves a full local id or an unambiguous prefix of one
func (e *Engine) FindTask(ctx context.Context, idOrPrefix string) (model.Task, error) {
	var t model.Task
	err := e.db.View(ctx, func(q *db.Queries) error {
		var err error
		t, err = q.GetTask(ctx, idOrPrefix)
		if errors.Is(err, db.ErrNotFound) {
			t, err = q.FindTaskByPrefix(ctx, idOrPrefix)
		}
		return err
	})
	return t, err
}

// FindTag resolves a tag by local id or name
func (e *Engine) FindTag(ctx context.Context, idOrName string) (model.Tag, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return model.Tag{}, err
	}

	var t model.Tag
	err = e.db.View(ctx, func(q *db.Queries) error {
		t, err = q.GetTagByName(ctx, id.UserID, idOrName)
		if errors.Is(err, db.ErrNotFound) {
			t, err = q.GetTag(ctx, idOrName)
		}
		return err
	})
	return t, err
}

// CreateTask stores a new private task for the signed-in user. The task is
// dirty until the next upload.
func (e *Engine) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return model.Task{}, err
	}

	now := e.clock.Now()
	t.OwnerID = id.UserID
	t.Shared = false
	t.Synced = false
	t.RemoteID = ""
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Revision == 0 {
		t.Revision = 1
	}
	if err := t.Validate(); err != nil {
		return model.Task{}, err
	}

	err = e.db.Update(ctx, func(q *db.Queries) error {
		if t.TagID != "" {
			tag, err := q.GetTag(ctx, t.TagID)
			if err != nil {
				return fmt.Errorf("tag %s: %w", t.TagID, err)
			}
			t.TagRemoteID = tag.RemoteID
		}
		return q.CreateTask(ctx, t)
	})
	if err != nil {
		return model.Task{}, err
	}

	logger.Info("Task created", logger.F("task", t.ID))
	return t, nil
}

// CreateTag stores a new tag for the signed-in user
func (e *Engine) CreateTag(ctx context.Context, name, icon string) (model.Tag, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return model.Tag{}, err
	}

	tag, err := model.NewTag(id.UserID, name, icon, e.clock.Now())
	if err != nil {
		return model.Tag{}, err
	}
	if err := e.db.Update(ctx, func(q *db.Queries) error { return q.CreateTag(ctx, tag) }); err != nil {
		return model.Tag{}, err
	}

	logger.Info("Tag created", logger.F("tag", tag.ID), logger.F("name", tag.Name))
	return tag, nil
}

// UpdateTask applies fn to a private task of the signed-in user and marks
// it dirty. Nothing is written when fn fails or the result is invalid.
func (e *Engine) UpdateTask(ctx context.Context, taskID string, fn func(t *model.Task) error) (model.Task, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return model.Task{}, err
	}

	var out model.Task
	err = e.db.Update(ctx, func(q *db.Queries) error {
		t, err := q.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Shared {
			return ErrSharedTask
		}
		if t.OwnerID != id.UserID {
			return ErrNotOwner
		}

		oldTag := t.TagID
		if err := fn(&t); err != nil {
			return err
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if t.TagID != oldTag {
			t.TagRemoteID = ""
			if t.TagID != "" {
				tag, err := q.GetTag(ctx, t.TagID)
				if err != nil {
					return fmt.Errorf("tag %s: %w", t.TagID, err)
				}
				t.TagRemoteID = tag.RemoteID
			}
		}

		t.MarkDirty(e.clock.Now())
		out = t
		return q.UpdateTask(ctx, t)
	})
	return out, err
}

// CompleteTask marks a private task done
func (e *Engine) CompleteTask(ctx context.Context, taskID string) (model.Task, error) {
	now := e.clock.Now()
	return e.UpdateTask(ctx, taskID, func(t *model.Task) error {
		t.Complete(now)
		return nil
	})
}

// FailTask marks a private task failed
func (e *Engine) FailTask(ctx context.Context, taskID string) (model.Task, error) {
	now := e.clock.Now()
	return e.UpdateTask(ctx, taskID, func(t *model.Task) error {
		t.Fail(now)
		return nil
	})
}

// DeleteTask removes a private task. A task that was uploaded is deleted
// remotely first; if that fails the local row is kept and the error returned.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return err
	}

	var t model.Task
	if err := e.db.View(ctx, func(q *db.Queries) error {
		t, err = q.GetTask(ctx, taskID)
		return err
	}); err != nil {
		return err
	}
	if t.Shared {
		return ErrSharedTask
	}
	if t.OwnerID != id.UserID {
		return ErrNotOwner
	}

	if t.RemoteID != "" {
		path := remote.Doc(remote.UserCollection(id.UserID, remote.PersonalTasks), t.RemoteID)
		if err := e.remote.Delete(ctx, path); err != nil {
			return fmt.Errorf("delete remote task %s: %w", t.RemoteID, err)
		}
	}

	if err := e.db.Update(ctx, func(q *db.Queries) error { return q.DeleteTask(ctx, t.ID) }); err != nil {
		return err
	}
	logger.Info("Task deleted", logger.F("task", t.ID))
	return nil
}

// DeleteTag removes a tag. Tasks that used it are unlinked and marked dirty
// so the change reaches the remote copies.
func (e *Engine) DeleteTag(ctx context.Context, tagID string) error {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return err
	}

	var tag model.Tag
	if err := e.db.View(ctx, func(q *db.Queries) error {
		tag, err = q.GetTag(ctx, tagID)
		return err
	}); err != nil {
		return err
	}
	if tag.OwnerID != id.UserID {
		return ErrNotOwner
	}

	if tag.RemoteID != "" {
		path := remote.Doc(remote.UserCollection(id.UserID, remote.Tags), tag.RemoteID)
		if err := e.remote.Delete(ctx, path); err != nil {
			return fmt.Errorf("delete remote tag %s: %w", tag.RemoteID, err)
		}
	}

	return e.db.Update(ctx, func(q *db.Queries) error {
		n, err := q.UnlinkTag(ctx, tag.ID, e.clock.Now())
		if err != nil {
			return err
		}
		logger.Info("Tag deleted", logger.F("tag", tag.ID), logger.F("unlinked", n))
		return q.DeleteTag(ctx, tag.ID)
	})
}
