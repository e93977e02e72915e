package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/existflow/duetask/internal/model"
)

const taskColumns = `id, remote_id, title, description, due, tag_id, tag_remote_id,
    auto_reminder, important, urgent, auto_complete, auto_fail, done, shared,
    owner_id, from_user_id, to_user_id, from_user_name, to_user_name,
    synced, received_at, completed_at, last_reminder_at,
    revision, remote_digest, created_at, updated_at`

// TaskKind selects which slice of the task table a query returns
type TaskKind int

const (
	KindAll TaskKind = iota
	KindPrivate
	KindIncoming
	KindOutgoing
)

// TaskFilter narrows ListTasks. UserID is required for every kind: private
// tasks match on owner, incoming on receiver, outgoing on sender.
type TaskFilter struct {
	Kind        TaskKind
	UserID      string
	TagID       string
	PendingOnly bool // exclude done and failed tasks
	DirtyOnly   bool
}

func taskArgs(t *model.Task) []any {
	return []any{
		t.ID, nullString(t.RemoteID), t.Title, t.Description, formatTime(t.Due),
		nullString(t.TagID), nullString(t.TagRemoteID),
		t.AutoReminder, t.Important, t.Urgent, t.AutoComplete, t.AutoFail, t.Done, t.Shared,
		t.OwnerID, t.FromUserID, t.ToUserID, t.FromUserName, t.ToUserName,
		t.Synced, nullTime(t.ReceivedAt), nullTime(t.CompletedAt), nullTime(t.LastReminderAt),
		t.Revision, t.RemoteDigest, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	}
}

func scanTask(row scanner) (model.Task, error) {
	var (
		t                                 model.Task
		remoteID, tagID, tagRemoteID      sql.NullString
		due, createdAt, updatedAt         string
		receivedAt, completedAt, reminder sql.NullString
	)
	err := row.Scan(
		&t.ID, &remoteID, &t.Title, &t.Description, &due, &tagID, &tagRemoteID,
		&t.AutoReminder, &t.Important, &t.Urgent, &t.AutoComplete, &t.AutoFail, &t.Done, &t.Shared,
		&t.OwnerID, &t.FromUserID, &t.ToUserID, &t.FromUserName, &t.ToUserName,
		&t.Synced, &receivedAt, &completedAt, &reminder,
		&t.Revision, &t.RemoteDigest, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	t.RemoteID = remoteID.String
	t.TagID = tagID.String
	t.TagRemoteID = tagRemoteID.String

	if t.Due, err = parseTime(due); err != nil {
		return model.Task{}, fmt.Errorf("task %s due: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Task{}, fmt.Errorf("task %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Task{}, fmt.Errorf("task %s updated_at: %w", t.ID, err)
	}
	if t.ReceivedAt, err = parseNullTime(receivedAt); err != nil {
		return model.Task{}, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return model.Task{}, err
	}
	if t.LastReminderAt, err = parseNullTime(reminder); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// CreateTask inserts a new task row
func (q *Queries) CreateTask(ctx context.Context, t model.Task) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (`+placeholders(27)+`)`,
		taskArgs(&t)...)
	return err
}

// UpdateTask overwrites every column of an existing task
func (q *Queries) UpdateTask(ctx context.Context, t model.Task) error {
	args := taskArgs(&t)
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks SET
    remote_id = ?, title = ?, description = ?, due = ?, tag_id = ?, tag_remote_id = ?,
    auto_reminder = ?, important = ?, urgent = ?, auto_complete = ?, auto_fail = ?, done = ?, shared = ?,
    owner_id = ?, from_user_id = ?, to_user_id = ?, from_user_name = ?, to_user_name = ?,
    synced = ?, received_at = ?, completed_at = ?, last_reminder_at = ?,
    revision = ?, remote_digest = ?, created_at = ?, updated_at = ?
WHERE id = ?`, append(args[1:], t.ID)...)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// GetTask returns a task by local id
func (q *Queries) GetTask(ctx context.Context, id string) (model.Task, error) {
	return q.getTask(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
}

// GetTaskByRemoteID returns a task by its remote document id
func (q *Queries) GetTaskByRemoteID(ctx context.Context, remoteID string) (model.Task, error) {
	return q.getTask(ctx, `SELECT `+taskColumns+` FROM tasks WHERE remote_id = ?`, remoteID)
}

// FindTaskByPrefix resolves a short local id as typed on the command line
func (q *Queries) FindTaskByPrefix(ctx context.Context, prefix string) (model.Task, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id LIKE ? ESCAPE '\' LIMIT 2`,
		escapeLike(prefix)+"%")
	if err != nil {
		return model.Task{}, err
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return model.Task{}, err
	}
	switch len(tasks) {
	case 0:
		return model.Task{}, ErrNotFound
	case 1:
		return tasks[0], nil
	default:
		return model.Task{}, fmt.Errorf("id prefix %q is ambiguous", prefix)
	}
}

func (q *Queries) getTask(ctx context.Context, query string, arg any) (model.Task, error) {
	t, err := scanTask(q.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	return t, err
}

// ListTasks returns tasks matching the filter ordered by due date
func (q *Queries) ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	var (
		where []string
		args  []any
	)

	switch f.Kind {
	case KindPrivate:
		where = append(where, "shared = 0", "owner_id = ?")
		args = append(args, f.UserID)
	case KindIncoming:
		where = append(where, "shared = 1", "to_user_id = ?")
		args = append(args, f.UserID)
	case KindOutgoing:
		where = append(where, "shared = 1", "from_user_id = ?")
		args = append(args, f.UserID)
	default:
		where = append(where, "(owner_id = ? OR from_user_id = ? OR to_user_id = ?)")
		args = append(args, f.UserID, f.UserID, f.UserID)
	}
	if f.TagID != "" {
		where = append(where, "tag_id = ?")
		args = append(args, f.TagID)
	}
	if f.PendingOnly {
		where = append(where, "done = 0", "completed_at IS NULL")
	}
	if f.DirtyOnly {
		where = append(where, "synced = 0")
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY due, created_at`,
		args...)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// ListLifecycleCandidates returns the overdue tasks of userID a lifecycle
// tick may move: unresolved and carrying one of the two policies. Failed
// tasks have completed_at set and are never selected again.
func (q *Queries) ListLifecycleCandidates(ctx context.Context, userID string, now time.Time) ([]model.Task, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT `+taskColumns+` FROM tasks
WHERE done = 0 AND completed_at IS NULL
  AND (auto_complete = 1 OR auto_fail = 1)
  AND due < ?
  AND (owner_id = ? OR from_user_id = ? OR to_user_id = ?)
ORDER BY due`, formatTime(now), userID, userID, userID)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// DeleteTask removes a task row. Deleting a missing row is not an error.
func (q *Queries) DeleteTask(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

// MarkTaskSynced records a successful upload. The dirty flag is only cleared
// when the row still carries the revision that was uploaded; it reports
// whether that happened.
func (q *Queries) MarkTaskSynced(ctx context.Context, id, remoteID, digest string, revision int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks SET remote_id = ?, remote_digest = ?,
    synced = CASE WHEN revision = ? THEN 1 ELSE synced END
WHERE id = ?`, nullString(remoteID), digest, revision, id)
	if err != nil {
		return false, err
	}
	if err := expectOne(res); err != nil {
		return false, err
	}

	var synced bool
	if err := q.db.QueryRowContext(ctx, `SELECT synced FROM tasks WHERE id = ?`, id).Scan(&synced); err != nil {
		return false, err
	}
	return synced, nil
}

// SetTaskTagRemoteID records the remote id of the task's tag without
// touching its revision
func (q *Queries) SetTaskTagRemoteID(ctx context.Context, id, tagRemoteID string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE tasks SET tag_remote_id = ? WHERE id = ?`, nullString(tagRemoteID), id)
	return err
}

// LinkTasksToTag sets tag_id on private tasks that reference tagRemoteID but
// are not linked yet. It returns the number of linked tasks.
func (q *Queries) LinkTasksToTag(ctx context.Context, tagRemoteID, tagID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks SET tag_id = ?
WHERE shared = 0 AND tag_remote_id = ? AND (tag_id IS NULL OR tag_id = '')`, tagID, tagRemoteID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnlinkTag detaches every task from tagID and marks the touched tasks dirty
func (q *Queries) UnlinkTag(ctx context.Context, tagID string, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE tasks SET tag_id = NULL, tag_remote_id = NULL, synced = 0,
    revision = revision + 1, updated_at = ?
WHERE tag_id = ?`, formatTime(now), tagID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
