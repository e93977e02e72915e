package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/duetask/internal/model"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newTask(t *testing.T, owner, title string, due time.Time, opts ...model.Option) model.Task {
	t.Helper()
	task, err := model.NewTask(title, due, "", opts...)
	require.NoError(t, err)
	task.OwnerID = owner
	return task
}

func TestUpdateRollsBackOnError(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	task := newTask(t, "u1", "Write report", time.Now())

	boom := errors.New("boom")
	err := d.Update(ctx, func(q *Queries) error {
		require.NoError(t, q.CreateTask(ctx, task))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = d.View(ctx, func(q *Queries) error {
		_, err := q.GetTask(ctx, task.ID)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskRoundTrip(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	due := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	task := newTask(t, "u1", "Dentist", due, model.Important, model.AutoFail)
	task.Description = "bring card"
	completed := due.Add(time.Hour)
	task.CompletedAt = &completed

	require.NoError(t, d.Update(ctx, func(q *Queries) error { return q.CreateTask(ctx, task) }))

	var got model.Task
	require.NoError(t, d.View(ctx, func(q *Queries) (err error) {
		got, err = q.GetTask(ctx, task.ID)
		return err
	}))

	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, "bring card", got.Description)
	assert.True(t, got.Due.Equal(due))
	assert.True(t, got.Important)
	assert.True(t, got.AutoFail)
	assert.False(t, got.AutoComplete)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))
	assert.Nil(t, got.ReceivedAt)
	assert.Empty(t, got.RemoteID)
}

func TestMarkTaskSyncedHonoursRevision(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	task := newTask(t, "u1", "Call mom", time.Now())

	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		if err := q.CreateTask(ctx, task); err != nil {
			return err
		}
		// Simulate an edit landing while the upload of revision 1 was in flight.
		edited := task
		edited.Title = "Call mom tonight"
		edited.MarkDirty(time.Now())
		if err := q.UpdateTask(ctx, edited); err != nil {
			return err
		}

		clean, err := q.MarkTaskSynced(ctx, task.ID, "r-1", "digest", task.Revision)
		require.NoError(t, err)
		assert.False(t, clean)

		clean, err = q.MarkTaskSynced(ctx, task.ID, "r-1", "digest", edited.Revision)
		require.NoError(t, err)
		assert.True(t, clean)
		return nil
	}))

	require.NoError(t, d.View(ctx, func(q *Queries) error {
		got, err := q.GetTaskByRemoteID(ctx, "r-1")
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.True(t, got.Synced)
		return nil
	}))
}

func TestListTasksByKind(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	now := time.Now()

	private := newTask(t, "alice", "private", now)
	incoming := newTask(t, "", "incoming", now)
	incoming.Shared, incoming.FromUserID, incoming.ToUserID = true, "bob", "alice"
	outgoing := newTask(t, "", "outgoing", now)
	outgoing.Shared, outgoing.FromUserID, outgoing.ToUserID = true, "alice", "bob"
	done := newTask(t, "alice", "done", now)
	done.Complete(now)

	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		for _, task := range []model.Task{private, incoming, outgoing, done} {
			if err := q.CreateTask(ctx, task); err != nil {
				return err
			}
		}
		return nil
	}))

	titles := func(f TaskFilter) []string {
		var out []string
		require.NoError(t, d.View(ctx, func(q *Queries) error {
			tasks, err := q.ListTasks(ctx, f)
			for _, task := range tasks {
				out = append(out, task.Title)
			}
			return err
		}))
		return out
	}

	assert.ElementsMatch(t, []string{"private", "done"}, titles(TaskFilter{Kind: KindPrivate, UserID: "alice"}))
	assert.Equal(t, []string{"incoming"}, titles(TaskFilter{Kind: KindIncoming, UserID: "alice"}))
	assert.Equal(t, []string{"outgoing"}, titles(TaskFilter{Kind: KindOutgoing, UserID: "alice"}))
	assert.Len(t, titles(TaskFilter{UserID: "alice"}), 4)
	assert.Len(t, titles(TaskFilter{UserID: "alice", PendingOnly: true}), 3)
	assert.Empty(t, titles(TaskFilter{Kind: KindPrivate, UserID: "bob"}))
}

func TestLifecycleCandidates(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	overdue := newTask(t, "u1", "overdue", now.Add(-time.Minute))
	future := newTask(t, "u1", "future", now.Add(time.Minute))
	manual := newTask(t, "u1", "manual", now.Add(-time.Hour))
	manual.SetAutoComplete(false)
	failing := newTask(t, "u1", "failing", now.Add(-time.Hour), model.AutoFail)
	failed := newTask(t, "u1", "failed", now.Add(-time.Hour), model.AutoFail)
	failed.Fail(now)

	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		for _, task := range []model.Task{overdue, future, manual, failing, failed} {
			if err := q.CreateTask(ctx, task); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []string
	require.NoError(t, d.View(ctx, func(q *Queries) error {
		tasks, err := q.ListLifecycleCandidates(ctx, "u1", now)
		for _, task := range tasks {
			got = append(got, task.Title)
		}
		return err
	}))
	assert.ElementsMatch(t, []string{"overdue", "failing"}, got)
}

func TestTagNameUniquePerOwner(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()

	now := time.Now()
	work, err := model.NewTag("u1", "Work", "briefcase", now)
	require.NoError(t, err)
	dup, err := model.NewTag("u1", "Work", "", now)
	require.NoError(t, err)
	other, err := model.NewTag("u2", "Work", "", now)
	require.NoError(t, err)

	require.NoError(t, d.Update(ctx, func(q *Queries) error { return q.CreateTag(ctx, work) }))
	assert.Error(t, d.Update(ctx, func(q *Queries) error { return q.CreateTag(ctx, dup) }))
	assert.NoError(t, d.Update(ctx, func(q *Queries) error { return q.CreateTag(ctx, other) }))

	require.NoError(t, d.View(ctx, func(q *Queries) error {
		got, err := q.GetTagByName(ctx, "u1", "Work")
		require.NoError(t, err)
		assert.Equal(t, work.ID, got.ID)
		assert.Equal(t, "briefcase", got.Icon)
		assert.InDelta(t, work.Color.R, got.Color.R, 1e-9)
		return nil
	}))
}

func TestLinkAndUnlinkTag(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	now := time.Now()

	tag, err := model.NewTag("u1", "Home", "", now)
	require.NoError(t, err)
	tag.RemoteID = "tag-r"
	task := newTask(t, "u1", "Vacuum", now)
	task.TagRemoteID = "tag-r"
	task.Synced = true

	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		require.NoError(t, q.CreateTag(ctx, tag))
		require.NoError(t, q.CreateTask(ctx, task))

		n, err := q.LinkTasksToTag(ctx, "tag-r", tag.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = q.LinkTasksToTag(ctx, "tag-r", tag.ID)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = q.UnlinkTag(ctx, tag.ID, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	}))

	require.NoError(t, d.View(ctx, func(q *Queries) error {
		got, err := q.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Empty(t, got.TagID)
		assert.Empty(t, got.TagRemoteID)
		assert.False(t, got.Synced)
		assert.Equal(t, task.Revision+1, got.Revision)
		return nil
	}))
}

func TestReplaceFriendsKeepsExistingRows(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()

	bob := model.NewFriend("alice", "bob-uid", "Bob", "bob@example.com")
	carol := model.NewFriend("alice", "carol-uid", "Carol", "carol@example.com")
	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		require.NoError(t, q.UpsertFriend(ctx, bob))
		return q.UpsertFriend(ctx, carol)
	}))

	renamed := model.NewFriend("alice", "bob-uid", "Robert", "bob@example.com")
	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		return q.ReplaceFriends(ctx, "alice", []model.Friend{renamed})
	}))

	require.NoError(t, d.View(ctx, func(q *Queries) error {
		friends, err := q.ListFriends(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, friends, 1)
		assert.Equal(t, bob.ID, friends[0].ID)
		assert.Equal(t, "Robert", friends[0].Name)
		return nil
	}))
}

func TestFriendRequestLifecycle(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	now := time.Now()

	req := model.NewFriendRequest("bob", "alice", "bob@example.com", "alice@example.com", now)
	req.RemoteID = "req-1"
	stale := model.NewFriendRequest("carol", "alice", "carol@example.com", "alice@example.com", now)
	stale.RemoteID = "req-0"

	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		require.NoError(t, q.UpsertFriendRequest(ctx, stale))
		return q.ReplacePendingRequests(ctx, "alice", []model.FriendRequest{req})
	}))

	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		pending, err := q.ListPendingRequests(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "req-1", pending[0].RemoteID)

		return q.ResolveFriendRequest(ctx, "req-1", true, now)
	}))

	require.NoError(t, d.View(ctx, func(q *Queries) error {
		pending, err := q.ListPendingRequests(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, pending)

		got, err := q.GetFriendRequest(ctx, "req-1")
		require.NoError(t, err)
		assert.True(t, got.Resolved)
		assert.True(t, got.Accepted)
		require.NotNil(t, got.ResolvedAt)
		return nil
	}))
}

func TestUserLastSync(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)

	u := model.NewUser("uid-1", "Alice", "alice@example.com")
	require.NoError(t, d.Update(ctx, func(q *Queries) error {
		require.NoError(t, q.UpsertUser(ctx, u))
		require.NoError(t, q.SetLastSync(ctx, "uid-1", at))
		u.Name = "Alice B."
		return q.UpsertUser(ctx, u)
	}))

	require.NoError(t, d.View(ctx, func(q *Queries) error {
		got, err := q.GetUser(ctx, "uid-1")
		require.NoError(t, err)
		assert.Equal(t, "Alice B.", got.Name)
		require.NotNil(t, got.LastSyncAt)
		assert.True(t, got.LastSyncAt.Equal(at))
		assert.True(t, got.AutoSync)

		_, err = q.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}
