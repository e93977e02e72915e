package sync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/internal/session"
	"github.com/existflow/duetask/internal/testutil"
)

func newDevice(env *testutil.Env, id session.Identity) *Engine {
	return NewEngine(env.OpenDB(), env.Remote, testutil.As(id), env.Clock)
}

func mustTask(t *testing.T, title string, due time.Time, opts ...model.Option) model.Task {
	t.Helper()
	task, err := model.NewTask(title, due, "", opts...)
	require.NoError(t, err)
	return task
}

func getTask(t *testing.T, e *Engine, id string) model.Task {
	t.Helper()
	task, err := e.FindTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func privateTasks(t *testing.T, e *Engine) []model.Task {
	t.Helper()
	tasks, err := e.Tasks(context.Background(), db.TaskFilter{Kind: db.KindPrivate})
	require.NoError(t, err)
	return tasks
}

func TestSyncAllUploadsThenIsIdempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	e := newDevice(env, testutil.Alice)

	tag, err := e.CreateTag(ctx, "Work", "briefcase")
	require.NoError(t, err)
	task := mustTask(t, "Write report", testutil.Start.Add(time.Hour), model.Important)
	task.TagID = tag.ID
	task, err = e.CreateTask(ctx, task)
	require.NoError(t, err)

	res, err := e.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pushed)

	remoteTasks, err := env.Remote.List(ctx, remote.UserCollection(testutil.Alice.UserID, remote.PersonalTasks))
	require.NoError(t, err)
	require.Len(t, remoteTasks, 1)
	assert.Equal(t, "Write report", remoteTasks[0].Data["title"])

	synced := getTask(t, e, task.ID)
	assert.True(t, synced.Synced)
	assert.Equal(t, remoteTasks[0].ID, synced.RemoteID)
	assert.NotEmpty(t, synced.TagRemoteID)
	assert.Equal(t, tag.ID, synced.TagID)

	user, err := e.LastSync(ctx)
	require.NoError(t, err)
	require.NotNil(t, user.LastSyncAt)

	writes := env.Remote.Writes()
	res, err = e.SyncAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Pushed)
	assert.Zero(t, res.Pulled)
	assert.Zero(t, res.Pruned)
	assert.Zero(t, res.Linked)
	assert.Equal(t, writes, env.Remote.Writes())
	assert.Equal(t, synced, getTask(t, e, task.ID))
}

func TestTagRoundTripToSecondDevice(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	laptop := newDevice(env, testutil.Alice)
	phone := newDevice(env, testutil.Alice)

	tag, err := laptop.CreateTag(ctx, "Health", "heart")
	require.NoError(t, err)
	task := mustTask(t, "Run 5k", testutil.Start.Add(24*time.Hour))
	task.TagID = tag.ID
	_, err = laptop.CreateTask(ctx, task)
	require.NoError(t, err)
	_, err = laptop.SyncAll(ctx)
	require.NoError(t, err)

	res, err := phone.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pulled)
	assert.Equal(t, 1, res.Linked)

	tags, err := phone.Tags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, tag.Name, tags[0].Name)
	assert.Equal(t, tag.Icon, tags[0].Icon)
	assert.InDelta(t, tag.Color.R, tags[0].Color.R, 1e-9)
	assert.InDelta(t, tag.Color.G, tags[0].Color.G, 1e-9)
	assert.InDelta(t, tag.Color.B, tags[0].Color.B, 1e-9)
	assert.InDelta(t, tag.Color.A, tags[0].Color.A, 1e-9)
	assert.True(t, tags[0].Synced)

	phoneTasks := privateTasks(t, phone)
	require.Len(t, phoneTasks, 1)
	assert.Equal(t, "Run 5k", phoneTasks[0].Title)
	assert.Equal(t, tags[0].ID, phoneTasks[0].TagID)
	assert.True(t, phoneTasks[0].Due.Equal(task.Due))
}

func TestRemoteChangeOverwritesSyncedRow(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	laptop := newDevice(env, testutil.Alice)
	phone := newDevice(env, testutil.Alice)

	task, err := laptop.CreateTask(ctx, mustTask(t, "Buy bread", testutil.Start.Add(time.Hour)))
	require.NoError(t, err)
	_, err = laptop.SyncAll(ctx)
	require.NoError(t, err)
	_, err = phone.SyncAll(ctx)
	require.NoError(t, err)

	_, err = laptop.UpdateTask(ctx, task.ID, func(t *model.Task) error {
		t.Title = "Buy rye bread"
		return nil
	})
	require.NoError(t, err)
	_, err = laptop.SyncAll(ctx)
	require.NoError(t, err)

	res, err := phone.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)

	phoneTasks := privateTasks(t, phone)
	require.Len(t, phoneTasks, 1)
	assert.Equal(t, "Buy rye bread", phoneTasks[0].Title)
	assert.True(t, phoneTasks[0].Synced)
}

func TestEditDuringFetchIsPreserved(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	laptop := newDevice(env, testutil.Alice)
	phone := newDevice(env, testutil.Alice)

	task, err := laptop.CreateTask(ctx, mustTask(t, "Plan trip", testutil.Start.Add(time.Hour)))
	require.NoError(t, err)
	_, err = laptop.SyncAll(ctx)
	require.NoError(t, err)
	_, err = phone.SyncAll(ctx)
	require.NoError(t, err)
	phoneTask := privateTasks(t, phone)[0]

	// The phone changes the remote copy.
	_, err = phone.UpdateTask(ctx, phoneTask.ID, func(t *model.Task) error {
		t.Title = "Plan trip (phone)"
		return nil
	})
	require.NoError(t, err)
	phone.QuickSync(ctx)

	// The laptop edits the task while its fetch of personal tasks is in flight.
	fired := false
	env.Remote.SetFault(func(op, path string) error {
		if !fired && op == "list" && path == remote.UserCollection(testutil.Alice.UserID, remote.PersonalTasks) {
			fired = true
			_, err := laptop.UpdateTask(ctx, task.ID, func(t *model.Task) error {
				t.Title = "Plan trip (laptop)"
				return nil
			})
			require.NoError(t, err)
		}
		return nil
	})

	res, err := laptop.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Kept)

	got := getTask(t, laptop, task.ID)
	assert.Equal(t, "Plan trip (laptop)", got.Title)
	assert.False(t, got.Synced)

	// The next pass uploads the laptop edit over the phone's.
	_, err = laptop.SyncAll(ctx)
	require.NoError(t, err)
	doc, err := env.Remote.Get(ctx, remote.Doc(remote.UserCollection(testutil.Alice.UserID, remote.PersonalTasks), got.RemoteID))
	require.NoError(t, err)
	assert.Equal(t, "Plan trip (laptop)", doc.Data["title"])
}

func TestEditDuringUploadStaysDirty(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	e := newDevice(env, testutil.Alice)

	task, err := e.CreateTask(ctx, mustTask(t, "Draft", testutil.Start.Add(time.Hour)))
	require.NoError(t, err)

	fired := false
	env.Remote.SetFault(func(op, path string) error {
		if !fired && op == "create" {
			fired = true
			_, err := e.UpdateTask(ctx, task.ID, func(t *model.Task) error {
				t.Description = "edited mid-upload"
				return nil
			})
			require.NoError(t, err)
		}
		return nil
	})

	e.QuickSync(ctx)
	got := getTask(t, e, task.ID)
	assert.NotEmpty(t, got.RemoteID)
	assert.False(t, got.Synced)

	res := e.QuickSync(ctx)
	assert.Equal(t, 1, res.Pushed)
	assert.True(t, getTask(t, e, task.ID).Synced)
}

func TestDeleteDuringFirstUploadStaysDeleted(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	e := newDevice(env, testutil.Alice)

	tag, err := e.CreateTag(ctx, "Scratch", "")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, mustTask(t, "Temp", testutil.Start.Add(time.Hour)))
	require.NoError(t, err)

	deleted := map[string]bool{}
	env.Remote.SetFault(func(op, path string) error {
		if op != "create" {
			return nil
		}
		switch {
		case strings.Contains(path, "/tags/") && !deleted["tag"]:
			deleted["tag"] = true
			require.NoError(t, e.DeleteTag(ctx, tag.ID))
		case strings.Contains(path, "/personal_tasks/") && !deleted["task"]:
			deleted["task"] = true
			require.NoError(t, e.DeleteTask(ctx, task.ID))
		}
		return nil
	})

	_, err = e.SyncAll(ctx)
	require.NoError(t, err)
	assert.True(t, deleted["tag"])
	assert.True(t, deleted["task"])

	for _, coll := range []string{remote.PersonalTasks, remote.Tags} {
		left, err := env.Remote.List(ctx, remote.UserCollection(testutil.Alice.UserID, coll))
		require.NoError(t, err)
		assert.Empty(t, left, coll)
	}

	_, err = e.SyncAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, privateTasks(t, e))
	tags, err := e.Tags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestCreateStampsEngineClock(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	e := newDevice(env, testutil.Alice)
	env.Clock.Advance(90 * time.Minute)
	want := testutil.Start.Add(90 * time.Minute)

	tag, err := e.CreateTag(ctx, "Errands", "")
	require.NoError(t, err)
	assert.True(t, want.Equal(tag.CreatedAt))

	task, err := e.CreateTask(ctx, mustTask(t, "Post office", want.Add(time.Hour)))
	require.NoError(t, err)
	got := getTask(t, e, task.ID)
	assert.True(t, want.Equal(got.CreatedAt), "created %s", got.CreatedAt)
	assert.True(t, want.Equal(got.UpdatedAt), "updated %s", got.UpdatedAt)
}

func TestSyncAllRequiresIdentity(t *testing.T) {
	env := testutil.NewEnv(t)
	e := NewEngine(env.OpenDB(), env.Remote, testutil.SignedOut, env.Clock)
	writes := env.Remote.Writes()

	_, err := e.SyncAll(context.Background())
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	assert.True(t, e.QuickSync(context.Background()).Skipped)
	assert.Equal(t, writes, env.Remote.Writes())
}

func TestSyncAllCollectsPhaseErrors(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	e := newDevice(env, testutil.Alice)

	_, err := e.CreateTag(ctx, "Errands", "")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, mustTask(t, "Post office", testutil.Start.Add(time.Hour)))
	require.NoError(t, err)

	boom := errors.New("tags unavailable")
	env.Remote.SetFault(remote.FailOn("create", "/tags/", boom))

	res, err := e.SyncAll(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, res.Pushed)
	assert.True(t, getTask(t, e, task.ID).Synced)

	user, err := e.LastSync(ctx)
	if err == nil {
		assert.Nil(t, user.LastSyncAt)
	} else {
		assert.ErrorIs(t, err, db.ErrNotFound)
	}
}

func TestRemoteDeletionPrunesOnlySyncedRows(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	laptop := newDevice(env, testutil.Alice)
	phone := newDevice(env, testutil.Alice)

	keep, err := laptop.CreateTask(ctx, mustTask(t, "keep", testutil.Start))
	require.NoError(t, err)
	gone, err := laptop.CreateTask(ctx, mustTask(t, "gone", testutil.Start))
	require.NoError(t, err)
	_, err = laptop.SyncAll(ctx)
	require.NoError(t, err)
	_, err = phone.SyncAll(ctx)
	require.NoError(t, err)

	require.NoError(t, phone.DeleteTask(ctx, findByTitle(t, phone, "gone").ID))
	// A dirty row whose document vanished is kept.
	keepDoc := remote.Doc(remote.UserCollection(testutil.Alice.UserID, remote.PersonalTasks), getTask(t, laptop, keep.ID).RemoteID)
	_, err = laptop.UpdateTask(ctx, keep.ID, func(t *model.Task) error { t.Urgent = true; return nil })
	require.NoError(t, err)
	require.NoError(t, env.Remote.Delete(ctx, keepDoc))

	env.Remote.SetFault(remote.FailOn("set", "personal_tasks", errors.New("offline")))
	res, err := laptop.SyncAll(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, res.Pruned)

	_, err = laptop.FindTask(ctx, gone.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Equal(t, "keep", getTask(t, laptop, keep.ID).Title)
}

func findByTitle(t *testing.T, e *Engine, title string) model.Task {
	t.Helper()
	for _, task := range privateTasks(t, e) {
		if task.Title == title {
			return task
		}
	}
	t.Fatalf("task %q not found", title)
	return model.Task{}
}

func TestTagCreatedOfflineAdoptsRemoteID(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	laptop := newDevice(env, testutil.Alice)
	phone := newDevice(env, testutil.Alice)

	_, err := laptop.CreateTag(ctx, "Work", "")
	require.NoError(t, err)
	_, err = laptop.SyncAll(ctx)
	require.NoError(t, err)

	phoneTag, err := phone.CreateTag(ctx, "Work", "star")
	require.NoError(t, err)

	// The phone's upload fails, so the download finds the laptop's copy.
	env.Remote.SetFault(remote.FailOn("create", "/tags/", errors.New("offline")))
	_, err = phone.SyncAll(ctx)
	require.Error(t, err)
	env.Remote.SetFault(nil)

	adopted, err := phone.FindTag(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, phoneTag.ID, adopted.ID)
	assert.NotEmpty(t, adopted.RemoteID)
	assert.False(t, adopted.Synced)

	_, err = phone.SyncAll(ctx)
	require.NoError(t, err)

	remoteTags, err := env.Remote.List(ctx, remote.UserCollection(testutil.Alice.UserID, remote.Tags))
	require.NoError(t, err)
	require.Len(t, remoteTags, 1)
	assert.Equal(t, "star", remoteTags[0].Data["symImage"])
}

func TestDeleteTaskKeepsLocalRowWhenRemoteFails(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	e := newDevice(env, testutil.Alice)

	task, err := e.CreateTask(ctx, mustTask(t, "Dentist", testutil.Start))
	require.NoError(t, err)
	_, err = e.SyncAll(ctx)
	require.NoError(t, err)

	boom := errors.New("unreachable")
	env.Remote.SetFault(remote.FailOn("delete", "personal_tasks", boom))
	assert.ErrorIs(t, e.DeleteTask(ctx, task.ID), boom)
	assert.Equal(t, "Dentist", getTask(t, e, task.ID).Title)

	env.Remote.SetFault(nil)
	require.NoError(t, e.DeleteTask(ctx, task.ID))
	_, err = e.FindTask(ctx, task.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Empty(t, privateTasks(t, e))
}

func TestDeleteTagUnlinksTasks(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	e := newDevice(env, testutil.Alice)

	tag, err := e.CreateTag(ctx, "Garden", "")
	require.NoError(t, err)
	task := mustTask(t, "Water plants", testutil.Start)
	task.TagID = tag.ID
	task, err = e.CreateTask(ctx, task)
	require.NoError(t, err)
	_, err = e.SyncAll(ctx)
	require.NoError(t, err)

	require.NoError(t, e.DeleteTag(ctx, tag.ID))

	got := getTask(t, e, task.ID)
	assert.Empty(t, got.TagID)
	assert.False(t, got.Synced)
	tags, err := e.Tags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestUpdateTaskRejectsSharedAndForeignTasks(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newDevice(env, testutil.Alice)

	task, err := alice.CreateTask(ctx, mustTask(t, "Mine", testutil.Start))
	require.NoError(t, err)

	bob := NewEngine(alice.db, env.Remote, testutil.As(testutil.Bob), env.Clock)
	_, err = bob.UpdateTask(ctx, task.ID, func(t *model.Task) error { t.Title = "Hijacked"; return nil })
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = alice.UpdateTask(ctx, task.ID, func(t *model.Task) error { t.Title = " "; return nil })
	assert.ErrorIs(t, err, model.ErrEmptyTitle)
	assert.Equal(t, "Mine", getTask(t, alice, task.ID).Title)
}

func TestQuickSyncSkipsWhileBusy(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	e := newDevice(env, testutil.Alice)

	_, err := e.CreateTask(ctx, mustTask(t, "Busy", testutil.Start))
	require.NoError(t, err)

	require.True(t, e.tryAcquire())
	res := e.QuickSync(ctx)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Pushed)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.SyncAll(cancelled)
	assert.ErrorIs(t, err, context.Canceled)

	e.release()
	assert.Equal(t, 1, e.QuickSync(ctx).Pushed)
}
