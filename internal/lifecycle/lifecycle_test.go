package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/internal/session"
	"github.com/existflow/duetask/internal/sharing"
	"github.com/existflow/duetask/internal/testutil"
)

func addPrivate(t *testing.T, d *db.DB, title string, due time.Time, opts ...model.Option) model.Task {
	t.Helper()
	task, err := model.NewTask(title, due, "", opts...)
	require.NoError(t, err)
	task.OwnerID = testutil.Alice.UserID
	task.Synced = true
	require.NoError(t, d.Update(context.Background(), func(q *db.Queries) error {
		return q.CreateTask(context.Background(), task)
	}))
	return task
}

func load(t *testing.T, d *db.DB, id string) model.Task {
	t.Helper()
	var task model.Task
	require.NoError(t, d.View(context.Background(), func(q *db.Queries) error {
		var err error
		task, err = q.GetTask(context.Background(), id)
		return err
	}))
	return task
}

func TestTickCompletesOverdueTask(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	d := env.OpenDB()
	s := New(d, testutil.As(testutil.Alice), env.Clock, nil, 0)

	overdue := addPrivate(t, d, "Yesterday", testutil.Start.Add(-24*time.Hour))
	future := addPrivate(t, d, "Tomorrow", testutil.Start.Add(24*time.Hour))
	manual := addPrivate(t, d, "Manual", testutil.Start.Add(-time.Hour), model.Usual)
	manual.AutoComplete = false
	require.NoError(t, d.Update(ctx, func(q *db.Queries) error { return q.UpdateTask(ctx, manual) }))

	res, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Completed: 1}, res)

	got := load(t, d, overdue.ID)
	assert.True(t, got.Done)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(testutil.Start))
	assert.False(t, got.Synced)
	assert.Equal(t, overdue.Revision+1, got.Revision)

	assert.False(t, load(t, d, future.ID).Done)
	assert.False(t, load(t, d, manual.ID).Done)
}

func TestTickIsMonotonic(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	d := env.OpenDB()
	s := New(d, testutil.As(testutil.Alice), env.Clock, nil, 0)

	task := addPrivate(t, d, "Once", testutil.Start.Add(-time.Minute))
	_, err := s.Tick(ctx)
	require.NoError(t, err)
	first := load(t, d, task.ID)

	for i := 0; i < 3; i++ {
		env.Clock.Advance(time.Hour)
		res, err := s.Tick(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Completed)
	}
	assert.Equal(t, first, load(t, d, task.ID))
}

func TestTickFailsAutoFailTasks(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	d := env.OpenDB()
	s := New(d, testutil.As(testutil.Alice), env.Clock, nil, 0)

	task := addPrivate(t, d, "Deadline", testutil.Start.Add(-time.Hour), model.AutoFail)

	res, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)

	got := load(t, d, task.ID)
	assert.True(t, got.IsFailed())
	assert.False(t, got.Synced)

	env.Clock.Advance(time.Hour)
	res, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, got, load(t, d, task.ID))
}

func TestTickDueExactlyNowIsNotOverdue(t *testing.T) {
	env := testutil.NewEnv(t)
	d := env.OpenDB()
	s := New(d, testutil.As(testutil.Alice), env.Clock, nil, 0)

	task := addPrivate(t, d, "Now", testutil.Start)
	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Completed)
	assert.False(t, load(t, d, task.ID).Done)
}

func TestTickRoutesSharedTasks(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	aliceDB, bobDB := env.OpenDB(), env.OpenDB()
	aliceShare := sharing.NewEngine(aliceDB, env.Remote, testutil.As(testutil.Alice), env.Clock)
	bobShare := sharing.NewEngine(bobDB, env.Remote, testutil.As(testutil.Bob), env.Clock)

	sent, err := aliceShare.SendTaskToFriend(ctx, sharing.SendRequest{
		Title:     "Return the book",
		Due:       testutil.Start.Add(time.Hour),
		FriendUID: testutil.Bob.UserID,
	})
	require.NoError(t, err)
	lists, err := bobShare.SyncSharedTasks(ctx)
	require.NoError(t, err)
	require.Len(t, lists.Incoming, 1)

	env.Clock.Advance(2 * time.Hour)

	// The sender's tick leaves the task alone.
	aliceTick := New(aliceDB, testutil.As(testutil.Alice), env.Clock, aliceShare, 0)
	res, err := aliceTick.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)
	assert.False(t, load(t, aliceDB, sent.ID).Done)

	bobTick := New(bobDB, testutil.As(testutil.Bob), env.Clock, bobShare, 0)
	res, err = bobTick.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Completed: 1}, res)
	assert.True(t, load(t, bobDB, lists.Incoming[0].ID).Done)

	out, err := env.Remote.Get(ctx, remote.Doc(remote.UserCollection(testutil.Alice.UserID, remote.OutgoingTasks), sent.RemoteID))
	require.NoError(t, err)
	assert.Equal(t, true, out.Data["IsDone"])

	lists, err = aliceShare.SyncSharedTasks(ctx)
	require.NoError(t, err)
	require.Len(t, lists.Outgoing, 1)
	assert.True(t, lists.Outgoing[0].Done)

	res, err = aliceTick.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestTickRequiresIdentity(t *testing.T) {
	env := testutil.NewEnv(t)
	s := New(env.OpenDB(), testutil.SignedOut, env.Clock, nil, 0)
	_, err := s.Tick(context.Background())
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestRunTicksOnInterval(t *testing.T) {
	env := testutil.NewEnv(t)
	d := env.OpenDB()
	s := New(d, testutil.As(testutil.Alice), env.Clock, nil, time.Minute)
	task := addPrivate(t, d, "Later", testutil.Start.Add(30*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	env.Clock.WaitForTimers(1)
	env.Clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		var got model.Task
		err := d.View(context.Background(), func(q *db.Queries) error {
			var err error
			got, err = q.GetTask(context.Background(), task.ID)
			return err
		})
		return err == nil && got.Done
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
