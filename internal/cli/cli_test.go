package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/duetask/internal/app"
	"github.com/existflow/duetask/internal/config"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/session"
	"github.com/existflow/duetask/internal/sharing"
	"github.com/existflow/duetask/internal/testutil"
)

func TestParseDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)},
		{"today", time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)},
		{"Tomorrow", time.Date(2026, 3, 11, 23, 59, 0, 0, time.UTC)},
		{"+2h", now.Add(2 * time.Hour)},
		{"90m", now.Add(90 * time.Minute)},
		{"2026-04-01", time.Date(2026, 4, 1, 23, 59, 0, 0, time.UTC)},
		{"2026-04-01 08:30", time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDue(tt.in, now)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%q: got %s", tt.in, got)
	}

	for _, bad := range []string{"next week", "-1h", "2026-13-01"} {
		_, err := parseDue(bad, now)
		assert.Error(t, err, bad)
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "abcdef12", shortID("abcdef12-3456"))
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a long ...", truncate("a long title", 10))
}

func TestConfirm(t *testing.T) {
	assert.True(t, confirm(strings.NewReader("y\n"), "ok?"))
	assert.True(t, confirm(strings.NewReader("YES"), "ok?"))
	assert.False(t, confirm(strings.NewReader("n\n"), "ok?"))
	assert.False(t, confirm(strings.NewReader(""), "ok?"))
}

func TestTaskOptions(t *testing.T) {
	assert.Empty(t, taskOptions(false, false, false, false))
	f := model.ApplyOptions(taskOptions(true, false, true, true)...)
	assert.True(t, f.Important)
	assert.True(t, f.AutoReminder)
	assert.True(t, f.AutoFail)
	assert.False(t, f.AutoComplete)
}

func TestApplyAutoFail(t *testing.T) {
	task, err := model.NewTask("Gym", testutil.Start, "")
	require.NoError(t, err)

	applyAutoFail(&task, true)
	assert.True(t, task.AutoFail)
	assert.False(t, task.AutoComplete)

	applyAutoFail(&task, false)
	assert.False(t, task.AutoFail)
	assert.True(t, task.AutoComplete)
}

func newApp(env *testutil.Env, id session.Identity) *app.App {
	c := config.DefaultConfig()
	c.AutoSync = false
	return app.New(c, env.OpenDB(), env.Remote, testutil.As(id), env.Clock)
}

func TestSetStatusRoutesByKind(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newApp(env, testutil.Alice)
	bob := newApp(env, testutil.Bob)

	private, err := model.NewTask("Laundry", testutil.Start.Add(time.Hour), "")
	require.NoError(t, err)
	private, err = alice.Sync.CreateTask(ctx, private)
	require.NoError(t, err)

	got, err := setStatus(ctx, alice, private.ID[:8], model.StatusFailed)
	require.NoError(t, err)
	assert.True(t, got.IsFailed())

	sent, err := alice.Sharing.SendTaskToFriend(ctx, sharing.SendRequest{
		Title:     "Feed the cat",
		Due:       testutil.Start.Add(time.Hour),
		FriendUID: testutil.Bob.UserID,
	})
	require.NoError(t, err)

	_, err = setStatus(ctx, alice, sent.ID, model.StatusCompleted)
	assert.Error(t, err, "the sender cannot report a status")

	lists, err := bob.Sharing.SyncSharedTasks(ctx)
	require.NoError(t, err)
	require.Len(t, lists.Incoming, 1)

	got, err = setStatus(ctx, bob, lists.Incoming[0].ID, model.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, got.Done)

	_, err = setStatus(ctx, bob, "no-such-task", model.StatusCompleted)
	assert.Error(t, err)
}

func TestFindFriend(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newApp(env, testutil.Alice)
	bob := newApp(env, testutil.Bob)

	_, err := alice.Friends.SendFriendRequest(ctx, testutil.Bob.Email)
	require.NoError(t, err)
	pending, err := bob.Friends.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = bob.Friends.AcceptFriendRequest(ctx, pending[0])
	require.NoError(t, err)

	f, err := findFriend(ctx, bob, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice.UserID, f.RemoteUID)

	f, err = findFriend(ctx, bob, testutil.Alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", f.Name)

	_, err = findFriend(ctx, bob, "carol@example.com")
	assert.Error(t, err)
}
