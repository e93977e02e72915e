package friends

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/docs"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/internal/session"
	"github.com/existflow/duetask/internal/testutil"
)

func newEngine(env *testutil.Env, id session.Identity) *Engine {
	return NewEngine(env.OpenDB(), env.Remote, testutil.As(id), env.Clock)
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("bob@example.com"))
	assert.True(t, ValidEmail("first.last+tag@mail.example.co"))
	assert.False(t, ValidEmail("bob"))
	assert.False(t, ValidEmail("bob@example"))
	assert.False(t, ValidEmail("bob@@example.com"))
	assert.False(t, ValidEmail("bob@example.c"))
}

func TestFindUserByEmail(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newEngine(env, testutil.Alice)

	p, err := alice.FindUserByEmail(ctx, "  BOB@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, testutil.Bob.UserID, p.UID)
	assert.Equal(t, "Bob", p.Name)

	_, err = alice.FindUserByEmail(ctx, "not-an-email")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = alice.FindUserByEmail(ctx, "Alice@example.com")
	assert.ErrorIs(t, err, ErrCannotAddSelf)
	_, err = alice.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	signedOut := NewEngine(alice.db, env.Remote, testutil.SignedOut, env.Clock)
	_, err = signedOut.FindUserByEmail(ctx, "bob@example.com")
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestFriendHandshake(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newEngine(env, testutil.Alice)
	bob := newEngine(env, testutil.Bob)

	sent, err := alice.SendFriendRequest(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, sent.RemoteID)
	assert.Equal(t, "Alice", sent.FromName)
	outgoing, err := alice.SentRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, outgoing, 1)

	pending, err := bob.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sent.RemoteID, pending[0].RemoteID)
	assert.Equal(t, testutil.Alice.UserID, pending[0].FromUID)

	friend, err := bob.AcceptFriendRequest(ctx, pending[0])
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice.UserID, friend.RemoteUID)
	assert.Equal(t, "Alice", friend.Name)

	left, err := bob.PendingRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)

	doc, err := env.Remote.Get(ctx, remote.Doc(remote.FriendRequests, sent.RemoteID))
	require.NoError(t, err)
	assert.Equal(t, true, doc.Data[docs.RequestResolved])
	assert.Equal(t, true, doc.Data[docs.RequestAccepted])

	aliceFriends, err := alice.FetchFriends(ctx)
	require.NoError(t, err)
	require.Len(t, aliceFriends, 1)
	assert.Equal(t, testutil.Bob.UserID, aliceFriends[0].RemoteUID)
	assert.Equal(t, "Bob", aliceFriends[0].Name)
	assert.Equal(t, "bob@example.com", aliceFriends[0].Email)

	// The sender's mirror of the request resolves on her next fetch.
	stillSent, err := alice.SentRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, stillSent, 1)
	_, err = alice.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)
	stillSent, err = alice.SentRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, stillSent)
	require.NoError(t, alice.db.View(ctx, func(q *db.Queries) error {
		mirror, err := q.GetFriendRequest(ctx, sent.RemoteID)
		require.NoError(t, err)
		assert.True(t, mirror.Resolved)
		assert.True(t, mirror.Accepted)
		require.NotNil(t, mirror.ResolvedAt)
		assert.True(t, testutil.Start.Equal(*mirror.ResolvedAt))
		return nil
	}))

	bobFriends, err := bob.Friends(ctx)
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)
	assert.Equal(t, testutil.Alice.UserID, bobFriends[0].RemoteUID)

	// Repeated fetches keep one row per remote UID.
	again, err := bob.FetchFriends(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, bobFriends[0].ID, again[0].ID)

	_, err = alice.SendFriendRequest(ctx, "bob@example.com")
	assert.ErrorIs(t, err, ErrAlreadyFriends)
	_, err = bob.AcceptFriendRequest(ctx, pending[0])
	assert.ErrorIs(t, err, model.ErrRequestResolved)
}

func TestDuplicateAndReverseRequests(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newEngine(env, testutil.Alice)
	bob := newEngine(env, testutil.Bob)

	_, err := alice.SendFriendRequest(ctx, "bob@example.com")
	require.NoError(t, err)
	writes := env.Remote.Writes()

	_, err = alice.SendFriendRequest(ctx, "BOB@example.com")
	assert.ErrorIs(t, err, ErrRequestExists)
	_, err = bob.SendFriendRequest(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrReverseRequestPending)
	_, err = alice.SendFriendRequest(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrCannotAddSelf)
	assert.Equal(t, writes, env.Remote.Writes())

	// Carol is unaffected by the pair's pending request.
	carol := newEngine(env, testutil.Carol)
	_, err = carol.SendFriendRequest(ctx, "bob@example.com")
	assert.NoError(t, err)
}

func TestDeclineFriendRequest(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newEngine(env, testutil.Alice)
	bob := newEngine(env, testutil.Bob)

	sent, err := alice.SendFriendRequest(ctx, "bob@example.com")
	require.NoError(t, err)
	pending, err := bob.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	assert.ErrorIs(t, alice.DeclineFriendRequest(ctx, sent), ErrNotRecipient)
	require.NoError(t, bob.DeclineFriendRequest(ctx, pending[0]))

	doc, err := env.Remote.Get(ctx, remote.Doc(remote.FriendRequests, sent.RemoteID))
	require.NoError(t, err)
	assert.Equal(t, true, doc.Data[docs.RequestResolved])
	assert.Equal(t, false, doc.Data[docs.RequestAccepted])

	friends, err := env.Remote.List(ctx, remote.UserCollection(testutil.Bob.UserID, remote.Friends))
	require.NoError(t, err)
	assert.Empty(t, friends)

	refetched, err := bob.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, refetched)

	// A stale local copy cannot resolve the request a second time.
	_, err = bob.AcceptFriendRequest(ctx, pending[0])
	assert.ErrorIs(t, err, model.ErrRequestResolved)

	_, err = alice.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)
	stillSent, err := alice.SentRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, stillSent)

	// The declined request no longer blocks a new one.
	_, err = alice.SendFriendRequest(ctx, "bob@example.com")
	assert.NoError(t, err)
}

func TestAcceptIsAtomic(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newEngine(env, testutil.Alice)
	bob := newEngine(env, testutil.Bob)

	_, err := alice.SendFriendRequest(ctx, "bob@example.com")
	require.NoError(t, err)
	pending, err := bob.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)

	boom := errors.New("batch rejected")
	env.Remote.SetFault(remote.FailOn("set", "alice-uid/friends", boom))
	_, err = bob.AcceptFriendRequest(ctx, pending[0])
	require.ErrorIs(t, err, boom)
	env.Remote.SetFault(nil)

	for _, uid := range []string{testutil.Alice.UserID, testutil.Bob.UserID} {
		entries, err := env.Remote.List(ctx, remote.UserCollection(uid, remote.Friends))
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
	left, err := bob.PendingRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, left, 1)
	local, err := bob.Friends(ctx)
	require.NoError(t, err)
	assert.Empty(t, local)
}

func TestDeleteFriend(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newEngine(env, testutil.Alice)
	bob := newEngine(env, testutil.Bob)

	_, err := alice.SendFriendRequest(ctx, "bob@example.com")
	require.NoError(t, err)
	pending, err := bob.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)
	_, err = bob.AcceptFriendRequest(ctx, pending[0])
	require.NoError(t, err)

	boom := errors.New("offline")
	env.Remote.SetFault(remote.FailOn("commit", "", boom))
	require.ErrorIs(t, bob.DeleteFriend(ctx, testutil.Alice.UserID), boom)
	env.Remote.SetFault(nil)

	kept, err := bob.Friends(ctx)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	require.NoError(t, bob.DeleteFriend(ctx, testutil.Alice.UserID))
	kept, err = bob.Friends(ctx)
	require.NoError(t, err)
	assert.Empty(t, kept)

	aliceFriends, err := alice.FetchFriends(ctx)
	require.NoError(t, err)
	assert.Empty(t, aliceFriends)
}

func TestFetchFriendsFiltersEntries(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newEngine(env, testutil.Alice)
	coll := remote.UserCollection(testutil.Alice.UserID, remote.Friends)

	require.NoError(t, env.Remote.Set(ctx, remote.Doc(coll, "bob-uid"), docs.EncodeFriend(docs.FriendEntry{
		UID: "bob-uid", Email: "bob@example.com", AddedAt: testutil.Start,
	})))
	require.NoError(t, env.Remote.Set(ctx, remote.Doc(coll, "carol-uid"), docs.EncodeFriend(docs.FriendEntry{
		UID: "carol-uid", Email: "carol@example.com", AddedAt: testutil.Start, Status: "blocked",
	})))
	require.NoError(t, env.Remote.Set(ctx, remote.Doc(coll, "ghost-uid"), docs.EncodeFriend(docs.FriendEntry{
		UID: "ghost-uid", Email: "ghost@example.com", AddedAt: testutil.Start,
	})))
	require.NoError(t, env.Remote.Set(ctx, remote.Doc(coll, "broken"), remote.Data{"status": "active"}))

	friends, err := alice.FetchFriends(ctx)
	require.NoError(t, err)
	require.Len(t, friends, 2)

	names := map[string]string{}
	for _, f := range friends {
		names[f.RemoteUID] = f.Name
	}
	assert.Equal(t, map[string]string{
		"bob-uid":   "Bob",
		"ghost-uid": session.DefaultDisplayName,
	}, names)
}

func TestFindRequest(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	alice := newEngine(env, testutil.Alice)
	bob := newEngine(env, testutil.Bob)

	sent, err := alice.SendFriendRequest(ctx, "bob@example.com")
	require.NoError(t, err)
	_, err = bob.FetchPendingFriendRequests(ctx)
	require.NoError(t, err)

	got, err := bob.FindRequest(ctx, sent.RemoteID[:8])
	require.NoError(t, err)
	assert.Equal(t, sent.RemoteID, got.RemoteID)

	_, err = bob.FindRequest(ctx, "zzzz")
	assert.Error(t, err)
}
