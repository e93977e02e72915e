// Package friends runs the friend request handshake and keeps the local
// friend list in step with the remote friend collections.
package friends

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
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
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrCannotAddSelf         = errors.New("cannot add yourself as a friend")
	ErrAlreadyFriends        = errors.New("already friends")
	ErrRequestExists         = errors.New("friend request already sent")
	ErrReverseRequestPending = errors.New("this user already sent you a friend request")
	ErrUserNotFound          = errors.New("no user with this email")
	ErrNotRecipient          = errors.New("friend request is addressed to another user")
)

var emailPattern = regexp.MustCompile(`^[A-Z0-9a-z._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,64}$`)

// ValidEmail reports whether s looks like an email address
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Engine manages the friend graph of the signed-in user
type Engine struct {
	db     *db.DB
	remote remote.Store
	auth   session.Provider
	clock  clock.Clock
}

// NewEngine creates a friend engine. A nil clock uses the wall clock.
func NewEngine(database *db.DB, store remote.Store, auth session.Provider, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	return &Engine{db: database, remote: store, auth: auth, clock: clk}
}

func friendDoc(ownerUID, friendUID string) string {
	return remote.Doc(remote.UserCollection(ownerUID, remote.Friends), friendUID)
}

// FindUserByEmail looks up another user's profile. Matching is case
// insensitive.
func (e *Engine) FindUserByEmail(ctx context.Context, email string) (docs.Profile, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return docs.Profile{}, err
	}
	return e.findUser(ctx, id, email)
}

func (e *Engine) findUser(ctx context.Context, id session.Identity, email string) (docs.Profile, error) {
	email = normalizeEmail(email)
	if !ValidEmail(email) {
		return docs.Profile{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if email == normalizeEmail(id.Email) {
		return docs.Profile{}, ErrCannotAddSelf
	}

	found, err := e.remote.List(ctx, remote.Users, remote.Where(docs.ProfileEmail, email))
	if err != nil {
		return docs.Profile{}, fmt.Errorf("find user: %w", err)
	}
	if len(found) == 0 {
		return docs.Profile{}, ErrUserNotFound
	}
	p, err := docs.DecodeProfile(found[0])
	if err != nil {
		return docs.Profile{}, err
	}
	if p.UID == id.UserID {
		return docs.Profile{}, ErrCannotAddSelf
	}
	return p, nil
}

// SendFriendRequest asks the user with the given email to become a friend.
// It fails when the two are already friends, when the caller already has a
// pending request to them, or when they have a pending request to the
// caller (which should be accepted instead).
func (e *Engine) SendFriendRequest(ctx context.Context, email string) (model.FriendRequest, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return model.FriendRequest{}, err
	}
	target, err := e.findUser(ctx, id, email)
	if err != nil {
		return model.FriendRequest{}, err
	}

	if _, err := e.remote.Get(ctx, friendDoc(id.UserID, target.UID)); err == nil {
		return model.FriendRequest{}, ErrAlreadyFriends
	} else if !errors.Is(err, remote.ErrNotFound) {
		return model.FriendRequest{}, fmt.Errorf("check friendship: %w", err)
	}

	if pending, err := e.pendingBetween(ctx, id.UserID, target.UID); err != nil {
		return model.FriendRequest{}, err
	} else if pending {
		return model.FriendRequest{}, ErrRequestExists
	}
	if pending, err := e.pendingBetween(ctx, target.UID, id.UserID); err != nil {
		return model.FriendRequest{}, err
	} else if pending {
		return model.FriendRequest{}, ErrReverseRequestPending
	}

	r := model.NewFriendRequest(id.UserID, target.UID, normalizeEmail(id.Email), target.Email, e.clock.Now())
	r.FromName = id.Name()
	r.ToName = target.Name

	r.RemoteID, err = e.remote.Create(ctx, remote.FriendRequests, docs.EncodeRequest(r))
	if err != nil {
		return model.FriendRequest{}, fmt.Errorf("create friend request: %w", err)
	}
	if err := e.db.Update(ctx, func(q *db.Queries) error { return q.UpsertFriendRequest(ctx, r) }); err != nil {
		return model.FriendRequest{}, err
	}

	logger.Info("Friend request sent", logger.F("to", target.UID), logger.F("request", r.RemoteID))
	return r, nil
}

// pendingBetween reports whether an unresolved request from -> to exists
func (e *Engine) pendingBetween(ctx context.Context, from, to string) (bool, error) {
	found, err := e.remote.List(ctx, remote.FriendRequests,
		remote.Where(docs.RequestFromUID, from),
		remote.Where(docs.RequestToUID, to))
	if err != nil {
		return false, fmt.Errorf("check pending requests: %w", err)
	}
	for _, doc := range found {
		r, err := docs.DecodeRequest(doc)
		if err != nil {
			logger.Warn("Skipping malformed friend request", logger.F("request", doc.ID), logger.Err(err))
			continue
		}
		if !r.Resolved {
			return true, nil
		}
	}
	return false, nil
}

// FetchPendingFriendRequests downloads the unresolved requests addressed to
// the caller and makes them the local pending list. Requests the caller
// sent that the recipient has since answered are resolved locally too.
func (e *Engine) FetchPendingFriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return nil, err
	}

	found, err := e.remote.List(ctx, remote.FriendRequests, remote.Where(docs.RequestToUID, id.UserID))
	if err != nil {
		return nil, fmt.Errorf("fetch friend requests: %w", err)
	}

	var pending []model.FriendRequest
	for _, doc := range found {
		r, err := docs.DecodeRequest(doc)
		if err != nil {
			logger.Warn("Skipping malformed friend request", logger.F("request", doc.ID), logger.Err(err))
			continue
		}
		if r.Resolved {
			continue
		}
		pending = append(pending, r)
	}

	answered, err := e.answeredRequests(ctx, id.UserID)
	if err != nil {
		return nil, err
	}

	err = e.db.Update(ctx, func(q *db.Queries) error {
		for _, r := range answered {
			local, err := q.GetFriendRequest(ctx, r.RemoteID)
			if errors.Is(err, db.ErrNotFound) || (err == nil && local.Resolved) {
				continue
			}
			if err != nil {
				return err
			}
			at := e.clock.Now()
			if r.ResolvedAt != nil {
				at = *r.ResolvedAt
			}
			if err := q.ResolveFriendRequest(ctx, r.RemoteID, r.Accepted, at); err != nil {
				return err
			}
		}
		for i := range pending {
			if existing, err := q.GetFriendRequest(ctx, pending[i].RemoteID); err == nil {
				pending[i].ID = existing.ID
			} else if errors.Is(err, db.ErrNotFound) {
				pending[i].ID = uuid.NewString()
			} else {
				return err
			}
		}
		return q.ReplacePendingRequests(ctx, id.UserID, pending)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Fetched friend requests", logger.F("pending", len(pending)), logger.F("answered", len(answered)))
	return pending, nil
}

// answeredRequests lists the resolved requests sent by uid
func (e *Engine) answeredRequests(ctx context.Context, uid string) ([]model.FriendRequest, error) {
	found, err := e.remote.List(ctx, remote.FriendRequests,
		remote.Where(docs.RequestFromUID, uid),
		remote.Where(docs.RequestResolved, true))
	if err != nil {
		return nil, fmt.Errorf("fetch sent friend requests: %w", err)
	}
	var out []model.FriendRequest
	for _, doc := range found {
		r, err := docs.DecodeRequest(doc)
		if err != nil {
			logger.Warn("Skipping malformed friend request", logger.F("request", doc.ID), logger.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// AcceptFriendRequest resolves a request addressed to the caller and writes
// the friend entry of each party in the same batch
func (e *Engine) AcceptFriendRequest(ctx context.Context, req model.FriendRequest) (model.Friend, error) {
	id, now, err := e.checkResolvable(ctx, req)
	if err != nil {
		return model.Friend{}, err
	}

	batch := remote.NewBatch().
		Update(remote.Doc(remote.FriendRequests, req.RemoteID), docs.RequestResolution(true, now)).
		Set(friendDoc(id.UserID, req.FromUID), docs.EncodeFriend(docs.FriendEntry{
			UID: req.FromUID, Email: req.FromEmail, AddedAt: now, Status: docs.StatusActive,
		})).
		Set(friendDoc(req.FromUID, id.UserID), docs.EncodeFriend(docs.FriendEntry{
			UID: id.UserID, Email: req.ToEmail, AddedAt: now, Status: docs.StatusActive,
		}))
	if err := e.remote.Commit(ctx, batch); err != nil {
		return model.Friend{}, fmt.Errorf("accept friend request %s: %w", req.RemoteID, err)
	}

	name := req.FromName
	if strings.TrimSpace(name) == "" {
		name = session.DefaultDisplayName
	}
	friend := model.NewFriend(id.UserID, req.FromUID, name, req.FromEmail)

	err = e.db.Update(ctx, func(q *db.Queries) error {
		if err := q.UpsertFriend(ctx, friend); err != nil {
			return err
		}
		stored, err := q.GetFriend(ctx, id.UserID, req.FromUID)
		if err != nil {
			return err
		}
		friend = stored
		return e.saveResolved(ctx, q, req, true, now)
	})
	if err != nil {
		return model.Friend{}, err
	}

	logger.Info("Friend request accepted", logger.F("request", req.RemoteID), logger.F("friend", req.FromUID))
	return friend, nil
}

// DeclineFriendRequest resolves a request addressed to the caller without
// creating friend entries
func (e *Engine) DeclineFriendRequest(ctx context.Context, req model.FriendRequest) error {
	_, now, err := e.checkResolvable(ctx, req)
	if err != nil {
		return err
	}

	path := remote.Doc(remote.FriendRequests, req.RemoteID)
	if err := e.remote.Update(ctx, path, docs.RequestResolution(false, now)); err != nil {
		return fmt.Errorf("decline friend request %s: %w", req.RemoteID, err)
	}

	if err := e.db.Update(ctx, func(q *db.Queries) error {
		return e.saveResolved(ctx, q, req, false, now)
	}); err != nil {
		return err
	}

	logger.Info("Friend request declined", logger.F("request", req.RemoteID))
	return nil
}

func (e *Engine) checkResolvable(ctx context.Context, req model.FriendRequest) (session.Identity, time.Time, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return session.Identity{}, time.Time{}, err
	}
	if req.ToUID != id.UserID {
		return session.Identity{}, time.Time{}, ErrNotRecipient
	}
	if req.Resolved {
		return session.Identity{}, time.Time{}, model.ErrRequestResolved
	}

	// The local copy may be stale; the remote document decides.
	doc, err := e.remote.Get(ctx, remote.Doc(remote.FriendRequests, req.RemoteID))
	if err != nil {
		return session.Identity{}, time.Time{}, fmt.Errorf("load friend request %s: %w", req.RemoteID, err)
	}
	current, err := docs.DecodeRequest(doc)
	if err != nil {
		return session.Identity{}, time.Time{}, err
	}
	if current.Resolved {
		return session.Identity{}, time.Time{}, model.ErrRequestResolved
	}
	return id, e.clock.Now(), nil
}

func (e *Engine) saveResolved(ctx context.Context, q *db.Queries, req model.FriendRequest, accepted bool, now time.Time) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if existing, err := q.GetFriendRequest(ctx, req.RemoteID); err == nil {
		req.ID = existing.ID
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}
	if err := req.Resolve(accepted, now); err != nil {
		return err
	}
	return q.UpsertFriendRequest(ctx, req)
}

// DeleteFriend removes the friendship with remoteUID on both sides. The
// local record is only removed once the remote batch succeeded.
func (e *Engine) DeleteFriend(ctx context.Context, remoteUID string) error {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return err
	}

	batch := remote.NewBatch().
		Delete(friendDoc(id.UserID, remoteUID)).
		Delete(friendDoc(remoteUID, id.UserID))
	if err := e.remote.Commit(ctx, batch); err != nil {
		return fmt.Errorf("delete friend %s: %w", remoteUID, err)
	}

	if err := e.db.Update(ctx, func(q *db.Queries) error {
		return q.DeleteFriend(ctx, id.UserID, remoteUID)
	}); err != nil {
		return err
	}
	logger.Info("Friend removed", logger.F("friend", remoteUID))
	return nil
}

// FetchFriends downloads the caller's active friend entries, resolves their
// display names and rebuilds the local list keyed by remote UID
func (e *Engine) FetchFriends(ctx context.Context) ([]model.Friend, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return nil, err
	}

	found, err := e.remote.List(ctx, remote.UserCollection(id.UserID, remote.Friends))
	if err != nil {
		return nil, fmt.Errorf("fetch friends: %w", err)
	}

	seen := make(map[string]bool, len(found))
	var list []model.Friend
	for _, doc := range found {
		entry, err := docs.DecodeFriend(doc)
		if err != nil {
			logger.Warn("Skipping malformed friend entry", logger.F("entry", doc.ID), logger.Err(err))
			continue
		}
		if entry.Status != docs.StatusActive || seen[entry.UID] {
			continue
		}
		seen[entry.UID] = true
		list = append(list, model.NewFriend(id.UserID, entry.UID, e.displayName(ctx, entry.UID), entry.Email))
	}

	var friends []model.Friend
	err = e.db.Update(ctx, func(q *db.Queries) error {
		if err := q.ReplaceFriends(ctx, id.UserID, list); err != nil {
			return err
		}
		friends, err = q.ListFriends(ctx, id.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Fetched friends", logger.F("count", len(friends)))
	return friends, nil
}

func (e *Engine) displayName(ctx context.Context, uid string) string {
	doc, err := e.remote.Get(ctx, remote.UserDoc(uid))
	if err != nil {
		logger.Debug("Friend profile unavailable", logger.F("uid", uid), logger.Err(err))
		return session.DefaultDisplayName
	}
	p, err := docs.DecodeProfile(doc)
	if err != nil {
		return session.DefaultDisplayName
	}
	return p.Name
}

// Friends returns the local friend list
func (e *Engine) Friends(ctx context.Context) ([]model.Friend, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return nil, err
	}
	var friends []model.Friend
	err = e.db.View(ctx, func(q *db.Queries) error {
		friends, err = q.ListFriends(ctx, id.UserID)
		return err
	})
	return friends, err
}

// PendingRequests returns the local list of unresolved requests addressed
// to the caller
func (e *Engine) PendingRequests(ctx context.Context) ([]model.FriendRequest, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return nil, err
	}
	var reqs []model.FriendRequest
	err = e.db.View(ctx, func(q *db.Queries) error {
		reqs, err = q.ListPendingRequests(ctx, id.UserID)
		return err
	})
	return reqs, err
}

// SentRequests returns the caller's unresolved outgoing requests
func (e *Engine) SentRequests(ctx context.Context) ([]model.FriendRequest, error) {
	id, err := session.Require(ctx, e.auth)
	if err != nil {
		return nil, err
	}
	var reqs []model.FriendRequest
	err = e.db.View(ctx, func(q *db.Queries) error {
		reqs, err = q.ListSentRequests(ctx, id.UserID)
		return err
	})
	return reqs, err
}

// FindRequest resolves a pending request by remote id or unambiguous prefix
func (e *Engine) FindRequest(ctx context.Context, idOrPrefix string) (model.FriendRequest, error) {
	reqs, err := e.PendingRequests(ctx)
	if err != nil {
		return model.FriendRequest{}, err
	}
	var match []model.FriendRequest
	for _, r := range reqs {
		if r.RemoteID == idOrPrefix {
			return r, nil
		}
		if strings.HasPrefix(r.RemoteID, idOrPrefix) {
			match = append(match, r)
		}
	}
	switch len(match) {
	case 0:
		return model.FriendRequest{}, db.ErrNotFound
	case 1:
		return match[0], nil
	default:
		return model.FriendRequest{}, fmt.Errorf("request prefix %q is ambiguous", idOrPrefix)
	}
}
