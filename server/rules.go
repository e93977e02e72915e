package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/existflow/duetask/internal/docs"
	"github.com/existflow/duetask/internal/remote"
)

// crossUserWritable are the per-user collections other users may write to:
// the sharing and friend handshakes touch both parties' copies.
var crossUserWritable = map[string]bool{
	remote.IncomingTasks: true,
	remote.OutgoingTasks: true,
	remote.Friends:       true,
}

// authorize decides from the path alone whether uid may read or write a
// document or a collection. Writes that pass are narrowed further by
// authorizeWrite.
//
//	friend_requests/...              the two parties (see authorizeWrite)
//	users                            list only (search by email)
//	users/{uid}                      read by anyone, written by its owner
//	users/{uid}/...                  the owner
//	users/{uid}/{incoming,outgoing,friends}/...  written by the other party
func authorize(uid, path string, write bool) error {
	parts := strings.Split(path, "/")
	deny := denied(path)

	switch parts[0] {
	case remote.FriendRequests:
		return nil
	case remote.Users:
	default:
		return deny
	}

	switch {
	case len(parts) == 1:
		if write {
			return deny
		}
		return nil
	case len(parts) == 2:
		if write && parts[1] != uid {
			return deny
		}
		return nil
	case parts[1] == uid:
		return nil
	case write && crossUserWritable[parts[2]]:
		return nil
	}
	return deny
}

func denied(path string) error {
	return fmt.Errorf("%w: %s", remote.ErrPermissionDenied, path)
}

// authorizeQuery allows listing friend requests only when the query is
// pinned to one of the caller's sides.
func authorizeQuery(uid, collection string, filters []remote.Filter) error {
	if err := authorize(uid, collection, false); err != nil {
		return err
	}
	if collection != remote.FriendRequests {
		return nil
	}
	for _, f := range filters {
		if f.Field != docs.RequestFromUID && f.Field != docs.RequestToUID {
			continue
		}
		if v, _ := f.Value.(string); v == uid {
			return nil
		}
	}
	return denied(collection)
}

// authorizeRead checks a fetched document: friend requests are visible to
// their two parties only.
func authorizeRead(uid, path string, d remote.Data) error {
	if !strings.HasPrefix(path, remote.FriendRequests+"/") {
		return nil
	}
	if !isParty(uid, d, docs.RequestFromUID, docs.RequestToUID) {
		return denied(path)
	}
	return nil
}

// authorizeWrite applies authorize and then checks cross-user writes
// against the stored document and the written data. A path of odd length
// is a collection, as used by create.
func (s *Server) authorizeWrite(ctx context.Context, uid string, op remote.Op) error {
	if err := authorize(uid, op.Path, true); err != nil {
		return err
	}

	parts := strings.Split(op.Path, "/")
	switch {
	case parts[0] == remote.FriendRequests:
		return s.authorizeRequestWrite(ctx, uid, op)
	case parts[1] == uid:
		return nil
	case parts[2] == remote.Friends:
		// users/{other}/friends/{uid}: only the entry naming the caller
		if len(parts) != 4 || parts[3] != uid {
			return denied(op.Path)
		}
		if op.Kind == remote.OpDelete {
			return nil
		}
		return s.requireRequest(ctx, parts[1], uid, op.Path)
	}

	// incoming or outgoing copy of a shared task
	if len(parts) == 3 {
		if isParty(uid, op.Data, docs.TaskFromUser, docs.TaskToUser) {
			return nil
		}
		return denied(op.Path)
	}
	stored, err := s.load(ctx, op.Path)
	if err != nil {
		return err
	}
	if stored != nil && !isParty(uid, stored, docs.TaskFromUser, docs.TaskToUser) {
		return denied(op.Path)
	}
	if op.Kind == remote.OpSet && !isParty(uid, op.Data, docs.TaskFromUser, docs.TaskToUser) {
		return denied(op.Path)
	}
	return nil
}

// authorizeRequestWrite lets the sender create and withdraw a request and
// only the recipient resolve it.
func (s *Server) authorizeRequestWrite(ctx context.Context, uid string, op remote.Op) error {
	if !strings.Contains(op.Path, "/") {
		if field(op.Data, docs.RequestFromUID) != uid {
			return denied(op.Path)
		}
		return nil
	}

	stored, err := s.load(ctx, op.Path)
	if err != nil {
		return err
	}
	if stored == nil {
		if op.Kind == remote.OpSet && field(op.Data, docs.RequestFromUID) != uid {
			return denied(op.Path)
		}
		return nil
	}

	from, to := field(stored, docs.RequestFromUID), field(stored, docs.RequestToUID)
	var ok bool
	switch op.Kind {
	case remote.OpUpdate:
		ok = to == uid
	case remote.OpSet:
		ok = from == uid && field(op.Data, docs.RequestFromUID) == uid
	case remote.OpDelete:
		ok = from == uid || to == uid
	}
	if !ok {
		return denied(op.Path)
	}
	return nil
}

// requireRequest allows uid to add itself to from's friends only while a
// request from -> uid is open or was accepted.
func (s *Server) requireRequest(ctx context.Context, from, uid, path string) error {
	found, err := s.store.List(ctx, remote.FriendRequests,
		remote.Where(docs.RequestFromUID, from),
		remote.Where(docs.RequestToUID, uid))
	if err != nil {
		return err
	}
	for _, doc := range found {
		resolved, _ := doc.Data[docs.RequestResolved].(bool)
		accepted, _ := doc.Data[docs.RequestAccepted].(bool)
		if !resolved || accepted {
			return nil
		}
	}
	return denied(path)
}

// load returns the stored data at path, or nil when there is none
func (s *Server) load(ctx context.Context, path string) (remote.Data, error) {
	doc, err := s.store.Get(ctx, path)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func isParty(uid string, d remote.Data, fromField, toField string) bool {
	return field(d, fromField) == uid || field(d, toField) == uid
}

func field(d remote.Data, key string) string {
	s, _ := d[key].(string)
	return s
}
