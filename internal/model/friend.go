package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRequestResolved = errors.New("friend request already resolved")

// Friend is the local materialization of an accepted relationship.
// RemoteUID is the natural key; ID is only the row identity.
type Friend struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	FriendID  string `json:"friend_id"`
	Name      string `json:"name"`
	RemoteUID string `json:"remote_uid"`
	Email     string `json:"email"`
}

// NewFriend creates a friend record for a remote user
func NewFriend(userID, remoteUID, name, email string) Friend {
	return Friend{
		ID:        uuid.NewString(),
		UserID:    userID,
		FriendID:  uuid.NewString(),
		Name:      name,
		RemoteUID: remoteUID,
		Email:     email,
	}
}

// FriendRequest is one side of the request handshake
type FriendRequest struct {
	ID         string     `json:"id"`
	RemoteID   string     `json:"remote_id,omitempty"`
	FromUID    string     `json:"from_uid"`
	ToUID      string     `json:"to_uid"`
	FromEmail  string     `json:"from_email"`
	ToEmail    string     `json:"to_email"`
	FromName   string     `json:"from_name,omitempty"`
	ToName     string     `json:"to_name,omitempty"`
	SentAt     time.Time  `json:"sent_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Accepted   bool       `json:"accepted"`
	Resolved   bool       `json:"resolved"`
}

// NewFriendRequest creates an unresolved request
func NewFriendRequest(fromUID, toUID, fromEmail, toEmail string, now time.Time) FriendRequest {
	return FriendRequest{
		ID:        uuid.NewString(),
		FromUID:   fromUID,
		ToUID:     toUID,
		FromEmail: fromEmail,
		ToEmail:   toEmail,
		SentAt:    now,
	}
}

// Resolve moves the request out of the pending state. It can happen once.
func (r *FriendRequest) Resolve(accepted bool, now time.Time) error {
	if r.Resolved {
		return ErrRequestResolved
	}
	r.Resolved = true
	r.Accepted = accepted
	r.ResolvedAt = &now
	return nil
}
