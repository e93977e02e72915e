package model

import (
	"time"

	"github.com/google/uuid"
)

// User is the local cache of the signed-in identity
type User struct {
	ID         string     `json:"id"`
	RemoteID   string     `json:"remote_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	AutoSync   bool       `json:"auto_sync"`
}

// NewUser creates a local user record for a remote identity
func NewUser(remoteID, name, email string) User {
	return User{
		ID:       uuid.NewString(),
		RemoteID: remoteID,
		Name:     name,
		Email:    email,
		AutoSync: true,
	}
}

// NeverSynced returns true if a full sync has not completed yet
func (u *User) NeverSynced() bool {
	return u.LastSyncAt == nil
}
