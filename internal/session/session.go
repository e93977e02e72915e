// Package session exposes the signed-in user to the engines. Every sync,
// sharing and friend operation asks the Provider first and aborts before
// any write when nobody is signed in.
package session

import (
	"context"
	"errors"
	"strings"
)

// ErrNotAuthenticated is returned when no user is signed in
var ErrNotAuthenticated = errors.New("not authenticated")

// DefaultDisplayName is used when a profile carries no name
const DefaultDisplayName = "Unknown User"

// Identity is the authenticated user as seen by the core
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Name returns the display name, falling back to DefaultDisplayName
func (i Identity) Name() string {
	if strings.TrimSpace(i.DisplayName) == "" {
		return DefaultDisplayName
	}
	return i.DisplayName
}

// Provider returns the current identity or ErrNotAuthenticated
type Provider interface {
	Current(ctx context.Context) (Identity, error)
}

// Static is a Provider with a fixed identity. The zero value is signed out.
type Static struct {
	Identity Identity
}

// Current implements Provider
func (s Static) Current(ctx context.Context) (Identity, error) {
	if s.Identity.UserID == "" {
		return Identity{}, ErrNotAuthenticated
	}
	return s.Identity, nil
}

// Require resolves the current identity and rejects empty user ids
func Require(ctx context.Context, p Provider) (Identity, error) {
	if p == nil {
		return Identity{}, ErrNotAuthenticated
	}
	id, err := p.Current(ctx)
	if err != nil {
		return Identity{}, err
	}
	if id.UserID == "" {
		return Identity{}, ErrNotAuthenticated
	}
	return id, nil
}
