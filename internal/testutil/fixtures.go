// Package testutil provides shared fixtures for engine tests: in-memory
// local stores, an in-memory remote and a fake clock.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/existflow/duetask/internal/clock"
	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/docs"
	"github.com/existflow/duetask/internal/remote"
	"github.com/existflow/duetask/internal/session"
)

// Start is the fake clock's initial time in every Env
var Start = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

// Users known to every Env
var (
	Alice = session.Identity{UserID: "alice-uid", Email: "alice@example.com", DisplayName: "Alice"}
	Bob   = session.Identity{UserID: "bob-uid", Email: "bob@example.com", DisplayName: "Bob"}
	Carol = session.Identity{UserID: "carol-uid", Email: "carol@example.com", DisplayName: "Carol"}
)

// Env is one shared remote plus a fake clock. Devices get their own local
// store through OpenDB.
type Env struct {
	Remote *remote.Memory
	Clock  *clock.Fake
	t      *testing.T
}

// NewEnv creates an Env whose remote already holds the profiles of Alice,
// Bob and Carol
func NewEnv(t *testing.T) *Env {
	t.Helper()

	fake := clock.NewFake(Start)
	env := &Env{
		Remote: remote.NewMemory(fake.Now),
		Clock:  fake,
		t:      t,
	}
	for _, id := range []session.Identity{Alice, Bob, Carol} {
		env.SeedProfile(id)
	}
	return env
}

// OpenDB returns a fresh in-memory local store closed at test cleanup
func (e *Env) OpenDB() *db.DB {
	e.t.Helper()

	d, err := db.Open(":memory:")
	if err != nil {
		e.t.Fatalf("Failed to open database: %v", err)
	}
	e.t.Cleanup(func() { _ = d.Close() })
	return d
}

// SeedProfile writes the users/{uid} profile document of id
func (e *Env) SeedProfile(id session.Identity) {
	e.t.Helper()

	data := docs.EncodeProfile(docs.Profile{UID: id.UserID, Name: id.DisplayName, Email: id.Email})
	if err := e.Remote.Set(context.Background(), remote.UserDoc(id.UserID), data); err != nil {
		e.t.Fatalf("Failed to seed profile %s: %v", id.UserID, err)
	}
}

// As returns a session provider signed in as id
func As(id session.Identity) session.Provider {
	return session.Static{Identity: id}
}

// SignedOut is a provider with nobody signed in
var SignedOut session.Provider = session.Static{}
