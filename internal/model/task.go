package model

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyTitle        = errors.New("task title is empty")
	ErrConflictingPolicy = errors.New("task cannot be both auto-complete and auto-fail")
	ErrOwnership         = errors.New("task ownership does not match its kind")
)

// Status is the outcome a receiver can report for a shared task
type Status int

const (
	StatusCompleted Status = iota + 1
	StatusFailed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task represents a single planned item, either private or shared
type Task struct {
	ID          string    `json:"id"`
	RemoteID    string    `json:"remote_id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Due         time.Time `json:"due"`

	// TagID is the local tag reference; TagRemoteID survives tag and task
	// syncing independently and is used to re-link after a pull.
	TagID       string `json:"tag_id,omitempty"`
	TagRemoteID string `json:"tag_remote_id,omitempty"`

	AutoReminder bool `json:"auto_reminder"`
	Important    bool `json:"important"`
	Urgent       bool `json:"urgent"`
	AutoComplete bool `json:"auto_complete"`
	AutoFail     bool `json:"auto_fail"`
	Done         bool `json:"done"`
	Shared       bool `json:"shared"`

	OwnerID      string `json:"owner_id,omitempty"`
	FromUserID   string `json:"from_user_id,omitempty"`
	ToUserID     string `json:"to_user_id,omitempty"`
	FromUserName string `json:"from_user_name,omitempty"`
	ToUserName   string `json:"to_user_name,omitempty"`

	Synced         bool       `json:"synced"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`

	// Revision increases on every local edit. An upload only clears the
	// dirty flag when the revision it sent is still current.
	Revision     int64  `json:"revision"`
	RemoteDigest string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the construction invariants of a task
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if t.AutoComplete && t.AutoFail {
		return ErrConflictingPolicy
	}
	if t.Shared {
		if t.OwnerID != "" || t.FromUserID == "" || t.ToUserID == "" {
			return ErrOwnership
		}
	} else if t.FromUserID != "" || t.ToUserID != "" {
		return ErrOwnership
	}
	return nil
}

// SetAutoComplete toggles the auto-complete policy, clearing auto-fail
func (t *Task) SetAutoComplete(on bool) {
	t.AutoComplete = on
	if on {
		t.AutoFail = false
	}
}

// SetAutoFail toggles the auto-fail policy, clearing auto-complete
func (t *Task) SetAutoFail(on bool) {
	t.AutoFail = on
	if on {
		t.AutoComplete = false
	}
}

// MarkDirty records a local edit that still has to be uploaded
func (t *Task) MarkDirty(now time.Time) {
	t.Synced = false
	t.Revision++
	t.UpdatedAt = now
}

// Complete marks the task done at the given time
func (t *Task) Complete(now time.Time) {
	t.Done = true
	t.CompletedAt = &now
}

// Fail marks the task failed at the given time. A failed task is not done
// but carries a completion date.
func (t *Task) Fail(now time.Time) {
	t.Done = false
	t.CompletedAt = &now
}

// ApplyStatus applies a receiver-reported status
func (t *Task) ApplyStatus(s Status, now time.Time) {
	switch s {
	case StatusCompleted:
		t.Complete(now)
	case StatusFailed:
		t.Fail(now)
	}
}

// IsFailed returns true if the task was resolved without being done
func (t *Task) IsFailed() bool {
	return !t.Done && t.CompletedAt != nil
}

// IsResolved returns true once the task is done or failed
func (t *Task) IsResolved() bool {
	return t.Done || t.CompletedAt != nil
}

// IsOverdue returns true if the task is unresolved and its due time has passed
func (t *Task) IsOverdue(now time.Time) bool {
	return !t.IsResolved() && t.Due.Before(now)
}

// IsPrivate returns true for tasks owned by a single user
func (t *Task) IsPrivate() bool {
	return !t.Shared
}

// IsSender returns true if uid sent this shared task
func (t *Task) IsSender(uid string) bool {
	return t.Shared && uid != "" && t.FromUserID == uid
}

// IsReceiver returns true if uid received this shared task
func (t *Task) IsReceiver(uid string) bool {
	return t.Shared && uid != "" && t.ToUserID == uid
}
