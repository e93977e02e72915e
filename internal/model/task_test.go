package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want Flags
	}{
		{"default", nil, Flags{AutoComplete: true}},
		{"usual", []Option{Usual}, Flags{AutoComplete: true}},
		{"important urgent", []Option{Important, Urgent}, Flags{Important: true, Urgent: true, AutoComplete: true}},
		{"auto fail", []Option{AutoFail}, Flags{AutoFail: true}},
		{"auto fail wins", []Option{AutoComplete, AutoFail}, Flags{AutoFail: true}},
		{"reminder", []Option{Reminder}, Flags{AutoReminder: true, AutoComplete: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyOptions(tc.opts...)
			assert.Equal(t, tc.want, got)
			assert.False(t, got.AutoComplete && got.AutoFail)
		})
	}
}

func TestNewTask(t *testing.T) {
	due := time.Now().Add(time.Hour)

	task, err := NewTask("Buy milk", due, "", Important, AutoFail)
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.True(t, task.Important)
	assert.True(t, task.AutoFail)
	assert.False(t, task.AutoComplete)
	assert.False(t, task.Synced)
	assert.True(t, task.IsPrivate())

	_, err = NewTask("   ", due, "")
	assert.ErrorIs(t, err, ErrEmptyTitle)
}

func TestFlagSettersKeepPoliciesExclusive(t *testing.T) {
	task, err := NewTask("t", time.Now(), "")
	require.NoError(t, err)

	task.SetAutoFail(true)
	assert.True(t, task.AutoFail)
	assert.False(t, task.AutoComplete)

	task.SetAutoComplete(true)
	assert.True(t, task.AutoComplete)
	assert.False(t, task.AutoFail)

	task.SetAutoComplete(false)
	assert.False(t, task.AutoComplete)
	assert.False(t, task.AutoFail)
	require.NoError(t, task.Validate())
}

func TestValidateOwnership(t *testing.T) {
	task, err := NewTask("t", time.Now(), "")
	require.NoError(t, err)

	task.Shared = true
	assert.ErrorIs(t, task.Validate(), ErrOwnership)

	task.FromUserID = "a"
	task.ToUserID = "b"
	require.NoError(t, task.Validate())

	task.OwnerID = "a"
	assert.ErrorIs(t, task.Validate(), ErrOwnership)
}

func TestStatusTransitions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task, err := NewTask("t", now.Add(-time.Hour), "")
	require.NoError(t, err)

	assert.True(t, task.IsOverdue(now))

	task.ApplyStatus(StatusFailed, now)
	assert.True(t, task.IsFailed())
	assert.False(t, task.IsOverdue(now))

	task.ApplyStatus(StatusCompleted, now)
	assert.True(t, task.Done)
	assert.False(t, task.IsFailed())
	assert.Equal(t, now, *task.CompletedAt)
}

func TestMarkDirtyBumpsRevision(t *testing.T) {
	task, err := NewTask("t", time.Now(), "")
	require.NoError(t, err)
	task.Synced = true

	task.MarkDirty(time.Now())
	assert.False(t, task.Synced)
	assert.Equal(t, int64(2), task.Revision)
}

func TestFriendRequestResolvesOnce(t *testing.T) {
	now := time.Now()
	r := NewFriendRequest("a", "b", "a@x.io", "b@x.io", now)

	require.NoError(t, r.Resolve(true, now))
	assert.True(t, r.Accepted)
	assert.ErrorIs(t, r.Resolve(false, now), ErrRequestResolved)
	assert.True(t, r.Accepted)
}

func TestRGBAClamp(t *testing.T) {
	c := RGBA{R: -1, G: 0.5, B: 2, A: 1}.Clamp()
	assert.Equal(t, RGBA{R: 0, G: 0.5, B: 1, A: 1}, c)
}
