package model

import (
	"time"

	"github.com/google/uuid"
)

// Option is a user-chosen creation flag for a task
type Option int

const (
	Usual Option = iota
	Important
	Urgent
	AutoComplete
	Reminder
	AutoFail
)

// Flags is the initial flag state derived from a set of options
type Flags struct {
	Important    bool
	Urgent       bool
	AutoReminder bool
	AutoComplete bool
	AutoFail     bool
}

// ApplyOptions maps options to initial flags. AutoFail wins over
// AutoComplete; without AutoFail a task auto-completes.
func ApplyOptions(opts ...Option) Flags {
	f := Flags{AutoComplete: true}
	for _, o := range opts {
		switch o {
		case Important:
			f.Important = true
		case Urgent:
			f.Urgent = true
		case Reminder:
			f.AutoReminder = true
		case AutoFail:
			f.AutoFail = true
		}
	}
	if f.AutoFail {
		f.AutoComplete = false
	}
	return f
}

// NewTask creates a new private, unsynced task with a fresh local id
func NewTask(title string, due time.Time, desc string, opts ...Option) (Task, error) {
	now := time.Now()
	f := ApplyOptions(opts...)
	t := Task{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  desc,
		Due:          due,
		Important:    f.Important,
		Urgent:       f.Urgent,
		AutoReminder: f.AutoReminder,
		AutoComplete: f.AutoComplete,
		AutoFail:     f.AutoFail,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	return t, nil
}
