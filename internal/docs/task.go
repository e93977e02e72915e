package docs

import (
	"strings"
	"time"

	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/remote"
)

// Task document fields
const (
	TaskTitle          = "title"
	TaskDate           = "date"
	TaskDesc           = "desc"
	TaskAutoReminder   = "AutoReminder"
	TaskUrgent         = "IsUrgent"
	TaskImportant      = "IsImportant"
	TaskAutoComplete   = "IsAutoComplete"
	TaskAutoFail       = "IsAutoFail"
	TaskDone           = "IsDone"
	TaskShared         = "IsShared"
	TaskOwner          = "owner_fID"
	TaskTag            = "tagID"
	TaskFromUser       = "from_user_fID"
	TaskToUser         = "to_user_fID"
	TaskFromUserName   = "FromUserName"
	TaskToUserName     = "ToUserName"
	TaskCompletedAt    = "DateOfCompletion"
	TaskLastReminderAt = "DateOfLastReminder"
	TaskReceivedAt     = "ReceivedDate"
)

// EncodeTask returns the document form of t. The tag is referenced by its
// remote id; local ids never leave the device.
func EncodeTask(t model.Task) remote.Data {
	d := remote.Data{
		FieldVersion:     Version,
		TaskTitle:        t.Title,
		TaskDate:         formatTime(t.Due),
		TaskAutoReminder: t.AutoReminder,
		TaskUrgent:       t.Urgent,
		TaskImportant:    t.Important,
		TaskAutoComplete: t.AutoComplete,
		TaskAutoFail:     t.AutoFail,
		TaskDone:         t.Done,
		TaskShared:       t.Shared,
	}
	putString(d, TaskDesc, t.Description)
	putString(d, TaskOwner, t.OwnerID)
	putString(d, TaskTag, t.TagRemoteID)
	putString(d, TaskFromUser, t.FromUserID)
	putString(d, TaskToUser, t.ToUserID)
	putString(d, TaskFromUserName, t.FromUserName)
	putString(d, TaskToUserName, t.ToUserName)
	putTime(d, TaskCompletedAt, t.CompletedAt)
	putTime(d, TaskLastReminderAt, t.LastReminderAt)
	putTime(d, TaskReceivedAt, t.ReceivedAt)
	return d
}

// DecodeTask builds a synced task from a document. Local-only fields (ID,
// TagID, Revision) are left for the caller to fill in.
func DecodeTask(doc remote.Document) (model.Task, error) {
	d := doc.Data

	title, ok := getString(d, TaskTitle)
	if !ok || strings.TrimSpace(title) == "" {
		return model.Task{}, missing(TaskTitle)
	}
	due, ok, err := getTime(d, TaskDate)
	if err != nil || !ok {
		return model.Task{}, missing(TaskDate)
	}

	t := model.Task{
		RemoteID:     doc.ID,
		Title:        title,
		Due:          due,
		AutoReminder: getBool(d, TaskAutoReminder, false),
		Urgent:       getBool(d, TaskUrgent, false),
		Important:    getBool(d, TaskImportant, false),
		AutoComplete: getBool(d, TaskAutoComplete, true),
		AutoFail:     getBool(d, TaskAutoFail, false),
		Done:         getBool(d, TaskDone, false),
		Shared:       getBool(d, TaskShared, false),
		Synced:       true,
		RemoteDigest: Digest(d),
	}
	if t.AutoFail {
		t.AutoComplete = false
	}

	t.Description, _ = getString(d, TaskDesc)
	t.OwnerID, _ = getString(d, TaskOwner)
	t.TagRemoteID, _ = getString(d, TaskTag)
	t.FromUserID, _ = getString(d, TaskFromUser)
	t.ToUserID, _ = getString(d, TaskToUser)
	t.FromUserName, _ = getString(d, TaskFromUserName)
	t.ToUserName, _ = getString(d, TaskToUserName)

	if t.CompletedAt, err = getOptionalTime(d, TaskCompletedAt); err != nil {
		return model.Task{}, err
	}
	if t.LastReminderAt, err = getOptionalTime(d, TaskLastReminderAt); err != nil {
		return model.Task{}, err
	}
	if t.ReceivedAt, err = getOptionalTime(d, TaskReceivedAt); err != nil {
		return model.Task{}, err
	}
	if modified, ok, _ := getTime(d, FieldLastModified); ok {
		t.UpdatedAt = modified
	}
	return t, nil
}

// TaskStatusFields is the patch a receiver writes to report a status
func TaskStatusFields(s model.Status, now time.Time) remote.Data {
	return remote.Data{
		TaskDone:          s == model.StatusCompleted,
		TaskCompletedAt:   formatTime(now),
		FieldLastModified: remote.ServerTimestamp,
	}
}

// TaskContentFields is the patch a sender writes to edit a shared task
func TaskContentFields(title, desc string, due time.Time) remote.Data {
	return remote.Data{
		TaskTitle:         title,
		TaskDesc:          desc,
		TaskDate:          formatTime(due),
		FieldLastModified: remote.ServerTimestamp,
	}
}
