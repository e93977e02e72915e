package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/session"
	"github.com/existflow/duetask/internal/sharing"
)

var editCmd = &cobra.Command{
	Use:   "edit [task-id]",
	Short: "Edit a task",
	Long: `Change the fields of a task. Only the flags you pass are changed.

For a task you sent to a friend, the title, description and due date can
be edited and the friend sees the change.

Examples:
  duetask edit abc123 --title "Buy milk" --due tomorrow
  duetask edit abc123 --tag home --important=false`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

var (
	editTitle     string
	editDesc      string
	editDue       string
	editTag       string
	editImportant bool
	editUrgent    bool
	editReminder  bool
	editAutoFail  bool
)

func init() {
	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editDesc, "desc", "", "New description")
	editCmd.Flags().StringVarP(&editDue, "due", "d", "", "New due date")
	editCmd.Flags().StringVarP(&editTag, "tag", "t", "", "Tag name or ID (empty string removes the tag)")
	editCmd.Flags().BoolVarP(&editImportant, "important", "i", false, "Important")
	editCmd.Flags().BoolVarP(&editUrgent, "urgent", "u", false, "Urgent")
	editCmd.Flags().BoolVar(&editReminder, "reminder", false, "Reminders")
	editCmd.Flags().BoolVar(&editAutoFail, "auto-fail", false, "Fail instead of complete when overdue")
}

func runEdit(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	flags := cmd.Flags()

	task, err := a.Sync.FindTask(ctx, args[0])
	if err != nil {
		return fmt.Errorf("task not found: %s", args[0])
	}

	var due *time.Time
	if flags.Changed("due") {
		d, err := parseDue(editDue, time.Now())
		if err != nil {
			return err
		}
		due = &d
	}

	if task.Shared {
		id, err := session.Require(ctx, a.Auth)
		if err != nil {
			return notSignedIn(err)
		}
		if !task.IsSender(id.UserID) {
			return fmt.Errorf("only %s can edit this task", task.FromUserName)
		}

		u := sharing.Update{Due: due}
		if flags.Changed("title") {
			u.Title = &editTitle
		}
		if flags.Changed("desc") {
			u.Description = &editDesc
		}
		updated, err := a.Sharing.UpdateSharedTask(ctx, task.ID, u)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Updated: \"%s\"\n", updated.Title)
		return nil
	}

	tagID := task.TagID
	if flags.Changed("tag") {
		tagID = ""
		if editTag != "" {
			tag, err := a.Sync.FindTag(ctx, editTag)
			if err != nil {
				return fmt.Errorf("tag not found: %s", editTag)
			}
			tagID = tag.ID
		}
	}

	updated, err := a.Sync.UpdateTask(ctx, task.ID, func(t *model.Task) error {
		if flags.Changed("title") {
			t.Title = editTitle
		}
		if flags.Changed("desc") {
			t.Description = editDesc
		}
		if due != nil {
			t.Due = *due
		}
		if flags.Changed("important") {
			t.Important = editImportant
		}
		if flags.Changed("urgent") {
			t.Urgent = editUrgent
		}
		if flags.Changed("reminder") {
			t.AutoReminder = editReminder
		}
		if flags.Changed("auto-fail") {
			applyAutoFail(t, editAutoFail)
		}
		t.TagID = tagID
		return nil
	})
	if err != nil {
		return notSignedIn(err)
	}

	fmt.Printf("✓ Updated: \"%s\"\n", updated.Title)
	syncAfterChange(ctx, a, false)
	return nil
}

// applyAutoFail switches between the two overdue policies. Turning
// auto-fail off goes back to auto-complete.
func applyAutoFail(t *model.Task, on bool) {
	if on {
		t.SetAutoFail(true)
		return
	}
	t.SetAutoComplete(true)
}
