package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/model"
)

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a new task",
	Long: `Add a new private task.

Overdue tasks complete on their own unless --auto-fail is given, in which
case they are marked failed.

Examples:
  duetask add "Buy groceries"
  duetask add "Submit report" --due "2026-01-15 17:00" --important --auto-fail
  duetask add "Call the bank" -d +2h -t errands`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var (
	addDue       string
	addDesc      string
	addTag       string
	addImportant bool
	addUrgent    bool
	addReminder  bool
	addAutoFail  bool
	addSync      bool
)

func init() {
	addCmd.Flags().StringVarP(&addDue, "due", "d", "today", "Due date (e.g., 'tomorrow', '+2h', '2026-01-15 14:30')")
	addCmd.Flags().StringVar(&addDesc, "desc", "", "Description")
	addCmd.Flags().StringVarP(&addTag, "tag", "t", "", "Tag name or ID")
	addCmd.Flags().BoolVarP(&addImportant, "important", "i", false, "Mark as important")
	addCmd.Flags().BoolVarP(&addUrgent, "urgent", "u", false, "Mark as urgent")
	addCmd.Flags().BoolVar(&addReminder, "reminder", false, "Enable reminders")
	addCmd.Flags().BoolVar(&addAutoFail, "auto-fail", false, "Fail the task instead of completing it when overdue")
	addCmd.Flags().BoolVarP(&addSync, "sync", "s", false, "Upload right away")
}

// taskOptions maps creation flags to task options
func taskOptions(important, urgent, reminder, autoFail bool) []model.Option {
	var opts []model.Option
	if important {
		opts = append(opts, model.Important)
	}
	if urgent {
		opts = append(opts, model.Urgent)
	}
	if reminder {
		opts = append(opts, model.Reminder)
	}
	if autoFail {
		opts = append(opts, model.AutoFail)
	}
	return opts
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	title := strings.Join(args, " ")
	due, err := parseDue(addDue, time.Now())
	if err != nil {
		return err
	}

	task, err := model.NewTask(title, due, addDesc, taskOptions(addImportant, addUrgent, addReminder, addAutoFail)...)
	if err != nil {
		return err
	}

	tagName := ""
	if addTag != "" {
		tag, err := a.Sync.FindTag(ctx, addTag)
		if err != nil {
			return fmt.Errorf("tag not found: %s", addTag)
		}
		task.TagID = tag.ID
		tagName = tag.Name
	}

	task, err = a.Sync.CreateTask(ctx, task)
	if err != nil {
		return notSignedIn(err)
	}

	if tagName != "" {
		fmt.Printf("✓ Added to [%s]: \"%s\" (due %s)\n", tagName, task.Title, task.Due.Format("Jan 2 15:04"))
	} else {
		fmt.Printf("✓ Added: \"%s\" (due %s)\n", task.Title, task.Due.Format("Jan 2 15:04"))
	}

	syncAfterChange(ctx, a, addSync)
	return nil
}
