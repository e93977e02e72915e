package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/app"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/session"
)

var doneCmd = &cobra.Command{
	Use:   "done [task-id]",
	Short: "Mark a task as done",
	Long: `Mark a task as completed. For a task a friend sent you, the sender
sees the new status too.

Examples:
  duetask done abc123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(args[0], model.StatusCompleted)
	},
}

var failCmd = &cobra.Command{
	Use:   "fail [task-id]",
	Short: "Mark a task as failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(args[0], model.StatusFailed)
	},
}

func runStatus(taskID string, status model.Status) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	task, err := setStatus(ctx, a, taskID, status)
	if err != nil {
		return notSignedIn(err)
	}

	if status == model.StatusCompleted {
		fmt.Printf("✓ Completed: \"%s\"\n", task.Title)
	} else {
		fmt.Printf("✗ Failed: \"%s\"\n", task.Title)
	}

	if !task.Shared {
		syncAfterChange(ctx, a, false)
	}
	return nil
}

// setStatus routes a received shared task through the sharing engine and
// everything else through the private task store
func setStatus(ctx context.Context, a *app.App, taskID string, status model.Status) (model.Task, error) {
	task, err := a.Sync.FindTask(ctx, taskID)
	if err != nil {
		return model.Task{}, fmt.Errorf("task not found: %s", taskID)
	}

	if task.Shared {
		id, err := session.Require(ctx, a.Auth)
		if err != nil {
			return model.Task{}, err
		}
		if !task.IsReceiver(id.UserID) {
			return model.Task{}, fmt.Errorf("only %s can change the status of this task", task.ToUserName)
		}
		return a.Sharing.UpdateStatus(ctx, task.ID, status)
	}

	if status == model.StatusCompleted {
		return a.Sync.CompleteTask(ctx, task.ID)
	}
	return a.Sync.FailTask(ctx, task.ID)
}
