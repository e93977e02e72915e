package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/session"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [task-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Long: `Delete a task by its ID. Deleting a task you sent to a friend removes
it from their list as well.

Examples:
  duetask delete abc123
  duetask rm abc123 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var deleteForce bool

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Do not ask for confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	task, err := a.Sync.FindTask(ctx, args[0])
	if err != nil {
		return fmt.Errorf("task not found: %s", args[0])
	}

	if a.Config.ConfirmDelete && !deleteForce {
		fmt.Printf("About to delete: \"%s\" (ID: %s)\n", task.Title, task.ID)
		if !confirm(os.Stdin, "Are you sure?") {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if task.Shared {
		id, err := session.Require(ctx, a.Auth)
		if err != nil {
			return notSignedIn(err)
		}
		if !task.IsSender(id.UserID) {
			return fmt.Errorf("only %s can delete this task", task.FromUserName)
		}
		err = a.Sharing.DeleteSharedTask(ctx, task.ID)
	} else {
		err = a.Sync.DeleteTask(ctx, task.ID)
	}
	if err != nil {
		return notSignedIn(err)
	}

	fmt.Printf("🗑️  Deleted: \"%s\"\n", task.Title)
	return nil
}
