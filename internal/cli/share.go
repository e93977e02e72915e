package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/app"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/sharing"
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Send tasks to friends",
	Long: `Send tasks to friends and follow the tasks you received.

The receiver reports the status with 'duetask done' or 'duetask fail';
the sender edits with 'duetask edit' and removes with 'duetask delete'.`,
}

var shareSendCmd = &cobra.Command{
	Use:   "send [title]",
	Short: "Send a task to a friend",
	Long: `Send a task to a friend.

Examples:
  duetask share send "Water the plants" --to bob@example.com --due tomorrow
  duetask share send "Return the book" --to bob@example.com -d +3h --auto-fail`,
	Args: cobra.MinimumNArgs(1),
	RunE: runShareSend,
}

var shareListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Fetch and list shared tasks",
	RunE:    runShareList,
}

var (
	shareTo        string
	shareDue       string
	shareDesc      string
	shareImportant bool
	shareUrgent    bool
	shareReminder  bool
	shareAutoFail  bool
)

func init() {
	shareSendCmd.Flags().StringVar(&shareTo, "to", "", "Friend email or user ID")
	shareSendCmd.Flags().StringVarP(&shareDue, "due", "d", "today", "Due date")
	shareSendCmd.Flags().StringVar(&shareDesc, "desc", "", "Description")
	shareSendCmd.Flags().BoolVarP(&shareImportant, "important", "i", false, "Mark as important")
	shareSendCmd.Flags().BoolVarP(&shareUrgent, "urgent", "u", false, "Mark as urgent")
	shareSendCmd.Flags().BoolVar(&shareReminder, "reminder", false, "Enable reminders")
	shareSendCmd.Flags().BoolVar(&shareAutoFail, "auto-fail", false, "Fail the task instead of completing it when overdue")
	_ = shareSendCmd.MarkFlagRequired("to")

	shareCmd.AddCommand(shareSendCmd)
	shareCmd.AddCommand(shareListCmd)
}

func runShareSend(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	friend, err := findFriend(ctx, a, shareTo)
	if err != nil {
		return err
	}

	due, err := parseDue(shareDue, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("🔄 Sending to %s...\n", friend.Name)
	task, err := a.Sharing.SendTaskToFriend(ctx, sharing.SendRequest{
		Title:       strings.Join(args, " "),
		Description: shareDesc,
		Due:         due,
		FriendUID:   friend.RemoteUID,
		FriendName:  friend.Name,
		Options:     taskOptions(shareImportant, shareUrgent, shareReminder, shareAutoFail),
	})
	if err != nil {
		return notSignedIn(err)
	}

	fmt.Printf("📤 Sent \"%s\" to %s (ID: %s)\n", task.Title, friend.Name, shortID(task.ID))
	return nil
}

// findFriend matches the local friend list by email or user ID
func findFriend(ctx context.Context, a *app.App, who string) (model.Friend, error) {
	friends, err := a.Friends.Friends(ctx)
	if err != nil {
		return model.Friend{}, notSignedIn(err)
	}

	who = strings.ToLower(strings.TrimSpace(who))
	for _, f := range friends {
		if strings.ToLower(f.Email) == who || f.RemoteUID == who {
			return f, nil
		}
	}
	return model.Friend{}, fmt.Errorf("%s is not in your friends list (run 'duetask friend list --sync' or 'duetask friend add %s')", who, who)
}

func runShareList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	fmt.Println("🔄 Fetching shared tasks...")
	lists, err := a.Sharing.SyncSharedTasks(ctx)
	if err != nil {
		fmt.Printf("⚠️  Fetch failed, showing local copies: %v\n", notSignedIn(err))
		return printShared(ctx, a)
	}

	if len(lists.Incoming)+len(lists.Outgoing) == 0 {
		fmt.Println("No shared tasks. Send one with: duetask share send \"Task\" --to friend@example.com")
		return nil
	}
	printTasks("📥 Received", lists.Incoming)
	printTasks("📤 Sent", lists.Outgoing)
	return nil
}
