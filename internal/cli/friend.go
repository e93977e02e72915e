package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/friends"
)

var friendCmd = &cobra.Command{
	Use:   "friend",
	Short: "Manage friends",
	Long:  `Send and answer friend requests. Only friends can send each other tasks.`,
}

var friendAddCmd = &cobra.Command{
	Use:   "add [email]",
	Short: "Send a friend request",
	Args:  cobra.ExactArgs(1),
	RunE:  runFriendAdd,
}

var friendRequestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Show pending friend requests",
	RunE:  runFriendRequests,
}

var friendAcceptCmd = &cobra.Command{
	Use:   "accept [request-id]",
	Short: "Accept a friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFriendAnswer(args[0], true)
	},
}

var friendDeclineCmd = &cobra.Command{
	Use:   "decline [request-id]",
	Short: "Decline a friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFriendAnswer(args[0], false)
	},
}

var friendListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List friends",
	RunE:    runFriendList,
}

var friendRemoveCmd = &cobra.Command{
	Use:     "remove [email-or-id]",
	Aliases: []string{"rm"},
	Short:   "Remove a friend",
	Args:    cobra.ExactArgs(1),
	RunE:    runFriendRemove,
}

var (
	friendListSync bool
	friendForce    bool
)

func init() {
	friendListCmd.Flags().BoolVarP(&friendListSync, "sync", "s", false, "Fetch the friend list from the server first")
	friendRemoveCmd.Flags().BoolVarP(&friendForce, "force", "f", false, "Do not ask for confirmation")

	friendCmd.AddCommand(friendAddCmd)
	friendCmd.AddCommand(friendRequestsCmd)
	friendCmd.AddCommand(friendAcceptCmd)
	friendCmd.AddCommand(friendDeclineCmd)
	friendCmd.AddCommand(friendListCmd)
	friendCmd.AddCommand(friendRemoveCmd)
}

func runFriendAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.Friends.SendFriendRequest(context.Background(), args[0])
	switch {
	case errors.Is(err, friends.ErrAlreadyFriends):
		fmt.Printf("✓ You are already friends with %s\n", args[0])
		return nil
	case errors.Is(err, friends.ErrReverseRequestPending):
		return fmt.Errorf("%s already sent you a request, see: duetask friend requests", args[0])
	case err != nil:
		return notSignedIn(err)
	}

	fmt.Printf("📨 Friend request sent to %s\n", req.ToEmail)
	return nil
}

func runFriendRequests(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	pending, err := a.Friends.FetchPendingFriendRequests(ctx)
	if err != nil {
		fmt.Printf("⚠️  Fetch failed, showing cached requests: %v\n", notSignedIn(err))
		if pending, err = a.Friends.PendingRequests(ctx); err != nil {
			return err
		}
	}

	if len(pending) == 0 {
		fmt.Println("No pending friend requests.")
	} else {
		fmt.Printf("\n📨 Friend requests (%d)\n", len(pending))
		fmt.Println(strings.Repeat("─", 60))
		for _, r := range pending {
			fmt.Printf("  %-8s  %-20s  %-28s  %s\n", shortID(r.RemoteID), truncate(r.FromName, 20), r.FromEmail, r.SentAt.Local().Format("Jan 2"))
		}
		fmt.Println("\nAnswer with: duetask friend accept <id> / duetask friend decline <id>")
	}

	sent, err := a.Friends.SentRequests(ctx)
	if err == nil && len(sent) > 0 {
		fmt.Printf("\n⏳ Waiting for answer: ")
		emails := make([]string, 0, len(sent))
		for _, r := range sent {
			emails = append(emails, r.ToEmail)
		}
		fmt.Println(strings.Join(emails, ", "))
	}
	return nil
}

func runFriendAnswer(id string, accept bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	req, err := a.Friends.FindRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("friend request not found: %s (run 'duetask friend requests' first)", id)
	}

	if !accept {
		if err := a.Friends.DeclineFriendRequest(ctx, req); err != nil {
			return notSignedIn(err)
		}
		fmt.Printf("✓ Declined request from %s\n", req.FromEmail)
		return nil
	}

	friend, err := a.Friends.AcceptFriendRequest(ctx, req)
	if err != nil {
		return notSignedIn(err)
	}
	fmt.Printf("🤝 You are now friends with %s\n", friend.Name)
	return nil
}

func runFriendList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	if friendListSync {
		if _, err := a.Friends.FetchFriends(ctx); err != nil {
			fmt.Printf("⚠️  Fetch failed: %v\n", notSignedIn(err))
		}
	}

	list, err := a.Friends.Friends(ctx)
	if err != nil {
		return notSignedIn(err)
	}
	if len(list) == 0 {
		fmt.Println("No friends yet. Add one with: duetask friend add friend@example.com")
		return nil
	}

	fmt.Printf("\n👥 Friends (%d)\n", len(list))
	fmt.Println(strings.Repeat("─", 60))
	for _, f := range list {
		fmt.Printf("  %-20s  %s\n", truncate(f.Name, 20), f.Email)
	}
	fmt.Println()
	return nil
}

func runFriendRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	friend, err := findFriend(ctx, a, args[0])
	if err != nil {
		return err
	}

	if a.Config.ConfirmDelete && !friendForce {
		if !confirm(os.Stdin, fmt.Sprintf("Remove %s from your friends?", friend.Name)) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := a.Friends.DeleteFriend(ctx, friend.RemoteUID); err != nil {
		return notSignedIn(err)
	}
	fmt.Printf("✓ Removed %s\n", friend.Name)
	return nil
}
