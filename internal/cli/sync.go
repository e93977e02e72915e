package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/session"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync tasks with server",
	Long: `Sync your tasks, tags, shared tasks and friends across devices.

Commands:
  duetask sync               # Full sync now
  duetask sync --quick       # Only upload local changes
  duetask sync status        # Show sync status
  duetask sync config        # Show or set the server`,
	RunE: runSync,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE:  runSyncStatus,
}

var syncConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure sync settings",
	RunE:  runSyncConfig,
}

var syncQuick bool

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncConfigCmd)

	syncCmd.Flags().BoolVarP(&syncQuick, "quick", "q", false, "Upload local changes without downloading")

	syncConfigCmd.Flags().String("server", "", "Set server URL")
	syncConfigCmd.Flags().Bool("auto", true, "Upload after every change")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	if _, err := session.Require(ctx, a.Auth); err != nil {
		return notSignedIn(err)
	}

	if syncQuick {
		fmt.Println("🔄 Uploading changes...")
		res := a.Sync.QuickSync(ctx)
		if res.Skipped {
			fmt.Println("⚠️  Another sync is running, try again later")
			return nil
		}
		fmt.Printf("✓ Uploaded %d change(s)\n", res.Pushed)
		return nil
	}

	// The lifecycle runs first so overdue tasks go up in this sync.
	if _, err := a.Lifecycle.Tick(ctx); err != nil {
		fmt.Printf("⚠️  Some overdue tasks could not be updated: %v\n", err)
	}

	fmt.Println("🔄 Synchronizing...")
	res, lists, err := a.SyncEverything(ctx)
	if err != nil {
		if res != nil {
			fmt.Printf("⚠️  Partial sync. Pushed: %d, Pulled: %d\n", res.Pushed, res.Pulled)
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("✓ Sync complete! Pushed: %d, Pulled: %d, Kept local: %d, Removed: %d\n",
		res.Pushed, res.Pulled, res.Kept, res.Pruned)
	fmt.Printf("  Shared: %d received, %d sent\n", len(lists.Incoming), len(lists.Outgoing))
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	fmt.Printf("Server:    %s\n", a.Client.ServerURL())

	id, err := session.Require(ctx, a.Auth)
	if err != nil {
		fmt.Println("Status:    Not logged in")
		return nil
	}
	fmt.Printf("User:      %s <%s>\n", id.Name(), id.Email)

	lastSync := "never"
	if u, err := a.Sync.LastSync(ctx); err == nil && !u.NeverSynced() {
		lastSync = u.LastSyncAt.Local().Format(time.DateTime)
	}
	fmt.Printf("Last Sync: %s\n", lastSync)

	dirty, err := a.Sync.Tasks(ctx, db.TaskFilter{Kind: db.KindPrivate, DirtyOnly: true})
	if err != nil {
		return err
	}
	fmt.Printf("Pending:   %d task(s) not uploaded\n", len(dirty))
	fmt.Println("Status:    ✓ Logged in")
	return nil
}

func runSyncConfig(cmd *cobra.Command, args []string) error {
	changed := false

	if cmd.Flags().Changed("server") {
		server, _ := cmd.Flags().GetString("server")
		cfg.ServerURL = server
		changed = true
	}
	if cmd.Flags().Changed("auto") {
		auto, _ := cmd.Flags().GetBool("auto")
		cfg.AutoSync = auto
		changed = true
	}

	if changed {
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println("✓ Sync settings saved")
	}

	fmt.Printf("Server:    %s\n", cfg.ServerURL)
	fmt.Printf("Auto-sync: %v (every %s)\n", cfg.AutoSync, cfg.SyncInterval)
	return nil
}
