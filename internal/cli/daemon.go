package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/session"
	"github.com/existflow/duetask/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run background sync",
	Long: `Run the background loop until interrupted. Every interval it advances
overdue tasks, uploads local changes and fetches shared tasks. Send SIGHUP
to upload right away. With auto-sync off only overdue tasks are advanced.

Examples:
  duetask daemon
  duetask daemon --interval 30s
  kill -HUP <pid>`,
	RunE: runDaemon,
}

var daemonInterval time.Duration

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Tick interval (default from config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if daemonInterval > 0 && cfg != nil {
		cfg.SyncInterval = daemonInterval
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := session.Require(ctx, a.Auth)
	if err != nil {
		return notSignedIn(err)
	}

	if a.Config.AutoSync {
		// Start from a full sync so the first ticks work on fresh data.
		fmt.Println("🔄 Initial sync...")
		if _, _, err := a.SyncEverything(ctx); err != nil {
			fmt.Printf("⚠️  Initial sync failed, continuing offline: %v\n", err)
		}
		fmt.Printf("✓ Syncing for %s every %s (Ctrl+C to stop)\n", id.Name(), a.Config.SyncInterval)
	} else {
		fmt.Printf("✓ Auto-sync is off, advancing tasks for %s every %s (Ctrl+C to stop)\n", id.Name(), a.Config.SyncInterval)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	nudge := make(chan struct{})
	go func() {
		for {
			select {
			case <-hup:
				logger.Debug("Upload requested by SIGHUP")
				select {
				case nudge <- struct{}{}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Info("Daemon started", logger.F("interval", a.Config.SyncInterval.String()))
	flushed := a.Serve(ctx, nudge, func(res *sync.Result) {
		if res.Pushed > 0 {
			fmt.Printf("%s ✓ Uploaded %d change(s)\n", time.Now().Format(time.TimeOnly), res.Pushed)
		}
	})
	if flushed != nil && flushed.Pushed > 0 {
		fmt.Printf("✓ Uploaded %d pending change(s)\n", flushed.Pushed)
	}

	fmt.Println("\n👋 Stopped")
	logger.Info("Daemon stopped")
	return nil
}
