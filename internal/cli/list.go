package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/existflow/duetask/internal/app"
	"github.com/existflow/duetask/internal/db"
	"github.com/existflow/duetask/internal/model"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List tasks, optionally filtered by tag.

Examples:
  duetask list
  duetask list --tag work
  duetask list --all --shared`,
	RunE: runList,
}

var (
	listTag    string
	listAll    bool
	listShared bool
	listSync   bool
)

func init() {
	listCmd.Flags().StringVarP(&listTag, "tag", "t", "", "Filter by tag")
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include completed and failed tasks")
	listCmd.Flags().BoolVar(&listShared, "shared", false, "Also show tasks shared with friends")
	listCmd.Flags().BoolVarP(&listSync, "sync", "s", false, "Sync with server before listing")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	// Sync before listing if flag is set
	if listSync {
		fmt.Println("🔄 Syncing...")
		if _, _, err := a.SyncEverything(ctx); err != nil {
			fmt.Printf("⚠️  Sync failed: %v\n", err)
		}
	}

	filter := db.TaskFilter{Kind: db.KindPrivate, PendingOnly: !listAll}
	name := "Tasks"
	if listTag != "" {
		tag, err := a.Sync.FindTag(ctx, listTag)
		if err != nil {
			return fmt.Errorf("tag not found: %s", listTag)
		}
		filter.TagID = tag.ID
		name = tag.Name
	}

	tasks, err := a.Sync.Tasks(ctx, filter)
	if err != nil {
		return notSignedIn(err)
	}
	printTasks(name, tasks)

	if listShared {
		if err := printShared(ctx, a); err != nil {
			return err
		}
	}

	if len(tasks) == 0 && !listShared {
		fmt.Println("No tasks found. Add one with: duetask add \"Your task\"")
	}
	return nil
}

func printShared(ctx context.Context, a *app.App) error {
	for _, section := range []struct {
		name string
		kind db.TaskKind
	}{
		{"📥 Received", db.KindIncoming},
		{"📤 Sent", db.KindOutgoing},
	} {
		tasks, err := a.Sync.Tasks(ctx, db.TaskFilter{Kind: section.kind, PendingOnly: !listAll})
		if err != nil {
			return err
		}
		printTasks(section.name, tasks)
	}
	return nil
}

func printTasks(name string, tasks []model.Task) {
	if len(tasks) == 0 {
		return
	}

	pending := 0
	for _, t := range tasks {
		if !t.IsResolved() {
			pending++
		}
	}

	fmt.Printf("\n📁 %s (%d pending)\n", name, pending)
	fmt.Println(strings.Repeat("─", 60))

	now := time.Now()
	for i, t := range tasks {
		printTask(i+1, t, now)
	}
	fmt.Println()
}
