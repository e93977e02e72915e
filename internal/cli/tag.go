package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
	Long:  `Create, list, and delete the tags used to group tasks.`,
}

var tagAddCmd = &cobra.Command{
	Use:     "add [name]",
	Aliases: []string{"new"},
	Short:   "Create a new tag",
	Long: `Create a new tag. A color is picked at random.

Examples:
  duetask tag add Work
  duetask tag add Home --icon house`,
	Args: cobra.ExactArgs(1),
	RunE: runTagAdd,
}

var tagListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all tags",
	RunE:    runTagList,
}

var tagDeleteCmd = &cobra.Command{
	Use:     "delete [name-or-id]",
	Aliases: []string{"rm"},
	Short:   "Delete a tag",
	Long:    `Delete a tag. Its tasks are kept and lose the tag.`,
	Args:    cobra.ExactArgs(1),
	RunE:    runTagDelete,
}

var (
	tagIcon  string
	tagForce bool
)

func init() {
	tagAddCmd.Flags().StringVar(&tagIcon, "icon", "", "Icon name")
	tagDeleteCmd.Flags().BoolVarP(&tagForce, "force", "f", false, "Do not ask for confirmation")

	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagDeleteCmd)
}

func runTagAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	tag, err := a.Sync.CreateTag(ctx, args[0], tagIcon)
	if err != nil {
		return notSignedIn(err)
	}

	fmt.Printf("✓ Created tag: %s (ID: %s)\n", tag.Name, shortID(tag.ID))
	syncAfterChange(ctx, a, false)
	return nil
}

func runTagList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tags, err := a.Sync.Tags(context.Background())
	if err != nil {
		return notSignedIn(err)
	}

	if len(tags) == 0 {
		fmt.Println("No tags yet. Create one with: duetask tag add \"Work\"")
		return nil
	}

	fmt.Println("\n🏷️  Tags")
	fmt.Println(strings.Repeat("─", 40))
	for _, t := range tags {
		synced := ""
		if !t.Synced {
			synced = "(not synced)"
		}
		fmt.Printf("  %-8s  %-20s  %s\n", shortID(t.ID), truncate(t.Name, 20), synced)
	}
	fmt.Println()
	return nil
}

func runTagDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	tag, err := a.Sync.FindTag(ctx, args[0])
	if err != nil {
		return fmt.Errorf("tag not found: %s", args[0])
	}

	if a.Config.ConfirmDelete && !tagForce {
		if !confirm(os.Stdin, fmt.Sprintf("Delete tag %q?", tag.Name)) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := a.Sync.DeleteTag(ctx, tag.ID); err != nil {
		return notSignedIn(err)
	}

	fmt.Printf("🗑️  Deleted tag: %s\n", tag.Name)
	syncAfterChange(ctx, a, false)
	return nil
}
