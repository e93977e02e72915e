package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/existflow/duetask/internal/app"
	"github.com/existflow/duetask/internal/config"
	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/session"
)

// openApp opens the local store and the server session named in the config
func openApp() (*app.App, error) {
	c := cfg
	if c == nil {
		c = config.DefaultConfig()
	}
	return app.Open(c)
}

// syncAfterChange uploads local edits right away when auto-sync is on or
// --sync was given. Being offline is not an error: the edit stays dirty
// and goes out with the next sync.
func syncAfterChange(ctx context.Context, a *app.App, force bool) {
	if !force && !a.Config.AutoSync {
		return
	}
	if _, err := session.Require(ctx, a.Auth); err != nil {
		return
	}

	res := a.Sync.QuickSync(ctx)
	if res.Pushed > 0 {
		fmt.Printf("✓ Synced (↑%d)\n", res.Pushed)
	}
}

// parseDue accepts "today", "tomorrow", a relative duration ("+2h", "90m"),
// a date ("2026-01-15", due at the end of that day) or a date and time
// ("2026-01-15 14:30"). Everything is in local time.
func parseDue(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	endOfDay := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 23, 59, 0, 0, t.Location())
	}

	switch s {
	case "", "today":
		return endOfDay(now), nil
	case "tomorrow":
		return endOfDay(now.AddDate(0, 0, 1)), nil
	}

	if d, err := time.ParseDuration(strings.TrimPrefix(s, "+")); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("due offset must be positive: %s", s)
		}
		return now.Add(d), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return endOfDay(t), nil
	}
	return time.Time{}, fmt.Errorf("invalid due date %q (try 'tomorrow', '+2h' or '2026-01-15 14:30')", s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func printTask(num int, t model.Task, now time.Time) {
	// Status icon
	icon := "[ ]"
	switch {
	case t.IsFailed():
		icon = "[!]"
	case t.Done:
		icon = "[x]"
	}

	flags := ""
	if t.Important {
		flags += "★"
	}
	if t.Urgent {
		flags += "⚡"
	}
	if t.AutoFail {
		flags += "⏳"
	}

	due := t.Due.Local().Format("Jan 2 15:04")
	if !t.IsResolved() && t.IsOverdue(now) {
		due += " (overdue)"
	}

	who := ""
	if t.Shared {
		who = fmt.Sprintf("%s → %s", t.FromUserName, t.ToUserName)
	}

	fmt.Printf("  %s  %-8s  %-40s  %-22s  %-4s %s\n", icon, shortID(t.ID), truncate(t.Title, 40), due, flags, who)
}

// confirm asks a yes/no question; anything but y or yes is a no
func confirm(in io.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	answer, _ := readLine(bufio.NewReader(in))
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// notSignedIn turns the session error into a hint
func notSignedIn(err error) error {
	if errors.Is(err, session.ErrNotAuthenticated) {
		return errors.New("not logged in, run: duetask auth login")
	}
	return err
}
