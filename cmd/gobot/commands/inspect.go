package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/gobot/pkg/gobot/bot"
	"github.com/jholhewres/gobot/pkg/gobot/gametime"
	"github.com/jholhewres/gobot/pkg/gobot/reminder"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

// timeNow is replaced in tests.
var timeNow = time.Now

// newPlayedCmd creates `gobot played`, which prints a user's played time
// from storage without connecting.
func newPlayedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "played <user-id>",
		Short: "Show how long a user played each game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBucket(cmd, gametime.ModuleName, func(ctx context.Context, b store.Store) error {
				played, err := gametime.Get(ctx, b, args[0])
				if err != nil {
					return err
				}
				if since, ok, err := gametime.Since(ctx, b); err == nil && ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Tracking since %s\n", since.Format("2006-01-02 15:04"))
				}
				fmt.Fprintln(cmd.OutOrStdout(), gametime.FormatPlayed(played))
				return nil
			})
		},
	}
}

// newRemindersCmd creates `gobot reminders`, which lists pending reminders
// of one user or of everyone.
func newRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders [user-id]",
		Short: "List pending reminders",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBucket(cmd, reminder.ModuleName, func(ctx context.Context, b store.Store) error {
				all, err := reminder.ListAll(ctx, b)
				if errors.Is(err, reminder.ErrCorruptRecord) {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				} else if err != nil {
					return err
				}
				now := timeNow().Unix()
				out := cmd.OutOrStdout()

				if len(args) == 1 {
					fmt.Fprintln(out, reminder.FormatList(all[args[0]], now))
					return nil
				}

				authors := make([]string, 0, len(all))
				for author := range all {
					authors = append(authors, author)
				}
				slices.Sort(authors)
				if len(authors) == 0 {
					fmt.Fprintln(out, "No pending reminders.")
				}
				for _, author := range authors {
					fmt.Fprintf(out, "%s (%d)\n", author, len(all[author]))
					for _, r := range all[author] {
						fmt.Fprintf(out, "  `%s` %q in %s\n", r.UID, r.Message, bot.FormatSeconds(r.AtTime-now))
					}
				}
				return nil
			})
		},
	}
}

// withBucket opens one storage bucket from the configured backend.
func withBucket(cmd *cobra.Command, name string, fn func(context.Context, store.Store) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	hub := store.NewHub(cfg.Storage, quietLogger(cmd))
	defer hub.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := hub.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", name, err)
	}
	return fn(ctx, b)
}

// quietLogger only logs when --verbose is set.
func quietLogger(cmd *cobra.Command) *slog.Logger {
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		return slog.Default()
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
