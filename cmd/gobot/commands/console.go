package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jholhewres/gobot/pkg/gobot/app"
	"github.com/jholhewres/gobot/pkg/gobot/channels/console"
)

// newConsoleCmd creates the `gobot console` command that drives the bot
// from the terminal.
func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Talk to the bot from the terminal",
		Long: `Run the bot against a local console instead of Discord. Every line
is a message from you; replies are printed back.

  /presence <game>   start playing <game> (empty to stop)
  /dm <text>         send <text> as a direct message

Storage is the one configured, so played time and reminders persist.

Examples:
  gobot console
  gobot console --user 42`,
		RunE: runConsole,
	}
	cmd.Flags().String("user", "", "user id to chat as (default: the admin id)")
	return cmd
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Logs would interleave with the prompt, so they go to the file.
	if cfg.Logging.File == "" {
		cfg.Logging.File = defaultLogFile
	}
	logger, cleanup, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = cfg.AdminID
	}

	gw := console.New(console.Config{
		UserID:      user,
		HistoryFile: console.HistoryFile(),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-gw.Quit():
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Printf("gobot console, prefix %q. Ctrl+D to quit.\n", cfg.Prefix)
	return app.New(cfg, gw, logger).Run(ctx)
}
