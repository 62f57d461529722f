package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jholhewres/gobot/pkg/gobot/app"
	"github.com/jholhewres/gobot/pkg/gobot/channels/discord"
	"github.com/jholhewres/gobot/pkg/gobot/config"
)

// newServeCmd creates the `gobot serve` command that runs the bot.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and run the bot",
		Long: `Connect to Discord and process events until interrupted.

The bot token is read from GOBOT_DISCORD_TOKEN, the OS keyring
(see 'gobot token set') or the config file, in that order.

Examples:
  gobot serve
  gobot serve --config ./config.yaml
  gobot serve --no-watch`,
		RunE: runServe,
	}
	cmd.Flags().Bool("no-watch", false, "do not reload the config file when it changes")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, cleanup, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	config.ResolveToken(cfg, logger)
	if cfg.Discord.Token == "" {
		return fmt.Errorf("no discord token configured, run 'gobot token set' or 'gobot setup'")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot := app.New(cfg, discord.New(cfg.Discord, logger), logger)

	noWatch, _ := cmd.Flags().GetBool("no-watch")
	if path != "" && !noWatch {
		watcher := config.NewWatcher(path, 0, bot.Reload, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	logger.Info("gobot starting. Press Ctrl+C to stop.", "name", cfg.Name, "prefix", cfg.Prefix)
	return bot.Run(ctx)
}
