package commands

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/jholhewres/gobot/pkg/gobot/config"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

var userIDPattern = regexp.MustCompile(`^\d+$`)

// newSetupCmd creates the `gobot setup` command.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard that writes config.yaml.
The bot token is stored in the OS keyring, never in the config file,
unless no keyring is available.

Examples:
  gobot setup
  gobot setup --output ./configs/config.yaml`,
		RunE: runSetup,
	}
	cmd.Flags().StringP("output", "o", "config.yaml", "where to write the config")
	return cmd
}

func runSetup(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	if _, err := os.Stat(output); err == nil {
		overwrite := false
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite it?", output)).
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Setup cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	var (
		token   string
		backend = string(cfg.Storage.Backend)
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot name").
				Value(&cfg.Name),
			huh.NewInput().
				Title("Command prefix").
				Description("First word of every command, e.g. !go").
				Value(&cfg.Prefix).
				Validate(func(s string) error {
					if s == "" || strings.ContainsAny(s, " \t") {
						return errors.New("the prefix must be a single word")
					}
					return nil
				}),
			huh.NewInput().
				Title("Admin user id").
				Description("Discord id of the user allowed to run admin commands").
				Value(&cfg.AdminID).
				Validate(func(s string) error {
					if !userIDPattern.MatchString(s) {
						return errors.New("a Discord user id is a number")
					}
					return nil
				}),
			huh.NewInput().
				Title("Bot token").
				Description("Leave empty to set it later with 'gobot token set'").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage backend").
				Options(
					huh.NewOption("SQLite (one file per bucket)", string(store.BackendSQLite)),
					huh.NewOption("JSON files", string(store.BackendFile)),
					huh.NewOption("PostgreSQL", string(store.BackendPostgreSQL)),
				).
				Value(&backend),
			huh.NewConfirm().
				Title("Accept invites sent by direct message?").
				Value(&cfg.AutoJoinInvites),
			huh.NewConfirm().
				Title("Enable music?").
				Description("Requires a stream command producing DCA audio").
				Value(&cfg.Music.Enabled),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Storage.Backend = store.BackendType(backend)

	if token != "" {
		if err := config.StoreToken(token); err != nil {
			fmt.Printf("[!] Could not use the OS keyring (%v).\n", err)
			fmt.Printf("    The token is written to %s; keep that file private.\n", output)
			cfg.Discord.Token = token
		} else {
			fmt.Println("Token stored in the OS keyring.")
		}
	}

	if err := config.Save(cfg, output); err != nil {
		return err
	}

	fmt.Printf("Config written to %s.\n", output)
	if cfg.Music.Enabled {
		fmt.Println("Set music.stream_command before playing anything.")
	}
	fmt.Println("Start the bot with: gobot serve")
	return nil
}
