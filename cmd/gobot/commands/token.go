package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jholhewres/gobot/pkg/gobot/config"
)

// newTokenCmd creates the `gobot token` command group.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the Discord token in the OS keyring",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Store the Discord bot token in the OS keyring",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				token, err := readSecret("Discord bot token: ")
				if err != nil {
					return err
				}
				if token == "" {
					return errors.New("empty token")
				}
				if err := config.StoreToken(token); err != nil {
					return fmt.Errorf("storing token: %w", err)
				}
				fmt.Println("Token stored in the OS keyring.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the Discord bot token from the OS keyring",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := config.DeleteToken(); err != nil {
					return fmt.Errorf("deleting token: %w", err)
				}
				fmt.Println("Token removed.")
				return nil
			},
		},
	)
	return cmd
}

// readSecret reads a line without echo, falling back to plain stdin when
// it is not a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
