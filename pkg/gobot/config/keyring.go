package config

import (
	"errors"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "gobot"

	// keyringToken is the key name of the Discord bot token.
	keyringToken = "discord_token"

	// TokenEnv overrides every other token source.
	TokenEnv = "GOBOT_DISCORD_TOKEN"
)

// StoreToken saves the Discord token in the OS keyring.
func StoreToken(token string) error {
	return keyring.Set(keyringService, keyringToken, token)
}

// DeleteToken removes the Discord token from the OS keyring. A missing
// token is not an error.
func DeleteToken() error {
	err := keyring.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// KeyringToken returns the token stored in the OS keyring, if any.
func KeyringToken() string {
	val, err := keyring.Get(keyringService, keyringToken)
	if err != nil {
		return ""
	}
	return val
}

// ResolveToken fills cfg.Discord.Token from, in order: the GOBOT_DISCORD_TOKEN
// environment variable, the OS keyring, the config file.
func ResolveToken(cfg *Config, logger *slog.Logger) {
	if val := os.Getenv(TokenEnv); val != "" {
		cfg.Discord.Token = val
		logger.Debug("discord token loaded from environment")
		return
	}
	if val := KeyringToken(); val != "" {
		cfg.Discord.Token = val
		logger.Debug("discord token loaded from OS keyring")
		return
	}
	if cfg.Discord.Token != "" && !isEnvReference(cfg.Discord.Token) {
		logger.Debug("discord token loaded from config")
		return
	}
	cfg.Discord.Token = ""
	logger.Warn("no discord token found. Set one with: gobot token set")
}

func isEnvReference(s string) bool {
	return len(s) > 0 && s[0] == '$'
}
