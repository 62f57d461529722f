// Package config defines the bot configuration and loads it from YAML or
// TOML files with environment variable expansion.
package config

import (
	"time"

	"github.com/jholhewres/gobot/pkg/gobot/bot"
	"github.com/jholhewres/gobot/pkg/gobot/channels/discord"
	"github.com/jholhewres/gobot/pkg/gobot/gametime"
	"github.com/jholhewres/gobot/pkg/gobot/music"
	"github.com/jholhewres/gobot/pkg/gobot/reminder"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

// Config holds all bot configuration.
type Config struct {
	// Name is the bot name shown in logs and the setup wizard.
	Name string `yaml:"name" toml:"name"`

	// Prefix must be the first word of a command message (e.g. "!go").
	Prefix string `yaml:"prefix" toml:"prefix"`

	// AdminID is the user id allowed to run admin commands.
	AdminID string `yaml:"admin_id" toml:"admin_id"`

	// AutoJoinInvites accepts invite links received by direct message.
	AutoJoinInvites bool `yaml:"auto_join_invites" toml:"auto_join_invites"`

	// ShutdownTimeout bounds how long modules get to stop (default: 2s).
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// CommandTimeout bounds a single command handler (default: 30s).
	CommandTimeout time.Duration `yaml:"command_timeout" toml:"command_timeout"`

	Logging  LoggingConfig   `yaml:"logging" toml:"logging"`
	Discord  discord.Config  `yaml:"discord" toml:"discord"`
	Storage  store.Config    `yaml:"storage" toml:"storage"`
	Gametime gametime.Config `yaml:"gametime" toml:"gametime"`
	Reminder reminder.Config `yaml:"reminder" toml:"reminder"`
	Music    music.Config    `yaml:"music" toml:"music"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `yaml:"level" toml:"level"`

	// Format is "text" or "json" (default: text).
	Format string `yaml:"format" toml:"format"`

	// File, when set, receives the log instead of stderr.
	File string `yaml:"file" toml:"file"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Name:            "gobot",
		Prefix:          "!go",
		AutoJoinInvites: true,
		ShutdownTimeout: 2 * time.Second,
		CommandTimeout:  30 * time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Discord: discord.Config{
			Status:      "!go help",
			EventBuffer: 256,
		},
		Storage: store.DefaultConfig(),
		Gametime: gametime.Config{
			Enabled:      true,
			FlushTimeout: 2 * time.Second,
		},
		Reminder: reminder.Config{
			Enabled:    true,
			MaxPerUser: 50,
		},
	}
}

// Settings returns the router settings that can change at runtime.
func (c *Config) Settings() bot.Settings {
	return bot.Settings{
		Prefix:          c.Prefix,
		AdminID:         c.AdminID,
		AutoJoinInvites: c.AutoJoinInvites,
	}
}
