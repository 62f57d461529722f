// Package music plays audio in voice channels for whitelisted users.
package music

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jholhewres/gobot/pkg/gobot/bot"
	"github.com/jholhewres/gobot/pkg/gobot/channels"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

// ModuleName is the name the module is registered under.
const ModuleName = "music"

var (
	playPattern = regexp.MustCompile(`^(?P<channel>.+) (?P<url>\S+)$`)
	userPattern = regexp.MustCompile(`^(?P<user_id>\d+)$`)
)

// Config configures the music module.
type Config struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Whitelist seeds the persisted whitelist on start.
	Whitelist []string `yaml:"whitelist" toml:"whitelist"`

	// StreamCommand produces DCA audio on stdout; "{url}" is replaced by
	// the requested URL.
	StreamCommand []string `yaml:"stream_command" toml:"stream_command"`
}

// Option customizes a Module.
type Option func(*Module)

// WithSource replaces the stream command with a custom audio source.
func WithSource(src Source) Option {
	return func(m *Module) { m.source = src }
}

// Module registers the playback and whitelist commands.
type Module struct {
	cfg      Config
	hub      *store.Hub
	gateway  channels.Gateway
	admin    func() string
	source   Source
	commands *bot.CommandSet
	logger   *slog.Logger

	whitelist *Whitelist
	player    player
}

// New creates the music module. admin returns the current admin id, who
// is always allowed to control playback.
func New(cfg Config, hub *store.Hub, registry *bot.Registry, gw channels.Gateway, admin func() string, logger *slog.Logger, opts ...Option) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Module{
		cfg:      cfg,
		hub:      hub,
		gateway:  gw,
		admin:    admin,
		commands: bot.NewCommandSet(registry),
		logger:   logger.With("component", ModuleName),
	}
	if len(cfg.StreamCommand) > 0 {
		m.source = CommandSource{Args: cfg.StreamCommand}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) Start(ctx context.Context) error {
	if m.source == nil {
		return fmt.Errorf("no stream command configured")
	}
	bucket, err := m.hub.Open(ctx, ModuleName)
	if err != nil {
		return err
	}
	m.whitelist = NewWhitelist(bucket)
	if len(m.cfg.Whitelist) > 0 {
		if err := m.whitelist.Add(ctx, m.cfg.Whitelist...); err != nil {
			return fmt.Errorf("seed whitelist: %w", err)
		}
	}

	return m.commands.Add(
		&bot.Command{
			Name:    "play",
			Usage:   "<channel name> <url>",
			Help:    "play a song in a voice channel",
			Pattern: playPattern,
			Handler: m.play,
		},
		&bot.Command{
			Name:    "stop",
			Help:    "stop the current song",
			Handler: m.stop,
		},
		&bot.Command{
			Name:      "add_user",
			Usage:     "<user id>",
			Help:      "allow a user to play music",
			AdminOnly: true,
			Pattern:   userPattern,
			Handler:   m.addUser,
		},
		&bot.Command{
			Name:      "remove_user",
			Usage:     "<user id>",
			Help:      "disallow a user to play music",
			AdminOnly: true,
			Pattern:   userPattern,
			Handler:   m.removeUser,
		},
	)
}

func (m *Module) Stop(ctx context.Context) error {
	if m.player.stop(ctx) {
		m.logger.Info("playback stopped on shutdown")
	}
	return m.commands.RemoveAll()
}

// Whitelist returns the persisted whitelist.
func (m *Module) Whitelist() *Whitelist { return m.whitelist }

// Playing reports whether a song is playing.
func (m *Module) Playing() bool { return m.player.playing() }

func (m *Module) allowed(ctx context.Context, req *bot.Request) (bool, error) {
	if m.admin != nil && req.Author() == m.admin() {
		return true, nil
	}
	ok, err := m.whitelist.Contains(ctx, req.Author())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, req.Reply(ctx, "Nah, not you.")
	}
	return true, nil
}

func (m *Module) play(ctx context.Context, req *bot.Request) error {
	if ok, err := m.allowed(ctx, req); !ok {
		return err
	}

	name, url := req.Args["channel"], req.Args["url"]
	var voice channels.VoiceChannel
	found := false
	for _, s := range m.gateway.Servers() {
		if s.ID == req.Message.GuildID {
			voice, found = s.FindVoiceChannel(name)
			break
		}
	}
	if !found {
		return req.Reply(ctx, "Cannot find a voice channel by that name.")
	}

	guildID := req.Message.GuildID
	err := m.player.start(context.Background(), func(ctx context.Context) {
		m.stream(ctx, guildID, voice, url)
	})
	if errors.Is(err, ErrAlreadyPlaying) {
		m.logger.Warn("something already playing", "url", url)
		return req.Reply(ctx, "Something is already playing.")
	}
	return err
}

// stream joins the voice channel, plays url and leaves.
func (m *Module) stream(ctx context.Context, guildID string, voice channels.VoiceChannel, url string) {
	logger := m.logger.With("channel", voice.Name, "url", url)

	joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	vc, err := m.gateway.JoinVoice(joinCtx, guildID, voice.ID)
	cancel()
	if err != nil {
		logger.Error("failed to join voice channel", "error", err)
		return
	}
	defer vc.Disconnect()

	audio, err := m.source.Open(ctx, url)
	if err != nil {
		logger.Error("failed to open stream", "error", err)
		return
	}
	defer audio.Close()

	logger.Info("playing song")
	if err := vc.Play(ctx, audio); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("playback failed", "error", err)
		return
	}
	logger.Info("player stopped")
}

func (m *Module) stop(ctx context.Context, req *bot.Request) error {
	if ok, err := m.allowed(ctx, req); !ok {
		return err
	}
	m.player.stop(ctx)
	return nil
}

func (m *Module) addUser(ctx context.Context, req *bot.Request) error {
	if err := m.whitelist.Add(ctx, req.Args["user_id"]); err != nil {
		return err
	}
	return req.Reply(ctx, "Done :)")
}

func (m *Module) removeUser(ctx context.Context, req *bot.Request) error {
	if err := m.whitelist.Remove(ctx, req.Args["user_id"]); err != nil {
		return err
	}
	return req.Reply(ctx, "Done :)")
}
