package gametime

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/gobot/pkg/gobot/bot"
	"github.com/jholhewres/gobot/pkg/gobot/clock"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

// ModuleName is the name the module is registered under.
const ModuleName = "gametime"

var addPattern = regexp.MustCompile(`^(?P<user_id>\d+) (?P<game>.+) (?P<time>\d+)$`)

// Config configures the gametime module.
type Config struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// FlushTimeout bounds how long stopping waits for live sessions to be
	// written.
	FlushTimeout time.Duration `yaml:"flush_timeout" toml:"flush_timeout"`
}

// Module wires the tracker to presence events and registers its commands.
type Module struct {
	cfg      Config
	hub      *store.Hub
	clock    clock.Clock
	commands *bot.CommandSet
	logger   *slog.Logger

	bucket  store.Store
	tracker *Tracker
}

// New creates the gametime module.
func New(cfg Config, hub *store.Hub, registry *bot.Registry, clk clock.Clock, logger *slog.Logger) *Module {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		cfg:      cfg,
		hub:      hub,
		clock:    clk,
		commands: bot.NewCommandSet(registry),
		logger:   logger.With("component", ModuleName),
	}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) Start(ctx context.Context) error {
	bucket, err := m.hub.Open(ctx, ModuleName)
	if err != nil {
		return err
	}
	if _, ok, err := Since(ctx, bucket); err != nil {
		return err
	} else if !ok {
		if err := bucket.Put(ctx, startTimeKey, m.now().Unix()); err != nil {
			return err
		}
	}

	m.bucket = bucket
	m.tracker = NewTracker(bucket, m.clock, m.logger)

	return m.commands.Add(
		&bot.Command{
			Name:    "played",
			Help:    "show your game time",
			Handler: m.played,
		},
		&bot.Command{
			Name:      "add",
			Usage:     "<user id> <game> <seconds>",
			Help:      "add game time to a user",
			AdminOnly: true,
			Pattern:   addPattern,
			Handler:   m.add,
		},
	)
}

func (m *Module) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.FlushTimeout)
	defer cancel()

	err := m.tracker.Close(ctx)
	if err != nil {
		m.logger.Warn("sessions not flushed in time", "error", err)
	}
	if rmErr := m.commands.RemoveAll(); rmErr != nil {
		m.logger.Warn("failed to remove commands", "error", rmErr)
	}
	return err
}

// Sessions exposes the tracker to the router.
func (m *Module) Sessions() bot.SessionTracker { return m.tracker }

func (m *Module) now() time.Time {
	if m.clock == nil {
		return time.Now()
	}
	return m.clock.Now()
}

func (m *Module) played(ctx context.Context, req *bot.Request) error {
	played, err := Get(ctx, m.bucket, req.Author())
	if err != nil {
		return err
	}
	return req.Reply(ctx, FormatPlayed(played))
}

func (m *Module) add(ctx context.Context, req *bot.Request) error {
	seconds, err := strconv.ParseInt(req.Args["time"], 10, 64)
	if err != nil {
		return fmt.Errorf("parse time: %w", err)
	}
	if err := Add(ctx, m.bucket, req.Args["user_id"], req.Args["game"], seconds); err != nil {
		return err
	}
	return req.Reply(ctx, "done :)")
}

// FormatPlayed renders the reply of the played command.
func FormatPlayed(p Played) string {
	if len(p) == 0 {
		return "I don't remember you playing anything :("
	}
	var b strings.Builder
	b.WriteString("As far as i'm aware, you played:")
	for _, name := range p.Activities() {
		fmt.Fprintf(&b, "\n`%s : %s`", name, bot.FormatSeconds(p[name]))
	}
	return b.String()
}
