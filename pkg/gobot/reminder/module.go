package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jholhewres/gobot/pkg/gobot/bot"
	"github.com/jholhewres/gobot/pkg/gobot/clock"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

// ModuleName is the name the module is registered under.
const ModuleName = "reminder"

// Config configures the reminder module.
type Config struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// MaxPerUser caps the pending reminders of one user (default: 50).
	MaxPerUser int `yaml:"max_per_user" toml:"max_per_user"`
}

// Module exposes reminders as chat commands.
type Module struct {
	cfg      Config
	hub      *store.Hub
	sender   Sender
	clock    clock.Clock
	commands *bot.CommandSet
	logger   *slog.Logger

	scheduler *Scheduler
}

// New creates the reminder module.
func New(cfg Config, hub *store.Hub, registry *bot.Registry, sender Sender, clk clock.Clock, logger *slog.Logger) *Module {
	if cfg.MaxPerUser == 0 {
		cfg.MaxPerUser = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		cfg:      cfg,
		hub:      hub,
		sender:   sender,
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
	m.scheduler = NewScheduler(bucket, m.sender, m.clock, m.cfg.MaxPerUser, m.logger)
	if _, err := m.scheduler.Load(ctx); err != nil {
		m.scheduler.Stop(ctx)
		return fmt.Errorf("load reminders: %w", err)
	}

	return m.commands.Add(
		&bot.Command{
			Name:    "reminder",
			Usage:   "<(w)d(x)h(y)m(z)s> [message]",
			Help:    "remind you of something",
			Pattern: commandPattern,
			Handler: m.create,
		},
		&bot.Command{
			Name:    "reminder_list",
			Help:    "list your reminders",
			Handler: m.list,
		},
		&bot.Command{
			Name:    "reminder_delete",
			Usage:   "<uid>",
			Help:    "remove the given reminder",
			Pattern: deletePattern,
			Handler: m.delete,
		},
	)
}

func (m *Module) Stop(ctx context.Context) error {
	m.scheduler.Stop(ctx)
	return m.commands.RemoveAll()
}

// Scheduler returns the running reminder scheduler.
func (m *Module) Scheduler() *Scheduler { return m.scheduler }

func (m *Module) create(ctx context.Context, req *bot.Request) error {
	delay, msg, err := fromArgs(req.Args)
	if err != nil {
		m.logger.Debug("reminder rejected", "args", req.Text, "error", err)
		return req.Reply(ctx, "I could not understand that :(")
	}

	_, err = m.scheduler.New(ctx, req.Author(), m.scheduler.Now().Add(delay), msg)
	if errors.Is(err, ErrTooManyReminders) {
		return req.Reply(ctx, fmt.Sprintf("You already have %d reminders, delete some first.", m.cfg.MaxPerUser))
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, "Aight! I will ping you :)")
}

func (m *Module) list(ctx context.Context, req *bot.Request) error {
	reminders, err := m.scheduler.List(ctx, req.Author())
	if err != nil {
		return err
	}
	return req.ReplyDirect(ctx, FormatList(reminders, m.scheduler.Now().Unix()))
}

func (m *Module) delete(ctx context.Context, req *bot.Request) error {
	err := m.scheduler.Cancel(ctx, req.Author(), req.Args["uid"])
	if errors.Is(err, ErrReminderNotFound) {
		return req.Reply(ctx, "Don't know about this one, check your list again")
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, "Reminder deleted :)")
}

// FormatList renders the reminder_list reply relative to now (unix seconds).
func FormatList(reminders []Reminder, now int64) string {
	if len(reminders) == 0 {
		return "I don't have any reminder for you!"
	}
	var b strings.Builder
	b.WriteString("Here are your current reminders:")
	for _, r := range reminders {
		fmt.Fprintf(&b, "\n`%s` %q in %s", r.UID, r.Message, bot.FormatSeconds(r.AtTime-now))
	}
	return b.String()
}
