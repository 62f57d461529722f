// Package app assembles the bot: storage, command registry, modules, the
// event router and the gateway, and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/gobot/pkg/gobot/bot"
	"github.com/jholhewres/gobot/pkg/gobot/channels"
	"github.com/jholhewres/gobot/pkg/gobot/clock"
	"github.com/jholhewres/gobot/pkg/gobot/config"
	"github.com/jholhewres/gobot/pkg/gobot/gametime"
	"github.com/jholhewres/gobot/pkg/gobot/music"
	"github.com/jholhewres/gobot/pkg/gobot/reminder"
	"github.com/jholhewres/gobot/pkg/gobot/scheduler"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

// flushJob is the name of the periodic storage flush.
const flushJob = "store-flush"

// notifyTimeout bounds the direct message sent to the admin when the
// gateway cannot connect.
const notifyTimeout = 10 * time.Second

// Option customizes an App.
type Option func(*App)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(a *App) { a.clock = clk }
}

// WithMusicSource replaces the music module's audio source.
func WithMusicSource(src music.Source) Option {
	return func(a *App) { a.musicOpts = append(a.musicOpts, music.WithSource(src)) }
}

// App is a fully wired bot.
type App struct {
	cfg     *config.Config
	gateway channels.Gateway
	clock   clock.Clock
	logger  *slog.Logger

	hub      *store.Hub
	registry *bot.Registry
	modules  *bot.Manager
	router   *bot.Router
	jobs     *scheduler.Scheduler

	musicOpts []music.Option
}

// New wires an App around gw. Nothing is opened until Run.
func New(cfg *config.Config, gw channels.Gateway, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:     cfg,
		gateway: gw,
		clock:   clock.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.hub = store.NewHub(cfg.Storage, logger)
	a.registry = bot.NewRegistry()
	a.modules = bot.NewManager(cfg.ShutdownTimeout, logger)
	a.router = bot.NewRouter(gw, a.registry, a.modules, bot.RouterConfig{
		Settings:       cfg.Settings(),
		SessionModule:  gametime.ModuleName,
		CommandTimeout: cfg.CommandTimeout,
	}, logger)
	a.jobs = scheduler.New(a.clock, logger)
	return a
}

// Router returns the event router.
func (a *App) Router() *bot.Router { return a.router }

// Modules returns the module manager.
func (a *App) Modules() *bot.Manager { return a.modules }

// Hub returns the storage hub.
func (a *App) Hub() *store.Hub { return a.hub }

// Reload applies the runtime settings of a freshly loaded config.
func (a *App) Reload(cfg *config.Config) {
	a.router.UpdateSettings(cfg.Settings())
}

// Run connects the gateway, starts the modules and routes events until ctx
// is done or the gateway closes its event stream. Shutdown always runs
// before Run returns.
func (a *App) Run(ctx context.Context) error {
	if err := a.gateway.Connect(ctx); err != nil {
		a.notifyAdmin(fmt.Sprintf("I could not connect: %v", err))
		return errors.Join(fmt.Errorf("connecting %s: %w", a.gateway.Name(), err), a.shutdown())
	}

	if a.hub.Config().Backend == store.BackendFile {
		interval := a.hub.Config().FlushInterval
		if err := a.jobs.Every(flushJob, interval, func(context.Context) {
			if err := a.hub.FlushAll(); err != nil {
				a.logger.Warn("periodic flush failed", "error", err)
			}
		}); err != nil {
			a.logger.Warn("failed to schedule store flush", "error", err)
		}
	}
	a.jobs.Start()

	started := a.modules.StartAll(ctx, a.buildModules()...)
	a.logger.Info("bot running",
		"gateway", a.gateway.Name(),
		"prefix", a.router.Settings().Prefix,
		"modules", started,
	)

	err := a.router.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, a.shutdown())
}

func (a *App) buildModules() []bot.Module {
	mods := []bot.Module{bot.NewCore(a.router, a.registry, a.modules)}

	if a.cfg.Gametime.Enabled {
		mods = append(mods, gametime.New(a.cfg.Gametime, a.hub, a.registry, a.clock, a.logger))
	}
	if a.cfg.Reminder.Enabled {
		mods = append(mods, reminder.New(a.cfg.Reminder, a.hub, a.registry, a.gateway, a.clock, a.logger))
	}
	if a.cfg.Music.Enabled {
		admin := func() string { return a.router.Settings().AdminID }
		mods = append(mods, music.New(a.cfg.Music, a.hub, a.registry, a.gateway, admin, a.logger, a.musicOpts...))
	}
	return mods
}

// shutdown stops the modules, then storage, then the gateway.
func (a *App) shutdown() error {
	a.logger.Info("shutting down")
	ctx := context.Background()

	a.modules.StopAll(ctx)

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	jobsCtx, cancel := context.WithTimeout(ctx, timeout)
	a.jobs.Stop(jobsCtx)
	cancel()

	var errs []error
	if err := a.hub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if err := a.gateway.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnecting: %w", err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// notifyAdmin sends text to the admin by direct message, best effort.
func (a *App) notifyAdmin(text string) {
	admin := a.router.Settings().AdminID
	if admin == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := a.gateway.SendDirect(ctx, admin, text); err != nil {
		a.logger.Warn("failed to notify admin", "error", err)
	}
}
