package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/jholhewres/gobot/pkg/gobot/channels"
)

var inviteRe = regexp.MustCompile(`^(?:https?://)?discord\.gg/(.+)`)

// Settings are the router options that can change at runtime.
type Settings struct {
	// Prefix starts every command, e.g. "!go".
	Prefix string

	// AdminID is the user allowed to run admin commands.
	AdminID string

	// AutoJoinInvites accepts server invites sent by direct message.
	AutoJoinInvites bool
}

// SessionTracker receives presence changes.
type SessionTracker interface {
	Start(userID, activity string)
	Done(userID string)
	IsActive(userID string) bool
	ActiveCount() int
}

// SessionProvider is implemented by the module that owns the session tracker.
type SessionProvider interface {
	Sessions() SessionTracker
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Settings

	// SessionModule is the module that tracks presence sessions.
	SessionModule string

	// CommandTimeout bounds a single command handler.
	CommandTimeout time.Duration
}

// Router is the single entry point for gateway events. Events are handled
// one at a time, in arrival order.
type Router struct {
	gateway        channels.Gateway
	registry       *Registry
	modules        *Manager
	sessionModule  string
	commandTimeout time.Duration

	settings atomic.Pointer[Settings]
	served   atomic.Int64
	started  time.Time

	logger *slog.Logger
}

// NewRouter creates a router dispatching to registry and modules.
func NewRouter(gw channels.Gateway, registry *Registry, modules *Manager, cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	r := &Router{
		gateway:        gw,
		registry:       registry,
		modules:        modules,
		sessionModule:  cfg.SessionModule,
		commandTimeout: cfg.CommandTimeout,
		started:        time.Now(),
		logger:         logger.With("component", "router"),
	}
	settings := cfg.Settings
	r.settings.Store(&settings)
	return r
}

// Settings returns the current settings.
func (r *Router) Settings() Settings { return *r.settings.Load() }

// UpdateSettings swaps the runtime settings.
func (r *Router) UpdateSettings(s Settings) {
	r.settings.Store(&s)
	r.logger.Info("settings updated", "prefix", s.Prefix, "auto_join_invites", s.AutoJoinInvites)
}

// Served returns how many commands were dispatched.
func (r *Router) Served() int64 { return r.served.Load() }

// Uptime returns how long the router has existed.
func (r *Router) Uptime() time.Duration { return time.Since(r.started) }

// Run consumes gateway events until the stream closes or ctx is done.
func (r *Router) Run(ctx context.Context) error {
	events := r.gateway.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Handle(ctx, ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Handle dispatches one event. Panics are recovered and logged.
func (r *Router) Handle(ctx context.Context, ev channels.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panicked", "type", ev.Type, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	switch ev.Type {
	case channels.EventReady:
		if ev.Ready != nil {
			r.OnReady(ev.Ready)
		}
	case channels.EventPresence:
		if ev.Presence != nil {
			r.OnPresenceChange(ev.Presence)
		}
	case channels.EventMessage:
		if ev.Message != nil {
			r.OnMessage(ctx, ev.Message)
		}
	default:
		r.logger.Debug("ignoring event", "type", ev.Type)
	}
}

// OnReady starts a session for every user already playing something.
func (r *Router) OnReady(ev *channels.ReadyEvent) {
	tracker, ok := r.tracker()
	started := 0
	if ok {
		for _, p := range ev.Presences {
			if p.Activity == "" || tracker.IsActive(p.UserID) {
				continue
			}
			tracker.Start(p.UserID, p.Activity)
			started++
		}
	}
	r.logger.Info("everything ready", "sessions", started)
}

// OnPresenceChange starts or ends the user's session.
func (r *Router) OnPresenceChange(p *channels.PresenceUpdate) {
	tracker, ok := r.tracker()
	if !ok {
		return
	}
	active := tracker.IsActive(p.UserID)
	switch {
	case active && p.Activity == "":
		tracker.Done(p.UserID)
	case !active && p.Activity != "":
		tracker.Start(p.UserID, p.Activity)
	}
}

// OnMessage handles invites and commands.
func (r *Router) OnMessage(ctx context.Context, msg *channels.IncomingMessage) {
	settings := r.Settings()

	if settings.AutoJoinInvites && !msg.IsGroup {
		if m := inviteRe.FindStringSubmatch(msg.Content); m != nil && m[1] != "" {
			r.joinInvite(ctx, msg, m[1])
			return
		}
	}

	if !strings.HasPrefix(msg.Content, settings.Prefix) {
		return
	}
	fields := strings.Fields(msg.Content)
	if len(fields) < 2 || fields[0] != settings.Prefix {
		r.logger.Debug("no command in message", "from", msg.From)
		return
	}

	name := fields[1]
	cmd, ok := r.registry.Resolve(name)
	if !ok {
		r.logger.Debug("no handler found", "command", name)
		return
	}
	if cmd.AdminOnly && msg.From != settings.AdminID {
		r.logger.Warn("admin command rejected", "command", name, "from", msg.From)
		return
	}

	r.served.Add(1)
	r.invoke(ctx, cmd, msg, argText(msg.Content, settings.Prefix, name))
}

// argText returns the text after the command name with its inner spacing
// untouched. Only the surrounding whitespace is dropped.
func argText(content, prefix, name string) string {
	rest := strings.TrimLeftFunc(content, unicode.IsSpace)
	rest = strings.TrimPrefix(rest, prefix)
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	rest = strings.TrimPrefix(rest, name)
	return strings.TrimSpace(rest)
}

func (r *Router) invoke(ctx context.Context, cmd *Command, msg *channels.IncomingMessage, text string) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command panicked", "command", cmd.Name, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	err := cmd.Invoke(ctx, r.gateway, msg, text)
	switch {
	case errors.Is(err, ErrArgsMismatch):
		r.logger.Debug("command arguments rejected", "command", cmd.Name, "args", text)
	case err != nil:
		r.logger.Error("command failed", "command", cmd.Name, "from", msg.From, "error", err)
	default:
		r.logger.Debug("command served", "command", cmd.Name, "from", msg.From, "duration", time.Since(start))
	}
}

func (r *Router) joinInvite(ctx context.Context, msg *channels.IncomingMessage, code string) {
	if err := r.gateway.AcceptInvite(ctx, code); err != nil {
		r.logger.Error("failed to accept invite", "code", code, "error", err)
		return
	}
	r.logger.Info("joined server", "invite", code)
	if err := r.gateway.SendDirect(ctx, msg.From, "Joined it, thanks :)"); err != nil {
		r.logger.Warn("failed to confirm invite", "error", fmt.Errorf("%w: %v", channels.ErrSendFailed, err))
	}
}

func (r *Router) tracker() (SessionTracker, bool) {
	if r.sessionModule == "" {
		return nil, false
	}
	p, ok := Lookup[SessionProvider](r.modules, r.sessionModule)
	if !ok {
		return nil, false
	}
	return p.Sessions(), true
}
