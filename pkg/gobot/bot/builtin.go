package bot

import (
	"context"
	"fmt"
	"strings"
)

// SourceURL is where the bot's code lives.
const SourceURL = "https://github.com/jholhewres/gobot"

// Core is the module providing the built-in commands.
type Core struct {
	router   *Router
	registry *Registry
	modules  *Manager
	commands *CommandSet
}

// NewCore creates the built-in command module.
func NewCore(router *Router, registry *Registry, modules *Manager) *Core {
	return &Core{
		router:   router,
		registry: registry,
		modules:  modules,
		commands: NewCommandSet(registry),
	}
}

func (c *Core) Name() string { return "core" }

func (c *Core) Start(context.Context) error {
	return c.commands.Add(
		&Command{Name: "help", Help: "show this help message", Handler: c.help},
		&Command{Name: "info", Help: "show your user id", Handler: c.info},
		&Command{Name: "stats", Help: "show the bot's statistics", Handler: c.stats},
		&Command{Name: "source", Help: "show the bot's source code", Handler: c.source},
	)
}

func (c *Core) Stop(context.Context) error {
	return c.commands.RemoveAll()
}

func (c *Core) help(ctx context.Context, req *Request) error {
	return req.Reply(ctx, c.registry.Help(c.router.Settings().Prefix))
}

func (c *Core) info(ctx context.Context, req *Request) error {
	return req.Reply(ctx, fmt.Sprintf("Your id: `%s`", req.Author()))
}

func (c *Core) source(ctx context.Context, req *Request) error {
	return req.Reply(ctx, SourceURL)
}

func (c *Core) stats(ctx context.Context, req *Request) error {
	servers := req.Gateway().Servers()
	users := 0
	for _, s := range servers {
		users += s.MemberCount
	}
	playing := 0
	if tracker, ok := c.router.tracker(); ok {
		playing = tracker.ActiveCount()
	}

	var b strings.Builder
	b.WriteString("General statistics:\n")
	fmt.Fprintf(&b, "`Uptime            : %s`\n", FormatDuration(c.router.Uptime()))
	fmt.Fprintf(&b, "`Users in touch    : %d in %d servers`\n", users, len(servers))
	fmt.Fprintf(&b, "`Commands answered : %d`\n", c.router.Served())
	fmt.Fprintf(&b, "`Users playing     : %d`", playing)
	return req.Reply(ctx, b.String())
}
