// Package bot implements the command dispatch framework: the command
// registry, the event router and the module manager.
package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jholhewres/gobot/pkg/gobot/channels"
)

var (
	// ErrArgsMismatch is returned by Invoke when the argument text does not
	// match the command pattern. The router treats it as a silent abort.
	ErrArgsMismatch = errors.New("arguments do not match command pattern")

	// ErrCommandExists is returned when registering a duplicate name.
	ErrCommandExists = errors.New("command already registered")

	// ErrCommandNotFound is returned when removing an unknown command.
	ErrCommandNotFound = errors.New("command not found")
)

// Handler runs a command.
type Handler func(ctx context.Context, req *Request) error

// Command is a named, optionally admin-only chat command.
type Command struct {
	// Name is the word following the prefix.
	Name string

	// Usage is the argument synopsis shown by help, e.g. "<duration> [message]".
	Usage string

	// Help is a one-line description shown by help.
	Help string

	// AdminOnly restricts the command to the configured admin.
	AdminOnly bool

	// Pattern, when set, must match the argument text. Its named groups
	// become Request.Args.
	Pattern *regexp.Regexp

	Handler Handler
}

// Request is a single command invocation.
type Request struct {
	// Message is the message that triggered the command.
	Message *channels.IncomingMessage

	// Args holds the named groups of the pattern that took part in the match.
	Args map[string]string

	// Text is the raw argument text after the command name.
	Text string

	gateway channels.Gateway
}

// NewRequest builds a request replying through gw.
func NewRequest(gw channels.Gateway, msg *channels.IncomingMessage, text string, args map[string]string) *Request {
	if args == nil {
		args = map[string]string{}
	}
	return &Request{Message: msg, Args: args, Text: text, gateway: gw}
}

// Author returns the id of the user who sent the command.
func (r *Request) Author() string { return r.Message.From }

// Reply posts text to the channel the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.gateway.Send(ctx, r.Message.ChatID, text)
}

// ReplyDirect posts text to the author's private channel.
func (r *Request) ReplyDirect(ctx context.Context, text string) error {
	return r.gateway.SendDirect(ctx, r.Message.From, text)
}

// Gateway returns the gateway the request arrived on.
func (r *Request) Gateway() channels.Gateway { return r.gateway }

// Invoke matches text against the command pattern and runs the handler.
func (c *Command) Invoke(ctx context.Context, gw channels.Gateway, msg *channels.IncomingMessage, text string) error {
	args, ok := c.Match(text)
	if !ok {
		return ErrArgsMismatch
	}
	return c.Handler(ctx, NewRequest(gw, msg, text, args))
}

// Match extracts the named groups of the pattern from text. Groups that did
// not participate in the match are left out.
func (c *Command) Match(text string) (map[string]string, bool) {
	args := map[string]string{}
	if c.Pattern == nil {
		return args, true
	}
	loc := c.Pattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, false
	}
	for i, name := range c.Pattern.SubexpNames() {
		if i == 0 || name == "" || loc[2*i] < 0 {
			continue
		}
		args[name] = text[loc[2*i]:loc[2*i+1]]
	}
	return args, true
}

func (c *Command) validate() error {
	if c.Name == "" {
		return fmt.Errorf("command name is required")
	}
	if c.Handler == nil {
		return fmt.Errorf("command %q has no handler", c.Name)
	}
	return nil
}
