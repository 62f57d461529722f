// Package console implements a terminal gateway: every line typed is a
// message from a local user, and replies are printed back. It lets the bot
// be driven without a Discord connection.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/jholhewres/gobot/pkg/gobot/channels"
)

const (
	// ServerID is the id of the single simulated server.
	ServerID = "console"

	// ChatID is the channel lines are posted in.
	ChatID = "console"

	// VoiceChannel is the name of the simulated voice channel.
	VoiceChannel = "speaker"

	presenceCommand = "/presence"
	dmCommand       = "/dm"
)

// Config configures the console gateway.
type Config struct {
	// UserID is the identity lines are sent as.
	UserID string

	// UserName is the display name of the local user.
	UserName string

	// Prompt is the readline prompt.
	Prompt string

	// HistoryFile persists typed lines; empty disables history.
	HistoryFile string

	// Stdin and Stdout override the terminal, mainly for tests.
	Stdin  io.ReadCloser
	Stdout io.Writer
}

// Console implements channels.Gateway over a readline REPL.
type Console struct {
	cfg    Config
	logger *slog.Logger

	rl     *readline.Instance
	out    io.Writer
	events chan channels.Event
	done   chan struct{}
	quit   chan struct{}
	seq    atomic.Int64

	connected atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// New creates a console gateway.
func New(cfg Config, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserID == "" {
		cfg.UserID = "0"
	}
	if cfg.UserName == "" {
		cfg.UserName = "you"
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "\033[36m" + cfg.UserName + ">\033[0m "
	}
	return &Console{
		cfg:    cfg,
		logger: logger.With("component", "console"),
		events: make(chan channels.Event, 64),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
}

// HistoryFile returns the default readline history path.
func HistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".gobot")
	_ = os.MkdirAll(dir, 0o700)
	return filepath.Join(dir, "console_history")
}

func (c *Console) Name() string { return "console" }

// Connect starts the REPL. A ready event is emitted first.
func (c *Console) Connect(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.cfg.Prompt,
		HistoryFile:     c.cfg.HistoryFile,
		HistoryLimit:    1000,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           c.cfg.Stdin,
		Stdout:          c.cfg.Stdout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", channels.ErrConnectionFailed, err)
	}
	c.rl = rl
	c.out = rl.Stdout()
	c.connected.Store(true)

	c.events <- channels.Event{Type: channels.EventReady, Ready: &channels.ReadyEvent{}}

	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// Disconnect stops the REPL and closes the event stream.
func (c *Console) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		if c.rl != nil {
			err = c.rl.Close()
		}
		c.wg.Wait()
		close(c.events)
	})
	return err
}

func (c *Console) Events() <-chan channels.Event { return c.events }

// Quit is closed when the user ends the session (Ctrl+C on an empty line
// or Ctrl+D).
func (c *Console) Quit() <-chan struct{} { return c.quit }

// Send prints text as a channel reply.
func (c *Console) Send(_ context.Context, channelID, text string) error {
	return c.print(fmt.Sprintf("[#%s] %s", channelID, text))
}

// SendDirect prints text as a direct message.
func (c *Console) SendDirect(_ context.Context, userID, text string) error {
	return c.print(fmt.Sprintf("[dm @%s] %s", userID, text))
}

// AcceptInvite only reports the invite.
func (c *Console) AcceptInvite(_ context.Context, code string) error {
	return c.print("[invite] joined " + code)
}

// JoinVoice returns a voice connection that discards audio.
func (c *Console) JoinVoice(_ context.Context, guildID, channelID string) (channels.VoiceConnection, error) {
	if !c.connected.Load() {
		return nil, channels.ErrChannelDisconnected
	}
	_ = c.print(fmt.Sprintf("[voice] joined %s/%s", guildID, channelID))
	return &speaker{console: c}, nil
}

// Servers reports the single simulated server.
func (c *Console) Servers() []channels.Server {
	return []channels.Server{{
		ID:            ServerID,
		Name:          "console",
		MemberCount:   1,
		VoiceChannels: []channels.VoiceChannel{{ID: VoiceChannel, Name: VoiceChannel}},
	}}
}

func (c *Console) IsConnected() bool { return c.connected.Load() }

func (c *Console) print(line string) error {
	if !c.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, line)
	return err
}

func (c *Console) readLoop() {
	defer c.wg.Done()
	defer close(c.quit)
	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("console read failed", "error", err)
			}
			return
		}

		ev, ok := c.parse(strings.TrimSpace(line))
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// parse turns one typed line into an event.
//
//	/presence <activity>  sets what the local user plays; empty stops it
//	/dm <text>            sends text as a direct message
//	anything else         is a message in the console channel
func (c *Console) parse(line string) (channels.Event, bool) {
	if line == "" {
		return channels.Event{}, false
	}

	if line == presenceCommand || strings.HasPrefix(line, presenceCommand+" ") {
		return channels.Event{
			Type: channels.EventPresence,
			Presence: &channels.PresenceUpdate{
				UserID:   c.cfg.UserID,
				GuildID:  ServerID,
				Activity: strings.TrimSpace(strings.TrimPrefix(line, presenceCommand)),
			},
		}, true
	}

	msg := &channels.IncomingMessage{
		ID:        fmt.Sprintf("%d", c.seq.Add(1)),
		From:      c.cfg.UserID,
		FromName:  c.cfg.UserName,
		ChatID:    ChatID,
		GuildID:   ServerID,
		IsGroup:   true,
		Content:   line,
		Timestamp: time.Now(),
	}
	if strings.HasPrefix(line, dmCommand+" ") {
		msg.ChatID = "dm-" + c.cfg.UserID
		msg.GuildID = ""
		msg.IsGroup = false
		msg.Content = strings.TrimSpace(strings.TrimPrefix(line, dmCommand))
	}
	return channels.Event{Type: channels.EventMessage, Message: msg}, true
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(presenceCommand),
		readline.PcItem(dmCommand),
	)
}

// speaker drains the audio stream and reports how much was played.
type speaker struct {
	console *Console
}

func (s *speaker) Play(ctx context.Context, r io.Reader) error {
	n, err := io.Copy(io.Discard, ctxReader{ctx: ctx, r: r})
	_ = s.console.print(fmt.Sprintf("[voice] played %d bytes", n))
	return err
}

func (s *speaker) Disconnect() error {
	return s.console.print("[voice] left")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Compile-time interface verification.
var _ channels.Gateway = (*Console)(nil)
