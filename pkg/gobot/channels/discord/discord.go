// Package discord implements the gateway on top of discordgo.
//
// Features:
//   - Guild and direct text messages
//   - Presence tracking (what users are playing)
//   - Invite acceptance
//   - Voice channel playback of DCA-framed opus streams
//   - Automatic reconnection via discordgo's gateway
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/gobot/pkg/gobot/channels"
)

// messageLimit is Discord's maximum message length.
const messageLimit = 2000

// Config holds Discord gateway configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token" toml:"token"`

	// Status is shown as the bot's own activity, e.g. "!go help".
	Status string `yaml:"status" toml:"status"`

	// EventBuffer is the size of the inbound event queue (default: 256).
	EventBuffer int `yaml:"event_buffer" toml:"event_buffer"`
}

// Discord implements channels.Gateway.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	// events carries inbound events to the router.
	events chan channels.Event
	closed bool

	// connected tracks connection state.
	connected atomic.Bool

	mu sync.RWMutex
}

// New creates a new Discord gateway.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	return &Discord{
		cfg:    cfg,
		logger: logger.With("component", "discord"),
		events: make(chan channels.Event, cfg.EventBuffer),
	}
}

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection. When the socket
// cannot be opened the REST session is kept, so direct messages can still
// be sent to report the failure.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("%w: discord bot token is required", channels.ErrConnectionFailed)
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("%w: creating session: %v", channels.ErrConnectionFailed, err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildPresences |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates

	session.AddHandler(d.onReady)
	session.AddHandler(d.onGuildCreate)
	session.AddHandler(d.onPresenceUpdate)
	session.AddHandler(d.onMessageCreate)

	d.mu.Lock()
	d.session = session
	d.mu.Unlock()

	if err := session.Open(); err != nil {
		return fmt.Errorf("%w: opening gateway: %v", channels.ErrConnectionFailed, err)
	}
	d.connected.Store(true)

	if d.cfg.Status != "" {
		if err := session.UpdateGameStatus(0, d.cfg.Status); err != nil {
			d.logger.Warn("failed to set status", "error", err)
		}
	}

	user := session.State.User
	d.logger.Info("connected", "bot", user.Username, "id", user.ID)
	return nil
}

// Disconnect closes the gateway connection and the event stream.
func (d *Discord) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.session != nil {
		err = d.session.Close()
	}
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.connected.Store(false)
	d.logger.Info("disconnected")
	return err
}

// Events returns the inbound event stream.
func (d *Discord) Events() <-chan channels.Event { return d.events }

// Send sends text to a channel, split into chunks of at most 2000 characters.
func (d *Discord) Send(ctx context.Context, channelID, text string) error {
	session := d.rest()
	if session == nil {
		return channels.ErrChannelDisconnected
	}
	for _, chunk := range splitDiscordMessage(text, messageLimit) {
		if _, err := session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("%w: %v", channels.ErrSendFailed, err)
		}
	}
	return nil
}

// SendDirect sends text to a user's private channel.
func (d *Discord) SendDirect(ctx context.Context, userID, text string) error {
	session := d.rest()
	if session == nil {
		return channels.ErrChannelDisconnected
	}
	ch, err := session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: opening private channel: %v", channels.ErrSendFailed, err)
	}
	return d.Send(ctx, ch.ID, text)
}

// AcceptInvite joins a server by invite code.
func (d *Discord) AcceptInvite(ctx context.Context, code string) error {
	session := d.rest()
	if session == nil {
		return channels.ErrChannelDisconnected
	}
	_, err := session.InviteAccept(code, discordgo.WithContext(ctx))
	return err
}

// Servers lists the guilds in the session state.
func (d *Discord) Servers() []channels.Server {
	session := d.rest()
	if session == nil || session.State == nil {
		return nil
	}
	session.State.RLock()
	defer session.State.RUnlock()

	servers := make([]channels.Server, 0, len(session.State.Guilds))
	for _, g := range session.State.Guilds {
		servers = append(servers, toServer(g))
	}
	return servers
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

func (d *Discord) rest() *discordgo.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

// ---------- Event Handlers ----------

func (d *Discord) onReady(s *discordgo.Session, r *discordgo.Ready) {
	d.logger.Info("gateway ready", "guilds", len(r.Guilds))
}

// onGuildCreate reports the presences of a guild that became available.
func (d *Discord) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	presences := make([]channels.PresenceUpdate, 0, len(g.Presences))
	for _, p := range g.Presences {
		if p.User == nil {
			continue
		}
		presences = append(presences, channels.PresenceUpdate{
			UserID:   p.User.ID,
			GuildID:  g.ID,
			Activity: gameName(p.Activities),
		})
	}
	d.emit(channels.Event{Type: channels.EventReady, Ready: &channels.ReadyEvent{Presences: presences}})
}

func (d *Discord) onPresenceUpdate(s *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p.User == nil {
		return
	}
	d.emit(channels.Event{
		Type: channels.EventPresence,
		Presence: &channels.PresenceUpdate{
			UserID:   p.User.ID,
			GuildID:  p.GuildID,
			Activity: gameName(p.Activities),
		},
	})
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	d.emit(channels.Event{
		Type: channels.EventMessage,
		Message: &channels.IncomingMessage{
			ID:        m.ID,
			From:      m.Author.ID,
			FromName:  m.Author.Username,
			ChatID:    m.ChannelID,
			GuildID:   m.GuildID,
			IsGroup:   m.GuildID != "",
			Content:   m.Content,
			Timestamp: m.Timestamp,
		},
	})
}

// emit queues an event, dropping it if the buffer is full.
func (d *Discord) emit(ev channels.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("event buffer full, dropping event", "type", ev.Type)
	}
}

// ---------- Helpers ----------

// gameName returns the name of the first "playing" activity.
func gameName(activities []*discordgo.Activity) string {
	for _, a := range activities {
		if a != nil && a.Type == discordgo.ActivityTypeGame {
			return a.Name
		}
	}
	return ""
}

func toServer(g *discordgo.Guild) channels.Server {
	s := channels.Server{ID: g.ID, Name: g.Name, MemberCount: g.MemberCount}
	for _, c := range g.Channels {
		if c.Type == discordgo.ChannelTypeGuildVoice {
			s.VoiceChannels = append(s.VoiceChannels, channels.VoiceChannel{ID: c.ID, Name: c.Name})
		}
	}
	return s
}

// splitDiscordMessage splits a message into chunks of at most maxLen
// characters, preferring to cut after a newline in the second half.
func splitDiscordMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}
		cutAt := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				cutAt = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cutAt]))
		runes = runes[cutAt:]
	}
	return chunks
}

// Compile-time interface verification.
var _ channels.Gateway = (*Discord)(nil)
