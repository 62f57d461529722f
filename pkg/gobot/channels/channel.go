// Package channels defines the gateway interface the bot talks through and
// the events it emits. The Discord gateway is the production implementation;
// the console gateway drives the bot from a terminal.
package channels

import (
	"context"
	"fmt"
	"io"
	"time"
)

// EventType identifies the kind of gateway event.
type EventType string

const (
	EventReady    EventType = "ready"
	EventMessage  EventType = "message"
	EventPresence EventType = "presence"
)

// Gateway is the connection to the chat platform.
type Gateway interface {
	// Name returns the gateway identifier (e.g. "discord").
	Name() string

	// Connect establishes the connection. Events start flowing after it returns.
	Connect(ctx context.Context) error

	// Disconnect closes the connection and the events channel.
	Disconnect() error

	// Events returns the inbound event stream, in arrival order.
	Events() <-chan Event

	// Send posts text to a channel.
	Send(ctx context.Context, channelID, text string) error

	// SendDirect posts text to a user's private channel.
	SendDirect(ctx context.Context, userID, text string) error

	// AcceptInvite joins a server by invite code.
	AcceptInvite(ctx context.Context, code string) error

	// JoinVoice connects to a voice channel.
	JoinVoice(ctx context.Context, guildID, channelID string) (VoiceConnection, error)

	// Servers lists the servers the bot is a member of.
	Servers() []Server

	// IsConnected returns true if the gateway is connected.
	IsConnected() bool
}

// VoiceConnection is an open voice channel session.
type VoiceConnection interface {
	// Play streams DCA-framed opus audio from r until it is exhausted or
	// ctx is done.
	Play(ctx context.Context, r io.Reader) error

	// Disconnect leaves the voice channel.
	Disconnect() error
}

// Event is one inbound gateway event. Exactly one payload is set,
// matching Type.
type Event struct {
	Type     EventType
	Ready    *ReadyEvent
	Message  *IncomingMessage
	Presence *PresenceUpdate
}

// ReadyEvent is emitted once the connection is established.
type ReadyEvent struct {
	// Presences holds the current presence of every visible user.
	Presences []PresenceUpdate
}

// PresenceUpdate reports a user's current activity.
type PresenceUpdate struct {
	UserID  string
	GuildID string

	// Activity is the name of what the user is playing, empty when idle.
	Activity string
}

// IncomingMessage represents a text message received from the platform.
type IncomingMessage struct {
	// ID is the unique message identifier.
	ID string

	// From is the sender's user id.
	From string

	// FromName is the sender display name.
	FromName string

	// ChatID is the channel the message was posted in.
	ChatID string

	// GuildID is the server the message belongs to, empty for direct messages.
	GuildID string

	// IsGroup is false for direct messages.
	IsGroup bool

	// Content is the text content of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// Server describes a server (guild) the bot is a member of.
type Server struct {
	ID            string
	Name          string
	MemberCount   int
	VoiceChannels []VoiceChannel
}

// VoiceChannel is a joinable voice channel of a server.
type VoiceChannel struct {
	ID   string
	Name string
}

// FindVoiceChannel looks a voice channel up by name.
func (s Server) FindVoiceChannel(name string) (VoiceChannel, bool) {
	for _, vc := range s.VoiceChannels {
		if vc.Name == name {
			return vc, true
		}
	}
	return VoiceChannel{}, false
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("gateway is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
	ErrConnectionFailed    = fmt.Errorf("failed to connect to gateway")
	ErrVoiceNotSupported   = fmt.Errorf("voice not supported by this gateway")
)
