// Package channeltest provides an in-memory gateway for tests.
package channeltest

import (
	"context"
	"io"
	"sync"

	"github.com/jholhewres/gobot/pkg/gobot/channels"
)

// Sent is one message recorded by the fake gateway.
type Sent struct {
	To     string
	Text   string
	Direct bool
}

// Gateway records outbound traffic and lets tests push events.
type Gateway struct {
	mu        sync.Mutex
	events    chan channels.Event
	sent      []Sent
	invites   []string
	servers   []channels.Server
	connected bool

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	// Voice is returned by JoinVoice; a nil Voice yields a recording fake.
	Voice *Voice
}

// New returns a fake gateway with the given servers.
func New(servers ...channels.Server) *Gateway {
	return &Gateway{events: make(chan channels.Event, 64), servers: servers}
}

func (g *Gateway) Name() string { return "test" }

func (g *Gateway) Connect(context.Context) error {
	if g.ConnectErr != nil {
		return g.ConnectErr
	}
	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()
	return nil
}

func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connected {
		g.connected = false
		close(g.events)
	}
	return nil
}

func (g *Gateway) Events() <-chan channels.Event { return g.events }

// Push queues an inbound event.
func (g *Gateway) Push(ev channels.Event) { g.events <- ev }

func (g *Gateway) Send(_ context.Context, channelID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, Sent{To: channelID, Text: text})
	return nil
}

func (g *Gateway) SendDirect(_ context.Context, userID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, Sent{To: userID, Text: text, Direct: true})
	return nil
}

func (g *Gateway) AcceptInvite(_ context.Context, code string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invites = append(g.invites, code)
	return nil
}

func (g *Gateway) JoinVoice(_ context.Context, guildID, channelID string) (channels.VoiceConnection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Voice == nil {
		g.Voice = &Voice{}
	}
	g.Voice.mu.Lock()
	g.Voice.Joined = append(g.Voice.Joined, guildID+"/"+channelID)
	g.Voice.mu.Unlock()
	return g.Voice, nil
}

func (g *Gateway) Servers() []channels.Server { return g.servers }

func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Sent returns a copy of everything sent so far.
func (g *Gateway) Sent() []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Sent(nil), g.sent...)
}

// Texts returns the text of everything sent so far.
func (g *Gateway) Texts() []string {
	var texts []string
	for _, s := range g.Sent() {
		texts = append(texts, s.Text)
	}
	return texts
}

// Invites returns the accepted invite codes.
func (g *Gateway) Invites() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.invites...)
}

// Voice is a fake voice connection. Play blocks until ctx is done or the
// reader is drained.
type Voice struct {
	mu           sync.Mutex
	Joined       []string
	Played       int
	Disconnected int
}

func (v *Voice) Play(ctx context.Context, r io.Reader) error {
	v.mu.Lock()
	v.Played++
	v.mu.Unlock()
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, r)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *Voice) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Disconnected++
	return nil
}

// Stats returns how often Play and Disconnect were called.
func (v *Voice) Stats() (played, disconnected int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Played, v.Disconnected
}
