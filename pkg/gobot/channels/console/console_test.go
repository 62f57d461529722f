package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/gobot/pkg/gobot/channels"
)

func TestParse(t *testing.T) {
	c := New(Config{UserID: "42", UserName: "ana"}, nil)

	tests := []struct {
		name  string
		line  string
		check func(t *testing.T, ev channels.Event)
	}{
		{
			name: "channel message",
			line: "!go help",
			check: func(t *testing.T, ev channels.Event) {
				require.Equal(t, channels.EventMessage, ev.Type)
				assert.Equal(t, "!go help", ev.Message.Content)
				assert.Equal(t, "42", ev.Message.From)
				assert.True(t, ev.Message.IsGroup)
				assert.Equal(t, ServerID, ev.Message.GuildID)
			},
		},
		{
			name: "direct message",
			line: "/dm discord.gg/abc",
			check: func(t *testing.T, ev channels.Event) {
				require.Equal(t, channels.EventMessage, ev.Type)
				assert.Equal(t, "discord.gg/abc", ev.Message.Content)
				assert.False(t, ev.Message.IsGroup)
				assert.Empty(t, ev.Message.GuildID)
			},
		},
		{
			name: "presence start",
			line: "/presence Chess Online",
			check: func(t *testing.T, ev channels.Event) {
				require.Equal(t, channels.EventPresence, ev.Type)
				assert.Equal(t, "Chess Online", ev.Presence.Activity)
				assert.Equal(t, "42", ev.Presence.UserID)
			},
		},
		{
			name: "presence end",
			line: "/presence",
			check: func(t *testing.T, ev channels.Event) {
				require.Equal(t, channels.EventPresence, ev.Type)
				assert.Empty(t, ev.Presence.Activity)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := c.parse(tt.line)
			require.True(t, ok)
			tt.check(t, ev)
		})
	}

	_, ok := c.parse("")
	assert.False(t, ok)
}

func TestSendRequiresConnection(t *testing.T) {
	c := New(Config{}, nil)
	assert.ErrorIs(t, c.Send(context.Background(), ChatID, "hi"), channels.ErrChannelDisconnected)
	_, err := c.JoinVoice(context.Background(), ServerID, VoiceChannel)
	assert.ErrorIs(t, err, channels.ErrChannelDisconnected)
}

func TestOutputAndVoice(t *testing.T) {
	var out bytes.Buffer
	c := New(Config{}, nil)
	c.out = &out
	c.connected.Store(true)

	ctx := context.Background()
	require.NoError(t, c.Send(ctx, ChatID, "pong"))
	require.NoError(t, c.SendDirect(ctx, "42", "secret"))

	server := c.Servers()[0]
	vc, ok := server.FindVoiceChannel(VoiceChannel)
	require.True(t, ok)

	conn, err := c.JoinVoice(ctx, server.ID, vc.ID)
	require.NoError(t, err)
	require.NoError(t, conn.Play(ctx, strings.NewReader("abcd")))
	require.NoError(t, conn.Disconnect())

	text := out.String()
	assert.Contains(t, text, "[#console] pong")
	assert.Contains(t, text, "[dm @42] secret")
	assert.Contains(t, text, "[voice] played 4 bytes")
	assert.Contains(t, text, "[voice] left")
}
