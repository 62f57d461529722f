package discord

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/gobot/pkg/gobot/channels"
)

// dcaMagic opens a DCA1 stream; legacy streams start directly with frames.
const dcaMagic = "DCA1"

// maxFrameSize bounds a single opus frame.
const maxFrameSize = 4096

var errBadFrame = errors.New("malformed dca frame")

// JoinVoice connects to a voice channel, deafened.
func (d *Discord) JoinVoice(ctx context.Context, guildID, channelID string) (channels.VoiceConnection, error) {
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()
	if session == nil || !d.connected.Load() {
		return nil, channels.ErrChannelDisconnected
	}

	vc, err := session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("joining voice channel %s: %w", channelID, err)
	}
	d.logger.Info("joined voice channel", "guild", guildID, "channel", channelID)
	return &voice{vc: vc}, nil
}

type voice struct {
	vc *discordgo.VoiceConnection
}

// Play streams DCA frames into the voice connection.
func (v *voice) Play(ctx context.Context, r io.Reader) error {
	if err := v.vc.Speaking(true); err != nil {
		return fmt.Errorf("speaking: %w", err)
	}
	defer v.vc.Speaking(false)

	frames := newFrameReader(r)
	for {
		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case v.vc.OpusSend <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (v *voice) Disconnect() error { return v.vc.Disconnect() }

// frameReader decodes a DCA stream: an optional "DCA1" header followed by
// frames, each an int16 little-endian length and that many opus bytes.
type frameReader struct {
	r      *bufio.Reader
	header bool
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

// Next returns the next opus frame, or io.EOF at the end of the stream.
func (f *frameReader) Next() ([]byte, error) {
	if !f.header {
		f.header = true
		if err := f.skipHeader(); err != nil {
			return nil, err
		}
	}

	var size int16
	if err := binary.Read(f.r, binary.LittleEndian, &size); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	if size <= 0 || size > maxFrameSize {
		return nil, fmt.Errorf("%w: size %d", errBadFrame, size)
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(f.r, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	return frame, nil
}

func (f *frameReader) skipHeader() error {
	magic, err := f.r.Peek(len(dcaMagic))
	if err != nil || string(magic) != dcaMagic {
		return nil
	}
	if _, err := f.r.Discard(len(dcaMagic)); err != nil {
		return err
	}
	var metaLen int32
	if err := binary.Read(f.r, binary.LittleEndian, &metaLen); err != nil {
		return fmt.Errorf("%w: header: %v", errBadFrame, err)
	}
	if metaLen < 0 {
		return fmt.Errorf("%w: header size %d", errBadFrame, metaLen)
	}
	_, err = f.r.Discard(int(metaLen))
	return err
}
