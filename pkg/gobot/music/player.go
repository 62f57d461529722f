package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ErrAlreadyPlaying is returned when a song is already playing.
var ErrAlreadyPlaying = errors.New("something already playing")

// Source opens the audio stream of a URL as DCA-framed opus.
type Source interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// CommandSource runs an external command and reads its standard output.
// The literal argument "{url}" is replaced by the requested URL.
type CommandSource struct {
	Args []string
}

func (s CommandSource) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	if len(s.Args) == 0 {
		return nil, fmt.Errorf("no stream command configured")
	}
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = strings.ReplaceAll(a, "{url}", url)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}
	return &commandStream{ReadCloser: stdout, cmd: cmd}, nil
}

type commandStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *commandStream) Close() error {
	s.ReadCloser.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	return nil
}

// player plays one song at a time.
type player struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// start runs play in the background unless something is already playing.
func (p *player) start(parent context.Context, play func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrAlreadyPlaying
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		play(ctx)

		p.mu.Lock()
		if p.done == done {
			p.cancel, p.done = nil, nil
		}
		p.mu.Unlock()
	}()
	return nil
}

// stop ends the current song and waits for it to finish or ctx to end.
// It reports whether something was playing.
func (p *player) stop(ctx context.Context) bool {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return true
}

func (p *player) playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
