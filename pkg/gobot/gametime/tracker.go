// Package gametime tracks how long users spend on each activity, as
// reported by presence updates, and answers the played command.
package gametime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jholhewres/gobot/pkg/gobot/clock"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

// startTimeKey records when tracking began, in unix seconds.
const startTimeKey = "start_time"

// Played maps an activity name to accumulated seconds.
type Played map[string]int64

// Activities returns the activity names sorted alphabetically.
func (p Played) Activities() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// session is one live activity of a user.
type session struct {
	activity string
	started  time.Time
	done     chan struct{}
	ended    bool
}

// Tracker holds at most one live session per user and accumulates the
// elapsed whole seconds into the store when a session ends.
type Tracker struct {
	store    store.Store
	clock    clock.Clock
	sessions map[string]*session
	wg       sync.WaitGroup
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewTracker creates a tracker writing to st.
func NewTracker(st store.Store, clk clock.Clock, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:    st,
		clock:    clk,
		sessions: make(map[string]*session),
		logger:   logger,
	}
}

// Start opens a session for the user. It is a no-op while the user already
// has a live session.
func (t *Tracker) Start(userID, activity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[userID]; ok && !s.ended {
		return
	}
	s := &session{
		activity: activity,
		started:  t.clock.Now(),
		done:     make(chan struct{}),
	}
	t.sessions[userID] = s
	t.wg.Add(1)
	go t.wait(userID, s)

	t.logger.Debug("session started", "user", userID, "activity", activity)
}

// Done ends the user's live session, if any.
func (t *Tracker) Done(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[userID]; ok {
		t.end(s)
	}
}

// IsActive reports whether the user has a live session.
func (t *Tracker) IsActive(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[userID]
	return ok && !s.ended
}

// ActiveCount returns the number of live sessions.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sessions {
		if !s.ended {
			n++
		}
	}
	return n
}

// Close ends every session and waits until their time is written or ctx
// is done.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	n := 0
	for _, s := range t.sessions {
		if !s.ended {
			n++
		}
		t.end(s)
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Debug("sessions flushed", "count", n)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush sessions: %w", ctx.Err())
	}
}

// end signals a session exactly once (caller must hold mu).
func (t *Tracker) end(s *session) {
	if !s.ended {
		s.ended = true
		close(s.done)
	}
}

// wait blocks until the session ends, writes its time and then releases
// the user.
func (t *Tracker) wait(userID string, s *session) {
	defer t.wg.Done()
	<-s.done

	seconds := int64(t.clock.Now().Sub(s.started) / time.Second)
	if seconds > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := Add(ctx, t.store, userID, s.activity, seconds); err != nil {
			t.logger.Error("failed to save played time", "user", userID, "activity", s.activity, "error", err)
		}
		cancel()
	}
	t.logger.Debug("session ended", "user", userID, "activity", s.activity, "seconds", seconds)

	t.mu.Lock()
	if t.sessions[userID] == s {
		delete(t.sessions, userID)
	}
	t.mu.Unlock()
}

// Add accumulates seconds of activity for a user.
func Add(ctx context.Context, st store.Store, userID, activity string, seconds int64) error {
	return store.UpdateJSON(ctx, st, userID, func(p *Played) error {
		if *p == nil {
			*p = Played{}
		}
		(*p)[activity] += seconds
		return nil
	})
}

// Get returns the played time of a user; a user with no history gets an
// empty map.
func Get(ctx context.Context, st store.Store, userID string) (Played, error) {
	var p Played
	if _, err := st.Get(ctx, userID, &p); err != nil {
		return nil, err
	}
	if p == nil {
		p = Played{}
	}
	return p, nil
}

// Since returns when tracking began, if recorded.
func Since(ctx context.Context, st store.Store) (time.Time, bool, error) {
	var unix int64
	ok, err := st.Get(ctx, startTimeKey, &unix)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0), true, nil
}
