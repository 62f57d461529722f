// Package scheduler runs one-shot timers keyed by id and recurring jobs.
// One-shot timers go through an injectable clock; recurring jobs use
// robfig/cron @every specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/gobot/pkg/gobot/clock"
)

var (
	// ErrJobExists is returned when an id is already armed.
	ErrJobExists = errors.New("job already scheduled")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

// Func is the work run when a job fires.
type Func func(ctx context.Context)

// Scheduler manages one-shot and recurring jobs.
type Scheduler struct {
	clock clock.Clock

	// timers holds armed one-shot jobs by id.
	timers map[string]clock.Timer

	// cron runs the recurring jobs.
	cron *cron.Cron

	// cronIDs maps recurring job names to their cron entries.
	cronIDs map[string]cron.EntryID

	// jobTimeout bounds a single execution.
	jobTimeout time.Duration

	stopped bool

	wg     sync.WaitGroup
	logger *slog.Logger
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. A nil clock uses the system clock.
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:      clk,
		timers:     make(map[string]clock.Timer),
		cron:       cron.New(),
		cronIDs:    make(map[string]cron.EntryID),
		jobTimeout: time.Minute,
		logger:     logger.With("component", "scheduler"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() clock.Clock { return s.clock }

// At arms fn to run once at the given time. A time in the past fires
// immediately. The id is released before fn runs.
func (s *Scheduler) At(id string, at time.Time, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, exists := s.timers[id]; exists {
		return fmt.Errorf("%w: %q", ErrJobExists, id)
	}

	delay := at.Sub(s.clock.Now())
	if delay <= 0 {
		s.logger.Debug("one-shot time is in the past, firing now", "id", id)
		delay = 0
	}

	s.wg.Add(1)
	var timer clock.Timer
	timer = s.clock.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		current, ok := s.timers[id]
		if !ok || current != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, id)
		s.mu.Unlock()
		s.execute(id, fn)
	})
	s.timers[id] = timer

	s.logger.Debug("one-shot job scheduled", "id", id, "fires_in", delay.String())
	return nil
}

// Cancel disarms a one-shot job. It reports whether the job was pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[id]
	if !ok {
		return false
	}
	delete(s.timers, id)
	if timer.Stop() {
		s.wg.Done()
	}
	return true
}

// Pending returns the ids of armed one-shot jobs, sorted.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Every registers a recurring job, e.g. Every("flush", 5*time.Second, fn).
func (s *Scheduler) Every(name string, interval time.Duration, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cronIDs[name]; exists {
		return fmt.Errorf("%w: %q", ErrJobExists, name)
	}
	entryID, err := s.cron.AddFunc("@every "+interval.String(), func() {
		s.execute(name, fn)
	})
	if err != nil {
		return fmt.Errorf("invalid interval %s: %w", interval, err)
	}
	s.cronIDs[name] = entryID
	return nil
}

// Remove unregisters a recurring job.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.cronIDs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.cronIDs, name)
	}
}

// Start begins running recurring jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "cron_entries", len(s.cron.Entries()))
}

// Stop disarms every pending one-shot job, stops cron and waits for
// running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-cronDone.Done()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
	s.cancel()
	s.logger.Info("scheduler stopped")
}

// execute runs fn with a timeout, isolating panics.
func (s *Scheduler) execute(id string, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "id", id, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()
	fn(ctx)
}
