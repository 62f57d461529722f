package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrModuleExists is returned when a module name is already managed.
var ErrModuleExists = errors.New("module already started")

// Module is an independently started and stopped unit of functionality.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// State is the lifecycle state of a module.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateFailedStart
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailedStart:
		return "failed_start"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type moduleEntry struct {
	module Module
	state  State
	err    error
}

// Manager starts modules, isolates their failures and stops them within a
// bounded time.
type Manager struct {
	entries map[string]*moduleEntry
	order   []string
	timeout time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
}

// NewManager creates a manager whose StopAll waits at most timeout.
func NewManager(timeout time.Duration, logger *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		entries: make(map[string]*moduleEntry),
		timeout: timeout,
		logger:  logger.With("component", "modules"),
	}
}

// Start starts a module. A failing module is recorded as FailedStart and is
// never returned by Get; the error is returned for the caller to log.
func (m *Manager) Start(ctx context.Context, mod Module) error {
	name := mod.Name()

	m.mu.Lock()
	if e, ok := m.entries[name]; ok && (e.state == StateRunning || e.state == StateStarting) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrModuleExists, name)
	}
	entry := &moduleEntry{module: mod, state: StateStarting}
	if _, ok := m.entries[name]; !ok {
		m.order = append(m.order, name)
	}
	m.entries[name] = entry
	m.mu.Unlock()

	err := mod.Start(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		entry.state = StateFailedStart
		entry.err = err
		m.logger.Error("module failed to start", "module", name, "error", err)
		return fmt.Errorf("start module %q: %w", name, err)
	}
	entry.state = StateRunning
	m.logger.Info("module started", "module", name)
	return nil
}

// StartAll starts every module, skipping the ones that fail.
// It returns the names of the modules that are running.
func (m *Manager) StartAll(ctx context.Context, mods ...Module) []string {
	var started []string
	for _, mod := range mods {
		if err := m.Start(ctx, mod); err == nil {
			started = append(started, mod.Name())
		}
	}
	return started
}

// Get returns a running module by name.
func (m *Manager) Get(name string) (Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok || e.state != StateRunning {
		return nil, false
	}
	return e.module, true
}

// State returns the lifecycle state of a module.
func (m *Manager) State(name string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Names lists the running modules in start order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, name := range m.order {
		if m.entries[name].state == StateRunning {
			names = append(names, name)
		}
	}
	return names
}

// Lookup returns the running module registered under name if it implements T.
func Lookup[T any](m *Manager, name string) (T, bool) {
	var zero T
	mod, ok := m.Get(name)
	if !ok {
		return zero, false
	}
	t, ok := mod.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// StopAll stops every running module concurrently and waits until they are
// all stopped, ctx is done or the manager timeout elapses. Modules still
// stopping after that are abandoned and logged.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	var running []*moduleEntry
	for _, name := range m.order {
		e := m.entries[name]
		if e.state == StateRunning {
			e.state = StateStopping
			running = append(running, e)
		}
	}
	m.mu.Unlock()

	if len(running) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, e := range running {
		wg.Add(1)
		go func(e *moduleEntry) {
			defer wg.Done()
			name := e.module.Name()
			if err := e.module.Stop(ctx); err != nil {
				m.logger.Error("module stop failed", "module", name, "error", err)
			}
			m.mu.Lock()
			e.state = StateStopped
			m.mu.Unlock()
			m.logger.Debug("module stopped", "module", name)
		}(e)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all modules stopped")
	case <-ctx.Done():
		m.mu.RLock()
		var pending []string
		for _, e := range running {
			if e.state == StateStopping {
				pending = append(pending, e.module.Name())
			}
		}
		m.mu.RUnlock()
		sort.Strings(pending)
		m.logger.Warn("module stop timed out", "pending", pending)
	}
}
