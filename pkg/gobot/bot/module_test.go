package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testModule struct {
	name     string
	startErr error
	stopWait time.Duration

	mu      sync.Mutex
	stopped bool
}

func (m *testModule) Name() string { return m.name }

func (m *testModule) Start(context.Context) error { return m.startErr }

func (m *testModule) Stop(ctx context.Context) error {
	select {
	case <-time.After(m.stopWait):
	case <-ctx.Done():
		return ctx.Err()
	}
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return nil
}

func (m *testModule) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func TestManagerSkipsFailedModules(t *testing.T) {
	t.Parallel()
	m := NewManager(time.Second, nil)

	good := &testModule{name: "reminder"}
	bad := &testModule{name: "music", startErr: errors.New("opus missing")}

	started := m.StartAll(context.Background(), bad, good)
	assert.Equal(t, []string{"reminder"}, started)

	_, ok := m.Get("music")
	assert.False(t, ok)
	state, _ := m.State("music")
	assert.Equal(t, StateFailedStart, state)

	mod, ok := m.Get("reminder")
	require.True(t, ok)
	assert.Same(t, good, mod)
	assert.Equal(t, []string{"reminder"}, m.Names())
}

func TestManagerRejectsDoubleStart(t *testing.T) {
	t.Parallel()
	m := NewManager(time.Second, nil)
	require.NoError(t, m.Start(context.Background(), &testModule{name: "gametime"}))
	assert.ErrorIs(t, m.Start(context.Background(), &testModule{name: "gametime"}), ErrModuleExists)
}

func TestManagerStopAllConcurrent(t *testing.T) {
	t.Parallel()
	m := NewManager(2*time.Second, nil)
	a := &testModule{name: "a", stopWait: 300 * time.Millisecond}
	b := &testModule{name: "b", stopWait: 300 * time.Millisecond}
	m.StartAll(context.Background(), a, b)

	start := time.Now()
	m.StopAll(context.Background())

	assert.Less(t, time.Since(start), 550*time.Millisecond, "modules should stop in parallel")
	assert.True(t, a.isStopped())
	assert.True(t, b.isStopped())
	_, ok := m.Get("a")
	assert.False(t, ok)
	state, _ := m.State("b")
	assert.Equal(t, StateStopped, state)
}

func TestManagerStopAllIsBounded(t *testing.T) {
	t.Parallel()
	m := NewManager(100*time.Millisecond, nil)
	slow := &testModule{name: "slow", stopWait: time.Hour}
	m.StartAll(context.Background(), slow)

	start := time.Now()
	m.StopAll(context.Background())
	assert.Less(t, time.Since(start), time.Second)
}

func TestLookup(t *testing.T) {
	t.Parallel()
	m := NewManager(time.Second, nil)
	m.StartAll(context.Background(), &testModule{name: "a"})

	_, ok := Lookup[interface{ Name() string }](m, "a")
	assert.True(t, ok)
	_, ok = Lookup[SessionProvider](m, "a")
	assert.False(t, ok)
	_, ok = Lookup[SessionProvider](m, "missing")
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "failed_start", StateFailedStart.String())
	assert.Equal(t, "state(42)", State(42).String())
}
