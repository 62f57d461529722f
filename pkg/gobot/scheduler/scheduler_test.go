package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/gobot/pkg/gobot/clock"
)

func newTestScheduler() (*Scheduler, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	return New(clk, nil), clk
}

func TestAtFiresOnce(t *testing.T) {
	s, clk := newTestScheduler()
	var fired int32

	require.NoError(t, s.At("abc", clk.Now().Add(time.Hour), func(context.Context) {
		atomic.AddInt32(&fired, 1)
	}))
	assert.Equal(t, []string{"abc"}, s.Pending())

	clk.Advance(59 * time.Minute)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	clk.Advance(time.Minute)
	clk.Advance(time.Hour)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Empty(t, s.Pending())
}

func TestAtPastDueFiresImmediately(t *testing.T) {
	s, clk := newTestScheduler()
	fired := false

	require.NoError(t, s.At("late", clk.Now().Add(-time.Hour), func(context.Context) { fired = true }))
	clk.Advance(0)
	assert.True(t, fired)
}

func TestAtRejectsDuplicateID(t *testing.T) {
	s, clk := newTestScheduler()
	noop := func(context.Context) {}

	require.NoError(t, s.At("dup", clk.Now().Add(time.Minute), noop))
	assert.ErrorIs(t, s.At("dup", clk.Now().Add(time.Minute), noop), ErrJobExists)
}

func TestCancelPreventsFiring(t *testing.T) {
	s, clk := newTestScheduler()
	fired := false

	require.NoError(t, s.At("x", clk.Now().Add(time.Second), func(context.Context) { fired = true }))
	assert.True(t, s.Cancel("x"))
	assert.False(t, s.Cancel("x"))

	clk.Advance(time.Minute)
	assert.False(t, fired)
	assert.Zero(t, clk.Pending())
}

func TestPanicIsIsolated(t *testing.T) {
	s, clk := newTestScheduler()
	after := false

	require.NoError(t, s.At("a", clk.Now().Add(time.Second), func(context.Context) { panic("boom") }))
	require.NoError(t, s.At("b", clk.Now().Add(2*time.Second), func(context.Context) { after = true }))

	assert.NotPanics(t, func() { clk.Advance(5 * time.Second) })
	assert.True(t, after)
}

func TestStopDisarmsAndRejects(t *testing.T) {
	s, clk := newTestScheduler()
	fired := false
	require.NoError(t, s.At("x", clk.Now().Add(time.Second), func(context.Context) { fired = true }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	clk.Advance(time.Minute)
	assert.False(t, fired)
	assert.ErrorIs(t, s.At("y", clk.Now(), func(context.Context) {}), ErrStopped)
}

func TestEveryRunsOnRealClock(t *testing.T) {
	s := New(nil, nil)
	var runs int32
	require.NoError(t, s.Every("tick", time.Second, func(context.Context) { atomic.AddInt32(&runs, 1) }))
	assert.ErrorIs(t, s.Every("tick", time.Second, func(context.Context) {}), ErrJobExists)

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)
}
