package gametime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/gobot/pkg/gobot/bot"
	"github.com/jholhewres/gobot/pkg/gobot/channels"
	"github.com/jholhewres/gobot/pkg/gobot/channels/channeltest"
	"github.com/jholhewres/gobot/pkg/gobot/clock"
	"github.com/jholhewres/gobot/pkg/gobot/store"
)

func flush(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Close(ctx))
}

func TestTrackerAccumulatesWholeSeconds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory(ModuleName)
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	require.NoError(t, st.Put(ctx, "42", Played{"Doom": 5, "Quake": 7}))

	tr := NewTracker(st, clk, nil)
	tr.Start("42", "Doom")
	clk.Advance(10*time.Second + 900*time.Millisecond)
	tr.Done("42")
	flush(t, tr)

	played, err := Get(ctx, st, "42")
	require.NoError(t, err)
	assert.Equal(t, Played{"Doom": 15, "Quake": 7}, played)
	assert.False(t, tr.IsActive("42"))
}

func TestTrackerTenSecondSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory(ModuleName)
	clk := clock.NewFake(time.Unix(0, 0))

	tr := NewTracker(st, clk, nil)
	tr.Start("7", "Factorio")
	clk.Advance(10 * time.Second)
	tr.Done("7")
	flush(t, tr)

	played, err := Get(ctx, st, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(10), played["Factorio"])
}

func TestTrackerOneSessionPerUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory(ModuleName)
	clk := clock.NewFake(time.Unix(0, 0))

	tr := NewTracker(st, clk, nil)
	tr.Start("1", "Doom")
	clk.Advance(3 * time.Second)
	tr.Start("1", "Quake")
	assert.Equal(t, 1, tr.ActiveCount())

	clk.Advance(2 * time.Second)
	tr.Done("1")
	tr.Done("1")
	tr.Done("unknown")
	flush(t, tr)

	played, err := Get(ctx, st, "1")
	require.NoError(t, err)
	assert.Equal(t, Played{"Doom": 5}, played)
}

func TestTrackerRestartAfterDone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory(ModuleName)
	clk := clock.NewFake(time.Unix(0, 0))

	tr := NewTracker(st, clk, nil)
	tr.Start("1", "Doom")
	clk.Advance(4 * time.Second)
	tr.Done("1")
	assert.False(t, tr.IsActive("1"))

	tr.Start("1", "Quake")
	assert.True(t, tr.IsActive("1"))
	clk.Advance(6 * time.Second)
	flush(t, tr)

	played, err := Get(ctx, st, "1")
	require.NoError(t, err)
	assert.Equal(t, Played{"Doom": 4, "Quake": 6}, played)
}

func TestTrackerCloseFlushesEverySession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := store.NewMemory(ModuleName)
	clk := clock.NewFake(time.Unix(0, 0))

	tr := NewTracker(st, clk, nil)
	tr.Start("a", "Doom")
	tr.Start("b", "Quake")
	clk.Advance(time.Minute)
	flush(t, tr)

	assert.Zero(t, tr.ActiveCount())
	for _, user := range []string{"a", "b"} {
		played, err := Get(ctx, st, user)
		require.NoError(t, err)
		assert.Len(t, played, 1)
	}
}

// blockingStore stalls every update until release is closed.
type blockingStore struct {
	store.Store
	release chan struct{}
}

func (s *blockingStore) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	<-s.release
	return s.Store.Update(ctx, key, fn)
}

func TestTrackerCloseIsBounded(t *testing.T) {
	t.Parallel()
	st := &blockingStore{Store: store.NewMemory(ModuleName), release: make(chan struct{})}
	defer close(st.release)
	clk := clock.NewFake(time.Unix(0, 0))

	tr := NewTracker(st, clk, nil)
	tr.Start("a", "Doom")
	clk.Advance(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := tr.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFormatPlayed(t *testing.T) {
	assert.Equal(t, "I don't remember you playing anything :(", FormatPlayed(nil))
	assert.Equal(t,
		"As far as i'm aware, you played:\n`Doom : 01:00:00`\n`Quake : 00:00:42`",
		FormatPlayed(Played{"Quake": 42, "Doom": 3600}))
}

type moduleHarness struct {
	gw     *channeltest.Gateway
	router *bot.Router
	module *Module
	hub    *store.Hub
	clock  *clock.Fake
}

func newModuleHarness(t *testing.T) *moduleHarness {
	t.Helper()
	gw := channeltest.New()
	registry := bot.NewRegistry()
	modules := bot.NewManager(time.Second, nil)
	router := bot.NewRouter(gw, registry, modules, bot.RouterConfig{
		Settings:      bot.Settings{Prefix: "!go", AdminID: "1"},
		SessionModule: ModuleName,
	}, nil)
	hub := store.NewHub(store.Config{Backend: store.BackendMemory}, nil)
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	m := New(Config{Enabled: true}, hub, registry, clk, nil)
	require.NoError(t, modules.Start(context.Background(), m))
	t.Cleanup(func() { modules.StopAll(context.Background()) })

	return &moduleHarness{gw: gw, router: router, module: m, hub: hub, clock: clk}
}

func (h *moduleHarness) say(from, content string) {
	h.router.Handle(context.Background(), channels.Event{
		Type:    channels.EventMessage,
		Message: &channels.IncomingMessage{From: from, ChatID: "c", IsGroup: true, Content: content},
	})
}

func TestPlayedWithoutHistory(t *testing.T) {
	t.Parallel()
	h := newModuleHarness(t)

	h.say("42", "!go played")
	assert.Equal(t, []string{"I don't remember you playing anything :("}, h.gw.Texts())
}

func TestPresenceFeedsPlayed(t *testing.T) {
	t.Parallel()
	h := newModuleHarness(t)
	ctx := context.Background()

	h.router.Handle(ctx, channels.Event{Type: channels.EventPresence, Presence: &channels.PresenceUpdate{UserID: "42", Activity: "Doom"}})
	assert.True(t, h.module.Sessions().IsActive("42"))
	h.clock.Advance(10 * time.Second)
	h.router.Handle(ctx, channels.Event{Type: channels.EventPresence, Presence: &channels.PresenceUpdate{UserID: "42"}})

	bucket, err := h.hub.Open(ctx, ModuleName)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p, err := Get(ctx, bucket, "42")
		return err == nil && p["Doom"] == 10
	}, time.Second, 10*time.Millisecond)

	h.say("42", "!go played")
	assert.Equal(t, []string{"As far as i'm aware, you played:\n`Doom : 00:00:10`"}, h.gw.Texts())
}

func TestAdminAdd(t *testing.T) {
	t.Parallel()
	h := newModuleHarness(t)
	ctx := context.Background()
	bucket, err := h.hub.Open(ctx, ModuleName)
	require.NoError(t, err)

	h.say("42", "!go add 42 Doom 30")
	p, err := Get(ctx, bucket, "42")
	require.NoError(t, err)
	assert.Empty(t, p, "non-admin add is ignored")

	h.say("1", "!go add 42 Team Fortress 2 30")
	h.say("1", "!go add 42 Team Fortress 2 12")
	h.say("1", "!go add 42 Doom")
	h.say("1", "!go add 42 Doom 30 minutes")
	p, err = Get(ctx, bucket, "42")
	require.NoError(t, err)
	assert.Equal(t, Played{"Team Fortress 2": 42}, p)
	assert.Equal(t, []string{"done :)", "done :)"}, h.gw.Texts())
}

func TestStartRecordsStartTimeOnce(t *testing.T) {
	t.Parallel()
	h := newModuleHarness(t)
	ctx := context.Background()
	bucket, err := h.hub.Open(ctx, ModuleName)
	require.NoError(t, err)

	since, ok, err := Since(ctx, bucket)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().Unix(), since.Unix())

	all, err := bucket.All(ctx)
	require.NoError(t, err)
	var raw int64
	require.NoError(t, json.Unmarshal(all[startTimeKey], &raw))
	assert.Equal(t, since.Unix(), raw)
}
