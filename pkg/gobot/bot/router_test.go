package bot

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/gobot/pkg/gobot/channels"
	"github.com/jholhewres/gobot/pkg/gobot/channels/channeltest"
)

const adminID = "1"

// fakeTracker records presence transitions.
type fakeTracker struct {
	mu     sync.Mutex
	active map[string]string
	starts []string
	dones  []string
}

func (f *fakeTracker) Start(user, activity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[user] = activity
	f.starts = append(f.starts, user+":"+activity)
}

func (f *fakeTracker) Done(user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, user)
	f.dones = append(f.dones, user)
}

func (f *fakeTracker) IsActive(user string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[user]
	return ok
}

func (f *fakeTracker) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

// trackerModule exposes a fakeTracker as the session module.
type trackerModule struct{ tracker *fakeTracker }

func (m *trackerModule) Name() string                { return "gametime" }
func (m *trackerModule) Start(context.Context) error { return nil }
func (m *trackerModule) Stop(context.Context) error  { return nil }
func (m *trackerModule) Sessions() SessionTracker    { return m.tracker }

type harness struct {
	gw       *channeltest.Gateway
	registry *Registry
	modules  *Manager
	router   *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gw := channeltest.New(channels.Server{ID: "g1", MemberCount: 3}, channels.Server{ID: "g2", MemberCount: 4})
	registry := NewRegistry()
	modules := NewManager(time.Second, nil)
	router := NewRouter(gw, registry, modules, RouterConfig{
		Settings:      Settings{Prefix: "!go", AdminID: adminID},
		SessionModule: "gametime",
	}, nil)
	return &harness{gw: gw, registry: registry, modules: modules, router: router}
}

func (h *harness) withTracker(t *testing.T) *fakeTracker {
	t.Helper()
	tracker := &fakeTracker{active: map[string]string{}}
	require.NoError(t, h.modules.Start(context.Background(), &trackerModule{tracker: tracker}))
	return tracker
}

func (h *harness) presence(user, activity string) {
	h.router.Handle(context.Background(), channels.Event{
		Type:     channels.EventPresence,
		Presence: &channels.PresenceUpdate{UserID: user, Activity: activity},
	})
}

func (h *harness) say(from, content string) {
	h.router.Handle(context.Background(), channels.Event{
		Type:    channels.EventMessage,
		Message: &channels.IncomingMessage{From: from, ChatID: "chan", GuildID: "g1", IsGroup: true, Content: content},
	})
}

func (h *harness) dm(from, content string) {
	h.router.Handle(context.Background(), channels.Event{
		Type:    channels.EventMessage,
		Message: &channels.IncomingMessage{From: from, ChatID: "dm-" + from, Content: content},
	})
}

func TestRouterKeepsArgumentSpacing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	var got string
	require.NoError(t, h.registry.Add(&Command{
		Name:    "echo",
		Pattern: regexp.MustCompile(`^(?P<text>.+)$`),
		Handler: func(ctx context.Context, req *Request) error {
			got = req.Args["text"]
			return nil
		},
	}))

	h.say("42", "!go echo Buy   milk\tnow ")
	assert.Equal(t, "Buy   milk\tnow", got)
}

func TestRouterDispatchesCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	var got *Request
	require.NoError(t, h.registry.Add(&Command{
		Name:    "echo",
		Pattern: regexp.MustCompile(`^(?P<word>\w+)`),
		Handler: func(ctx context.Context, req *Request) error {
			got = req
			return req.Reply(ctx, "echo "+req.Args["word"])
		},
	}))

	h.say("42", "!go   echo   hello   world")
	require.NotNil(t, got)
	assert.Equal(t, "hello   world", got.Text)
	assert.Equal(t, []string{"echo hello"}, h.gw.Texts())
	assert.Equal(t, int64(1), h.router.Served())
}

func TestRouterIgnoresNoise(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	called := 0
	require.NoError(t, h.registry.Add(&Command{Name: "help", Handler: func(context.Context, *Request) error {
		called++
		return nil
	}}))

	for _, content := range []string{"hello", "!go", "!gohelp", "!go unknown", "go help"} {
		h.say("42", content)
	}
	assert.Zero(t, called)
	assert.Zero(t, h.router.Served())
	assert.Empty(t, h.gw.Sent())
}

func TestRouterAdminGateIsSilent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	called := 0
	require.NoError(t, h.registry.Add(&Command{Name: "add_user", AdminOnly: true, Handler: func(context.Context, *Request) error {
		called++
		return nil
	}}))

	h.say("999", "!go add_user 999")
	assert.Zero(t, called)
	assert.Empty(t, h.gw.Sent())
	assert.Zero(t, h.router.Served())

	h.say(adminID, "!go add_user 999")
	assert.Equal(t, 1, called)
}

func TestRouterPatternMismatchIsSilent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	called := false
	require.NoError(t, h.registry.Add(&Command{
		Name:    "reminder_delete",
		Pattern: regexp.MustCompile(`^(?P<uid>\w{8})$`),
		Handler: func(context.Context, *Request) error { called = true; return nil },
	}))

	h.say("42", "!go reminder_delete nope")
	assert.False(t, called)
	assert.Empty(t, h.gw.Sent())
}

func TestRouterIsolatesHandlerFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.registry.Add(&Command{Name: "boom", Handler: func(context.Context, *Request) error { panic("boom") }}))
	require.NoError(t, h.registry.Add(&Command{Name: "fail", Handler: func(context.Context, *Request) error { return errors.New("nope") }}))
	require.NoError(t, h.registry.Add(&Command{Name: "ok", Handler: func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "still alive")
	}}))

	assert.NotPanics(t, func() {
		h.say("42", "!go boom")
		h.say("42", "!go fail")
		h.say("42", "!go ok")
	})
	assert.Equal(t, []string{"still alive"}, h.gw.Texts())
	assert.Equal(t, int64(3), h.router.Served())
}

func TestRouterInviteAutoJoin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.dm("42", "https://discord.gg/abc123")
	assert.Empty(t, h.gw.Invites(), "auto-join disabled")

	h.router.UpdateSettings(Settings{Prefix: "!go", AdminID: adminID, AutoJoinInvites: true})

	h.say("42", "discord.gg/public")
	assert.Empty(t, h.gw.Invites(), "invites in servers are ignored")

	h.dm("42", "https://discord.gg/abc123")
	assert.Equal(t, []string{"abc123"}, h.gw.Invites())
	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, channeltest.Sent{To: "42", Text: "Joined it, thanks :)", Direct: true}, sent[0])
}

func TestRouterRunStopsWhenStreamCloses(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.gw.Connect(context.Background()))
	require.NoError(t, h.registry.Add(&Command{Name: "info", Handler: func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "hi")
	}}))

	done := make(chan error, 1)
	go func() { done <- h.router.Run(context.Background()) }()

	h.gw.Push(channels.Event{Type: channels.EventMessage, Message: &channels.IncomingMessage{From: "42", ChatID: "c", Content: "!go info"}})
	require.NoError(t, h.gw.Disconnect())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
	}
	assert.Equal(t, []string{"hi"}, h.gw.Texts())
}

func TestRouterReadyStartsSessions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	tracker := h.withTracker(t)

	h.router.Handle(context.Background(), channels.Event{
		Type: channels.EventReady,
		Ready: &channels.ReadyEvent{Presences: []channels.PresenceUpdate{
			{UserID: "a", Activity: "Doom"},
			{UserID: "b"},
			{UserID: "c", Activity: "Factorio"},
			{UserID: "a", Activity: "Doom"},
		}},
	})
	assert.Equal(t, []string{"a:Doom", "c:Factorio"}, tracker.starts)
}

func TestRouterPresenceTransitions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	tracker := h.withTracker(t)

	h.presence("a", "")      // idle stays idle
	h.presence("a", "Doom")  // start
	h.presence("a", "Quake") // already playing, ignored
	h.presence("a", "")      // done
	h.presence("a", "")      // nothing to end

	assert.Equal(t, []string{"a:Doom"}, tracker.starts)
	assert.Equal(t, []string{"a"}, tracker.dones)
}

func TestRouterPresenceWithoutTracker(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	assert.NotPanics(t, func() { h.presence("a", "Doom") })
}

func TestCoreCommands(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	tracker := h.withTracker(t)
	tracker.Start("x", "Doom")
	require.NoError(t, h.modules.Start(context.Background(), NewCore(h.router, h.registry, h.modules)))

	h.say("42", "!go info")
	h.say("42", "!go source")
	h.say("42", "!go stats")
	h.say("42", "!go help")

	texts := h.gw.Texts()
	require.Len(t, texts, 4)
	assert.Equal(t, "Your id: `42`", texts[0])
	assert.Equal(t, SourceURL, texts[1])
	assert.Contains(t, texts[2], "General statistics:\n`Uptime            : 00:00:")
	assert.Contains(t, texts[2], "`Users in touch    : 7 in 2 servers`")
	assert.Contains(t, texts[2], "`Commands answered : 3`")
	assert.Contains(t, texts[2], "`Users playing     : 1`")
	assert.Contains(t, texts[3], "`stats")

	h.modules.StopAll(context.Background())
	_, ok := h.registry.Resolve("help")
	assert.False(t, ok, "stopped module leaves no commands behind")
}
