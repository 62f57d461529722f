package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type played map[string]int64

func openTestHub(t *testing.T, backend BackendType) *Hub {
	t.Helper()
	hub := NewHub(Config{Backend: backend, Dir: t.TempDir(), CacheSize: 8}, nil)
	t.Cleanup(func() { hub.Close() })
	return hub
}

func TestBucketBackends(t *testing.T) {
	t.Parallel()

	for _, backend := range []BackendType{BackendSQLite, BackendFile, BackendMemory} {
		t.Run(string(backend), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			b, err := openTestHub(t, backend).Open(ctx, "gametime")
			require.NoError(t, err)

			var got played
			ok, err := b.Get(ctx, "42", &got)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.Put(ctx, "42", played{"Factorio": 10}))
			ok, err = b.Get(ctx, "42", &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, played{"Factorio": 10}, got)

			err = UpdateJSON(ctx, b, "42", func(p *played) error {
				(*p)["Factorio"] += 5
				(*p)["Doom"] = 1
				return nil
			})
			require.NoError(t, err)

			got = nil
			_, err = b.Get(ctx, "42", &got)
			require.NoError(t, err)
			assert.Equal(t, played{"Factorio": 15, "Doom": 1}, got)

			require.NoError(t, b.Put(ctx, "7", played{}))
			all, err := b.All(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			require.NoError(t, b.Delete(ctx, "42"))
			require.NoError(t, b.Delete(ctx, "missing"))
			ok, err = b.Get(ctx, "42", &got)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestUpdateJSONCreatesAndDeletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemory("reminder")

	err := UpdateJSON(ctx, b, "u1", func(m *map[string]string) error {
		if *m == nil {
			*m = make(map[string]string)
		}
		(*m)["a"] = "x"
		return nil
	})
	require.NoError(t, err)

	var m map[string]string
	ok, err := b.Get(ctx, "u1", &m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", m["a"])

	err = UpdateJSON(ctx, b, "u1", func(m *map[string]string) error {
		return ErrDeleteKey
	})
	require.NoError(t, err)
	ok, err = b.Get(ctx, "u1", &m)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateJSONErrorLeavesValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, err := openTestHub(t, BackendSQLite).Open(ctx, "music")
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "whitelist", []string{"1"}))

	boom := errors.New("boom")
	err = UpdateJSON(ctx, b, "whitelist", func(ids *[]string) error {
		*ids = append(*ids, "2")
		return boom
	})
	require.ErrorIs(t, err, boom)

	var ids []string
	_, err = b.Get(ctx, "whitelist", &ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	hub := NewHub(Config{Backend: BackendSQLite, Dir: dir}, nil)
	b, err := hub.Open(ctx, "reminder")
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "1", map[string]string{"uid": "abcd1234"}))
	require.NoError(t, hub.Close())

	assert.FileExists(t, filepath.Join(dir, "reminder.db"))

	hub = NewHub(Config{Backend: BackendSQLite, Dir: dir}, nil)
	defer hub.Close()
	b, err = hub.Open(ctx, "reminder")
	require.NoError(t, err)
	var got map[string]string
	ok, err := b.Get(ctx, "1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abcd1234", got["uid"])
}

func TestFileBackendFlush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "gametime.json")

	hub := NewHub(Config{Backend: BackendFile, Dir: dir}, nil)
	b, err := hub.Open(ctx, "gametime")
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "start_time", 1234))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing written before flush")

	require.NoError(t, hub.FlushAll())
	assert.FileExists(t, path)

	require.NoError(t, b.Put(ctx, "42", played{"Doom": 3}))
	require.NoError(t, hub.Close())

	reopened, err := openFileBackend(path)
	require.NoError(t, err)
	all, err := reopened.all(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Doom":3}`, string(all["42"]))
}

func TestHubRejectsBadInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := openTestHub(t, BackendSQLite).Open(ctx, "Drop Table")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = openTestHub(t, "mongo").Open(ctx, "gametime")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestHubReusesBuckets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := openTestHub(t, BackendMemory)

	a, err := hub.Open(ctx, "music")
	require.NoError(t, err)
	b, err := hub.Open(ctx, "music")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"music"}, hub.Names())
}

func TestBuildPostgreSQLDSN(t *testing.T) {
	cfg := Config{Backend: BackendPostgreSQL, PostgreSQL: PostgreSQLConfig{User: "bot", Password: "secret"}}.Effective()
	got := buildPostgreSQLDSN(cfg.PostgreSQL)
	assert.Equal(t, "host=localhost port=5432 user=bot password=secret dbname=gobot sslmode=disable", got)
}

func TestPostgreSQLBucket(t *testing.T) {
	host := os.Getenv("GOBOT_TEST_PG_HOST")
	if host == "" {
		t.Skip("GOBOT_TEST_PG_HOST not set")
	}
	ctx := context.Background()
	hub := NewHub(Config{
		Backend: BackendPostgreSQL,
		PostgreSQL: PostgreSQLConfig{
			Host:     host,
			User:     os.Getenv("GOBOT_TEST_PG_USER"),
			Password: os.Getenv("GOBOT_TEST_PG_PASSWORD"),
			Database: os.Getenv("GOBOT_TEST_PG_DATABASE"),
		},
	}, nil)
	defer hub.Close()

	b, err := hub.Open(ctx, "gametime_test")
	require.NoError(t, err)
	defer b.Delete(ctx, "1")

	require.NoError(t, UpdateJSON(ctx, b, "1", func(p *played) error {
		if *p == nil {
			*p = played{}
		}
		(*p)["Doom"] += 4
		return nil
	}))
	var got played
	ok, err := b.Get(ctx, "1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), got["Doom"])
}
