package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// fileBackend keeps a bucket in memory and persists it as a JSON file on
// Flush and Close. An empty path keeps the bucket in memory only.
type fileBackend struct {
	path  string
	mu    sync.Mutex
	data  map[string]json.RawMessage
	dirty bool
}

func newFileBackend(path string) *fileBackend {
	return &fileBackend{path: path, data: make(map[string]json.RawMessage)}
}

// openFileBackend loads the bucket file, creating its directory if needed.
func openFileBackend(path string) (*fileBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	b := newFileBackend(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &b.data); err != nil {
			return nil, fmt.Errorf("parsing bucket file: %w", err)
		}
	}
	return b, nil
}

func (b *fileBackend) get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *fileBackend) put(_ context.Context, key string, val []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = val
	b.dirty = true
	return nil
}

func (b *fileBackend) delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; ok {
		delete(b.data, key)
		b.dirty = true
	}
	return nil
}

func (b *fileBackend) all(_ context.Context) (map[string]json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.data), nil
}

func (b *fileBackend) update(_ context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, ok := b.data[key]
	if !ok {
		old = nil
	}
	next, err := fn(old)
	if err != nil {
		return err
	}
	if next == nil {
		if ok {
			delete(b.data, key)
			b.dirty = true
		}
		return nil
	}
	b.data[key] = next
	b.dirty = true
	return nil
}

// Flush writes the bucket to disk if it changed since the last flush.
func (b *fileBackend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.path == "" || !b.dirty {
		return nil
	}

	data, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling bucket: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

func (b *fileBackend) close() error {
	return b.Flush()
}
