// Package store provides the durable key-value buckets used by bot modules.
// Each module owns one named bucket; values are JSON documents. SQLite is
// the default backend, PostgreSQL and a plain JSON file are also supported.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrInvalidName is returned when a bucket name is not a plain identifier.
	ErrInvalidName = errors.New("invalid bucket name")

	// ErrUnknownBackend is returned for an unsupported backend type.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrDeleteKey may be returned by an UpdateJSON callback to remove the key.
	ErrDeleteKey = errors.New("delete key")
)

// Store is a bucket of JSON documents addressed by key.
type Store interface {
	// Get decodes the value stored under key into dst. It reports false
	// when the key does not exist.
	Get(ctx context.Context, key string, dst any) (bool, error)

	// Put encodes v and stores it under key.
	Put(ctx context.Context, key string, v any) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// All returns every key with its raw value.
	All(ctx context.Context) (map[string]json.RawMessage, error)

	// Update atomically replaces the raw value of key with fn's result.
	// old is nil when the key does not exist; a nil result deletes the key.
	Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error

	// Close flushes pending writes and releases the bucket.
	Close() error
}

// Flusher is implemented by buckets that buffer writes.
type Flusher interface {
	Flush() error
}

// backend is the raw storage behind a Bucket.
type backend interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	put(ctx context.Context, key string, val []byte) error
	delete(ctx context.Context, key string) error
	all(ctx context.Context) (map[string]json.RawMessage, error)
	update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error
	close() error
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Bucket is the Store implementation shared by every backend, with an
// optional LRU read cache in front of it.
type Bucket struct {
	name    string
	backend backend
	cache   *lru.Cache[string, []byte]
	logger  *slog.Logger

	// mu orders cache fills after writes to the same bucket.
	mu sync.RWMutex
}

func newBucket(name string, b backend, cacheSize int, logger *slog.Logger) (*Bucket, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bucket := &Bucket{
		name:    name,
		backend: b,
		logger:  logger.With("component", "store", "bucket", name),
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, []byte](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		bucket.cache = cache
	}
	return bucket, nil
}

// NewMemory returns a bucket that lives only in memory.
func NewMemory(name string) *Bucket {
	b, _ := newBucket(name, newFileBackend(""), 0, slog.Default())
	return b
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

func (b *Bucket) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok := b.raw(ctx, key)
	if !ok {
		var err error
		b.mu.RLock()
		raw, ok, err = b.backend.get(ctx, key)
		if err == nil && ok {
			b.remember(key, raw)
		}
		b.mu.RUnlock()
		if err != nil {
			return false, fmt.Errorf("get %s/%s: %w", b.name, key, err)
		}
		if !ok {
			return false, nil
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %s/%s: %w", b.name, key, err)
	}
	return true, nil
}

func (b *Bucket) Put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", b.name, key, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.backend.put(ctx, key, raw); err != nil {
		b.forget(key)
		return fmt.Errorf("put %s/%s: %w", b.name, key, err)
	}
	b.remember(key, raw)
	return nil
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forget(key)
	if err := b.backend.delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *Bucket) All(ctx context.Context) (map[string]json.RawMessage, error) {
	all, err := b.backend.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.name, err)
	}
	return all, nil
}

func (b *Bucket) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forget(key)
	if err := b.backend.update(ctx, key, fn); err != nil {
		return fmt.Errorf("update %s/%s: %w", b.name, key, err)
	}
	return nil
}

// Flush writes buffered changes, if the backend buffers any.
func (b *Bucket) Flush() error {
	if f, ok := b.backend.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (b *Bucket) Close() error {
	if b.cache != nil {
		b.cache.Purge()
	}
	return b.backend.close()
}

func (b *Bucket) raw(_ context.Context, key string) ([]byte, bool) {
	if b.cache == nil {
		return nil, false
	}
	return b.cache.Get(key)
}

func (b *Bucket) remember(key string, raw []byte) {
	if b.cache != nil {
		b.cache.Add(key, raw)
	}
}

func (b *Bucket) forget(key string) {
	if b.cache != nil {
		b.cache.Remove(key)
	}
}

// UpdateJSON performs a typed read-modify-write of key. fn receives the
// decoded value (the zero value when the key is absent) and may mutate it.
// Returning ErrDeleteKey removes the key instead of writing it back.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(v *T) error) error {
	return s.Update(ctx, key, func(old []byte) ([]byte, error) {
		var v T
		if old != nil {
			if err := json.Unmarshal(old, &v); err != nil {
				return nil, fmt.Errorf("decode: %w", err)
			}
		}
		if err := fn(&v); err != nil {
			if errors.Is(err, ErrDeleteKey) {
				return nil, nil
			}
			return nil, err
		}
		return json.Marshal(&v)
	})
}
