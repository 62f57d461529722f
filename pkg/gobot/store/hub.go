package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
)

// Hub opens buckets on the configured backend and owns their lifetime.
// Buckets on PostgreSQL share one connection pool.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]*Bucket
	pg      *sql.DB
}

// NewHub creates a hub for the given configuration.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:     cfg.Effective(),
		logger:  logger,
		buckets: make(map[string]*Bucket),
	}
}

// Config returns the effective configuration.
func (h *Hub) Config() Config { return h.cfg }

// Open returns the bucket with the given name, opening it on first use.
func (h *Hub) Open(ctx context.Context, name string) (*Bucket, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.buckets[name]; ok {
		return b, nil
	}

	var (
		be  backend
		err error
	)
	switch h.cfg.Backend {
	case BackendSQLite:
		be, err = openSQLite(ctx, filepath.Join(h.cfg.Dir, name+".db"))
	case BackendPostgreSQL:
		if h.pg == nil {
			h.pg, err = openPostgreSQL(ctx, h.cfg.PostgreSQL)
			if err != nil {
				return nil, err
			}
		}
		be, err = newPostgreSQLBackend(ctx, h.pg, "kv_"+name)
	case BackendFile:
		be, err = openFileBackend(filepath.Join(h.cfg.Dir, name+".json"))
	case BackendMemory:
		be = newFileBackend("")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, h.cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", name, err)
	}

	b, err := newBucket(name, be, h.cfg.CacheSize, h.logger)
	if err != nil {
		be.close()
		return nil, err
	}
	h.buckets[name] = b
	h.logger.Debug("bucket opened", "bucket", name, "backend", h.cfg.Backend)
	return b, nil
}

// Names lists the open buckets.
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.buckets))
	for name := range h.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FlushAll flushes every bucket that buffers writes.
func (h *Hub) FlushAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for _, b := range h.buckets {
		if err := b.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every bucket and the shared connection pool.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for name, b := range h.buckets {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(h.buckets, name)
	}
	if h.pg != nil {
		if err := h.pg.Close(); err != nil {
			errs = append(errs, err)
		}
		h.pg = nil
	}
	return errors.Join(errs...)
}
