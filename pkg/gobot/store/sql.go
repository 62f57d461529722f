package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// sqlBackend stores a bucket in a key/value table. The statements are
// shared between SQLite and PostgreSQL; only the placeholders and the row
// lock differ.
type sqlBackend struct {
	db     *sql.DB
	ownsDB bool

	// mu serializes read-modify-write cycles within the process.
	mu sync.Mutex

	selectStmt string
	lockStmt   string
	upsertStmt string
	deleteStmt string
	allStmt    string
}

func newSQLBackend(db *sql.DB, table string, ownsDB bool, postgres bool) *sqlBackend {
	p1, p2, p3 := "?", "?", "?"
	lock := ""
	if postgres {
		p1, p2, p3 = "$1", "$2", "$3"
		lock = " FOR UPDATE"
	}
	return &sqlBackend{
		db:         db,
		ownsDB:     ownsDB,
		selectStmt: fmt.Sprintf("SELECT value FROM %s WHERE key = %s", table, p1),
		lockStmt:   fmt.Sprintf("SELECT value FROM %s WHERE key = %s%s", table, p1, lock),
		upsertStmt: fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES (%s, %s, %s)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			table, p1, p2, p3),
		deleteStmt: fmt.Sprintf("DELETE FROM %s WHERE key = %s", table, p1),
		allStmt:    fmt.Sprintf("SELECT key, value FROM %s", table),
	}
}

func kvSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`, table)
}

func (b *sqlBackend) get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := b.db.QueryRowContext(ctx, b.selectStmt, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (b *sqlBackend) put(ctx context.Context, key string, val []byte) error {
	_, err := b.db.ExecContext(ctx, b.upsertStmt, key, string(val), now())
	return err
}

func (b *sqlBackend) delete(ctx context.Context, key string) error {
	_, err := b.db.ExecContext(ctx, b.deleteStmt, key)
	return err
}

func (b *sqlBackend) all(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := b.db.QueryContext(ctx, b.allStmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = json.RawMessage(value)
	}
	return result, rows.Err()
}

func (b *sqlBackend) update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var (
		old   []byte
		value string
	)
	err = tx.QueryRowContext(ctx, b.lockStmt, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		old = []byte(value)
	}

	next, err := fn(old)
	if err != nil {
		return err
	}

	if next == nil {
		if old != nil {
			if _, err := tx.ExecContext(ctx, b.deleteStmt, key); err != nil {
				return err
			}
		}
	} else if _, err := tx.ExecContext(ctx, b.upsertStmt, key, string(next), now()); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *sqlBackend) close() error {
	if b.ownsDB {
		return b.db.Close()
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
