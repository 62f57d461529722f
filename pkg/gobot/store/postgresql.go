package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// openPostgreSQL opens the connection pool shared by all buckets.
func openPostgreSQL(ctx context.Context, cfg PostgreSQLConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", buildPostgreSQLDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func newPostgreSQLBackend(ctx context.Context, db *sql.DB, table string) (*sqlBackend, error) {
	if _, err := db.ExecContext(ctx, kvSchema(table)); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return newSQLBackend(db, table, false, true), nil
}

func buildPostgreSQLDSN(cfg PostgreSQLConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)
}
