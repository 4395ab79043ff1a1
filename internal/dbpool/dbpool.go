// Package dbpool owns the single process-wide Postgres connection pool.
// Grounded on the teacher's internal/infrastructure/db/connection.go:
// sqlx.Open with the lib/pq driver, bounded pool size, ping-on-open.
package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/predictradar/signalscan/internal/config"
)

// Pool wraps the shared *sqlx.DB used by every writer and reader.
type Pool struct {
	DB           *sqlx.DB
	QueryTimeout time.Duration
}

// Open connects to Postgres and configures the bounded pool described
// in spec.md §5 (process-wide pool, bounded size, e.g. 12).
func Open(cfg *config.Config) (*Pool, error) {
	db, err := sqlx.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.PGMaxOpenConns)
	db.SetMaxIdleConns(cfg.PGMaxIdleConns)
	db.SetConnMaxLifetime(cfg.PGConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{DB: db, QueryTimeout: cfg.PGQueryTimeout}, nil
}

// Close closes the pool. Safe to call during shutdown drain (§5: "close
// the database pool" on SIGINT/SIGTERM and on fatal error).
func (p *Pool) Close() error {
	if p == nil || p.DB == nil {
		return nil
	}
	return p.DB.Close()
}

// WithTimeout derives a context bounded by the configured query timeout.
func (p *Pool) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.QueryTimeout)
}
