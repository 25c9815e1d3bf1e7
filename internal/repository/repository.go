package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a PostgreSQL pool and verifies it with a ping.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// SQLPinger adapts a database/sql handle to DB.
type SQLPinger struct {
	db *sql.DB
}

func NewSQLPinger(db *sql.DB) *SQLPinger {
	return &SQLPinger{db: db}
}

var _ DB = (*SQLPinger)(nil)

func (p *SQLPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
