package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portfolio/backend/internal/model"
)

// PgPageViewRepository is the PostgreSQL implementation of PageViewRepository.
type PgPageViewRepository struct {
	pool *pgxpool.Pool
}

// NewPgPageViewRepository creates a PgPageViewRepository backed by the given pool.
func NewPgPageViewRepository(pool *pgxpool.Pool) *PgPageViewRepository {
	return &PgPageViewRepository{pool: pool}
}

var _ PageViewRepository = (*PgPageViewRepository)(nil)

// Record inserts a page_views row and fills pv.ID and pv.CreatedAt.
func (r *PgPageViewRepository) Record(ctx context.Context, pv *model.PageView) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO page_views (path, visitor_key, ip_address, user_agent, referrer)
		 VALUES ($1, $2, NULLIF($3, '')::inet, $4, $5)
		 RETURNING id::text, created_at`,
		pv.Path, pv.VisitorKey, pv.IPAddress, model.TruncateClientDescriptor(pv.UserAgent), pv.Referrer,
	).Scan(&pv.ID, &pv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert page view: %w", err)
	}
	return nil
}
