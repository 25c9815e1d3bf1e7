package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/portfolio/backend/internal/model"
	"github.com/portfolio/backend/pkg/snowflake"
)

// SqlitePageViewRepository stores page views in the embedded sqlite database.
type SqlitePageViewRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSqlitePageViewRepository(db *sql.DB) *SqlitePageViewRepository {
	return &SqlitePageViewRepository{db: db, now: time.Now}
}

var _ PageViewRepository = (*SqlitePageViewRepository)(nil)

func (r *SqlitePageViewRepository) Record(ctx context.Context, pv *model.PageView) error {
	id := snowflake.NextID()
	createdAt := r.now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO page_views (id, path, visitor_key, ip_address, user_agent, referrer, created_at)
		 VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?)`,
		id, pv.Path, pv.VisitorKey, pv.IPAddress, model.TruncateClientDescriptor(pv.UserAgent), pv.Referrer,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert page view: %w", err)
	}
	pv.ID = strconv.FormatInt(id, 10)
	pv.CreatedAt = createdAt
	return nil
}
