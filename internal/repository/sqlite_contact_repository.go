package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/portfolio/backend/internal/model"
	"github.com/portfolio/backend/pkg/snowflake"
)

// SqliteContactRepository stores contact messages in the embedded sqlite database.
// Ids come from the snowflake generator, so pkg/snowflake must be initialised.
type SqliteContactRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSqliteContactRepository creates a SqliteContactRepository.
func NewSqliteContactRepository(db *sql.DB) *SqliteContactRepository {
	return &SqliteContactRepository{db: db, now: time.Now}
}

var _ ContactRepository = (*SqliteContactRepository)(nil)

func (r *SqliteContactRepository) Save(ctx context.Context, sub *model.ValidatedSubmission, prov model.Provenance) (*model.SubmissionRecord, error) {
	rec := newSubmissionRecord(sub, prov)
	id := snowflake.NextID()
	rec.CreatedAt = r.now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_messages (id, name, email, subject, message, ip_address, user_agent, read, replied, created_at)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, 0, 0, ?)`,
		id, rec.Name, rec.Email, rec.Subject, rec.Message, rec.IPAddress, rec.UserAgent,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert contact message: %w", err)
	}
	rec.ID = strconv.FormatInt(id, 10)
	return rec, nil
}

// FindByID loads a stored contact message. It returns ErrNotFound when no row matches.
func (r *SqliteContactRepository) FindByID(ctx context.Context, id string) (*model.SubmissionRecord, error) {
	var (
		rec       model.SubmissionRecord
		ip        sql.NullString
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, subject, message, ip_address, user_agent, read, replied, created_at
		 FROM contact_messages WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &rec.Email, &rec.Subject, &rec.Message, &ip, &rec.UserAgent, &rec.Read, &rec.Replied, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select contact message: %w", err)
	}
	rec.IPAddress = ip.String
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &rec, nil
}

// Count returns the number of stored contact messages.
func (r *SqliteContactRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contact messages: %w", err)
	}
	return n, nil
}
