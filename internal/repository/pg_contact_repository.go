package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portfolio/backend/internal/model"
)

// PgContactRepository is the PostgreSQL implementation of ContactRepository.
type PgContactRepository struct {
	pool *pgxpool.Pool
}

// NewPgContactRepository creates a PgContactRepository backed by the given pool.
func NewPgContactRepository(pool *pgxpool.Pool) *PgContactRepository {
	return &PgContactRepository{pool: pool}
}

var _ ContactRepository = (*PgContactRepository)(nil)

// Save inserts a contact_messages row and returns the stored record with the
// id and created_at assigned by the database.
func (r *PgContactRepository) Save(ctx context.Context, sub *model.ValidatedSubmission, prov model.Provenance) (*model.SubmissionRecord, error) {
	rec := newSubmissionRecord(sub, prov)
	err := r.pool.QueryRow(ctx,
		`INSERT INTO contact_messages (name, email, subject, message, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, NULLIF($5, '')::inet, $6)
		 RETURNING id::text, created_at`,
		rec.Name, rec.Email, rec.Subject, rec.Message, rec.IPAddress, rec.UserAgent,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert contact message: %w", err)
	}
	return rec, nil
}

func newSubmissionRecord(sub *model.ValidatedSubmission, prov model.Provenance) *model.SubmissionRecord {
	return &model.SubmissionRecord{
		Name:      sub.Name,
		Email:     sub.Email,
		Subject:   sub.Subject,
		Message:   sub.Message,
		IPAddress: prov.SourceAddr,
		UserAgent: model.TruncateClientDescriptor(prov.ClientDescriptor),
	}
}
