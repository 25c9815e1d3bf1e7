package repository

import (
	"context"

	"github.com/portfolio/backend/internal/model"
)

// DB reports whether the backing database is reachable.
type DB interface {
	Ping(ctx context.Context) error
}

// ContactRepository persists accepted contact submissions.
// Save is atomic: it either stores one complete record or nothing.
type ContactRepository interface {
	Save(ctx context.Context, sub *model.ValidatedSubmission, prov model.Provenance) (*model.SubmissionRecord, error)
}

// PageViewRepository stores anonymised page hits.
type PageViewRepository interface {
	Record(ctx context.Context, pv *model.PageView) error
}
