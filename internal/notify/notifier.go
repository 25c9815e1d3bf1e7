// Package notify delivers notifications about accepted contact submissions.
// Delivery is best effort: callers log failures and never undo persistence.
package notify

import (
	"context"
	"errors"

	"github.com/portfolio/backend/internal/model"
)

//go:generate mockgen -source=$GOFILE -destination=mock/$GOFILE -package=mock

// Notifier tells the site owner about a stored submission.
type Notifier interface {
	Notify(ctx context.Context, rec *model.SubmissionRecord) error
}

// ErrNotConfigured is returned when a notifier has no destination to deliver to.
var ErrNotConfigured = errors.New("notify: destination not configured")
