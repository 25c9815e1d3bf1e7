package notify

import (
	"context"
	"errors"

	"github.com/portfolio/backend/internal/model"
)

// Multi fans a notification out to several notifiers. Every notifier is
// attempted and their errors are joined. Notifiers without a destination are
// ignored; ErrNotConfigured is returned only when none of them has one.
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) Notify(ctx context.Context, rec *model.SubmissionRecord) error {
	var errs []error
	unconfigured := 0
	for _, n := range m {
		err := n.Notify(ctx, rec)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotConfigured):
			unconfigured++
		default:
			errs = append(errs, err)
		}
	}
	if len(m) > 0 && unconfigured == len(m) {
		return ErrNotConfigured
	}
	return errors.Join(errs...)
}
