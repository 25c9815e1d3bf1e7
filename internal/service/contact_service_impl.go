package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/portfolio/backend/internal/metrics"
	"github.com/portfolio/backend/internal/model"
	"github.com/portfolio/backend/internal/notify"
	"github.com/portfolio/backend/internal/repository"
	"github.com/portfolio/backend/internal/validation"
)

// unknownSourceKey is the quota key shared by requests without a source address.
const unknownSourceKey = "unknown"

// contactServiceImpl is the production implementation of ContactService.
type contactServiceImpl struct {
	quota     QuotaChecker
	validator SubmissionValidator
	repo      repository.ContactRepository
	notifier  notify.Notifier
	cfg       ContactServiceConfig
	now       func() time.Time
}

// NewContactService wires the pipeline. notifier may be nil, in which case
// accepted submissions are stored without notification.
func NewContactService(q QuotaChecker, v SubmissionValidator, repo repository.ContactRepository, notifier notify.Notifier, cfg ContactServiceConfig) ContactService {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	return &contactServiceImpl{
		quota:     q,
		validator: v,
		repo:      repo,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Submit runs one submission. The quota is consumed before validation, so
// invalid attempts count too. Persistence is not abandoned when the caller
// goes away; notification is.
func (s *contactServiceImpl) Submit(ctx context.Context, req SubmitRequest) Result {
	res := s.submit(ctx, req)
	metrics.ContactSubmissions.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

func (s *contactServiceImpl) submit(ctx context.Context, req SubmitRequest) Result {
	prov := model.NewProvenance(req.SourceAddr, req.UserAgent)

	key := prov.SourceAddr
	if key == "" {
		key = unknownSourceKey
	}
	decision := s.quota.CheckAndConsume(ctx, key)
	if !decision.Allowed {
		slog.InfoContext(ctx, "contact submission rejected by quota", "source", key, "count", decision.Count)
		return Result{
			Outcome:    OutcomeRejectedQuota,
			HTTPStatus: http.StatusTooManyRequests,
			Message:    MessageQuotaExceeded,
			RetryAfter: decision.RetryAfter(s.now()),
		}
	}

	sub, err := s.validator.Validate(req.Payload)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return Result{
				Outcome:    OutcomeRejectedValidation,
				HTTPStatus: http.StatusBadRequest,
				Message:    verrs.Message(),
				Errors:     verrs,
			}
		}
		slog.ErrorContext(ctx, "contact validation failed unexpectedly", "error", err)
		return failed()
	}
	sub.ResolveSubject()

	rec, err := s.persist(ctx, sub, prov)
	if err != nil {
		slog.ErrorContext(ctx, "failed to store contact submission", "error", err, "source", key)
		return failed()
	}

	res := Result{
		Outcome:    OutcomeAccepted,
		HTTPStatus: http.StatusOK,
		Message:    MessageAccepted,
		Record:     rec,
	}
	switch err := s.notify(ctx, rec); {
	case err == nil:
	case errors.Is(err, notify.ErrNotConfigured):
		slog.DebugContext(ctx, "no notification destination configured", "submission_id", rec.ID)
	default:
		slog.WarnContext(ctx, "contact notification failed", "error", err, "submission_id", rec.ID)
		res.Outcome = OutcomeAcceptedWithWarning
	}
	return res
}

func (s *contactServiceImpl) persist(ctx context.Context, sub *model.ValidatedSubmission, prov model.Provenance) (*model.SubmissionRecord, error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()
	return s.repo.Save(pctx, sub, prov)
}

func (s *contactServiceImpl) notify(ctx context.Context, rec *model.SubmissionRecord) error {
	if s.notifier == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(errors.New("caller went away before notification"), err)
	}
	nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	return s.notifier.Notify(nctx, rec)
}

func failed() Result {
	return Result{
		Outcome:    OutcomeFailed,
		HTTPStatus: http.StatusInternalServerError,
		Message:    MessageFailed,
	}
}
