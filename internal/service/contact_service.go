package service

import (
	"context"
	"time"

	"github.com/portfolio/backend/internal/model"
	"github.com/portfolio/backend/internal/quota"
	"github.com/portfolio/backend/internal/validation"
)

// Outcome is the terminal state of one submission attempt.
type Outcome string

const (
	OutcomeAccepted            Outcome = "accepted"
	OutcomeAcceptedWithWarning Outcome = "accepted_with_warning"
	OutcomeRejectedQuota       Outcome = "rejected_quota"
	OutcomeRejectedValidation  Outcome = "rejected_validation"
	OutcomeFailed              Outcome = "failed"
)

// Caller-facing messages.
const (
	MessageAccepted      = "Message sent successfully! I will get back to you soon."
	MessageQuotaExceeded = "You have reached the submission limit. Please try again later."
	MessageFailed        = "Error sending message. Please try again later."
)

// SubmitRequest is one contact form submission with its transport metadata.
type SubmitRequest struct {
	Payload    model.ContactPayload
	SourceAddr string
	UserAgent  string
}

// Result is the pipeline's answer to a submission. HTTPStatus and Message are
// what the caller sees; Outcome distinguishes a clean success from one whose
// notification failed.
type Result struct {
	Outcome    Outcome
	HTTPStatus int
	Message    string
	Record     *model.SubmissionRecord
	Errors     validation.Errors
	RetryAfter time.Duration
}

// Success reports whether the submission was stored.
func (r Result) Success() bool {
	return r.Outcome == OutcomeAccepted || r.Outcome == OutcomeAcceptedWithWarning
}

// ContactService runs contact form submissions through quota, validation,
// persistence and notification.
type ContactService interface {
	Submit(ctx context.Context, req SubmitRequest) Result
}

// QuotaChecker is the part of quota.Tracker the pipeline needs.
type QuotaChecker interface {
	CheckAndConsume(ctx context.Context, key string) quota.Decision
}

// SubmissionValidator is the part of validation.Validator the pipeline needs.
type SubmissionValidator interface {
	Validate(p model.ContactPayload) (*model.ValidatedSubmission, error)
}

// ContactServiceConfig holds the pipeline's timeouts.
type ContactServiceConfig struct {
	PersistTimeout time.Duration
	NotifyTimeout  time.Duration
}

const (
	DefaultPersistTimeout = 10 * time.Second
	DefaultNotifyTimeout  = 20 * time.Second
)
