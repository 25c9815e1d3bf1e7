// Package validation checks contact form payloads before they are accepted.
//
// Structural rules (required fields, email grammar, length caps) are expressed as
// go-playground/validator struct tags. The spam heuristics (disposable domains,
// minimum message length, embedded links) run alongside them, and every violated
// rule is reported rather than stopping at the first one.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/portfolio/backend/internal/model"
)

// MinMessageLength is the minimum trimmed message length in characters.
const MinMessageLength = 10

// DefaultDisposableDomains are rejected when no denylist is configured.
var DefaultDisposableDomains = []string{
	"mailinator.com",
	"tempmail.com",
	"10minutemail.com",
	"guerrillamail.com",
}

const (
	reasonRequired   = "This field is required."
	reasonEmail      = "Enter a valid email address."
	reasonDisposable = "Please use a professional email address (disposable emails are not allowed)."
	reasonTooShort   = "Your message is a bit too short. Please provide at least a couple of sentences."
	reasonLinks      = "Links are not allowed in the message. Please describe your request in plain text."
	reasonNullChar   = "Null characters are not allowed."
)

// tagNoNull rejects strings containing U+0000, which PostgreSQL text columns refuse.
const tagNoNull = "nonul"

// fieldOrder is the order errors are reported in.
var fieldOrder = []string{"name", "email", "subject", "message"}

// contactFields carries the structural rules for a trimmed payload.
type contactFields struct {
	Name    string `json:"name" validate:"required,nonul,max=100"`
	Email   string `json:"email" validate:"required,nonul,email"`
	Subject string `json:"subject" validate:"nonul,max=200"`
	Message string `json:"message" validate:"required,nonul"`
}

// FieldError is a single violated rule.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Errors is the list of rules a payload violated. It implements error.
type Errors []FieldError

// Error implements the error interface.
func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e.Message()
}

// Message renders the errors as "field: reason" entries separated by spaces.
func (e Errors) Message() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Reason)
	}
	return strings.Join(parts, " ")
}

// HasField reports whether any error names field.
func (e Errors) HasField(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validator validates contact payloads. It is safe for concurrent use.
type Validator struct {
	validate   *validator.Validate
	disposable map[string]struct{}
}

// New creates a Validator rejecting the given disposable-email domains.
// An empty list falls back to DefaultDisposableDomains.
func New(disposableDomains []string) *Validator {
	if len(disposableDomains) == 0 {
		disposableDomains = DefaultDisposableDomains
	}
	set := make(map[string]struct{}, len(disposableDomains))
	for _, d := range disposableDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation(tagNoNull, noNullChars); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tagNoNull, err))
	}

	return &Validator{validate: v, disposable: set}
}

// Validate checks p and returns the normalised submission. On failure the
// returned error is an Errors value listing every violated rule.
func (v *Validator) Validate(p model.ContactPayload) (*model.ValidatedSubmission, error) {
	fields := contactFields{
		Name:    strings.TrimSpace(p.Name),
		Email:   strings.TrimSpace(p.Email),
		Subject: strings.TrimSpace(p.Subject),
		Message: strings.TrimSpace(p.Message),
	}

	byField := make(map[string][]string, len(fieldOrder))
	add := func(field, reason string) {
		byField[field] = append(byField[field], reason)
	}

	if err := v.validate.Struct(fields); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validate contact payload: %w", err)
		}
		for _, fe := range verrs {
			add(fe.Field(), reasonFor(fe))
		}
	}

	if fields.Email != "" && v.isDisposable(fields.Email) {
		add("email", reasonDisposable)
	}

	if fields.Message != "" {
		if utf8.RuneCountInString(fields.Message) < MinMessageLength {
			add("message", reasonTooShort)
		}
		if containsLink(fields.Message) {
			add("message", reasonLinks)
		}
	}

	var errs Errors
	for _, field := range fieldOrder {
		for _, reason := range byField[field] {
			errs = append(errs, FieldError{Field: field, Reason: reason})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return &model.ValidatedSubmission{
		Name:    fields.Name,
		Email:   fields.Email,
		Subject: fields.Subject,
		Message: fields.Message,
	}, nil
}

func (v *Validator) isDisposable(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	_, ok := v.disposable[strings.ToLower(email[at+1:])]
	return ok
}

func noNullChars(fl validator.FieldLevel) bool {
	return !strings.ContainsRune(fl.Field().String(), 0)
}

// containsLink is a plain substring scan, not a URL parser.
func containsLink(s string) bool {
	return strings.Contains(s, "http://") || strings.Contains(s, "https://")
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return reasonRequired
	case "email":
		return reasonEmail
	case tagNoNull:
		return reasonNullChar
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	default:
		return fmt.Sprintf("Failed the %q check.", fe.Tag())
	}
}
