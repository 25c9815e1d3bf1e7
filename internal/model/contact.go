package model

import (
	"strings"
	"time"
)

// MaxClientDescriptorLength bounds the stored user-agent string.
const MaxClientDescriptorLength = 500

// DefaultContactSubject is used when a submission arrives without a subject.
const DefaultContactSubject = "New portfolio contact message"

// ContactPayload is the JSON body accepted by POST /api/contact.
type ContactPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// ValidatedSubmission is a payload that passed validation, with every field trimmed.
// Subject stays empty until the submission is accepted.
type ValidatedSubmission struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// ResolveSubject fills in the generic subject line when none was given.
func (s *ValidatedSubmission) ResolveSubject() {
	if s.Subject == "" {
		s.Subject = DefaultContactSubject
	}
}

// Provenance describes where a submission came from. It is supplied by the HTTP
// layer, never by the JSON body.
type Provenance struct {
	SourceAddr       string
	ClientDescriptor string
}

// NewProvenance builds a Provenance with the client descriptor truncated.
func NewProvenance(sourceAddr, userAgent string) Provenance {
	return Provenance{
		SourceAddr:       strings.TrimSpace(sourceAddr),
		ClientDescriptor: TruncateClientDescriptor(userAgent),
	}
}

// TruncateClientDescriptor cuts s to MaxClientDescriptorLength runes.
func TruncateClientDescriptor(s string) string {
	r := []rune(s)
	if len(r) <= MaxClientDescriptorLength {
		return s
	}
	return string(r[:MaxClientDescriptorLength])
}

// SubmissionRecord is a persisted contact message.
type SubmissionRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Read      bool      `json:"read"`
	Replied   bool      `json:"replied"`
	CreatedAt time.Time `json:"created_at"`
}
