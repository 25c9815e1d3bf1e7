package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/portfolio/backend/internal/model"
)

// Message is an outbound notification mail.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
	Date    time.Time
}

// Transport delivers a Message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// MailNotifier sends each submission as an email to the site owner.
type MailNotifier struct {
	transport Transport
	from      string
	to        []string
	now       func() time.Time
}

// NewMailNotifier creates a MailNotifier. to may be empty, in which case Notify
// returns ErrNotConfigured.
func NewMailNotifier(transport Transport, from string, to ...string) *MailNotifier {
	var recipients []string
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return &MailNotifier{transport: transport, from: from, to: recipients, now: time.Now}
}

var _ Notifier = (*MailNotifier)(nil)

func (n *MailNotifier) Notify(ctx context.Context, rec *model.SubmissionRecord) error {
	if len(n.to) == 0 {
		return ErrNotConfigured
	}
	msg := Message{
		From:    n.from,
		To:      n.to,
		Subject: FormatSubject(rec),
		Text:    FormatBody(rec),
		HTML:    FormatHTML(rec),
		Date:    n.now(),
	}
	if err := n.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("send notification mail: %w", err)
	}
	return nil
}

// Bytes renders the message as RFC 5322 text with a multipart/alternative body.
// Lines end in CRLF.
func (m Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}
	header := []string{
		"From: " + m.From,
		"To: " + strings.Join(m.To, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", m.Subject),
		"Date: " + date.Format(time.RFC1123Z),
		"Message-ID: <" + uuid.NewString() + "@" + domainOf(m.From) + ">",
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=" + mw.Boundary(),
	}
	var out bytes.Buffer
	out.WriteString(strings.Join(header, "\r\n"))
	out.WriteString("\r\n\r\n")

	if err := writePart(mw, "text/plain; charset=utf-8", m.Text); err != nil {
		return nil, err
	}
	if m.HTML != "" {
		if err := writePart(mw, "text/html; charset=utf-8", m.HTML); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	qp := quotedprintable.NewWriter(pw)
	if _, err := qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n"))); err != nil {
		return fmt.Errorf("write part: %w", err)
	}
	return qp.Close()
}

func domainOf(addr string) string {
	addr = strings.Trim(strings.TrimSpace(addr), "<>")
	if i := strings.LastIndex(addr, "@"); i >= 0 && i+1 < len(addr) {
		return strings.ToLower(addr[i+1:])
	}
	return "localhost"
}
