package notify

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/portfolio/backend/internal/model"
)

const subjectPrefix = "Portfolio Contact: "

var (
	headerSanitizer = strings.NewReplacer("\r", "", "\n", " ")
	htmlPolicy      = bluemonday.StrictPolicy()
)

// FormatSubject returns the notification subject line. Line breaks are removed
// so user input cannot inject headers.
func FormatSubject(rec *model.SubmissionRecord) string {
	return headerSanitizer.Replace(subjectPrefix + rec.Subject)
}

// FormatBody returns the plain-text notification body.
func FormatBody(rec *model.SubmissionRecord) string {
	var b strings.Builder
	b.WriteString("New Contact Form Submission\n\n")
	b.WriteString("Name: " + rec.Name + "\n")
	b.WriteString("Email: " + rec.Email + "\n")
	b.WriteString("Subject: " + rec.Subject + "\n\n")
	b.WriteString("Message:\n")
	b.WriteString(rec.Message + "\n")
	return b.String()
}

// FormatHTML returns the HTML alternative of FormatBody. Every user-supplied
// field passes through a strict sanitizer, so no markup survives.
func FormatHTML(rec *model.SubmissionRecord) string {
	var b strings.Builder
	b.WriteString("<html><body>\n<h2>New Contact Form Submission</h2>\n<p>")
	b.WriteString("<strong>Name:</strong> " + htmlPolicy.Sanitize(rec.Name) + "<br>\n")
	b.WriteString("<strong>Email:</strong> " + htmlPolicy.Sanitize(rec.Email) + "<br>\n")
	b.WriteString("<strong>Subject:</strong> " + htmlPolicy.Sanitize(rec.Subject) + "</p>\n")
	b.WriteString("<p><strong>Message:</strong></p>\n<p>")
	lines := strings.Split(rec.Message, "\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("<br>\n")
		}
		b.WriteString(htmlPolicy.Sanitize(line))
	}
	b.WriteString("</p>\n</body></html>\n")
	return b.String()
}
