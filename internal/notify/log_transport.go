package notify

import (
	"context"
	"log/slog"
	"strings"
)

// LogTransport writes messages to the log instead of sending them. It is used
// when no SMTP relay is configured.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a LogTransport. A nil logger means slog.Default().
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

var _ Transport = (*LogTransport)(nil)

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	t.logger.InfoContext(ctx, "notification mail",
		"from", msg.From,
		"to", strings.Join(msg.To, ", "),
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}
