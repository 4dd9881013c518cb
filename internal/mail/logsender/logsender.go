package logsender

import (
	"context"
	"log/slog"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/mail"
)

// Sender logs outgoing email instead of delivering it. It is used when no
// SMTP server is configured.
type Sender struct {
	logger *slog.Logger
}

// New creates a logging sender.
func New(logger *slog.Logger) *Sender {
	return &Sender{logger: logger}
}

// Name returns the name of this sender.
func (s *Sender) Name() string {
	return "log"
}

// Send logs the message metadata and plain-text body.
func (s *Sender) Send(ctx context.Context, msg mail.Message) error {
	s.logger.InfoContext(ctx, "email not delivered, no smtp configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("text", msg.Text),
	)
	return nil
}
