package mailer

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleMailer logs messages instead of delivering them. Used in
// development and as the fallback when no provider is configured.
type ConsoleMailer struct {
	logger *zap.Logger
}

var _ Mailer = (*ConsoleMailer)(nil)

// NewConsoleMailer builds the logging transport.
func NewConsoleMailer(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

// Send logs the message at info level.
func (m *ConsoleMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.logger.Sugar().Infow("email (console transport)",
		"to", to,
		"subject", subject,
		"body_length", len(htmlBody),
	)
	return nil
}
