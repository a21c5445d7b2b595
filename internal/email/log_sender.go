package email

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender is a Sender that logs the email to the logger instead of sending it.
// Note that this is not meant for production use as it logs the email addresses
// and all email contents. Resulting in sensitive information being logged.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{
		logger: logger,
	}
}

// Send logs the email to the logger.
func (s *LogSender) Send(_ context.Context, from, recipient Address, subject, body string) error {
	s.logger.Info().
		Str("from", string(from)).
		Str("recipient", string(recipient)).
		Str("subject", subject).
		Str("body", body).
		Msg("send email")
	return nil
}
