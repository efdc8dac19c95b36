// Package email delivers appointment confirmations to patients.
package email

import (
	"context"

	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/logger"
)

// Sender delivers a confirmation message to a single recipient.
type Sender interface {
	SendConfirmation(ctx context.Context, toEmail, subject, body string) error
}

// LogSender writes confirmations to the log instead of delivering them.
// Used when SMTP is not configured.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendConfirmation(ctx context.Context, toEmail, subject, _ string) error {
	s.log.WithContext(ctx).Info("email delivery disabled, confirmation not sent", "to", toEmail, "subject", subject)
	return nil
}

// NewSender picks SMTP when it is configured and falls back to LogSender.
func NewSender(cfg config.SMTPConfig, log *logger.Logger) Sender {
	if !cfg.IsSMTPEnabled() {
		return NewLogSender(log)
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetSMTPFromAddress(),
		cfg.GetSMTPFromName(),
	)
}
