// Package email sends transactional mail: sign-in codes, password resets,
// contact form submissions and newsletter confirmations.
package email

import (
	"context"
	"log/slog"

	"github.com/DukeRupert/adcraft/internal/domain"
)

// EmailService defines the interface for sending transactional emails.
type EmailService interface {
	// SendOTPEmail sends a one-time verification code.
	SendOTPEmail(ctx context.Context, to, name, code string) error

	// SendPasswordResetEmail sends a password reset link built from token.
	SendPasswordResetEmail(ctx context.Context, to, name, token string) error

	// SendContactMessage forwards a contact form submission to the inbox.
	// Reply-To is set to the sender.
	SendContactMessage(ctx context.Context, inbox string, msg domain.ContactMessage) error

	// SendNewsletterConfirmation welcomes a new newsletter subscriber.
	SendNewsletterConfirmation(ctx context.Context, to string) error
}

// Email represents a single email message.
type Email struct {
	To       string
	ReplyTo  string
	Subject  string
	HTMLBody string
	TextBody string
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // e.g. "localhost" for Mailhog
	Port     int    // e.g. 1025 for Mailhog
	Username string // empty for Mailhog
	Password string
	From     string
	FromName string
}

const (
	DefaultFromEmail = "noreply@adcraft.app"
	DefaultFromName  = "AdCraft"
)

// =============================================================================
// Log-only implementation
// =============================================================================

// LogEmailService logs emails instead of sending them. Used in development
// when no SMTP host is configured.
type LogEmailService struct {
	logger *slog.Logger
}

// NewLogEmailService creates a LogEmailService.
func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendOTPEmail(ctx context.Context, to, name, code string) error {
	s.logger.Info("email (not sent): otp", "to", to, "code", code)
	return nil
}

func (s *LogEmailService) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	s.logger.Info("email (not sent): password reset", "to", to, "token", token)
	return nil
}

func (s *LogEmailService) SendContactMessage(ctx context.Context, inbox string, msg domain.ContactMessage) error {
	s.logger.Info("email (not sent): contact", "inbox", inbox, "from", msg.Email, "subject", msg.Subject)
	return nil
}

func (s *LogEmailService) SendNewsletterConfirmation(ctx context.Context, to string) error {
	s.logger.Info("email (not sent): newsletter confirmation", "to", to)
	return nil
}

var _ EmailService = (*LogEmailService)(nil)
