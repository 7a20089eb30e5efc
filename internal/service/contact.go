// Package service contains the business logic layer.
//
// This file implements the public contact form and newsletter sign-up.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/email"
	"github.com/DukeRupert/adcraft/internal/repository"
)

// ContactService handles messages and sign-ups from the public site.
type ContactService interface {
	// SendMessage validates a contact form submission and forwards it to
	// the contact inbox.
	SendMessage(ctx context.Context, msg domain.ContactMessage) error

	// Subscribe adds an address to the newsletter. Subscribing twice is not
	// an error; the confirmation is only sent the first time.
	Subscribe(ctx context.Context, address string) error
}

type contactService struct {
	store  repository.Querier
	mailer email.EmailService
	inbox  string
	logger *slog.Logger
}

var _ ContactService = (*contactService)(nil)

// NewContactService creates a new ContactService.
func NewContactService(store repository.Querier, mailer email.EmailService, inbox string, logger *slog.Logger) ContactService {
	return &contactService{
		store:  store,
		mailer: mailer,
		inbox:  inbox,
		logger: logger,
	}
}

func (s *contactService) SendMessage(ctx context.Context, msg domain.ContactMessage) error {
	const op = "contact.send"

	if err := msg.Validate(); err != nil {
		return err
	}
	if err := s.mailer.SendContactMessage(ctx, s.inbox, msg); err != nil {
		s.logger.Error("failed to forward contact message", "from", msg.Email, "error", err)
		return domain.Internal(err, op, "Failed to send your message. Please try again later.")
	}
	s.logger.Info("contact message forwarded", "from", msg.Email)
	return nil
}

func (s *contactService) Subscribe(ctx context.Context, address string) error {
	const op = "newsletter.subscribe"

	address = normalizeEmail(address)
	if err := validateEmail(address); err != nil {
		return &domain.ValidationError{Op: op, Fields: map[string]string{"email": err.Error()}}
	}

	if _, err := s.store.CreateNewsletterSubscriber(ctx, address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("newsletter address already subscribed")
			return nil
		}
		return domain.Internal(err, op, "Failed to subscribe")
	}

	if err := s.mailer.SendNewsletterConfirmation(ctx, address); err != nil {
		s.logger.Error("failed to send newsletter confirmation", "error", err)
	}
	return nil
}
