package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContactMessage is a message submitted through the public contact form.
type ContactMessage struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Validate trims and checks the message fields.
func (m *ContactMessage) Validate() error {
	const op = "contact.validate"
	fields := map[string]string{}

	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(strings.ToLower(m.Email))
	m.Subject = strings.TrimSpace(m.Subject)
	m.Message = strings.TrimSpace(m.Message)

	if len(m.Name) < 2 {
		fields["name"] = "Name must be at least 2 characters"
	}
	if _, err := mail.ParseAddress(m.Email); err != nil || m.Email == "" {
		fields["email"] = "Please enter a valid email address"
	}
	if m.Subject == "" {
		m.Subject = "Contact form submission"
	}
	if len(m.Message) < 10 {
		fields["message"] = "Message must be at least 10 characters"
	} else if len(m.Message) > 5000 {
		fields["message"] = "Message must be 5000 characters or fewer"
	}

	if len(fields) > 0 {
		return &ValidationError{Op: op, Fields: fields}
	}
	return nil
}

// NewsletterSubscriber is an email address on the newsletter list.
type NewsletterSubscriber struct {
	ID           uuid.UUID
	Email        string
	SubscribedAt time.Time
}
