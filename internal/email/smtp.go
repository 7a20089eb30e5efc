package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// SMTPEmailService sends emails via SMTP. Works with Mailhog in development
// (no auth) and any authenticated SMTP relay in production.
type SMTPEmailService struct {
	config    SMTPConfig
	baseURL   string
	templates *template.Template
	logger    *slog.Logger
	sendMail  func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ EmailService = (*SMTPEmailService)(nil)

// NewSMTPEmailService creates an SMTP email service. baseURL is used for
// links in emails, e.g. "http://localhost:8080".
func NewSMTPEmailService(config SMTPConfig, baseURL string, logger *slog.Logger) (*SMTPEmailService, error) {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	templates, err := template.New("email").Funcs(template.FuncMap{
		"currentYear": func() int { return time.Now().Year() },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	return &SMTPEmailService{
		config:    config,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		templates: templates,
		logger:    logger,
		sendMail:  smtp.SendMail,
	}, nil
}

// =============================================================================
// EmailService Interface Implementation
// =============================================================================

func (s *SMTPEmailService) SendOTPEmail(ctx context.Context, to, name, code string) error {
	minutes := int(domain.OTPDuration / time.Minute)
	htmlBody, err := s.render("otp.html", map[string]any{
		"Name":    name,
		"Code":    code,
		"Minutes": minutes,
	})
	if err != nil {
		return err
	}

	text := fmt.Sprintf(`Hi %s,

Your AdCraft verification code is:

    %s

It expires in %d minutes. If you didn't request it, you can ignore this email.
`, greetingName(name), code, minutes)

	return s.send(ctx, Email{
		To:       to,
		Subject:  fmt.Sprintf("%s is your AdCraft code", code),
		HTMLBody: htmlBody,
		TextBody: text,
	})
}

func (s *SMTPEmailService) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	htmlBody, err := s.render("password_reset.html", map[string]any{
		"Name":     name,
		"ResetURL": resetURL,
	})
	if err != nil {
		return err
	}

	text := fmt.Sprintf(`Hi %s,

We received a request to reset your password. Choose a new one here:

%s

This link expires in 1 hour. If you didn't ask for a reset, your password stays the same.
`, greetingName(name), resetURL)

	return s.send(ctx, Email{
		To:       to,
		Subject:  "Reset your AdCraft password",
		HTMLBody: htmlBody,
		TextBody: text,
	})
}

func (s *SMTPEmailService) SendContactMessage(ctx context.Context, inbox string, msg domain.ContactMessage) error {
	htmlBody, err := s.render("contact.html", msg)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("From: %s <%s>\nSubject: %s\n\n%s\n", msg.Name, msg.Email, msg.Subject, msg.Message)

	return s.send(ctx, Email{
		To:       inbox,
		ReplyTo:  (&mail.Address{Name: msg.Name, Address: msg.Email}).String(),
		Subject:  "[Contact] " + msg.Subject,
		HTMLBody: htmlBody,
		TextBody: text,
	})
}

func (s *SMTPEmailService) SendNewsletterConfirmation(ctx context.Context, to string) error {
	htmlBody, err := s.render("newsletter.html", map[string]any{
		"BaseURL": s.baseURL,
	})
	if err != nil {
		return err
	}

	return s.send(ctx, Email{
		To:       to,
		Subject:  "You're subscribed to AdCraft updates",
		HTMLBody: htmlBody,
		TextBody: "Thanks for subscribing! We'll send product updates and marketing tips now and then.\n",
	})
}

// =============================================================================
// Internal Methods
// =============================================================================

func (s *SMTPEmailService) send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.buildMessage(email)
	if err != nil {
		return fmt.Errorf("build email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := s.sendMail(addr, auth, s.config.From, []string{email.To}, msg); err != nil {
		s.logger.Error("failed to send email", "to", email.To, "subject", email.Subject, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("email sent", "to", email.To, "subject", email.Subject)
	return nil
}

// buildMessage writes a multipart/alternative message with quoted-printable
// text and HTML parts.
func (s *SMTPEmailService) buildMessage(email Email) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	from := mail.Address{Name: s.config.FromName, Address: s.config.From}
	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", email.To)
	if email.ReplyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", email.ReplyTo)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", email.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", email.TextBody},
		{"text/html; charset=utf-8", email.HTMLBody},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *SMTPEmailService) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func greetingName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}
