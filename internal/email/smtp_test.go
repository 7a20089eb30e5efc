package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"

	"github.com/DukeRupert/adcraft/internal/domain"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func newTestSMTP(t *testing.T, sendErr error) (*SMTPEmailService, *[]sentMail) {
	t.Helper()
	svc, err := NewSMTPEmailService(SMTPConfig{Host: "localhost", Port: 1025}, "http://localhost:8080/",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSMTPEmailService() error = %v", err)
	}
	var sent []sentMail
	svc.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: msg})
		return sendErr
	}
	return svc, &sent
}

func parseSent(t *testing.T, m sentMail) *mail.Message {
	t.Helper()
	msg, err := mail.ReadMessage(strings.NewReader(string(m.msg)))
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	return msg
}

func TestSendOTPEmail(t *testing.T) {
	svc, sent := newTestSMTP(t, nil)

	if err := svc.SendOTPEmail(context.Background(), "a@example.com", "Ana", "123456"); err != nil {
		t.Fatalf("SendOTPEmail() error = %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(*sent))
	}
	m := (*sent)[0]
	if m.addr != "localhost:1025" || m.from != DefaultFromEmail || m.to[0] != "a@example.com" {
		t.Errorf("envelope = %+v", m)
	}

	msg := parseSent(t, m)
	subject, _ := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	if subject != "123456 is your AdCraft code" {
		t.Errorf("Subject = %q", subject)
	}
	if !strings.HasPrefix(msg.Header.Get("Content-Type"), "multipart/alternative") {
		t.Errorf("Content-Type = %q", msg.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(msg.Body)
	if !strings.Contains(string(body), "123456") {
		t.Error("body does not contain the code")
	}
}

func TestSendPasswordResetEmail_LinkUsesBaseURL(t *testing.T) {
	svc, sent := newTestSMTP(t, nil)

	if err := svc.SendPasswordResetEmail(context.Background(), "a@example.com", "", "tok123"); err != nil {
		t.Fatal(err)
	}
	raw := string((*sent)[0].msg)
	// Quoted-printable may soft-wrap long lines; check the unwrapped text.
	unwrapped := strings.ReplaceAll(raw, "=\r\n", "")
	if !strings.Contains(unwrapped, "http://localhost:8080/reset-password?token=3Dtok123") &&
		!strings.Contains(unwrapped, "http://localhost:8080/reset-password?token=tok123") {
		t.Errorf("reset link missing from message:\n%s", raw)
	}
}

func TestSendContactMessage_SetsReplyTo(t *testing.T) {
	svc, sent := newTestSMTP(t, nil)

	err := svc.SendContactMessage(context.Background(), "inbox@adcraft.app", domain.ContactMessage{
		Name:    "Sam",
		Email:   "sam@example.com",
		Subject: "Pricing",
		Message: "Do you offer team plans?",
	})
	if err != nil {
		t.Fatal(err)
	}

	msg := parseSent(t, (*sent)[0])
	if got := msg.Header.Get("Reply-To"); !strings.Contains(got, "sam@example.com") {
		t.Errorf("Reply-To = %q", got)
	}
	if (*sent)[0].to[0] != "inbox@adcraft.app" {
		t.Errorf("to = %v", (*sent)[0].to)
	}
}

func TestSend_PropagatesError(t *testing.T) {
	svc, _ := newTestSMTP(t, errors.New("connection refused"))

	if err := svc.SendNewsletterConfirmation(context.Background(), "a@example.com"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSend_CanceledContext(t *testing.T) {
	svc, sent := newTestSMTP(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.SendNewsletterConfirmation(ctx, "a@example.com"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(*sent) != 0 {
		t.Error("no email should be sent for a canceled context")
	}
}
