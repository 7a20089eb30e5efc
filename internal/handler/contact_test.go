package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/stretchr/testify/assert"
)

func newContactMux(svc *mockContactService) *http.ServeMux {
	mux := http.NewServeMux()
	NewContactHandler(svc, newTestLogger()).RegisterRoutes(mux, passthrough)
	return mux
}

func TestSendContactMessage(t *testing.T) {
	var got domain.ContactMessage
	svc := &mockContactService{
		SendMessageFunc: func(ctx context.Context, msg domain.ContactMessage) error {
			got = msg
			return nil
		},
	}

	rec := serve(newContactMux(svc), jsonRequest(t, http.MethodPost, "/api/contact", map[string]string{
		"name":    "Sam",
		"email":   "sam@example.com",
		"subject": "Pricing",
		"message": "Do you offer annual plans?",
	}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Sam", got.Name)
	assert.Equal(t, "Pricing", got.Subject)
}

func TestSendContactMessage_Invalid(t *testing.T) {
	svc := &mockContactService{
		SendMessageFunc: func(ctx context.Context, msg domain.ContactMessage) error {
			return domain.NewValidationError("contact.validate", "message", "Message is required")
		},
	}

	rec := serve(newContactMux(svc), jsonRequest(t, http.MethodPost, "/api/contact", map[string]string{"name": "Sam"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "message")
}

func TestSubscribeNewsletter(t *testing.T) {
	var got string
	svc := &mockContactService{
		SubscribeFunc: func(ctx context.Context, address string) error {
			got = address
			return nil
		},
	}

	rec := serve(newContactMux(svc), jsonRequest(t, http.MethodPost, "/api/newsletter", map[string]string{"email": "fan@example.com"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fan@example.com", got)
	assert.JSONEq(t, `{"message":"You're subscribed."}`, rec.Body.String())
}
