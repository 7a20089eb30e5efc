package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/DukeRupert/adcraft/internal/auth"
	"github.com/DukeRupert/adcraft/internal/billing"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/quota"
	"github.com/DukeRupert/adcraft/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

var errNotImplemented = errors.New("not implemented")

// =============================================================================
// UserService
// =============================================================================

type mockUserService struct {
	RegisterFunc             func(ctx context.Context, params domain.RegisterParams) (*domain.User, error)
	LoginFunc                func(ctx context.Context, email, password string) (*domain.LoginResult, error)
	LogoutFunc               func(ctx context.Context, token string) error
	SendOTPFunc              func(ctx context.Context, email string) error
	VerifyOTPFunc            func(ctx context.Context, params domain.VerifyOTPParams) (*domain.LoginResult, error)
	RequestPasswordResetFunc func(ctx context.Context, email string) error
	ResetPasswordFunc        func(ctx context.Context, params domain.ResetPasswordParams) error
}

var _ service.UserService = (*mockUserService)(nil)

func (m *mockUserService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, params)
	}
	return nil, errNotImplemented
}

func (m *mockUserService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil, errNotImplemented
}

func (m *mockUserService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return nil, errNotImplemented
}

func (m *mockUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	return nil, errNotImplemented
}

func (m *mockUserService) SendOTP(ctx context.Context, email string) error {
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, email)
	}
	return errNotImplemented
}

func (m *mockUserService) VerifyOTP(ctx context.Context, params domain.VerifyOTPParams) (*domain.LoginResult, error) {
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, params)
	}
	return nil, errNotImplemented
}

func (m *mockUserService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.RequestPasswordResetFunc != nil {
		return m.RequestPasswordResetFunc(ctx, email)
	}
	return errNotImplemented
}

func (m *mockUserService) ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, params)
	}
	return errNotImplemented
}

func (m *mockUserService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return 0, nil
}

// =============================================================================
// GenerationService
// =============================================================================

type mockGenerationService struct {
	GenerateFunc   func(ctx context.Context, params domain.GenerateParams) (*domain.GenerationResult, error)
	GetByIDFunc    func(ctx context.Context, generationID, userID uuid.UUID) (*domain.Generation, error)
	ListFunc       func(ctx context.Context, params service.ListGenerationsParams) (*service.GenerationPage, error)
	QuotaUsageFunc func(ctx context.Context, userID uuid.UUID) (*domain.QuotaUsage, error)
}

var _ service.GenerationService = (*mockGenerationService)(nil)

func (m *mockGenerationService) Reserve(ctx context.Context, params domain.GenerateParams) (*domain.Generation, quota.Decision, error) {
	return nil, quota.Decision{}, errNotImplemented
}

func (m *mockGenerationService) Generate(ctx context.Context, params domain.GenerateParams) (*domain.GenerationResult, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, params)
	}
	return nil, errNotImplemented
}

func (m *mockGenerationService) GetByID(ctx context.Context, generationID, userID uuid.UUID) (*domain.Generation, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, generationID, userID)
	}
	return nil, errNotImplemented
}

func (m *mockGenerationService) List(ctx context.Context, params service.ListGenerationsParams) (*service.GenerationPage, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, params)
	}
	return nil, errNotImplemented
}

func (m *mockGenerationService) QuotaUsage(ctx context.Context, userID uuid.UUID) (*domain.QuotaUsage, error) {
	if m.QuotaUsageFunc != nil {
		return m.QuotaUsageFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

// =============================================================================
// ImageService
// =============================================================================

type mockImageService struct {
	UploadFunc     func(ctx context.Context, params domain.UploadImageParams, data io.Reader) (*domain.Image, error)
	GetByIDFunc    func(ctx context.Context, imageID, userID uuid.UUID) (*domain.Image, error)
	ListByUserFunc func(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Image, error)
}

var _ service.ImageService = (*mockImageService)(nil)

func (m *mockImageService) Upload(ctx context.Context, params domain.UploadImageParams, data io.Reader) (*domain.Image, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, params, data)
	}
	return nil, errNotImplemented
}

func (m *mockImageService) GetByID(ctx context.Context, imageID, userID uuid.UUID) (*domain.Image, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, imageID, userID)
	}
	return nil, errNotImplemented
}

func (m *mockImageService) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Image, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit)
	}
	return nil, errNotImplemented
}

// =============================================================================
// BillingService
// =============================================================================

type mockBillingService struct {
	CheckoutFunc func(ctx context.Context, userID uuid.UUID) (*billing.CheckoutSession, error)
	PortalFunc   func(ctx context.Context, userID uuid.UUID) (string, error)
}

var _ service.BillingService = (*mockBillingService)(nil)

func (m *mockBillingService) Checkout(ctx context.Context, userID uuid.UUID) (*billing.CheckoutSession, error) {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockBillingService) Portal(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.PortalFunc != nil {
		return m.PortalFunc(ctx, userID)
	}
	return "", errNotImplemented
}

// =============================================================================
// SubscriptionService
// =============================================================================

type mockSubscriptionService struct {
	ApplyEventFunc      func(ctx context.Context, event domain.SubscriptionEvent) (*domain.ApplyResult, error)
	VerifyAndRepairFunc func(ctx context.Context, userID uuid.UUID) (*domain.TierUpdate, error)
	ForcePaidFunc       func(ctx context.Context, actor *domain.User, userID uuid.UUID, reason string) (*domain.TierUpdate, error)
	StatusFunc          func(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionStatusReport, error)
}

var _ service.SubscriptionService = (*mockSubscriptionService)(nil)

func (m *mockSubscriptionService) ApplyEvent(ctx context.Context, event domain.SubscriptionEvent) (*domain.ApplyResult, error) {
	if m.ApplyEventFunc != nil {
		return m.ApplyEventFunc(ctx, event)
	}
	return nil, errNotImplemented
}

func (m *mockSubscriptionService) VerifyAndRepair(ctx context.Context, userID uuid.UUID) (*domain.TierUpdate, error) {
	if m.VerifyAndRepairFunc != nil {
		return m.VerifyAndRepairFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockSubscriptionService) ForcePaid(ctx context.Context, actor *domain.User, userID uuid.UUID, reason string) (*domain.TierUpdate, error) {
	if m.ForcePaidFunc != nil {
		return m.ForcePaidFunc(ctx, actor, userID, reason)
	}
	return nil, errNotImplemented
}

func (m *mockSubscriptionService) Status(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionStatusReport, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

// =============================================================================
// ContactService
// =============================================================================

type mockContactService struct {
	SendMessageFunc func(ctx context.Context, msg domain.ContactMessage) error
	SubscribeFunc   func(ctx context.Context, address string) error
}

var _ service.ContactService = (*mockContactService)(nil)

func (m *mockContactService) SendMessage(ctx context.Context, msg domain.ContactMessage) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, msg)
	}
	return errNotImplemented
}

func (m *mockContactService) Subscribe(ctx context.Context, address string) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, address)
	}
	return errNotImplemented
}

// =============================================================================
// WebhookVerifier / LoginLimiter
// =============================================================================

type mockVerifier struct {
	VerifyFunc func(payload []byte, signature string) (stripe.Event, error)
	ParseFunc  func(event stripe.Event) (domain.SubscriptionEvent, error)
}

var _ WebhookVerifier = (*mockVerifier)(nil)

func (m *mockVerifier) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(payload, signature)
	}
	return stripe.Event{}, errNotImplemented
}

func (m *mockVerifier) ParseEvent(event stripe.Event) (domain.SubscriptionEvent, error) {
	if m.ParseFunc != nil {
		return m.ParseFunc(event)
	}
	return domain.SubscriptionEvent{}, errNotImplemented
}

type recordingLimiter struct {
	mu       sync.Mutex
	failures []string
	resets   []string
}

var _ LoginLimiter = (*recordingLimiter)(nil)

func (l *recordingLimiter) RecordFailedLogin(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, ip)
}

func (l *recordingLimiter) ResetLogin(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets = append(l.resets, ip)
}

// =============================================================================
// Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestUser() *domain.User {
	return &domain.User{
		ID:               uuid.New(),
		Email:            "jane@example.com",
		Name:             "Jane",
		Role:             domain.RoleUser,
		SubscriptionTier: domain.SubscriptionTierFree,
	}
}

// passthrough stands in for route middleware the test does not exercise.
func passthrough(next http.Handler) http.Handler { return next }

// jsonRequest builds a request with body encoded as JSON. A string body is
// sent as-is.
func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withUser(req *http.Request, user *domain.User) *http.Request {
	return req.WithContext(auth.SetUser(req.Context(), user))
}

// serve routes req through mux and returns the recorder.
func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// decodeError decodes an error response body.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) JSONErrorBody {
	t.Helper()
	var body JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}
