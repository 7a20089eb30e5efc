package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenerationMux(svc *mockGenerationService) *http.ServeMux {
	mux := http.NewServeMux()
	NewGenerationHandler(svc, newTestLogger()).RegisterRoutes(mux, passthrough)
	return mux
}

func TestCreateGeneration(t *testing.T) {
	user := newTestUser()
	imageID := uuid.New()
	genID := uuid.New()

	svc := &mockGenerationService{
		GenerateFunc: func(ctx context.Context, params domain.GenerateParams) (*domain.GenerationResult, error) {
			assert.Equal(t, user.ID, params.UserID)
			assert.Equal(t, imageID, params.ImageID)
			assert.Equal(t, domain.PlatformInstagramPost, params.Platform)
			assert.Equal(t, "Cold Brew Kit", params.ProductName)
			assert.Equal(t, "navy, gold", params.BrandColors)
			return &domain.GenerationResult{
				Generation: &domain.Generation{ID: genID, UserID: user.ID, Status: domain.GenerationStatus("COMPLETED")},
				Usage:      domain.QuotaUsage{Tier: domain.SubscriptionTierFree, Used: 1, Limit: 3, Remaining: 2},
			}, nil
		},
	}

	req := withUser(jsonRequest(t, http.MethodPost, "/api/generations", map[string]string{
		"productName": "Cold Brew Kit",
		"slogan":      "Brew bold",
		"platform":    " instagram_post ",
		"brandColors": "navy, gold",
		"imageId":     imageID.String(),
	}), user)
	rec := serve(newGenerationMux(svc), req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body domain.GenerationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, genID, body.Generation.ID)
	assert.Equal(t, 2, body.Usage.Remaining)
}

func TestCreateGeneration_QuotaExceeded(t *testing.T) {
	resetsAt := time.Now().Add(time.Hour)
	svc := &mockGenerationService{
		GenerateFunc: func(ctx context.Context, params domain.GenerateParams) (*domain.GenerationResult, error) {
			return nil, domain.QuotaExceeded("generation.reserve", domain.SubscriptionTierFree, 3, 3, resetsAt)
		},
	}

	req := withUser(jsonRequest(t, http.MethodPost, "/api/generations", map[string]string{
		"productName": "Kit", "slogan": "Go", "platform": "TIKTOK",
	}), newTestUser())
	rec := serve(newGenerationMux(svc), req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.Equal(t, domain.EQUOTA, body.Code)
	assert.EqualValues(t, 3, body.Details["limit"])
}

func TestCreateGeneration_ProviderFailure(t *testing.T) {
	genID := uuid.New()
	svc := &mockGenerationService{
		GenerateFunc: func(ctx context.Context, params domain.GenerateParams) (*domain.GenerationResult, error) {
			err := domain.ProviderUnavailable(errors.New("503"), "generation.generate", "Content generation")
			err.Details = map[string]any{"generation_id": genID.String()}
			return nil, err
		},
	}

	req := withUser(jsonRequest(t, http.MethodPost, "/api/generations", map[string]string{
		"productName": "Kit", "slogan": "Go", "platform": "TIKTOK",
	}), newTestUser())
	rec := serve(newGenerationMux(svc), req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, genID.String(), decodeError(t, rec).Details["generation_id"])
}

func TestCreateGeneration_BadImageID(t *testing.T) {
	svc := &mockGenerationService{
		GenerateFunc: func(ctx context.Context, params domain.GenerateParams) (*domain.GenerationResult, error) {
			t.Fatal("generate called with a bad image id")
			return nil, nil
		},
	}

	req := withUser(jsonRequest(t, http.MethodPost, "/api/generations", map[string]string{
		"productName": "Kit", "imageId": "not-a-uuid",
	}), newTestUser())
	rec := serve(newGenerationMux(svc), req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "image_id")
}

func TestCreateGeneration_Unauthenticated(t *testing.T) {
	rec := serve(newGenerationMux(&mockGenerationService{}),
		jsonRequest(t, http.MethodPost, "/api/generations", map[string]string{"productName": "Kit"}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListGenerations(t *testing.T) {
	user := newTestUser()
	var got service.ListGenerationsParams
	svc := &mockGenerationService{
		ListFunc: func(ctx context.Context, params service.ListGenerationsParams) (*service.GenerationPage, error) {
			got = params
			return &service.GenerationPage{Total: 0, Limit: params.Limit, Offset: params.Offset}, nil
		},
	}
	mux := newGenerationMux(svc)

	rec := serve(mux, withUser(jsonRequest(t, http.MethodGet, "/api/generations?status=completed,failed&status=pending&limit=5&offset=10", nil), user))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, got.UserID)
	assert.Equal(t, []domain.GenerationStatus{"COMPLETED", "FAILED", "PENDING"}, got.Statuses)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, 10, got.Offset)

	for _, q := range []string{"limit=-1", "limit=ten", "offset=-3"} {
		rec = serve(mux, withUser(jsonRequest(t, http.MethodGet, "/api/generations?"+q, nil), user))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetGeneration(t *testing.T) {
	user := newTestUser()
	owned := uuid.New()
	svc := &mockGenerationService{
		GetByIDFunc: func(ctx context.Context, generationID, userID uuid.UUID) (*domain.Generation, error) {
			if generationID != owned || userID != user.ID {
				return nil, domain.NotFound("generation.get", "generation", generationID.String())
			}
			return &domain.Generation{ID: owned, UserID: user.ID}, nil
		},
	}
	mux := newGenerationMux(svc)

	rec := serve(mux, withUser(jsonRequest(t, http.MethodGet, "/api/generations/"+owned.String(), nil), user))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(mux, withUser(jsonRequest(t, http.MethodGet, "/api/generations/"+uuid.NewString(), nil), user))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(mux, withUser(jsonRequest(t, http.MethodGet, "/api/generations/garbage", nil), user))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuota(t *testing.T) {
	user := newTestUser()
	svc := &mockGenerationService{
		QuotaUsageFunc: func(ctx context.Context, userID uuid.UUID) (*domain.QuotaUsage, error) {
			return &domain.QuotaUsage{Tier: domain.SubscriptionTierPaid, Used: 4, Limit: 10, Remaining: 6}, nil
		},
	}

	rec := serve(newGenerationMux(svc), withUser(jsonRequest(t, http.MethodGet, "/api/quota", nil), user))

	require.Equal(t, http.StatusOK, rec.Code)
	var usage domain.QuotaUsage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, domain.SubscriptionTierPaid, usage.Tier)
	assert.Equal(t, 6, usage.Remaining)
}
