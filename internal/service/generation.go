// Package service contains the business logic layer.
//
// This file implements the generation service: the quota reservation that
// guards every generation, the synchronous AI pipeline, and generation
// history.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/adcraft/internal/ai"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/metrics"
	"github.com/DukeRupert/adcraft/internal/quota"
	"github.com/DukeRupert/adcraft/internal/repository"
	"github.com/DukeRupert/adcraft/internal/storage"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const (
	defaultGenerationPageSize = 20
	maxGenerationPageSize     = 100
	generationURLExpiry       = 24 * time.Hour
	finalizeTimeout           = 10 * time.Second
)

// =============================================================================
// Interface Definition
// =============================================================================

// GenerationService creates marketing content under the daily quota.
type GenerationService interface {
	// Reserve charges one slot of the user's daily quota and creates a
	// PENDING generation in a single transaction. Returns domain.EQUOTA when
	// the limit is reached, domain.EUNAUTHORIZED when the user no longer
	// exists. Nothing is charged unless the record is created.
	Reserve(ctx context.Context, params domain.GenerateParams) (*domain.Generation, quota.Decision, error)

	// Generate reserves a slot, then writes copy and an image for the brief
	// and stores the result. A provider failure marks the generation FAILED
	// and returns domain.EUNAVAILABLE; the slot stays used.
	Generate(ctx context.Context, params domain.GenerateParams) (*domain.GenerationResult, error)

	// GetByID returns a generation owned by userID. Other users'
	// generations are reported as not found.
	GetByID(ctx context.Context, generationID, userID uuid.UUID) (*domain.Generation, error)

	// List returns a page of the user's generations, newest first.
	List(ctx context.Context, params ListGenerationsParams) (*GenerationPage, error)

	// QuotaUsage reports today's usage without reserving anything.
	QuotaUsage(ctx context.Context, userID uuid.UUID) (*domain.QuotaUsage, error)
}

// ListGenerationsParams filters generation history.
type ListGenerationsParams struct {
	UserID   uuid.UUID
	Statuses []domain.GenerationStatus
	Limit    int
	Offset   int
}

// GenerationPage is one page of generation history.
type GenerationPage struct {
	Generations []domain.Generation `json:"generations"`
	Total       int64               `json:"total"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}

// =============================================================================
// Implementation
// =============================================================================

type generationService struct {
	store    repository.TxQuerier
	gate     *quota.Gate
	provider ai.Provider
	storage  storage.Storage
	logger   *slog.Logger
}

var _ GenerationService = (*generationService)(nil)

// NewGenerationService creates a new GenerationService.
func NewGenerationService(
	store repository.TxQuerier,
	gate *quota.Gate,
	provider ai.Provider,
	storage storage.Storage,
	logger *slog.Logger,
) GenerationService {
	return &generationService{
		store:    store,
		gate:     gate,
		provider: provider,
		storage:  storage,
		logger:   logger,
	}
}

// =============================================================================
// Reserve
// =============================================================================

func (s *generationService) Reserve(ctx context.Context, params domain.GenerateParams) (*domain.Generation, quota.Decision, error) {
	const op = "generation.reserve"

	if err := params.Validate(); err != nil {
		return nil, quota.Decision{}, err
	}

	// The source image must belong to the caller. Checked before the
	// reservation so a bad reference costs nothing.
	img, err := s.store.GetImageByID(ctx, params.ImageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, quota.Decision{}, domain.NotFound(op, "image", params.ImageID.String())
		}
		return nil, quota.Decision{}, domain.Internal(err, op, "Failed to retrieve image")
	}
	if img.UserID != params.UserID {
		return nil, quota.Decision{}, domain.NotFound(op, "image", params.ImageID.String())
	}

	options, err := domain.MarshalOptions(&domain.GenerationOptions{
		BrandColors:    params.BrandColors,
		SourceImageKey: img.StorageKey,
	})
	if err != nil {
		return nil, quota.Decision{}, domain.Internal(err, op, "Failed to encode generation options")
	}

	var (
		decision quota.Decision
		row      repository.Generation
	)
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		state, err := s.quotaState(ctx, q, params.UserID)
		if err != nil {
			return domain.Internal(err, op, "Failed to read quota")
		}

		decision = s.gate.CheckAndReserve(state)
		metrics.RecordQuotaDecision(decision.Tier, decision.Allowed)
		if !decision.Allowed {
			return decision.Err(op)
		}

		reserved, err := q.ReserveGenerationSlot(ctx, repository.ReserveGenerationSlotParams{
			UserID: params.UserID,
			Day:    decision.NewLastGenerationDay,
			Limit:  int32(decision.Limit),
		})
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent request took the last slot between our read and
			// the conditional update.
			return s.lostRace(ctx, q, params.UserID, decision, op)
		}
		if err != nil {
			return domain.Internal(err, op, "Failed to reserve quota")
		}
		decision.NewUsage = int(reserved.GenerationsToday)

		row, err = q.CreateGeneration(ctx, repository.CreateGenerationParams{
			UserID:      params.UserID,
			ImageID:     uuid.NullUUID{UUID: params.ImageID, Valid: true},
			Prompt:      ai.BriefFromParams(params).Summary(),
			Platform:    string(params.Platform),
			ProductName: params.ProductName,
			Slogan:      params.Slogan,
			Price:       domain.ToNullString(params.Price),
			Audience:    domain.ToNullString(params.Audience),
			Options:     pqtype.NullRawMessage{RawMessage: options, Valid: options != nil},
		})
		if err != nil {
			return domain.Internal(err, op, "Failed to create generation")
		}
		return nil
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.EQUOTA {
			s.logger.Info("generation denied by quota",
				"user_id", params.UserID,
				"tier", decision.Tier,
				"used", decision.Used,
				"limit", decision.Limit,
			)
		}
		return nil, decision, err
	}

	s.logger.Info("generation reserved",
		"user_id", params.UserID,
		"generation_id", row.ID,
		"tier", decision.Tier,
		"used", decision.NewUsage,
		"limit", decision.Limit,
	)
	return s.toDomain(ctx, row), decision, nil
}

// quotaState reads the user's counters. A missing user yields nil.
func (s *generationService) quotaState(ctx context.Context, q repository.Querier, userID uuid.UUID) (*domain.UserQuotaState, error) {
	row, err := q.GetUserQuotaState(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.UserQuotaState{
		UserID:            row.ID,
		Tier:              domain.SubscriptionTier(row.SubscriptionTier),
		GenerationsToday:  int(row.GenerationsToday),
		LastGenerationDay: domain.NullTimeValue(row.LastGenerationDay),
	}, nil
}

// lostRace re-reads usage after a failed conditional update so the denial
// reports current numbers.
func (s *generationService) lostRace(ctx context.Context, q repository.Querier, userID uuid.UUID, prev quota.Decision, op string) error {
	state, err := s.quotaState(ctx, q, userID)
	if err != nil {
		return domain.Internal(err, op, "Failed to read quota")
	}
	d := s.gate.CheckAndReserve(state)
	if !d.Allowed {
		return d.Err(op)
	}
	return domain.QuotaExceeded(op, prev.Tier, prev.Limit, prev.Limit, prev.ResetsAt)
}

// =============================================================================
// Generate
// =============================================================================

func (s *generationService) Generate(ctx context.Context, params domain.GenerateParams) (*domain.GenerationResult, error) {
	const op = "generation.generate"

	gen, decision, err := s.Reserve(ctx, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	log := s.logger.With("generation_id", gen.ID, "user_id", gen.UserID)

	brief := ai.BriefFromParams(params)
	text, imageKey, err := s.run(ctx, gen, brief)

	// The outcome is written even if the client has gone away, so no record
	// is left PENDING behind a consumed slot.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err != nil {
		log.Error("generation failed", "error", err)
		if failed, ferr := s.markFailed(finalCtx, gen.ID, ai.UserMessage(err)); ferr != nil {
			log.Error("failed to mark generation failed", "error", ferr)
		} else {
			gen = failed
		}
		metrics.RecordGeneration(params.Platform, domain.GenerationStatusFailed, time.Since(start))

		derr := domain.ProviderUnavailable(err, op, "The AI service")
		derr.Message = ai.UserMessage(err)
		derr.Details = map[string]any{"generation_id": gen.ID}
		return nil, derr
	}

	done, err := s.store.CompleteGeneration(finalCtx, repository.CompleteGenerationParams{
		ID:             gen.ID,
		OutputText:     domain.ToNullString(text),
		OutputImageKey: domain.ToNullString(imageKey),
	})
	if err != nil {
		log.Error("failed to save generation", "error", err)
		if _, ferr := s.markFailed(finalCtx, gen.ID, "Failed to save the generated ad."); ferr != nil {
			log.Error("failed to mark generation failed", "error", ferr)
		}
		metrics.RecordGeneration(params.Platform, domain.GenerationStatusFailed, time.Since(start))
		return nil, domain.Internal(err, op, "Failed to save generation")
	}
	metrics.RecordGeneration(params.Platform, domain.GenerationStatusCompleted, time.Since(start))
	log.Info("generation completed", "duration", time.Since(start))

	return &domain.GenerationResult{
		Generation: s.toDomain(finalCtx, done),
		Usage:      decision.Usage(),
	}, nil
}

func (s *generationService) markFailed(ctx context.Context, id uuid.UUID, message string) (*domain.Generation, error) {
	row, err := s.store.FailGeneration(ctx, repository.FailGenerationParams{
		ID:           id,
		ErrorMessage: domain.ToNullString(message),
	})
	if err != nil {
		return nil, err
	}
	return s.toDomain(ctx, row), nil
}

// run calls the AI provider for copy and an image and stores the image.
func (s *generationService) run(ctx context.Context, gen *domain.Generation, brief ai.Brief) (string, string, error) {
	start := time.Now()
	copyRes, err := s.provider.GenerateCopy(ctx, ai.CopyParams{
		Brief:        brief,
		UserID:       gen.UserID,
		GenerationID: gen.ID,
	})
	metrics.RecordAICall("copy", time.Since(start), err)
	if err != nil {
		return "", "", ai.WrapError("copy", err)
	}
	metrics.RecordAITokens(copyRes.Usage.InputTokens, copyRes.Usage.OutputTokens)

	start = time.Now()
	imgRes, err := s.provider.GenerateImage(ctx, ai.ImageParams{
		Brief:        brief,
		UserID:       gen.UserID,
		GenerationID: gen.ID,
	})
	metrics.RecordAICall("image", time.Since(start), err)
	if err != nil {
		return "", "", ai.WrapError("image", err)
	}
	if len(imgRes.Data) == 0 {
		return "", "", ai.WrapError("image", ai.EAIEmptyResponse)
	}

	contentType := imgRes.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	key := storage.GenerationKey(gen.UserID, gen.ID, contentType)
	if err := s.storage.Put(ctx, key, bytes.NewReader(imgRes.Data), storage.PutOptions{
		ContentType: contentType,
		Overwrite:   true,
	}); err != nil {
		return "", "", err
	}
	return copyRes.Text, key, nil
}

// =============================================================================
// Queries
// =============================================================================

func (s *generationService) GetByID(ctx context.Context, generationID, userID uuid.UUID) (*domain.Generation, error) {
	const op = "generation.get"

	row, err := s.store.GetGenerationByID(ctx, generationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "generation", generationID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve generation")
	}
	if row.UserID != userID {
		return nil, domain.NotFound(op, "generation", generationID.String())
	}
	return s.toDomain(ctx, row), nil
}

func (s *generationService) List(ctx context.Context, params ListGenerationsParams) (*GenerationPage, error) {
	const op = "generation.list"

	limit := params.Limit
	if limit <= 0 {
		limit = defaultGenerationPageSize
	}
	if limit > maxGenerationPageSize {
		limit = maxGenerationPageSize
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	statuses := make([]string, 0, len(params.Statuses))
	for _, st := range params.Statuses {
		if !st.IsValid() {
			return nil, domain.Invalid(op, "Unknown status: "+string(st))
		}
		statuses = append(statuses, string(st))
	}

	rows, err := s.store.ListGenerationsByUser(ctx, repository.ListGenerationsByUserParams{
		UserID:   params.UserID,
		Statuses: statuses,
		Limit:    int32(limit),
		Offset:   int32(offset),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list generations")
	}
	total, err := s.store.CountGenerationsByUser(ctx, repository.CountGenerationsByUserParams{
		UserID:   params.UserID,
		Statuses: statuses,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to count generations")
	}

	page := &GenerationPage{
		Generations: make([]domain.Generation, len(rows)),
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	}
	for i, row := range rows {
		page.Generations[i] = *s.toDomain(ctx, row)
	}
	return page, nil
}

func (s *generationService) QuotaUsage(ctx context.Context, userID uuid.UUID) (*domain.QuotaUsage, error) {
	const op = "generation.quota_usage"

	state, err := s.quotaState(ctx, s.store, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to read quota")
	}
	if state == nil {
		return nil, domain.NotFound(op, "user", userID.String())
	}
	usage := s.gate.Usage(state)
	return &usage, nil
}

// toDomain converts a row. The output image gets a link when one can be built.
func (s *generationService) toDomain(ctx context.Context, row repository.Generation) *domain.Generation {
	g := &domain.Generation{
		ID:             row.ID,
		UserID:         row.UserID,
		Prompt:         row.Prompt,
		Platform:       domain.Platform(row.Platform),
		Status:         domain.GenerationStatus(row.Status),
		ProductName:    row.ProductName,
		Slogan:         row.Slogan,
		Price:          domain.NullStringValue(row.Price),
		Audience:       domain.NullStringValue(row.Audience),
		OutputText:     domain.NullStringValue(row.OutputText),
		OutputImageKey: domain.NullStringValue(row.OutputImageKey),
		ErrorMessage:   domain.NullStringValue(row.ErrorMessage),
		CreatedAt:      row.CreatedAt,
		CompletedAt:    domain.NullTimeValue(row.CompletedAt),
	}
	if row.ImageID.Valid {
		id := row.ImageID.UUID
		g.ImageID = &id
	}
	if row.Options.Valid {
		opts, err := domain.UnmarshalOptions(row.Options.RawMessage)
		if err != nil {
			s.logger.Warn("ignoring unreadable generation options", "generation_id", row.ID, "error", err)
		} else if opts != nil && opts.BrandColors != "" {
			// The source key is internal.
			g.Options = &domain.GenerationOptions{BrandColors: opts.BrandColors}
		}
	}
	if g.OutputImageKey != "" {
		url, err := s.storage.URL(ctx, g.OutputImageKey, generationURLExpiry)
		if err != nil {
			s.logger.Warn("failed to build generation image url", "generation_id", row.ID, "error", err)
		} else {
			g.OutputImageURL = url
		}
	}
	return g
}
