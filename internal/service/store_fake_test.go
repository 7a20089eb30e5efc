package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/adcraft/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// memStore is an in-memory repository.TxQuerier. ExecTx serializes
// transactions and rolls back every change when fn fails, which is enough to
// model the row lock and atomicity the services rely on.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	now func() time.Time

	users       map[uuid.UUID]repository.User
	sessions    map[string]repository.Session
	otps        map[uuid.UUID]repository.EmailOtp
	resets      map[string]repository.PasswordResetToken
	images      map[uuid.UUID]repository.Image
	generations map[uuid.UUID]repository.Generation
	newsletter  map[string]repository.NewsletterSubscriber

	// Injected failures.
	createGenerationErr error
	updateSubErr        error

	// beforeReserve runs under the lock before the slot predicate is checked,
	// standing in for a concurrent writer.
	beforeReserve func(u *repository.User)

	calls map[string]int
}

var _ repository.TxQuerier = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		now:         time.Now,
		users:       map[uuid.UUID]repository.User{},
		sessions:    map[string]repository.Session{},
		otps:        map[uuid.UUID]repository.EmailOtp{},
		resets:      map[string]repository.PasswordResetToken{},
		images:      map[uuid.UUID]repository.Image{},
		generations: map[uuid.UUID]repository.Generation{},
		newsletter:  map[string]repository.NewsletterSubscriber{},
		calls:       map[string]int{},
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (m *memStore) count(name string) {
	m.calls[name]++
}

func (m *memStore) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// snapshot copies every table so a failed transaction can be undone.
type memSnapshot struct {
	users       map[uuid.UUID]repository.User
	sessions    map[string]repository.Session
	otps        map[uuid.UUID]repository.EmailOtp
	resets      map[string]repository.PasswordResetToken
	images      map[uuid.UUID]repository.Image
	generations map[uuid.UUID]repository.Generation
	newsletter  map[string]repository.NewsletterSubscriber
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memSnapshot{
		users:       copyMap(m.users),
		sessions:    copyMap(m.sessions),
		otps:        copyMap(m.otps),
		resets:      copyMap(m.resets),
		images:      copyMap(m.images),
		generations: copyMap(m.generations),
		newsletter:  copyMap(m.newsletter),
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = s.users
	m.sessions = s.sessions
	m.otps = s.otps
	m.resets = s.resets
	m.images = s.images
	m.generations = s.generations
	m.newsletter = s.newsletter
}

func (m *memStore) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// ===== Seeding helpers =====

func (m *memStore) addUser(u repository.User) repository.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = "USER"
	}
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = "FREE"
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now()
		u.UpdatedAt = u.CreatedAt
	}
	m.users[u.ID] = u
	return u
}

func (m *memStore) user(id uuid.UUID) repository.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

// ===== Users =====

func (m *memStore) CreateUser(ctx context.Context, arg repository.CreateUserParams) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("CreateUser")
	for _, u := range m.users {
		if u.Email == arg.Email {
			return repository.User{}, &pgconn.PgError{Code: "23505"}
		}
	}
	now := m.now()
	u := repository.User{
		ID:               uuid.New(),
		Email:            arg.Email,
		PasswordHash:     arg.PasswordHash,
		Name:             arg.Name,
		Role:             arg.Role,
		SubscriptionTier: "FREE",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserByStripeCustomerID(ctx context.Context, id sql.NullString) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if id.Valid && u.StripeCustomerID.Valid && u.StripeCustomerID.String == id.String {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserBySubscriptionID(ctx context.Context, id sql.NullString) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if id.Valid && u.SubscriptionID.Valid && u.SubscriptionID.String == id.String {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserForUpdate(ctx context.Context, id uuid.UUID) (repository.User, error) {
	m.mu.Lock()
	m.count("GetUserForUpdate")
	m.mu.Unlock()
	return m.GetUserByID(ctx, id)
}

func (m *memStore) GetUserQuotaState(ctx context.Context, id uuid.UUID) (repository.GetUserQuotaStateRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.GetUserQuotaStateRow{}, sql.ErrNoRows
	}
	return repository.GetUserQuotaStateRow{
		ID:                u.ID,
		SubscriptionTier:  u.SubscriptionTier,
		GenerationsToday:  u.GenerationsToday,
		LastGenerationDay: u.LastGenerationDay,
	}, nil
}

// ReserveGenerationSlot mirrors the SQL predicate: it only writes while the
// counter for the given day is below the limit.
func (m *memStore) ReserveGenerationSlot(ctx context.Context, arg repository.ReserveGenerationSlotParams) (repository.ReserveGenerationSlotRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("ReserveGenerationSlot")
	u, ok := m.users[arg.UserID]
	if !ok || arg.Limit <= 0 {
		return repository.ReserveGenerationSlotRow{}, sql.ErrNoRows
	}
	if m.beforeReserve != nil {
		m.beforeReserve(&u)
		m.users[u.ID] = u
	}

	sameDay := u.LastGenerationDay.Valid && u.LastGenerationDay.Time.Equal(arg.Day)
	olderDay := !u.LastGenerationDay.Valid || u.LastGenerationDay.Time.Before(arg.Day)
	if !olderDay && (!sameDay || u.GenerationsToday >= arg.Limit) {
		return repository.ReserveGenerationSlotRow{}, sql.ErrNoRows
	}

	if sameDay {
		u.GenerationsToday++
	} else {
		u.GenerationsToday = 1
	}
	u.LastGenerationDay = sql.NullTime{Time: arg.Day, Valid: true}
	u.UpdatedAt = m.now()
	m.users[u.ID] = u
	return repository.ReserveGenerationSlotRow{
		GenerationsToday:  u.GenerationsToday,
		LastGenerationDay: u.LastGenerationDay,
	}, nil
}

func (m *memStore) UpdateUserSubscription(ctx context.Context, arg repository.UpdateUserSubscriptionParams) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("UpdateUserSubscription")
	if m.updateSubErr != nil {
		return repository.User{}, m.updateSubErr
	}
	u, ok := m.users[arg.ID]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	u.SubscriptionTier = arg.SubscriptionTier
	u.SubscriptionID = arg.SubscriptionID
	u.SubscriptionSyncedAt = arg.SubscriptionSyncedAt
	if arg.StripeCustomerID.Valid {
		u.StripeCustomerID = arg.StripeCustomerID
	}
	u.UpdatedAt = m.now()
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) UpdateUserStripeCustomerID(ctx context.Context, arg repository.UpdateUserStripeCustomerIDParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[arg.ID]
	if !ok {
		return nil
	}
	u.StripeCustomerID = arg.StripeCustomerID
	m.users[u.ID] = u
	return nil
}

func (m *memStore) UpdateUserPassword(ctx context.Context, arg repository.UpdateUserPasswordParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[arg.ID]
	if !ok {
		return nil
	}
	u.PasswordHash = arg.PasswordHash
	m.users[u.ID] = u
	return nil
}

func (m *memStore) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	u.EmailVerified = true
	if !u.EmailVerifiedAt.Valid {
		u.EmailVerifiedAt = sql.NullTime{Time: m.now(), Valid: true}
	}
	m.users[id] = u
	return nil
}

// ===== Sessions =====

func (m *memStore) CreateSession(ctx context.Context, arg repository.CreateSessionParams) (repository.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := repository.Session{
		ID:        uuid.New(),
		UserID:    arg.UserID,
		TokenHash: arg.TokenHash,
		ExpiresAt: arg.ExpiresAt,
		CreatedAt: m.now(),
	}
	m.sessions[arg.TokenHash] = s
	return s, nil
}

func (m *memStore) GetUserBySessionToken(ctx context.Context, tokenHash string) (repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok || !s.ExpiresAt.After(m.now()) {
		return repository.User{}, sql.ErrNoRows
	}
	u, ok := m.users[s.UserID]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memStore) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memStore) DeleteUserSessions(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, k)
		}
	}
	return nil
}

func (m *memStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.sessions {
		if !s.ExpiresAt.After(m.now()) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) sessionCount(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// ===== Tokens =====

func (m *memStore) UpsertEmailOTP(ctx context.Context, arg repository.UpsertEmailOTPParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps[arg.UserID] = repository.EmailOtp{
		UserID:    arg.UserID,
		CodeHash:  arg.CodeHash,
		ExpiresAt: arg.ExpiresAt,
		CreatedAt: m.now(),
	}
	return nil
}

func (m *memStore) GetEmailOTP(ctx context.Context, userID uuid.UUID) (repository.EmailOtp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.otps[userID]
	if !ok {
		return repository.EmailOtp{}, sql.ErrNoRows
	}
	return o, nil
}

func (m *memStore) IncrementEmailOTPAttempts(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.otps[userID]; ok {
		o.Attempts++
		m.otps[userID] = o
	}
	return nil
}

func (m *memStore) DeleteEmailOTP(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.otps, userID)
	return nil
}

func (m *memStore) CreatePasswordResetToken(ctx context.Context, arg repository.CreatePasswordResetTokenParams) (repository.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := repository.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    arg.UserID,
		TokenHash: arg.TokenHash,
		ExpiresAt: arg.ExpiresAt,
		CreatedAt: m.now(),
	}
	m.resets[arg.TokenHash] = t
	return t, nil
}

func (m *memStore) GetPasswordResetToken(ctx context.Context, tokenHash string) (repository.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[tokenHash]
	if !ok {
		return repository.PasswordResetToken{}, sql.ErrNoRows
	}
	return t, nil
}

func (m *memStore) MarkPasswordResetTokenUsed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.resets {
		if t.ID == id {
			t.UsedAt = sql.NullTime{Time: m.now(), Valid: true}
			m.resets[k] = t
		}
	}
	return nil
}

func (m *memStore) DeleteUnusedPasswordResetTokens(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.resets {
		if t.UserID == userID && !t.UsedAt.Valid {
			delete(m.resets, k)
		}
	}
	return nil
}

// ===== Images =====

func (m *memStore) CreateImage(ctx context.Context, arg repository.CreateImageParams) (repository.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img := repository.Image{
		ID:               uuid.New(),
		UserID:           arg.UserID,
		StorageKey:       arg.StorageKey,
		OriginalFilename: arg.OriginalFilename,
		ContentType:      arg.ContentType,
		SizeBytes:        arg.SizeBytes,
		Width:            arg.Width,
		Height:           arg.Height,
		CreatedAt:        m.now(),
	}
	m.images[img.ID] = img
	return img, nil
}

func (m *memStore) addImage(img repository.Image) repository.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	m.images[img.ID] = img
	return img
}

func (m *memStore) GetImageByID(ctx context.Context, id uuid.UUID) (repository.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	if !ok {
		return repository.Image{}, sql.ErrNoRows
	}
	return img, nil
}

func (m *memStore) ListImagesByUser(ctx context.Context, arg repository.ListImagesByUserParams) ([]repository.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Image
	for _, img := range m.images {
		if img.UserID == arg.UserID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if arg.Limit > 0 && len(out) > int(arg.Limit) {
		out = out[:arg.Limit]
	}
	return out, nil
}

// ===== Generations =====

func (m *memStore) CreateGeneration(ctx context.Context, arg repository.CreateGenerationParams) (repository.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count("CreateGeneration")
	if m.createGenerationErr != nil {
		return repository.Generation{}, m.createGenerationErr
	}
	g := repository.Generation{
		ID:          uuid.New(),
		UserID:      arg.UserID,
		ImageID:     arg.ImageID,
		Prompt:      arg.Prompt,
		Platform:    arg.Platform,
		Status:      "PENDING",
		ProductName: arg.ProductName,
		Slogan:      arg.Slogan,
		Price:       arg.Price,
		Audience:    arg.Audience,
		Options:     arg.Options,
		CreatedAt:   m.now(),
	}
	m.generations[g.ID] = g
	return g, nil
}

func (m *memStore) GetGenerationByID(ctx context.Context, id uuid.UUID) (repository.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generations[id]
	if !ok {
		return repository.Generation{}, sql.ErrNoRows
	}
	return g, nil
}

func matchesStatus(g repository.Generation, statuses []string) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if strings.EqualFold(g.Status, s) {
			return true
		}
	}
	return false
}

func (m *memStore) ListGenerationsByUser(ctx context.Context, arg repository.ListGenerationsByUserParams) ([]repository.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Generation
	for _, g := range m.generations {
		if g.UserID == arg.UserID && matchesStatus(g, arg.Statuses) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(arg.Offset) >= len(out) {
		return nil, nil
	}
	out = out[arg.Offset:]
	if arg.Limit > 0 && len(out) > int(arg.Limit) {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (m *memStore) CountGenerationsByUser(ctx context.Context, arg repository.CountGenerationsByUserParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, g := range m.generations {
		if g.UserID == arg.UserID && matchesStatus(g, arg.Statuses) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CompleteGeneration(ctx context.Context, arg repository.CompleteGenerationParams) (repository.Generation, error) {
	if err := ctx.Err(); err != nil {
		return repository.Generation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generations[arg.ID]
	if !ok || g.Status != "PENDING" {
		return repository.Generation{}, sql.ErrNoRows
	}
	g.Status = "COMPLETED"
	g.OutputText = arg.OutputText
	g.OutputImageKey = arg.OutputImageKey
	g.CompletedAt = sql.NullTime{Time: m.now(), Valid: true}
	m.generations[g.ID] = g
	return g, nil
}

func (m *memStore) FailGeneration(ctx context.Context, arg repository.FailGenerationParams) (repository.Generation, error) {
	if err := ctx.Err(); err != nil {
		return repository.Generation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.generations[arg.ID]
	if !ok || g.Status != "PENDING" {
		return repository.Generation{}, sql.ErrNoRows
	}
	g.Status = "FAILED"
	g.ErrorMessage = arg.ErrorMessage
	g.CompletedAt = sql.NullTime{Time: m.now(), Valid: true}
	m.generations[g.ID] = g
	return g, nil
}

// ===== Newsletter =====

func (m *memStore) CreateNewsletterSubscriber(ctx context.Context, email string) (repository.NewsletterSubscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.newsletter[email]; ok {
		return repository.NewsletterSubscriber{}, sql.ErrNoRows
	}
	s := repository.NewsletterSubscriber{ID: uuid.New(), Email: email, SubscribedAt: m.now()}
	m.newsletter[email] = s
	return s, nil
}
