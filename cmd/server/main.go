package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/adcraft/internal"
	"github.com/DukeRupert/adcraft/internal/ai"
	"github.com/DukeRupert/adcraft/internal/ai/mock"
	"github.com/DukeRupert/adcraft/internal/ai/openai"
	"github.com/DukeRupert/adcraft/internal/billing"
	"github.com/DukeRupert/adcraft/internal/email"
	"github.com/DukeRupert/adcraft/internal/handler"
	"github.com/DukeRupert/adcraft/internal/invite"
	"github.com/DukeRupert/adcraft/internal/metrics"
	"github.com/DukeRupert/adcraft/internal/middleware"
	"github.com/DukeRupert/adcraft/internal/quota"
	"github.com/DukeRupert/adcraft/internal/repository"
	"github.com/DukeRupert/adcraft/internal/service"
	"github.com/DukeRupert/adcraft/internal/storage"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// sessionCleanupInterval is how often expired sessions are purged.
const sessionCleanupInterval = time.Hour

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// ==========================================================================
	// Database
	// ==========================================================================

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := internal.RunMigrations(db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	store := repository.NewStore(db)
	logger.Info("Database ready")

	// ==========================================================================
	// External providers
	// ==========================================================================

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return fmt.Errorf("email initialization failed: %w", err)
	}

	objects, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	aiProvider, err := newAIProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("ai provider initialization failed: %w", err)
	}

	var stripeService billing.Service
	if cfg.BillingEnabled() {
		stripeService = billing.NewStripeService(billing.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			PriceID:       cfg.StripePriceID,
			LookupTimeout: cfg.StripeLookupTimeout,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled: STRIPE_SECRET_KEY is not set")
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	admins := service.NewAdminPolicy(cfg.AdminEmails)
	gate := quota.NewGate(quota.DailyLimits{
		Free: cfg.FreeTierDailyLimit,
		Paid: cfg.PaidTierDailyLimit,
	}, nil, logger)

	userService := service.NewUserService(store, mailer, logger, service.UserServiceConfig{
		SessionDuration: cfg.SessionDuration,
	})
	imageService := service.NewImageService(store, objects, service.NewImagingProcessor(), logger)
	generationService := service.NewGenerationService(store, gate, aiProvider, objects, logger)
	contactService := service.NewContactService(store, mailer, cfg.ContactInbox, logger)

	var (
		subscriptionProvider service.SubscriptionProvider
		webhookVerifier      handler.WebhookVerifier
		billingService       service.BillingService
	)
	if stripeService != nil {
		subscriptionProvider = stripeService
		webhookVerifier = stripeService
		billingService = service.NewBillingService(store, stripeService, cfg.BaseURL, logger)
	}
	subscriptionService := service.NewSubscriptionService(store, subscriptionProvider, admins, logger,
		service.SubscriptionServiceConfig{LookupTimeout: cfg.StripeLookupTimeout})

	// ==========================================================================
	// Middleware
	// ==========================================================================

	isSecure := !cfg.IsDevelopment()
	authMw := middleware.NewAuthMiddleware(userService, admins, logger, isSecure)
	authLimiter := middleware.NewAuthRateLimiter(logger)
	defer authLimiter.Stop()
	publicLimiter := middleware.NewRateLimiter(10, time.Hour, logger)
	defer publicLimiter.Stop()

	// ==========================================================================
	// Routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", middleware.MetricsAuth(cfg.MetricsUsername, cfg.MetricsPassword, logger)(promhttp.Handler()))

	if local, ok := objects.(*storage.LocalStorage); ok {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(local.BasePath()))))
	}

	handler.NewAuthHandler(userService, invite.New(cfg.InviteCodesEnabled, cfg.ValidInviteCodes), authLimiter, logger,
		handler.AuthHandlerConfig{
			SessionDuration: service.NormalizeSessionDuration(cfg.SessionDuration),
			Secure:          isSecure,
		}).RegisterRoutes(mux, handler.AuthRoutes{
		RequireUser:        authMw.RequireUser,
		LimitLogin:         authLimiter.LimitLogin,
		LimitRegister:      authLimiter.LimitRegister,
		LimitPasswordReset: authLimiter.LimitPasswordReset,
		LimitOTP:           authLimiter.LimitOTP,
	})
	handler.NewImageHandler(imageService, logger).RegisterRoutes(mux, authMw.RequireUser)
	handler.NewGenerationHandler(generationService, logger).RegisterRoutes(mux, authMw.RequireUser)
	handler.NewBillingHandler(billingService, logger).RegisterRoutes(mux, authMw.RequireUser)
	handler.NewSubscriptionHandler(subscriptionService, logger).RegisterRoutes(mux, authMw.RequireUser)
	handler.NewAdminHandler(subscriptionService, logger).RegisterRoutes(mux, authMw.RequireAdmin)
	handler.NewWebhookHandler(webhookVerifier, subscriptionService, logger).RegisterRoutes(mux)
	handler.NewContactHandler(contactService, logger).RegisterRoutes(mux,
		middleware.NewRateLimitMiddleware(publicLimiter, logger).Limit)

	root := middleware.Stack(
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
		metrics.Middleware(mux),
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		authMw.WithUser,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	go purgeExpiredSessions(ctx, userService, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation runs inside the request and can take over a minute.
		WriteTimeout: cfg.AITimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func newMailer(cfg *internal.Config, logger *slog.Logger) (email.EmailService, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST is not set; emails will be logged, not sent")
		return email.NewLogEmailService(logger), nil
	}
	return email.NewSMTPEmailService(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, cfg.BaseURL, logger)
}

func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.StorageProvider == storage.ProviderR2 {
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	}
	return storage.NewLocalStorage(storage.LocalConfig{
		BasePath: cfg.LocalStoragePath,
		BaseURL:  cfg.LocalStorageURL,
	}, logger)
}

func newAIProvider(cfg *internal.Config, logger *slog.Logger) (ai.Provider, error) {
	if cfg.AIProvider != "openai" {
		logger.Warn("using mock AI provider")
		return mock.New(logger), nil
	}
	return openai.New(openai.Config{
		APIKey:     cfg.OpenAIAPIKey,
		TextModel:  cfg.OpenAITextModel,
		ImageModel: cfg.OpenAIImageModel,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     cfg.AIMaxRetries,
			RetryBaseDelay: cfg.AIRetryBaseDelay,
			RequestTimeout: cfg.AITimeout,
		},
	}, logger)
}

// purgeExpiredSessions deletes expired sessions at startup and then hourly
// until ctx ends.
func purgeExpiredSessions(ctx context.Context, users service.UserService, logger *slog.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		if n, err := users.DeleteExpiredSessions(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Warn("failed to purge expired sessions", "error", err)
			}
		} else if n > 0 {
			logger.Info("purged expired sessions", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
