package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseURL string

	// Application base URL (for email links and Stripe redirects)
	BaseURL string

	// SessionDuration is how long a login lasts.
	SessionDuration time.Duration

	// Daily generation limits per tier
	FreeTierDailyLimit int
	PaidTierDailyLimit int

	// SMTP Configuration. An empty host logs emails instead of sending.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	ContactInbox string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string
	LocalStorageURL  string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// AI Provider Configuration
	AIProvider       string // "openai" or "mock"
	OpenAIAPIKey     string
	OpenAITextModel  string
	OpenAIImageModel string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AITimeout        time.Duration

	// Stripe Billing Configuration. Billing routes answer 501 and webhooks
	// are rejected while the secret key is empty.
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	StripeLookupTimeout time.Duration

	// Registration invite codes
	InviteCodesEnabled bool
	ValidInviteCodes   []string

	// Admin access control, in addition to the ADMIN role
	AdminEmails []string

	// Metrics endpoint authentication. Empty leaves /metrics open.
	MetricsUsername string
	MetricsPassword string
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// BillingEnabled reports whether Stripe is configured.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != ""
}

// LoadConfig reads the configuration from the environment. Callers load any
// .env file first.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnvInt("PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		BaseURL:     strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),

		SessionDuration: getEnvDuration("SESSION_DURATION", 7*24*time.Hour),

		FreeTierDailyLimit: getEnvInt("FREE_TIER_DAILY_LIMIT", 3),
		PaidTierDailyLimit: getEnvInt("PAID_TIER_DAILY_LIMIT", 10),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@adcraft.app"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "AdCraft"),
		ContactInbox: getEnv("CONTACT_INBOX", "hello@adcraft.app"),

		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("STORAGE_LOCAL_PATH", "./storage"),
		LocalStorageURL:  getEnv("STORAGE_BASE_URL", "http://localhost:8080/files"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAITextModel:  getEnv("OPENAI_TEXT_MODEL", "gpt-4o-mini"),
		OpenAIImageModel: getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", time.Second),
		AITimeout:        getEnvDuration("AI_TIMEOUT", 90*time.Second),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceID:       getEnv("STRIPE_PRICE_ID", ""),
		StripeLookupTimeout: getEnvDuration("STRIPE_LOOKUP_TIMEOUT", 10*time.Second),

		InviteCodesEnabled: getEnvBool("INVITE_CODES_ENABLED", false),
		ValidInviteCodes:   getEnvList("VALID_INVITE_CODES", strings.ToUpper),
		AdminEmails:        getEnvList("ADMIN_EMAILS", strings.ToLower),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and the settings each provider choice
// depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got: %d", c.Port))
	}
	if c.FreeTierDailyLimit < 0 || c.PaidTierDailyLimit < 0 {
		errs = append(errs, errors.New("FREE_TIER_DAILY_LIMIT and PAID_TIER_DAILY_LIMIT must not be negative"))
	}

	switch c.StorageProvider {
	case "local":
	case "r2":
		for key, val := range map[string]string{
			"R2_ACCOUNT_ID":        c.R2AccountID,
			"R2_ACCESS_KEY_ID":     c.R2AccessKeyID,
			"R2_SECRET_ACCESS_KEY": c.R2SecretAccessKey,
			"R2_BUCKET_NAME":       c.R2BucketName,
		} {
			if val == "" {
				errs = append(errs, fmt.Errorf("%s is required when STORAGE_PROVIDER is 'r2'", key))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", c.StorageProvider))
	}

	switch c.AIProvider {
	case "mock":
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when AI_PROVIDER is 'openai'"))
		}
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER must be either 'openai' or 'mock', got: %s", c.AIProvider))
	}

	if c.BillingEnabled() {
		if c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
		}
		if c.StripePriceID == "" {
			errs = append(errs, errors.New("STRIPE_PRICE_ID is required when STRIPE_SECRET_KEY is set"))
		}
	}

	if c.InviteCodesEnabled && len(c.ValidInviteCodes) == 0 {
		errs = append(errs, errors.New("VALID_INVITE_CODES is required when INVITE_CODES_ENABLED is true"))
	}

	if !c.IsDevelopment() && c.MetricsUsername == "" {
		errs = append(errs, errors.New("METRICS_USERNAME is required outside development"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, trimming and normalizing each
// entry and dropping empty ones.
func getEnvList(key string, normalize func(string) string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = normalize(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
