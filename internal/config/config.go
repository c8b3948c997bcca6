// Package config loads and validates all environment variables at startup.
// Every other package receives typed values — nothing reads os.Getenv
// directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the fully-parsed application configuration.
type Config struct {
	// ── Server ────────────────────────────────────────────────────────────────
	Port    string // default "3333"
	Env     string // "development" | "staging" | "production"
	BaseURL string // public URL of this API, used in download links

	// AllowedOrigins is the CORS allow-list for the quiz frontend.
	AllowedOrigins []string

	// ── Mercado Pago ──────────────────────────────────────────────────────────
	MPAccessToken   string
	MPWebhookSecret string // required in production; optional in development

	// ── Database ──────────────────────────────────────────────────────────────
	// Optional. When set, fulfillment state is stored in Postgres; when
	// empty, state is in-memory and lost on restart.
	DatabaseURL string

	// ── Pricing ───────────────────────────────────────────────────────────────
	PlanAmount   decimal.Decimal // default 19.90
	UpsellAmount decimal.Decimal // default 9.90
	CurrencyID   string          // default "BRL"

	// ── Downloads ─────────────────────────────────────────────────────────────
	DownloadDir string // directory holding the FitIQ-P*.pdf deliverables

	// ── Frontend redirects (upsell hosted checkout) ───────────────────────────
	FrontendSuccessURL string
	FrontendFailureURL string

	// ── Resend (optional) ─────────────────────────────────────────────────────
	ResendAPIKey  string
	EmailFromAddr string // e.g. "planos@quizlm.com.br"
	EmailFromName string // e.g. "FitIQ"
}

// Load reads all environment variables and returns a validated Config. A
// .env file in the working directory is loaded first when present, so plain
// `go run ./cmd/api` works in development without any wrapper. Real
// environment variables always take precedence over .env values
// (godotenv.Load never overwrites existing keys).
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		Port:               getEnv("PORT", "3333"),
		Env:                getEnv("ENV", "development"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:3333"),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "https://www.quizlm.com.br,https://quizlm.com.br,http://localhost:5173")),
		MPAccessToken:      strings.TrimSpace(os.Getenv("MP_ACCESS_TOKEN")),
		MPWebhookSecret:    strings.TrimSpace(os.Getenv("MP_WEBHOOK_SECRET")),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		PlanAmount:         getEnvAsDecimal("PLAN_AMOUNT", decimal.RequireFromString("19.90")),
		UpsellAmount:       getEnvAsDecimal("UPSELL_AMOUNT", decimal.RequireFromString("9.90")),
		CurrencyID:         getEnv("CURRENCY_ID", "BRL"),
		DownloadDir:        getEnv("DOWNLOAD_DIR", "./downloads"),
		FrontendSuccessURL: getEnv("FRONTEND_SUCCESS_URL", "http://localhost:5173/sucesso"),
		FrontendFailureURL: getEnv("FRONTEND_FAILURE_URL", "http://localhost:5173/erro"),
		ResendAPIKey:       os.Getenv("RESEND_API_KEY"),
		EmailFromAddr:      getEnv("EMAIL_FROM_ADDR", "planos@quizlm.com.br"),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "FitIQ"),
	}

	return c, c.validate()
}

func (c *Config) validate() error {
	var errs []error

	if c.MPAccessToken == "" {
		errs = append(errs, fmt.Errorf("missing required env var: MP_ACCESS_TOKEN"))
	}

	// Running without webhook signature verification is a forgeable-
	// fulfillment vulnerability; only a development box may do it.
	if c.MPWebhookSecret == "" && c.Env == "production" {
		errs = append(errs, fmt.Errorf("MP_WEBHOOK_SECRET must be set in production"))
	}

	if !c.PlanAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("PLAN_AMOUNT must be positive"))
	}
	if !c.UpsellAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("UPSELL_AMOUNT must be positive"))
	}

	return errors.Join(errs...)
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
