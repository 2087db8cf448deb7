package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/invoice-pricing/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	RateLimit          string

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsEnabled   bool
	MetricsBuckets   string
	TracingEnabled   bool
	OTLPEndpoint     string
	TracingSampling  float64

	PricingProfile     string
	TaxRateOverrides   map[string]pricing.Bps
	CouponOverrides    map[string]pricing.Bps
	MembershipOverride map[string]pricing.Bps
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     parseInt64(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20),
		RateLimit:          valueOrDefault(k.String("RATE_LIMIT"), "300-M"),
		LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "invoice"),
		MetricsEnabled:     parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsBuckets:     k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:     parseBool(k.String("OBS_ENABLE_TRACING"), false),
		OTLPEndpoint:       strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingSampling:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		PricingProfile:     strings.ToLower(valueOrDefault(k.String("PRICING_PROFILE"), "standard")),
	}

	var err error
	if cfg.TaxRateOverrides, err = ParseRateTable(k.String("PRICING_TAX_RATES_BPS")); err != nil {
		return nil, fmt.Errorf("PRICING_TAX_RATES_BPS: %w", err)
	}
	if cfg.CouponOverrides, err = ParseRateTable(k.String("PRICING_COUPONS_BPS")); err != nil {
		return nil, fmt.Errorf("PRICING_COUPONS_BPS: %w", err)
	}
	if cfg.MembershipOverride, err = ParseRateTable(k.String("PRICING_MEMBERSHIPS_BPS")); err != nil {
		return nil, fmt.Errorf("PRICING_MEMBERSHIPS_BPS: %w", err)
	}

	switch cfg.PricingProfile {
	case "standard", "flat":
	default:
		return nil, fmt.Errorf("PRICING_PROFILE must be standard or flat, got %q", cfg.PricingProfile)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// PricingRules builds the rule tables for the configured profile with overrides applied.
func (c *Config) PricingRules() (pricing.Rules, error) {
	rules := pricing.Profile(c.PricingProfile).WithOverrides(c.TaxRateOverrides, c.CouponOverrides, c.MembershipOverride)
	if err := rules.Validate(); err != nil {
		return pricing.Rules{}, fmt.Errorf("pricing rules: %w", err)
	}
	return rules, nil
}

// ParseRateTable parses "KEY=BPS,KEY=BPS" into a rate table. Blank input yields nil.
func ParseRateTable(value string) (map[string]pricing.Bps, error) {
	entries := splitAndTrim(value)
	if len(entries) == 0 {
		return nil, nil
	}
	table := make(map[string]pricing.Bps, len(entries))
	for _, entry := range entries {
		key, raw, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed entry %q", entry)
		}
		bps, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry, err)
		}
		table[key] = pricing.Bps(bps)
	}
	return table, nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt64(value string, fallback int64) int64 {
	if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		return parsed
	}
	return fallback
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
