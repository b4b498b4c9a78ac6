package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	SurchargeFeeLabel  string
	SurchargePercent   int64 // basis points of the fee base
	SurchargeTaxable   bool
	SessionBaselineTTL time.Duration
	SessionLockTTL     time.Duration
	RuleCacheTTL       time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int

	ObsServiceName    string
	ObsHTTPBuckets    string
	PprofEnabled      bool
	PprofUser         string
	PprofPass         string
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

// Load reads configuration from environment variables and optional .env files.
// DATABASE_URL is required; REDIS_URL is optional and its absence switches the
// baseline store and rate limiter to in-process fallbacks.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SurchargeFeeLabel:  valueOrDefault(k.String("SURCHARGE_FEE_LABEL"), "payment-surcharge"),
		SurchargePercent:   parseInt64(k.String("SURCHARGE_PERCENT_BPS"), 0),
		SurchargeTaxable:   parseBool(k.String("SURCHARGE_TAXABLE")),
		SessionBaselineTTL: parseDuration(k.String("SESSION_BASELINE_TTL"), "2h"),
		SessionLockTTL:     parseDuration(k.String("SESSION_LOCK_TTL"), "5s"),
		RuleCacheTTL:       parseDuration(k.String("RULE_CACHE_TTL"), "30s"),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    int(parseInt64(k.String("RATE_LIMIT_MAX"), 120)),

		ObsServiceName:    valueOrDefault(k.String("OBS_SERVICE_NAME"), "pricing-api"),
		ObsHTTPBuckets:    k.String("OBS_HTTP_BUCKETS_MS"),
		PprofEnabled:      parseBool(k.String("PPROF_ENABLED")),
		PprofUser:         k.String("PPROF_USER"),
		PprofPass:         k.String("PPROF_PASS"),
		TracingEnabled:    parseBool(k.String("TRACING_ENABLED")),
		TracingEndpoint:   k.String("TRACING_OTLP_ENDPOINT"),
		TracingSampleRate: parseFloat(k.String("TRACING_SAMPLE_RATE"), 0.1),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.SurchargePercent < 0 {
		return nil, errors.New("SURCHARGE_PERCENT_BPS must not be negative")
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 120
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
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt64(value string, fallback int64) int64 {
	base := strings.TrimSpace(value)
	if base == "" {
		return fallback
	}
	n, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	base := strings.TrimSpace(value)
	if base == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
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
