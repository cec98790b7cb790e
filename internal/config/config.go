package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patrickwarner/openattribution/internal/models"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	RedisAddr     string
	ClickHouseDSN string
	ServiceName   string
	// Tracing configuration
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
	// Rate limiting for the attribution endpoint
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
	// Cookie storage
	APIKey               string
	CookieDomain         string
	CookieSecure         bool
	CookieSameSite       string
	CookieExpirationDays int
	CookieMirrorEnabled  bool
	SessionTimeout       time.Duration
	// Attribution policy, validated by AttributionOptions
	AttributionConfigPath string
	Attribution           models.RawAttributionOptions
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent. The attribution policy file, when
// configured, overrides the policy variables.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.ServiceName = getenv("SERVICE_NAME", "openattribution")

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TracingEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitRPS = envFloat("RATE_LIMIT_RPS", 200)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", 400)

	cfg.APIKey = getenv("API_KEY", "")
	cfg.CookieDomain = getenv("COOKIE_DOMAIN", "")
	cfg.CookieSecure = envBool("COOKIE_SECURE", true)
	cfg.CookieSameSite = getenv("COOKIE_SAME_SITE", "Lax")
	cfg.CookieExpirationDays = envInt("COOKIE_EXPIRATION_DAYS", 365)
	cfg.CookieMirrorEnabled = envBool("COOKIE_MIRROR_ENABLED", false)
	cfg.SessionTimeout = envDuration("SESSION_TIMEOUT", 30*time.Minute)

	cfg.Attribution = models.RawAttributionOptions{
		ExcludeReferrers:          envList("EXCLUDE_REFERRERS"),
		ResetSessionOnNewCampaign: envBool("RESET_SESSION_ON_NEW_CAMPAIGN", false),
	}
	// An explicitly empty INITIAL_EMPTY_VALUE is honored.
	if v, ok := os.LookupEnv("INITIAL_EMPTY_VALUE"); ok {
		cfg.Attribution.InitialEmptyValue = &v
	}
	if v := os.Getenv("EXCLUDE_INTERNAL_REFERRERS"); v != "" {
		cfg.Attribution.ExcludeInternalReferrers = v
	}

	cfg.AttributionConfigPath = getenv("ATTRIBUTION_CONFIG", "")
	if cfg.AttributionConfigPath != "" {
		raw, err := LoadAttributionFile(cfg.AttributionConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg.Attribution = raw
	}

	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("API_KEY is required")
	}
	return cfg, nil
}

// LoadAttributionFile reads an attribution policy from a YAML file:
//
//	exclude_referrers: ["checkout.example.com", "/\\.partner\\.com$/"]
//	exclude_internal_referrers:
//	  condition: ifEmptyCampaign
//	initial_empty_value: EMPTY
//	reset_session_on_new_campaign: true
func LoadAttributionFile(path string) (models.RawAttributionOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.RawAttributionOptions{}, fmt.Errorf("read attribution config: %w", err)
	}
	return ParseAttributionYAML(data)
}

// ParseAttributionYAML decodes an attribution policy document.
func ParseAttributionYAML(data []byte) (models.RawAttributionOptions, error) {
	var raw models.RawAttributionOptions
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return models.RawAttributionOptions{}, fmt.Errorf("parse attribution config: %w", err)
	}
	return raw, nil
}

// AttributionOptions validates the attribution policy. Problems are
// reported in the Warnings field and never abort startup.
func (c Config) AttributionOptions() models.AttributionOptions {
	return c.Attribution.Build()
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envList splits a comma separated environment variable, dropping blanks.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
