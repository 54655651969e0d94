// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Security engine
	SecurityLevel string // "low", "medium", "high", "critical"
	AllowedIPs    []string
	BlockedIPs    []string

	// Per-token transaction ceilings, e.g. "ETH=10,USDC=10000"
	MaxTransactionValues map[string]float64

	// Per-category operations per minute, e.g. "crypto=30,social=60"
	RateLimits map[string]int

	// Audit trail
	AuditLogPath     string
	AuditMemoryLimit int

	// HTTP rate limiting
	RateLimitRPM int

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultSecurityLevel    = "medium"
	DefaultAuditLogPath     = "security_audit.log"
	DefaultAuditMemoryLimit = 1000
	DefaultRateLimitRPM     = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		SecurityLevel:        getEnv("SECURITY_LEVEL", DefaultSecurityLevel),
		AllowedIPs:           getEnvList("ALLOWED_IPS"),
		BlockedIPs:           getEnvList("BLOCKED_IPS"),
		MaxTransactionValues: getEnvFloatMap("MAX_TRANSACTION_VALUES"),
		RateLimits:           getEnvIntMap("OPERATION_RATE_LIMITS"),
		AuditLogPath:         getEnv("AUDIT_LOG_PATH", DefaultAuditLogPath),
		AuditMemoryLimit:     int(getEnvInt64("AUDIT_MEMORY_EVENTS", DefaultAuditMemoryLimit)),
		RateLimitRPM:         int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	switch c.SecurityLevel {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("SECURITY_LEVEL must be one of low, medium, high, critical")
	}
	if c.AuditMemoryLimit <= 0 {
		return fmt.Errorf("AUDIT_MEMORY_EVENTS must be positive")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	for category, limit := range c.RateLimits {
		if limit <= 0 {
			return fmt.Errorf("OPERATION_RATE_LIMITS: %s must be positive", category)
		}
	}
	for token, max := range c.MaxTransactionValues {
		if max <= 0 {
			return fmt.Errorf("MAX_TRANSACTION_VALUES: %s must be positive", token)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvList parses a comma-separated value into a slice, skipping empty
// entries.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvFloatMap parses "KEY=VAL,KEY=VAL" with float values. Malformed
// entries are skipped.
func getEnvFloatMap(key string) map[string]float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	out := map[string]float64{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(k)] = f
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func getEnvIntMap(key string) map[string]int {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	out := map[string]int{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(k)] = i
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
