package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	CORSOrigins   []string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration

	// Quoting/booking CRM credentials and tuning
	QuotingBaseURL  string
	QuotingUsername string
	QuotingPassword string
	QuotingTimeout  time.Duration

	// Fixed identifiers on the CRM side
	ScopeGroupID   string
	BillingTermsID string

	// Wizard timing knobs
	PriceDebounce   time.Duration
	RestoreSettle   time.Duration
	AvailabilityHrs int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigins:   splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		QuotingBaseURL:  getEnv("QUOTING_BASE_URL", ""),
		QuotingUsername: getEnv("QUOTING_USERNAME", ""),
		QuotingPassword: getEnv("QUOTING_PASSWORD", ""),
		QuotingTimeout:  getEnvAsDuration("QUOTING_TIMEOUT", 30*time.Second),

		ScopeGroupID:   getEnv("SCOPE_GROUP_ID", ""),
		BillingTermsID: getEnv("BILLING_TERMS_ID", "2"),

		PriceDebounce:   getEnvAsDuration("PRICE_DEBOUNCE", 1500*time.Millisecond),
		RestoreSettle:   getEnvAsDuration("RESTORE_SETTLE", 500*time.Millisecond),
		AvailabilityHrs: getEnvAsInt("AVAILABILITY_HOURS", 8),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
