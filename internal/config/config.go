package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Released funds policies: what happens to money freed by a deleted goal
// that no remaining goal could absorb.
const (
	ReleasePolicyRefund  = "refund"
	ReleasePolicyForfeit = "forfeit"
)

type Config struct {
	AppEnv              string
	DatabaseURL         string
	JWTSecret           string
	Port                string
	GoogleClientIDs     string
	FCMServiceAccount   string
	SentryDSN           string
	CORSOrigins         string
	RedisURL            string
	LockExpiry          time.Duration
	LockTries           int
	LockRetryDelay      time.Duration
	AllocationPrecision int32
	ReleasedFundsPolicy string
}

func Load() *Config {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	return &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", "kumbara.db"),
		JWTSecret:           getEnv("JWT_SECRET", defaultJWTSecret),
		Port:                getEnv("PORT", "8080"),
		GoogleClientIDs:     getEnv("GOOGLE_CLIENT_IDS", ""),
		FCMServiceAccount:   getEnv("FCM_SERVICE_ACCOUNT", ""),
		SentryDSN:           getEnv("SENTRY_DSN", ""),
		CORSOrigins:         getEnv("CORS_ORIGINS", "*"),
		RedisURL:            getEnv("REDIS_URL", ""),
		LockExpiry:          getEnvDuration("LOCK_EXPIRY", 10*time.Second),
		LockTries:           getEnvInt("LOCK_TRIES", 32),
		LockRetryDelay:      getEnvDuration("LOCK_RETRY_DELAY", 100*time.Millisecond),
		AllocationPrecision: int32(getEnvInt("ALLOCATION_PRECISION", 0)),
		ReleasedFundsPolicy: strings.ToLower(getEnv("RELEASED_FUNDS_POLICY", ReleasePolicyRefund)),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate catches settings that would make the ledger behave unexpectedly.
func (c *Config) Validate() error {
	var errs []error
	switch c.ReleasedFundsPolicy {
	case ReleasePolicyRefund, ReleasePolicyForfeit:
	default:
		errs = append(errs, fmt.Errorf("RELEASED_FUNDS_POLICY must be %q or %q, got %q", ReleasePolicyRefund, ReleasePolicyForfeit, c.ReleasedFundsPolicy))
	}
	if c.AllocationPrecision < 0 || c.AllocationPrecision > 8 {
		errs = append(errs, fmt.Errorf("ALLOCATION_PRECISION must be between 0 and 8, got %d", c.AllocationPrecision))
	}
	if c.LockTries < 1 {
		errs = append(errs, fmt.Errorf("LOCK_TRIES must be at least 1, got %d", c.LockTries))
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	dur, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return dur
}
