package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "kumbara.db")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOCK_EXPIRY", "bogus")
	t.Setenv("ALLOCATION_PRECISION", "0")
	t.Setenv("RELEASED_FUNDS_POLICY", "Refund")

	cfg := Load()
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "kumbara.db", cfg.DatabaseURL)
	assert.Equal(t, "", cfg.RedisURL)
	assert.Equal(t, 10*time.Second, cfg.LockExpiry)
	assert.Equal(t, int32(0), cfg.AllocationPrecision)
	assert.Equal(t, ReleasePolicyRefund, cfg.ReleasedFundsPolicy)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOCK_EXPIRY", "3s")
	t.Setenv("LOCK_TRIES", "5")
	t.Setenv("ALLOCATION_PRECISION", "2")
	t.Setenv("RELEASED_FUNDS_POLICY", "forfeit")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg := Load()
	assert.Equal(t, 3*time.Second, cfg.LockExpiry)
	assert.Equal(t, 5, cfg.LockTries)
	assert.Equal(t, int32(2), cfg.AllocationPrecision)
	assert.Equal(t, ReleasePolicyForfeit, cfg.ReleasedFundsPolicy)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "unknown policy", mutate: func(c *Config) { c.ReleasedFundsPolicy = "donate" }, wantErr: "RELEASED_FUNDS_POLICY"},
		{name: "negative precision", mutate: func(c *Config) { c.AllocationPrecision = -1 }, wantErr: "ALLOCATION_PRECISION"},
		{name: "no lock tries", mutate: func(c *Config) { c.LockTries = 0 }, wantErr: "LOCK_TRIES"},
		{name: "default secret in production", mutate: func(c *Config) { c.AppEnv = "production" }, wantErr: "JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				AppEnv:              "development",
				JWTSecret:           defaultJWTSecret,
				LockTries:           32,
				ReleasedFundsPolicy: ReleasePolicyRefund,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
