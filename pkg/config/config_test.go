package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_PATH", "JWT_SECRET", "OVERDUE_SCAN_INTERVAL", "RATE_LIMIT_REQUESTS", "TIMEZONE", "ENVIRONMENT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "lendbook.db", cfg.DatabasePath)
	assert.Equal(t, time.Hour, cfg.OverdueScanInterval)
	assert.Equal(t, 100, cfg.RateLimitRequests)
	assert.Equal(t, "UTC", cfg.Timezone)

	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.JWTSecret, "development gets a fallback secret")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("OVERDUE_SCAN_INTERVAL", "15m")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("TIMEZONE", "Asia/Kolkata")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.OverdueScanInterval)
	assert.Equal(t, 100, cfg.RateLimitRequests, "bad numbers fall back to the default")

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestValidate(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")
	assert.Error(t, Load().Validate())

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	assert.Error(t, Load().Validate())
}
