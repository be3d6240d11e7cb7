package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "short")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", testSecret)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.JWTSecret)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "")
	t.Setenv("NOTIFICATION_CACHE_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.NotificationCacheTTL)
	assert.Equal(t, "91", cfg.WhatsAppCountryCode)
	assert.Equal(t, 8, cfg.FanoutConcurrency)
	assert.Equal(t, 10, cfg.LoginRatePerMinute)
	assert.Equal(t, 5, cfg.LoginRateBurst)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("WHATSAPP_COUNTRY_CODE", "+44")
	t.Setenv("FANOUT_CONCURRENCY", "0")
	t.Setenv("DB_RETRY_BACKOFF", "500ms")
	t.Setenv("LOGIN_RATE_PER_MINUTE", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "44", cfg.WhatsAppCountryCode)
	assert.Equal(t, 1, cfg.FanoutConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.DBRetryBackoff)
	assert.Equal(t, 3, cfg.LoginRatePerMinute)
}

func TestCORSOriginList(t *testing.T) {
	cfg := &Config{CORSOrigins: " http://a.example , ,http://b.example"}
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOriginList())
}

func TestString_MasksSecret(t *testing.T) {
	cfg := &Config{HTTPPort: "8080", JWTSecret: testSecret}
	assert.NotContains(t, cfg.String(), testSecret)
}
