package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewIPRateLimiter(1, 3)
	app := fiber.New()
	app.Post("/login", rl.Middleware(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, "attempt %d", i+1)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestIPRateLimiter_Prune(t *testing.T) {
	rl := NewIPRateLimiter(10, 1)
	rl.get("10.0.0.1")
	rl.get("10.0.0.2")
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-4 * time.Minute)

	rl.Prune(time.Now())

	assert.NotContains(t, rl.visitors, "10.0.0.1")
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestNewIPRateLimiter_ClampsZeroValues(t *testing.T) {
	rl := NewIPRateLimiter(0, 0)
	assert.Equal(t, 1, rl.burst)
	assert.True(t, rl.get("10.0.0.3").Allow())
	assert.False(t, rl.get("10.0.0.3").Allow())
}
