package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limiterAt(cfg RateLimitConfig, now *time.Time) *RateLimiter {
	rl := NewRateLimiter(cfg)
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiter_MinuteWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rl := limiterAt(RateLimitConfig{RequestsPerMinute: 2}, &now)

	require.NoError(t, rl.CheckRateLimit("a", 0))
	require.NoError(t, rl.CheckRateLimit("a", 0))
	err := rl.CheckRateLimit("a", 0)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, time.Minute, rle.RetryAfter)

	require.NoError(t, rl.CheckRateLimit("b", 0), "clients are independent")

	now = now.Add(61 * time.Second)
	assert.NoError(t, rl.CheckRateLimit("a", 0))
	assert.Equal(t, 1, rl.GetUsage("a").RequestsLastMinute)
	assert.Equal(t, 3, rl.GetUsage("a").RequestsToday)
}

func TestRateLimiter_HourWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rl := limiterAt(RateLimitConfig{RequestsPerHour: 1}, &now)
	require.NoError(t, rl.CheckRateLimit("a", 0))
	now = now.Add(30 * time.Minute)
	var rle *RateLimitError
	require.ErrorAs(t, rl.CheckRateLimit("a", 0), &rle)
	assert.Equal(t, "hour", rle.Type)
	assert.Equal(t, 30*time.Minute, rle.RetryAfter)
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	now := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)
	rl := limiterAt(RateLimitConfig{MaxRequestsPerDay: 5, MaxDataPerDay: 100}, &now)

	require.NoError(t, rl.CheckRateLimit("a", 60))
	var qe *QuotaExceededError
	require.ErrorAs(t, rl.CheckRateLimit("a", 60), &qe)
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(60), qe.Used)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), qe.Resets)

	now = now.Add(2 * time.Hour)
	assert.NoError(t, rl.CheckRateLimit("a", 60))
	assert.Equal(t, int64(60), rl.GetUsage("a").DataToday)
}

func TestRateLimiter_RequestQuota(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	rl := limiterAt(RateLimitConfig{MaxRequestsPerDay: 1}, &now)
	require.NoError(t, rl.CheckRateLimit("a", 0))
	var qe *QuotaExceededError
	require.ErrorAs(t, rl.CheckRateLimit("a", 0), &qe)
	assert.Equal(t, "requests", qe.Type)
	assert.Contains(t, qe.Error(), "quota exceeded for requests")
}

func TestRateLimitConfig_Enabled(t *testing.T) {
	assert.False(t, RateLimitConfig{}.Enabled())
	assert.True(t, RateLimitConfig{MaxDataPerDay: 1}.Enabled())
	assert.Equal(t, Usage{}, NewRateLimiter(RateLimitConfig{}).GetUsage("nobody"))
}
