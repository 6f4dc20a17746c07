package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// Enabled reports whether any limit is set.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerMinute > 0 || c.RequestsPerHour > 0 || c.MaxRequestsPerDay > 0 || c.MaxDataPerDay > 0
}

// RateLimiter tracks request rates and daily quotas per client.
type RateLimiter struct {
	mu    sync.Mutex
	cfg   RateLimitConfig
	users map[string]*usage
	now   func() time.Time
}

type usage struct {
	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
	minute      int
	hour        int
	day         int
	dataToday   int64
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsLastMinute int
	RequestsLastHour   int
	RequestsToday      int
	DataToday          int64
}

// NewRateLimiter returns a limiter enforcing cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, users: make(map[string]*usage), now: time.Now}
}

// CheckRateLimit records a request of dataSize bytes from clientID, or
// returns a *RateLimitError / *QuotaExceededError without recording it.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u, ok := rl.users[clientID]
	if !ok {
		u = &usage{minuteStart: now, hourStart: now, dayStart: now}
		rl.users[clientID] = u
	}
	rl.roll(u, now)

	if rl.cfg.RequestsPerMinute > 0 && u.minute >= rl.cfg.RequestsPerMinute {
		return &RateLimitError{Type: "minute", Limit: rl.cfg.RequestsPerMinute, RetryAfter: time.Minute - now.Sub(u.minuteStart)}
	}
	if rl.cfg.RequestsPerHour > 0 && u.hour >= rl.cfg.RequestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.cfg.RequestsPerHour, RetryAfter: time.Hour - now.Sub(u.hourStart)}
	}
	resets := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	if rl.cfg.MaxRequestsPerDay > 0 && u.day >= rl.cfg.MaxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.cfg.MaxRequestsPerDay), Used: int64(u.day), Resets: resets}
	}
	if rl.cfg.MaxDataPerDay > 0 && u.dataToday+dataSize > rl.cfg.MaxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.cfg.MaxDataPerDay, Used: u.dataToday, Resets: resets}
	}

	u.minute++
	u.hour++
	u.day++
	u.dataToday += dataSize
	return nil
}

// roll starts new windows once the old ones have elapsed.
func (rl *RateLimiter) roll(u *usage, now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.minute, u.minuteStart = 0, now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hour, u.hourStart = 0, now
	}
	y1, m1, d1 := now.Date()
	y2, m2, d2 := u.dayStart.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		u.day, u.dataToday, u.dayStart = 0, 0, now
	}
}

// GetUsage returns a copy of the counters for clientID.
func (rl *RateLimiter) GetUsage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	u, ok := rl.users[clientID]
	if !ok {
		return Usage{}
	}
	return Usage{RequestsLastMinute: u.minute, RequestsLastHour: u.hour, RequestsToday: u.day, DataToday: u.dataToday}
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter.Round(time.Second))
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
