package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/infinimail-threads/internal/logger"
	"golang.org/x/time/rate"
)

// limiterEntry tracks a limiter and when it was last used
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages one token bucket per key (organization or IP)
type KeyedRateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewKeyedRateLimiter creates a new keyed rate limiter
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     r,
		burst:    b,
		now:      time.Now,
	}
}

// GetLimiter returns the rate limiter for the given key
func (k *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, exists := k.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(k.rate, k.burst)}
		k.limiters[key] = entry
	}
	entry.lastSeen = k.now()

	return entry.limiter
}

// CleanupIdle removes limiters unused for longer than idle
func (k *KeyedRateLimiter) CleanupIdle(idle time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := k.now().Add(-idle)
	removed := 0
	for key, entry := range k.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(k.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (k *KeyedRateLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// rateKey buckets tenant requests by organization so one noisy client IP
// cannot starve another tenant behind the same proxy
func rateKey(c echo.Context) string {
	if orgID := OrganizationID(c); orgID != "" {
		return "org:" + orgID
	}
	return "ip:" + c.RealIP()
}

// RateLimiterWithConfig returns rate limiting middleware. Place it after
// Tenant so requests are bucketed per organization.
func RateLimiterWithConfig(requestsPerSecond float64, burst int, security *logger.SecurityLogger) echo.MiddlewareFunc {
	return RateLimiterWithLimiter(NewKeyedRateLimiter(rate.Limit(requestsPerSecond), burst), security)
}

// RateLimiterWithLimiter returns rate limiting middleware backed by limiter
func RateLimiterWithLimiter(limiter *KeyedRateLimiter, security *logger.SecurityLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.GetLimiter(rateKey(c)).Allow() {
				security.RateLimitExceeded(c.RealIP(), OrganizationID(c), c.Path())

				c.Response().Header().Set("Retry-After", "60")
				return echo.NewHTTPError(http.StatusTooManyRequests, map[string]string{
					"error":       "rate limit exceeded",
					"code":        "RATE_LIMITED",
					"retry_after": "60",
				})
			}

			return next(c)
		}
	}
}
