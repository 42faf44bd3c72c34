package middleware

import (
	"strconv"
	"sync"
	"time"

	"mailmind_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// RateLimiter is a fixed window limiter keyed by the authenticated subject,
// or the client IP when the request is anonymous. Agent routes sit behind it
// because every call can reach the LLM.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string]*window
	limit    int
	period   time.Duration
	now      func() time.Time
	lastGC   time.Time
}

type window struct {
	count     int
	expiresAt time.Time
}

func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*window),
		limit:    limit,
		period:   period,
		now:      time.Now,
	}
}

// Allow counts one request for key and reports whether it fits the window
// along with the remaining budget and the window reset time.
func (rl *RateLimiter) Allow(key string) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastGC) > rl.period {
		for k, w := range rl.requests {
			if now.After(w.expiresAt) {
				delete(rl.requests, k)
			}
		}
		rl.lastGC = now
	}

	w, ok := rl.requests[key]
	if !ok || now.After(w.expiresAt) {
		w = &window{expiresAt: now.Add(rl.period)}
		rl.requests[key] = w
	}
	if w.count >= rl.limit {
		return false, 0, w.expiresAt
	}
	w.count++
	return true, rl.limit - w.count, w.expiresAt
}

func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if subject, ok := c.Locals("subject").(string); ok && subject != "" {
			key = "sub:" + subject
		}

		allowed, remaining, reset := rl.Allow(key)
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			retryAfter := max(int(time.Until(reset).Seconds()), 1)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return apperr.RateLimited(retryAfter)
		}
		return c.Next()
	}
}
