package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rish231294/pipeshub-ai/pkg/ratelimit"
)

// RateLimit throttles API callers through the shared Redis sliding window,
// keyed by client IP. Runs ahead of auth so unauthenticated floods are cut
// off before token parsing.
func RateLimit(limiter *ratelimit.SlidingWindowLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, wait := limiter.Allow(c.Context(), "api:"+c.IP())
		if !allowed {
			// Retry-After is in whole seconds
			retryAfter := int(wait / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"code":        "RATE_LIMITED",
				"retry_after": retryAfter,
			})
		}
		return c.Next()
	}
}
