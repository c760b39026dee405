package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"bazaarchat/internal/infrastructure/ratelimit"
	"bazaarchat/pkg/logger"
)

// RateLimit limits requests per client IP using limiter's bucket for action.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			allowed, wait := limiter.Allow(ip, action)
			if !allowed {
				logger.Warn("RATE LIMIT: blocked %s from %s (retry in %v)", action, ip, wait)
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded",
					"retry_after": int(wait.Round(time.Second).Seconds()),
				})
			}
			return next(c)
		}
	}
}
