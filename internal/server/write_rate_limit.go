package server

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/inspira/internal/observability/logger"
	"github.com/smallbiznis/inspira/internal/ratelimit"
	"go.uber.org/zap"
)

// WriteRateLimit throttles per-user writes on endpoint. A nil or disabled
// limiter lets every request through.
func (s *Server) WriteRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.writeLimiter == nil || !s.writeLimiter.Enabled() {
			c.Next()
			return
		}

		userID, err := userIDFromContext(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		result, err := s.writeLimiter.Allow(ctx, endpoint, userID)
		if errors.Is(err, ratelimit.ErrRateLimited) {
			logger.FromContext(ctx).Warn("write rate limit exceeded", zap.String("endpoint", endpoint))
			if result != nil && result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			} else {
				c.Header("Retry-After", "1")
			}
			AbortWithError(c, err)
			return
		}
		if err != nil {
			logger.FromContext(ctx).Warn("write rate limit check failed", zap.String("endpoint", endpoint), zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Next()
	}
}
