package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
)

// RateLimitMiddleware создаёт middleware для ограничения количества запросов с одного IP.
// По умолчанию: 10 запросов в минуту. Хранилище общее для всех реплик, если это redis store.
func RateLimitMiddleware(store limiter.Store, limit int64, period time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = 1 * time.Minute
	}

	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	instance := limiter.New(store, rate)

	return func(c *gin.Context) {
		key := c.ClientIP()
		context, err := instance.Get(c.Request.Context(), key)
		if err != nil {
			AbortWithError(c, fmt.Errorf("rate limit: %w", err))
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", context.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", context.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", context.Reset))

		if context.Reached {
			AbortWithError(c, apperror.ErrRateLimited)
			return
		}

		c.Next()
	}
}
