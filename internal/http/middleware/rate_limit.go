package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/ignatzorin/bounty-backend/internal/logger"
)

// RateLimitMiddleware ограничивает частоту запросов. Авторизованные пользователи
// считаются по userID, анонимные по IP. По умолчанию 10 запросов в минуту.
func RateLimitMiddleware(limit int64, period time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = time.Minute
	}

	instance := limiter.New(memory.NewStore(), limiter.Rate{Period: period, Limit: limit})

	return func(c *gin.Context) {
		res, err := instance.Get(c, rateLimitKey(c))
		if err != nil {
			logger.WithComponent("rate_limit").WithError(err).Error("limiter store failed")
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

		if res.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "слишком много запросов, попробуйте позже",
			})
			return
		}

		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	if raw, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := raw.(uuid.UUID); ok && id != uuid.Nil {
			return "user:" + id.String()
		}
	}
	return "ip:" + c.ClientIP()
}
