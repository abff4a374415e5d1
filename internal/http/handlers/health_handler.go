package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

// HealthHandler предоставляет endpoint для проверки здоровья сервиса.
type HealthHandler struct {
	db    *sqlx.DB
	redis *redis.Client
}

// NewHealthHandler создаёт health handler. redis может быть nil, если кэш в памяти.
func NewHealthHandler(db *sqlx.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

// HealthResponse представляет ответ health check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health обрабатывает GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		checks["database"] = "healthy"
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		checks["connection_pool"] = "warning: pool exhausted"
	} else {
		checks["connection_pool"] = "healthy"
	}

	// Без Redis сервис работает на кэше в памяти, это не делает его нездоровым.
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "degraded: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}
