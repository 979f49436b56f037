package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger - проверка доступности базы.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler предоставляет endpoint для проверки здоровья сервиса.
type HealthHandler struct {
	db       Pinger
	gateways map[string]bool
}

// NewHealthHandler создаёт новый health handler. gateways - имя шлюза и
// признак того, что для него заданы учётные данные.
func NewHealthHandler(db Pinger, gateways map[string]bool) *HealthHandler {
	return &HealthHandler{db: db, gateways: gateways}
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
		checks["database"] = "unhealthy"
		status = "unhealthy"
	} else {
		checks["database"] = "healthy"
	}

	// Ненастроенный шлюз не делает сервис нездоровым: эндпоинты шлюза
	// отвечают GATEWAY_NOT_CONFIGURED.
	for name, configured := range h.gateways {
		if configured {
			checks["gateway_"+name] = "configured"
		} else {
			checks["gateway_"+name] = "not configured"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
