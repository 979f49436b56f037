package common

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/orderdesk-backend/internal/http/middleware"
	"github.com/ignatzorin/orderdesk-backend/internal/http/response"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
)

// RequireActor достаёт вызывающего из контекста. Если его нет, отвечает 401
// и возвращает false.
func RequireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Unauthorized(c, "требуется авторизация")
	}
	return actor, ok
}

// ParseUUIDParam parses UUID from URL parameter and answers 400 on failure.
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(c.Param(paramName))
	if err != nil {
		response.BadRequest(c, fmt.Sprintf("параметр %s должен быть валидным UUID", paramName))
		return uuid.Nil, false
	}
	return parsed, true
}

// BindJSON binds the request body and answers 400 on failure.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.BadRequest(c, "ошибка валидации запроса: "+err.Error())
		return false
	}
	return true
}

// ParseIntQuery safely reads an integer query parameter with a fallback value
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination extracts limit and offset from query parameters with defaults
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", 20)
	offset = ParseIntQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}
