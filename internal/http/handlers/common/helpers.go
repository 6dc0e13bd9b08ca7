package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-exchange-backend/internal/dto"
	"github.com/ignatzorin/p2p-exchange-backend/internal/http/middleware"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

var (
	// ErrUserNotFound is returned when user is not found in context
	ErrUserNotFound = errors.New("пользователь не найден в контексте")

	// ErrInvalidUUID is returned when UUID parsing fails
	ErrInvalidUUID = errors.New("неверный формат UUID")
)

// CurrentUserID extracts user ID from Gin context
func CurrentUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return uuid.Nil, ErrUserNotFound
	}

	userID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrUserNotFound
	}

	return userID, nil
}

// CurrentUserRole extracts user role from Gin context
func CurrentUserRole(c *gin.Context) (string, error) {
	raw, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return "", ErrUserNotFound
	}

	role, ok := raw.(string)
	if !ok {
		return "", ErrUserNotFound
	}

	return role, nil
}

// IsArbiter reports whether the current token carries the arbiter role.
// Сервисы дополнительно проверяют роль по БД на привилегированных операциях.
func IsArbiter(c *gin.Context) bool {
	role, err := CurrentUserRole(c)
	return err == nil && role == models.RoleArbiter
}

// ParseUUIDParam parses UUID from URL parameter
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	param := c.Param(paramName)
	if param == "" {
		return uuid.Nil, fmt.Errorf("параметр %s отсутствует", paramName)
	}

	parsed, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}

	return parsed, nil
}

// RespondError sends a standardized error response
func RespondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, dto.ErrorResponse{Error: message})
}

// RespondSuccess sends a standardized success response
func RespondSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, dto.SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// RespondUnauthorized sends a 401 Unauthorized response
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "требуется авторизация"
	}
	RespondError(c, http.StatusUnauthorized, message)
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
