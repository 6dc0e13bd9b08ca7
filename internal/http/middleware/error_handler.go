package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/p2p-exchange-backend/internal/logger"
	"github.com/ignatzorin/p2p-exchange-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
)

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			statusCode := http.StatusInternalServerError
			message := "внутренняя ошибка сервера"

			if logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{
					"error":  err.Error(),
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				}).Error("Request error")
			}

			var conflict *repository.StateConflictError
			var appErr *apperror.AppError

			switch {
			case errors.As(err.Err, &appErr):
				statusCode = appErr.HTTPStatus
				message = appErr.Message
			case errors.Is(err.Err, repository.ErrUserNotFound):
				statusCode = http.StatusNotFound
				message = "пользователь не найден"
			case errors.Is(err.Err, repository.ErrTradeNotFound):
				statusCode = http.StatusNotFound
				message = "сделка не найдена"
			case errors.Is(err.Err, repository.ErrOfferNotFound):
				statusCode = http.StatusNotFound
				message = "объявление не найдено"
			case errors.Is(err.Err, repository.ErrDisputeNotFound):
				statusCode = http.StatusNotFound
				message = "спор не найден"
			case errors.Is(err.Err, repository.ErrMediaNotFound):
				statusCode = http.StatusNotFound
				message = "файл не найден"
			case errors.Is(err.Err, repository.ErrOfferUnavailable):
				statusCode = http.StatusConflict
				message = "объявление недоступно или остатка не хватает"
			case errors.Is(err.Err, repository.ErrDisputeAlreadyOpen):
				statusCode = http.StatusConflict
				message = "по этой сделке уже открыт спор"
			case errors.As(err.Err, &conflict):
				// Проигравший гонку получает актуальный статус сделки.
				c.JSON(http.StatusConflict, gin.H{
					"error":          "действие недопустимо в текущем статусе сделки",
					"current_status": conflict.Current,
				})
				return
			default:
				if errStr := err.Error(); errStr != "" && !containsInternalKeywords(errStr) {
					message = errStr
					if contains(errStr, "неверный") || contains(errStr, "невалид") || contains(errStr, "некоррект") {
						statusCode = http.StatusBadRequest
					} else if contains(errStr, "нет прав") || contains(errStr, "нет доступа") ||
						contains(errStr, "не участник") || contains(errStr, "только арбитру") {
						statusCode = http.StatusForbidden
					}
				}
			}

			c.JSON(statusCode, gin.H{"error": message})
		}
	}
}

// containsInternalKeywords проверяет, содержит ли строка ключевые слова внутренних ошибок.
func containsInternalKeywords(s string) bool {
	keywords := []string{
		"sql:",
		"database",
		"connection",
		"timeout",
		"internal",
		"panic",
		"runtime",
	}

	for _, keyword := range keywords {
		if contains(s, keyword) {
			return true
		}
	}
	return false
}

// contains проверяет, содержит ли строка подстроку (case-insensitive).
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
