package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
	"github.com/ignatzorin/p2p-exchange-backend/internal/validation"
)

// AuthHandler предоставляет HTTP слой для регистрации и логина.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler создаёт хэндлер.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Register обрабатывает POST /auth/register.
// Поля роли в запросе нет: арбитров назначают вручную.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email       string `json:"email" binding:"required,email"`
		Password    string `json:"password" binding:"required"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Валидация email
	if err := validation.ValidateEmail(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Валидация пароля
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meta := map[string]string{
		"user_agent": c.GetHeader("User-Agent"),
		"ip":         c.ClientIP(),
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Username:    req.Username,
		DisplayName: req.DisplayName,
	}, meta)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    result.User,
		"profile": result.Profile,
		"tokens":  result.TokenPair,
	})
}

// Login обрабатывает POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Валидация email
	if err := validation.ValidateEmail(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Валидация пароля (не пустой)
	if strings.TrimSpace(req.Password) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "пароль обязателен"})
		return
	}

	meta := map[string]string{
		"user_agent": c.GetHeader("User-Agent"),
		"ip":         c.ClientIP(),
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, meta)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    result.User,
		"profile": result.Profile,
		"tokens":  result.TokenPair,
	})
}

// Refresh обрабатывает POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	meta := map[string]string{
		"user_agent": c.GetHeader("User-Agent"),
		"ip":         c.ClientIP(),
	}

	tokenPair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, meta)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": tokenPair})
}

// Logout обрабатывает POST /auth/logout - отзыв refresh токена.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		// Пытаемся получить из заголовка
		req.RefreshToken = c.GetHeader("X-Refresh-Token")
	}
	if req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token обязателен"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "сессия завершена"})
}

// Me обрабатывает GET /me - текущий пользователь с профилем.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	profile, err := h.auth.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateMe обрабатывает PATCH /me - смена отображаемого имени.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.auth.UpdateProfile(c.Request.Context(), userID, req.DisplayName)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// GetUserProfile обрабатывает GET /users/:id/profile - публичный профиль
// с репутационными счётчиками.
func (h *AuthHandler) GetUserProfile(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.auth.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
