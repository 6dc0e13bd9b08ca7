package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
)

// TradeRoomHandler предоставляет HTTP слой чата сделки.
type TradeRoomHandler struct {
	rooms *service.TradeRoomService
}

// NewTradeRoomHandler создаёт хэндлер.
func NewTradeRoomHandler(rooms *service.TradeRoomService) *TradeRoomHandler {
	return &TradeRoomHandler{rooms: rooms}
}

// ListMessages обрабатывает GET /trades/:id/messages - история чата.
func (h *TradeRoomHandler) ListMessages(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	tradeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, offset := common.GetPagination(c)

	messages, err := h.rooms.ListMessages(c.Request.Context(), tradeID, userID, common.IsArbiter(c), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// SendMessage обрабатывает POST /trades/:id/messages.
func (h *TradeRoomHandler) SendMessage(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	tradeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Content           string     `json:"content" binding:"required"`
		AttachmentMediaID *uuid.UUID `json:"attachment_media_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.rooms.SendMessage(
		c.Request.Context(), tradeID, userID, req.Content, req.AttachmentMediaID, common.IsArbiter(c),
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}
