package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
	"github.com/ignatzorin/p2p-exchange-backend/internal/ws"
)

// WSHandler отвечает за установку WebSocket соединений.
type WSHandler struct {
	hub          *ws.Hub
	rooms        *service.TradeRoomService
	tokenManager *service.TokenManager
	upgrader     websocket.Upgrader
}

// NewWSHandler создаёт хэндлер.
func NewWSHandler(hub *ws.Hub, rooms *service.TradeRoomService, tokens *service.TokenManager) *WSHandler {
	return &WSHandler{
		hub:          hub,
		rooms:        rooms,
		tokenManager: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle обслуживает GET /api/ws?token=... - персональный канал уведомлений.
func (h *WSHandler) Handle(c *gin.Context) {
	userID, _, ok := h.authorize(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client := ws.NewClient(conn, h.hub, userID)
	h.hub.Register(client)

	client.Run(c.Request.Context())
}

// HandleTradeRoom обслуживает GET /api/trades/:id/ws?token=...&since_seq=N -
// живой канал чата сделки. При ненулевом since_seq клиенту перед подпиской
// доотправляются пропущенные сообщения, упорядоченные по seq.
func (h *WSHandler) HandleTradeRoom(c *gin.Context) {
	userID, role, ok := h.authorize(c)
	if !ok {
		return
	}

	tradeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isArbiter := role == models.RoleArbiter
	if _, err := h.rooms.AuthorizeRoom(c.Request.Context(), tradeID, userID, isArbiter); err != nil {
		c.Error(err)
		return
	}

	var backlog []models.Message
	if raw := c.Query("since_seq"); raw != "" {
		sinceSeq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || sinceSeq < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "неверный формат since_seq"})
			return
		}
		backlog, err = h.rooms.ListMessagesSince(c.Request.Context(), tradeID, userID, isArbiter, sinceSeq, 200)
		if err != nil {
			c.Error(err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client := ws.NewTradeRoomClient(conn, h.hub, userID, tradeID)

	// Пропущенные сообщения уходят до подписки на комнату, чтобы живые
	// события не опередили повтор истории.
	for i := range backlog {
		payload, err := json.Marshal(map[string]interface{}{
			"type": "trade_room.message",
			"data": &backlog[i],
		})
		if err != nil {
			continue
		}
		if !client.Send(payload) {
			break
		}
	}

	h.hub.Register(client)
	client.Run(c.Request.Context())
}

// authorize разбирает access токен из query параметра.
func (h *WSHandler) authorize(c *gin.Context) (uuid.UUID, string, bool) {
	rawToken := c.Query("token")
	if rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access токен обязателен"})
		return uuid.Nil, "", false
	}

	userID, role, err := h.tokenManager.ParseAccess(rawToken)
	if err != nil || userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "невалидный access токен"})
		return uuid.Nil, "", false
	}

	return userID, role, true
}
