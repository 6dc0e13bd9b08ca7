package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
)

// TradeHandler предоставляет HTTP слой машины состояний сделок.
type TradeHandler struct {
	trades   *service.TradeService
	disputes *service.DisputeService
}

// NewTradeHandler создаёт хэндлер.
func NewTradeHandler(trades *service.TradeService, disputes *service.DisputeService) *TradeHandler {
	return &TradeHandler{trades: trades, disputes: disputes}
}

// Create обрабатывает POST /trades - открытие сделки по объявлению.
func (h *TradeHandler) Create(c *gin.Context) {
	buyerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		OfferID     uuid.UUID       `json:"offer_id" binding:"required"`
		AmountAsset decimal.Decimal `json:"amount_asset" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade, err := h.trades.CreateTrade(c.Request.Context(), service.CreateTradeInput{
		OfferID:     req.OfferID,
		BuyerID:     buyerID,
		AmountAsset: req.AmountAsset,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, trade)
}

// ListMy обрабатывает GET /trades/my - сделки текущего пользователя.
func (h *TradeHandler) ListMy(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)
	status := c.Query("status")

	trades, err := h.trades.ListMyTrades(c.Request.Context(), userID, status, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, trades)
}

// Get обрабатывает GET /trades/:id.
func (h *TradeHandler) Get(c *gin.Context) {
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

	trade, err := h.trades.GetTrade(c.Request.Context(), tradeID, userID, common.IsArbiter(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, trade)
}

// ListEvents обрабатывает GET /trades/:id/events - журнал переходов сделки.
func (h *TradeHandler) ListEvents(c *gin.Context) {
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

	events, err := h.trades.ListEvents(c.Request.Context(), tradeID, userID, common.IsArbiter(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, events)
}

// Action обрабатывает POST /trades/:id/actions - единая точка действий
// участников. raise_dispute уходит в арбитраж, остальное в машину состояний.
func (h *TradeHandler) Action(c *gin.Context) {
	actorID, err := common.CurrentUserID(c)
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
		Action         string     `json:"action" binding:"required"`
		PaymentInfo    string     `json:"payment_info"`
		ReceiptMediaID *uuid.UUID `json:"receipt_media_id"`
		Reason         string     `json:"reason"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := models.ValidTradeActions[req.Action]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неизвестное действие над сделкой"})
		return
	}

	if req.Action == models.TradeActionRaiseDispute {
		dispute, err := h.disputes.Raise(c.Request.Context(), tradeID, actorID, req.Reason)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"dispute": dispute})
		return
	}

	trade, err := h.trades.ApplyAction(c.Request.Context(), service.TradeActionInput{
		TradeID:        tradeID,
		ActorID:        actorID,
		Action:         req.Action,
		PaymentInfo:    req.PaymentInfo,
		ReceiptMediaID: req.ReceiptMediaID,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, trade)
}
