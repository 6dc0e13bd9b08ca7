package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
)

// OfferHandler предоставляет HTTP слой каталога объявлений.
type OfferHandler struct {
	offers *service.OfferService
}

// NewOfferHandler создаёт хэндлер.
func NewOfferHandler(offers *service.OfferService) *OfferHandler {
	return &OfferHandler{offers: offers}
}

// Create обрабатывает POST /offers.
func (h *OfferHandler) Create(c *gin.Context) {
	sellerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req struct {
		Platform        string          `json:"platform" binding:"required"`
		Currency        string          `json:"currency" binding:"required"`
		Rate            decimal.Decimal `json:"rate" binding:"required"`
		AvailableAmount decimal.Decimal `json:"available_amount" binding:"required"`
		MinAmount       decimal.Decimal `json:"min_amount" binding:"required"`
		MaxAmount       decimal.Decimal `json:"max_amount" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer, err := h.offers.CreateOffer(c.Request.Context(), service.CreateOfferInput{
		SellerID:        sellerID,
		Platform:        req.Platform,
		Currency:        req.Currency,
		Rate:            req.Rate,
		AvailableAmount: req.AvailableAmount,
		MinAmount:       req.MinAmount,
		MaxAmount:       req.MaxAmount,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, offer)
}

// List обрабатывает GET /offers - каталог активных объявлений с фильтрами.
func (h *OfferHandler) List(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	filter := repository.OfferFilter{
		Currency: c.Query("currency"),
		Platform: c.Query("platform"),
		Limit:    limit,
		Offset:   offset,
	}

	if raw := c.Query("seller_id"); raw != "" {
		sellerID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "неверный идентификатор продавца"})
			return
		}
		filter.SellerID = &sellerID
	}

	if raw := c.Query("min_amount"); raw != "" {
		minAmount, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "неверный формат min_amount"})
			return
		}
		filter.MinAmount = &minAmount
	}

	offers, err := h.offers.ListOffers(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, offers)
}

// Get обрабатывает GET /offers/:id.
func (h *OfferHandler) Get(c *gin.Context) {
	offerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer, err := h.offers.GetOffer(c.Request.Context(), offerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, offer)
}

// Update обрабатывает PATCH /offers/:id - правка условий продавцом.
func (h *OfferHandler) Update(c *gin.Context) {
	sellerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	offerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Rate            decimal.Decimal `json:"rate" binding:"required"`
		AvailableAmount decimal.Decimal `json:"available_amount" binding:"required"`
		MinAmount       decimal.Decimal `json:"min_amount" binding:"required"`
		MaxAmount       decimal.Decimal `json:"max_amount" binding:"required"`
		IsActive        *bool           `json:"is_active"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	offer, err := h.offers.UpdateOffer(c.Request.Context(), service.UpdateOfferInput{
		OfferID:         offerID,
		SellerID:        sellerID,
		Rate:            req.Rate,
		AvailableAmount: req.AvailableAmount,
		MinAmount:       req.MinAmount,
		MaxAmount:       req.MaxAmount,
		IsActive:        isActive,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, offer)
}

// Deactivate обрабатывает DELETE /offers/:id - снятие объявления с каталога.
func (h *OfferHandler) Deactivate(c *gin.Context) {
	sellerID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	offerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.offers.DeactivateOffer(c.Request.Context(), offerID, sellerID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "объявление снято с каталога"})
}
