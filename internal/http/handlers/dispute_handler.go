package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
)

// DisputeHandler предоставляет HTTP слой арбитража.
type DisputeHandler struct {
	disputes *service.DisputeService
}

// NewDisputeHandler создаёт хэндлер.
func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

// Get обрабатывает GET /disputes/:id.
func (h *DisputeHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dispute, err := h.disputes.GetDispute(c.Request.Context(), disputeID, userID, common.IsArbiter(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}

// ListOpen обрабатывает GET /disputes/open - очередь арбитра,
// старые споры первыми.
func (h *DisputeHandler) ListOpen(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)

	disputes, err := h.disputes.ListOpen(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, disputes)
}

// ListMy обрабатывает GET /disputes/my - споры по сделкам пользователя.
func (h *DisputeHandler) ListMy(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)

	disputes, err := h.disputes.ListMine(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, disputes)
}

// ListByTrade обрабатывает GET /trades/:id/disputes.
func (h *DisputeHandler) ListByTrade(c *gin.Context) {
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

	disputes, err := h.disputes.ListByTrade(c.Request.Context(), tradeID, userID, common.IsArbiter(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, disputes)
}

// Resolve обрабатывает POST /disputes/:id/resolve - вердикт арбитра.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	arbiterID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Outcome string `json:"outcome" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dispute, err := h.disputes.Resolve(c.Request.Context(), disputeID, arbiterID, req.Outcome)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}
