package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/p2p-exchange-backend/internal/http/handlers/common"
	"github.com/ignatzorin/p2p-exchange-backend/internal/service"
)

// NotificationHandler предоставляет HTTP слой уведомлений.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler создаёт хэндлер.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List обрабатывает GET /notifications. Параметр unread=true
// ограничивает выдачу непрочитанными.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)
	onlyUnread := c.Query("unread") == "true"

	notifications, err := h.notifications.ListNotifications(c.Request.Context(), userID, onlyUnread, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, notifications)
}

// CountUnread обрабатывает GET /notifications/unread-count.
func (h *NotificationHandler) CountUnread(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	count, err := h.notifications.CountUnread(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead обрабатывает POST /notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	notificationID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.notifications.MarkAsRead(c.Request.Context(), notificationID, userID); err != nil {
		c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "уведомление прочитано", nil)
}

// Delete обрабатывает DELETE /notifications/:id.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	notificationID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.notifications.DeleteNotification(c.Request.Context(), notificationID, userID); err != nil {
		c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "уведомление удалено", nil)
}

// MarkAllRead обрабатывает POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	if err := h.notifications.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "все уведомления прочитаны", nil)
}
