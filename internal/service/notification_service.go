package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

// NotificationRepositoryContract описывает хранилище уведомлений.
type NotificationRepositoryContract interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// WSNotifier интерфейс для отправки WebSocket уведомлений.
type WSNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{}) error
}

// NotificationService раскладывает события сделок по адресатам.
// Уведомления производные: их потеря не мешает сделке, пропущенное
// всегда можно перечитать через REST.
type NotificationService struct {
	repo NotificationRepositoryContract
	hub  WSNotifier
}

// NewNotificationService создаёт сервис уведомлений.
func NewNotificationService(repo NotificationRepositoryContract) *NotificationService {
	return &NotificationService{repo: repo}
}

// SetHub устанавливает WebSocket hub для отправки уведомлений.
func (s *NotificationService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// ListNotifications возвращает список уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListByUser(ctx, userID, onlyUnread, limit, offset)
}

// MarkAsRead отмечает уведомление как прочитанное.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, userID)
}

// MarkAllAsRead отмечает все уведомления пользователя как прочитанные.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

// DeleteNotification удаляет уведомление пользователя.
func (s *NotificationService) DeleteNotification(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.Delete(ctx, id, userID)
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// CreateNotificationForWS сохраняет уведомление при отправке через хаб.
// Хаб зовёт этот метод асинхронно на каждый BroadcastToUser.
func (s *NotificationService) CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	notification := &models.Notification{
		UserID: userID,
		Type:   eventToType(event),
	}

	if payload, ok := data.(map[string]interface{}); ok {
		if title, ok := payload["title"].(string); ok {
			notification.Title = title
		}
		if content, ok := payload["message"].(string); ok {
			notification.Content = content
		}
		if tradeID, ok := payload["trade_id"].(uuid.UUID); ok {
			notification.TradeID = &tradeID
		}
	}

	return s.repo.Create(ctx, notification)
}

// TradeCreated уведомляет продавца о новой сделке по его объявлению.
func (s *NotificationService) TradeCreated(trade *models.Trade) {
	s.emit(trade.SellerID, "trade.created", map[string]interface{}{
		"title":    "Новая сделка",
		"message":  fmt.Sprintf("Покупатель открыл сделку на %s %s", trade.AmountAsset.String(), trade.Platform),
		"trade_id": trade.ID,
		"status":   trade.Status,
	})
}

// TradeStatusChanged уведомляет вторую сторону о переходе сделки.
// Переход в спор здесь пропускается: его рассылает DisputeOpened.
func (s *NotificationService) TradeStatusChanged(trade *models.Trade, event *models.TradeEvent, actorID uuid.UUID) {
	if event.NewStatus == models.TradeStatusDisputed {
		return
	}

	title, message := statusText(event.NewStatus)
	if title == "" {
		return
	}

	s.emit(trade.Counterparty(actorID), "trade.status_changed", map[string]interface{}{
		"title":      title,
		"message":    message,
		"trade_id":   trade.ID,
		"old_status": event.OldStatus,
		"status":     event.NewStatus,
	})
}

// MessagePosted уведомляет вторую сторону о сообщении в чате.
// Системные сообщения не дублируются: их сопровождает событие перехода.
func (s *NotificationService) MessagePosted(trade *models.Trade, message *models.Message) {
	if message.Kind != models.MessageKindChat || message.SenderID == nil {
		return
	}

	s.emit(trade.Counterparty(*message.SenderID), "trade_room.message", map[string]interface{}{
		"title":    "Новое сообщение",
		"message":  "Новое сообщение в чате сделки",
		"trade_id": trade.ID,
		"seq":      message.Seq,
	})
}

// DisputeOpened уведомляет вторую сторону об открытии спора.
func (s *NotificationService) DisputeOpened(trade *models.Trade, dispute *models.Dispute) {
	s.emit(trade.Counterparty(dispute.RaisedBy), "dispute.opened", map[string]interface{}{
		"title":      "Открыт спор",
		"message":    "По вашей сделке открыт спор, она заморожена до решения арбитра",
		"trade_id":   trade.ID,
		"dispute_id": dispute.ID,
	})
}

// DisputeResolved уведомляет обе стороны о вердикте арбитра.
func (s *NotificationService) DisputeResolved(trade *models.Trade, dispute *models.Dispute) {
	message := "Арбитр завершил сделку в пользу покупателя"
	if dispute.Outcome != nil && *dispute.Outcome == models.DisputeOutcomeRefund {
		message = "Арбитр отменил сделку"
	}

	data := map[string]interface{}{
		"title":      "Спор разрешён",
		"message":    message,
		"trade_id":   trade.ID,
		"dispute_id": dispute.ID,
		"status":     trade.Status,
	}

	s.emit(trade.BuyerID, "dispute.resolved", data)
	s.emit(trade.SellerID, "dispute.resolved", data)
}

func (s *NotificationService) emit(userID uuid.UUID, event string, data map[string]interface{}) {
	if s.hub == nil {
		return
	}
	_ = s.hub.BroadcastToUser(userID, event, data)
}

func eventToType(event string) string {
	switch event {
	case "trade_room.message":
		return models.NotificationTypeMessage
	case "dispute.opened":
		return models.NotificationTypeDisputeOpened
	case "dispute.resolved":
		return models.NotificationTypeDisputeResolved
	default:
		return models.NotificationTypeTradeStatus
	}
}

func statusText(status string) (string, string) {
	switch status {
	case models.TradeStatusAwaitingPayment:
		return "Получены реквизиты", "Продавец отправил реквизиты для оплаты"
	case models.TradeStatusPaid:
		return "Оплата подтверждена", "Покупатель приложил квитанцию об оплате"
	case models.TradeStatusCompleted:
		return "Сделка завершена", "Продавец подтвердил получение оплаты"
	case models.TradeStatusCancelled:
		return "Сделка отменена", "Сделка отменена, остаток возвращён объявлению"
	default:
		return "", ""
	}
}
