package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, onlyUnread, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockNotificationRepo) Delete(ctx context.Context, id, userID uuid.UUID) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// sentEvent фиксирует одно персональное WS-событие.
type sentEvent struct {
	userID uuid.UUID
	event  string
	data   map[string]interface{}
}

type recordingUserHub struct {
	sent []sentEvent
}

func (h *recordingUserHub) BroadcastToUser(userID uuid.UUID, event string, data interface{}) error {
	payload, _ := data.(map[string]interface{})
	h.sent = append(h.sent, sentEvent{userID: userID, event: event, data: payload})
	return nil
}

func notificationFixture() (*NotificationService, *mockNotificationRepo, *recordingUserHub) {
	repo := new(mockNotificationRepo)
	hub := &recordingUserHub{}
	svc := NewNotificationService(repo)
	svc.SetHub(hub)
	return svc, repo, hub
}

func notifiedTrade() *models.Trade {
	return &models.Trade{
		ID:          uuid.New(),
		BuyerID:     uuid.New(),
		SellerID:    uuid.New(),
		Platform:    "steam",
		Status:      models.TradeStatusPending,
		AmountAsset: decimal.NewFromInt(100),
	}
}

func TestNotificationService_TradeCreated_NotifiesSeller(t *testing.T) {
	svc, _, hub := notificationFixture()
	trade := notifiedTrade()

	svc.TradeCreated(trade)

	require.Len(t, hub.sent, 1)
	assert.Equal(t, trade.SellerID, hub.sent[0].userID)
	assert.Equal(t, "trade.created", hub.sent[0].event)
	assert.Equal(t, trade.ID, hub.sent[0].data["trade_id"])
}

func TestNotificationService_TradeStatusChanged_NotifiesCounterparty(t *testing.T) {
	svc, _, hub := notificationFixture()
	trade := notifiedTrade()
	trade.Status = models.TradeStatusAwaitingPayment
	event := &models.TradeEvent{
		TradeID:   trade.ID,
		OldStatus: models.TradeStatusPending,
		NewStatus: models.TradeStatusAwaitingPayment,
	}

	// Реквизиты отправил продавец, уведомление уходит покупателю.
	svc.TradeStatusChanged(trade, event, trade.SellerID)

	require.Len(t, hub.sent, 1)
	assert.Equal(t, trade.BuyerID, hub.sent[0].userID)
	assert.Equal(t, "trade.status_changed", hub.sent[0].event)
	assert.Equal(t, models.TradeStatusAwaitingPayment, hub.sent[0].data["status"])
}

func TestNotificationService_TradeStatusChanged_SkipsDispute(t *testing.T) {
	svc, _, hub := notificationFixture()
	trade := notifiedTrade()
	event := &models.TradeEvent{
		TradeID:   trade.ID,
		OldStatus: models.TradeStatusPaid,
		NewStatus: models.TradeStatusDisputed,
	}

	svc.TradeStatusChanged(trade, event, trade.BuyerID)

	assert.Empty(t, hub.sent)
}

func TestNotificationService_MessagePosted(t *testing.T) {
	svc, _, hub := notificationFixture()
	trade := notifiedTrade()

	system := &models.Message{TradeID: trade.ID, Kind: models.MessageKindPaymentInfo, Content: "Сбербанк 1234"}
	svc.MessagePosted(trade, system)
	assert.Empty(t, hub.sent, "системные сообщения не дублируются уведомлением")

	chat := &models.Message{TradeID: trade.ID, SenderID: &trade.BuyerID, Kind: models.MessageKindChat, Content: "готово", Seq: 5}
	svc.MessagePosted(trade, chat)

	require.Len(t, hub.sent, 1)
	assert.Equal(t, trade.SellerID, hub.sent[0].userID)
	assert.Equal(t, "trade_room.message", hub.sent[0].event)
	assert.Equal(t, int64(5), hub.sent[0].data["seq"])
}

func TestNotificationService_DisputeOpened(t *testing.T) {
	svc, _, hub := notificationFixture()
	trade := notifiedTrade()
	dispute := &models.Dispute{ID: uuid.New(), TradeID: trade.ID, RaisedBy: trade.BuyerID}

	svc.DisputeOpened(trade, dispute)

	require.Len(t, hub.sent, 1)
	assert.Equal(t, trade.SellerID, hub.sent[0].userID)
	assert.Equal(t, "dispute.opened", hub.sent[0].event)
	assert.Equal(t, dispute.ID, hub.sent[0].data["dispute_id"])
}

func TestNotificationService_DisputeResolved_NotifiesBoth(t *testing.T) {
	svc, _, hub := notificationFixture()
	trade := notifiedTrade()
	trade.Status = models.TradeStatusCancelled
	outcome := models.DisputeOutcomeRefund
	dispute := &models.Dispute{ID: uuid.New(), TradeID: trade.ID, RaisedBy: trade.BuyerID, Outcome: &outcome}

	svc.DisputeResolved(trade, dispute)

	require.Len(t, hub.sent, 2)
	recipients := []uuid.UUID{hub.sent[0].userID, hub.sent[1].userID}
	assert.Contains(t, recipients, trade.BuyerID)
	assert.Contains(t, recipients, trade.SellerID)
	assert.Contains(t, hub.sent[0].data["message"], "отменил")
}

func TestNotificationService_CreateNotificationForWS(t *testing.T) {
	svc, repo, _ := notificationFixture()
	ctx := context.Background()

	userID := uuid.New()
	tradeID := uuid.New()

	repo.On("Create", ctx, mock.AnythingOfType("*models.Notification")).
		Run(func(args mock.Arguments) {
			n := args.Get(1).(*models.Notification)
			assert.Equal(t, models.NotificationTypeDisputeOpened, n.Type)
			assert.Equal(t, "Открыт спор", n.Title)
			require.NotNil(t, n.TradeID)
			assert.Equal(t, tradeID, *n.TradeID)
		}).
		Return(nil)

	err := svc.CreateNotificationForWS(ctx, userID, "dispute.opened", map[string]interface{}{
		"title":    "Открыт спор",
		"message":  "По вашей сделке открыт спор",
		"trade_id": tradeID,
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestNotificationService_DeleteNotification(t *testing.T) {
	svc, repo, _ := notificationFixture()
	ctx := context.Background()

	id, userID := uuid.New(), uuid.New()
	repo.On("Delete", ctx, id, userID).Return(nil)

	require.NoError(t, svc.DeleteNotification(ctx, id, userID))
	repo.AssertExpectations(t)
}

func TestNotificationService_ListNotifications_ClampsLimit(t *testing.T) {
	svc, repo, _ := notificationFixture()
	ctx := context.Background()
	userID := uuid.New()

	repo.On("ListByUser", ctx, userID, true, 20, 0).Return([]models.Notification{}, nil)

	_, err := svc.ListNotifications(ctx, userID, true, 500, -1)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
