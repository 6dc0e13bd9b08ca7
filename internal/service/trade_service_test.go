package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
)

// fakeTradeRepo повторяет семантику хранилища сделок: переход проходит
// только из допустимого статуса, проверка и смена атомарны под мьютексом.
type fakeTradeRepo struct {
	mu       sync.Mutex
	trades   map[uuid.UUID]*models.Trade
	events   []models.TradeEvent
	restored int
}

func newFakeTradeRepo() *fakeTradeRepo {
	return &fakeTradeRepo{trades: make(map[uuid.UUID]*models.Trade)}
}

func (f *fakeTradeRepo) Create(ctx context.Context, trade *models.Trade) (*models.TradeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	trade.ID = uuid.New()
	trade.Status = models.TradeStatusPending
	trade.CreatedAt = time.Now()
	trade.UpdatedAt = trade.CreatedAt

	stored := *trade
	f.trades[trade.ID] = &stored

	actorID := trade.BuyerID
	event := models.TradeEvent{
		ID:        uuid.New(),
		TradeID:   trade.ID,
		ActorID:   &actorID,
		NewStatus: models.TradeStatusPending,
		CreatedAt: trade.CreatedAt,
	}
	f.events = append(f.events, event)
	return &event, nil
}

func (f *fakeTradeRepo) UpdateStatus(ctx context.Context, upd repository.StatusUpdate) (*models.Trade, *models.TradeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	trade, ok := f.trades[upd.TradeID]
	if !ok {
		return nil, nil, repository.ErrTradeNotFound
	}

	allowed := false
	for _, from := range upd.AllowedFrom {
		if trade.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, nil, &repository.StateConflictError{Current: trade.Status}
	}

	oldStatus := trade.Status
	trade.Status = upd.NewStatus
	if upd.ReceiptMediaID != nil {
		trade.ReceiptMediaID = upd.ReceiptMediaID
	}
	trade.UpdatedAt = time.Now()
	if upd.RestoreStock {
		f.restored++
	}

	event := models.TradeEvent{
		ID:        uuid.New(),
		TradeID:   trade.ID,
		ActorID:   upd.ActorID,
		OldStatus: oldStatus,
		NewStatus: upd.NewStatus,
		CreatedAt: trade.UpdatedAt,
	}
	f.events = append(f.events, event)

	updated := *trade
	return &updated, &event, nil
}

func (f *fakeTradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	trade, ok := f.trades[id]
	if !ok {
		return nil, repository.ErrTradeNotFound
	}
	copied := *trade
	return &copied, nil
}

func (f *fakeTradeRepo) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Trade
	for _, trade := range f.trades {
		if trade.BuyerID != userID && trade.SellerID != userID {
			continue
		}
		if status != "" && trade.Status != status {
			continue
		}
		out = append(out, *trade)
	}
	return out, nil
}

func (f *fakeTradeRepo) ListEvents(ctx context.Context, tradeID uuid.UUID) ([]models.TradeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.TradeEvent
	for _, e := range f.events {
		if e.TradeID == tradeID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeOfferReader struct {
	offers map[uuid.UUID]*models.Offer
}

func (f *fakeOfferReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	offer, ok := f.offers[id]
	if !ok {
		return nil, repository.ErrOfferNotFound
	}
	copied := *offer
	return &copied, nil
}

type recordedMessage struct {
	kind       string
	content    string
	attachment *uuid.UUID
}

type fakeMessageWriter struct {
	mu       sync.Mutex
	messages []recordedMessage
}

func (f *fakeMessageWriter) AddSystemMessage(ctx context.Context, tradeID uuid.UUID, kind, content string, attachmentID *uuid.UUID) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, recordedMessage{kind: kind, content: content, attachment: attachmentID})
	return &models.Message{TradeID: tradeID, Kind: kind, Content: content}, nil
}

func newTestOffer(sellerID uuid.UUID) *models.Offer {
	return &models.Offer{
		ID:              uuid.New(),
		SellerID:        sellerID,
		Platform:        "steam",
		Currency:        "RUB",
		Rate:            decimal.NewFromFloat(95.50),
		AvailableAmount: decimal.NewFromInt(1000),
		MinAmount:       decimal.NewFromInt(10),
		MaxAmount:       decimal.NewFromInt(500),
		IsActive:        true,
	}
}

func newTradeFixture(t *testing.T) (*TradeService, *fakeTradeRepo, *fakeMessageWriter, *models.Trade, uuid.UUID, uuid.UUID) {
	t.Helper()

	sellerID := uuid.New()
	buyerID := uuid.New()
	offer := newTestOffer(sellerID)

	repo := newFakeTradeRepo()
	offers := &fakeOfferReader{offers: map[uuid.UUID]*models.Offer{offer.ID: offer}}
	messages := &fakeMessageWriter{}
	svc := NewTradeService(repo, offers, messages)

	trade, err := svc.CreateTrade(context.Background(), CreateTradeInput{
		OfferID:     offer.ID,
		BuyerID:     buyerID,
		AmountAsset: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	return svc, repo, messages, trade, buyerID, sellerID
}

func TestTradeService_CreateTrade_FreezesAmounts(t *testing.T) {
	_, _, _, trade, buyerID, sellerID := newTradeFixture(t)

	assert.Equal(t, models.TradeStatusPending, trade.Status)
	assert.Equal(t, buyerID, trade.BuyerID)
	assert.Equal(t, sellerID, trade.SellerID)
	assert.True(t, trade.AmountLocal.Equal(decimal.NewFromInt(9550)), "amount_local = 100 * 95.50")
	assert.True(t, trade.Rate.Equal(decimal.NewFromFloat(95.50)))
}

func TestTradeService_CreateTrade_InactiveOffer(t *testing.T) {
	sellerID := uuid.New()
	offer := newTestOffer(sellerID)
	offer.IsActive = false

	svc := NewTradeService(newFakeTradeRepo(), &fakeOfferReader{offers: map[uuid.UUID]*models.Offer{offer.ID: offer}}, &fakeMessageWriter{})

	_, err := svc.CreateTrade(context.Background(), CreateTradeInput{
		OfferID:     offer.ID,
		BuyerID:     uuid.New(),
		AmountAsset: decimal.NewFromInt(100),
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "снято с каталога")
}

func TestTradeService_CreateTrade_OwnOffer(t *testing.T) {
	sellerID := uuid.New()
	offer := newTestOffer(sellerID)

	svc := NewTradeService(newFakeTradeRepo(), &fakeOfferReader{offers: map[uuid.UUID]*models.Offer{offer.ID: offer}}, &fakeMessageWriter{})

	_, err := svc.CreateTrade(context.Background(), CreateTradeInput{
		OfferID:     offer.ID,
		BuyerID:     sellerID,
		AmountAsset: decimal.NewFromInt(100),
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "своему объявлению")
}

func TestTradeService_CreateTrade_AmountOutOfBounds(t *testing.T) {
	sellerID := uuid.New()
	offer := newTestOffer(sellerID)

	svc := NewTradeService(newFakeTradeRepo(), &fakeOfferReader{offers: map[uuid.UUID]*models.Offer{offer.ID: offer}}, &fakeMessageWriter{})

	for _, amount := range []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(501)} {
		_, err := svc.CreateTrade(context.Background(), CreateTradeInput{
			OfferID:     offer.ID,
			BuyerID:     uuid.New(),
			AmountAsset: amount,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "вне пределов")
	}
}

func TestTradeService_ApplyAction_FullHappyPath(t *testing.T) {
	svc, repo, _, trade, buyerID, sellerID := newTradeFixture(t)
	ctx := context.Background()

	updated, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionSendPaymentInfo, PaymentInfo: "Сбербанк 1234 5678",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusAwaitingPayment, updated.Status)

	receiptID := uuid.New()
	updated, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID,
		Action: models.TradeActionSubmitReceipt, ReceiptMediaID: &receiptID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusPaid, updated.Status)
	require.NotNil(t, updated.ReceiptMediaID)
	assert.Equal(t, receiptID, *updated.ReceiptMediaID)

	updated, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionConfirmReceipt,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusCompleted, updated.Status)

	events, err := repo.ListEvents(ctx, trade.ID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, models.TradeStatusPending, events[0].NewStatus)
	assert.Equal(t, models.TradeStatusCompleted, events[3].NewStatus)
	assert.Equal(t, models.TradeStatusPaid, events[3].OldStatus)
}

func TestTradeService_ApplyAction_WritesSystemMessages(t *testing.T) {
	svc, _, messages, trade, buyerID, sellerID := newTradeFixture(t)
	ctx := context.Background()

	_, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionSendPaymentInfo, PaymentInfo: "Тинькофф 5536",
	})
	require.NoError(t, err)

	receiptID := uuid.New()
	_, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID,
		Action: models.TradeActionSubmitReceipt, ReceiptMediaID: &receiptID,
	})
	require.NoError(t, err)

	messages.mu.Lock()
	defer messages.mu.Unlock()
	require.Len(t, messages.messages, 2)
	assert.Equal(t, models.MessageKindPaymentInfo, messages.messages[0].kind)
	assert.Equal(t, "Тинькофф 5536", messages.messages[0].content)
	assert.Equal(t, models.MessageKindSystem, messages.messages[1].kind)
	require.NotNil(t, messages.messages[1].attachment)
	assert.Equal(t, receiptID, *messages.messages[1].attachment)
}

func TestTradeService_ApplyAction_ResendPaymentInfo(t *testing.T) {
	svc, _, messages, trade, _, sellerID := newTradeFixture(t)
	ctx := context.Background()

	_, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionSendPaymentInfo, PaymentInfo: "Сбербанк 1234",
	})
	require.NoError(t, err)

	// Продавец поправил реквизиты: действие повторяется, статус не меняется.
	updated, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionSendPaymentInfo, PaymentInfo: "Тинькофф 5536",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusAwaitingPayment, updated.Status)

	messages.mu.Lock()
	defer messages.mu.Unlock()
	require.Len(t, messages.messages, 2)
	assert.Equal(t, "Тинькофф 5536", messages.messages[1].content)
}

func TestTradeService_ApplyAction_ReceiptBeforePaymentInfo(t *testing.T) {
	svc, _, _, trade, buyerID, _ := newTradeFixture(t)
	ctx := context.Background()

	// Покупатель оплатил по договорённости в чате, реквизиты не отправлялись.
	receiptID := uuid.New()
	updated, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID,
		Action: models.TradeActionSubmitReceipt, ReceiptMediaID: &receiptID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusPaid, updated.Status)
}

func TestTradeService_ApplyAction_RoleChecks(t *testing.T) {
	svc, _, _, trade, buyerID, sellerID := newTradeFixture(t)
	ctx := context.Background()

	// Реквизиты отправляет только продавец.
	_, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID,
		Action: models.TradeActionSendPaymentInfo, PaymentInfo: "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "только продавцу")

	// Квитанцию прикладывает только покупатель.
	receiptID := uuid.New()
	_, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionSubmitReceipt, ReceiptMediaID: &receiptID,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "только покупателю")

	// Посторонний не участвует вовсе.
	_, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: uuid.New(),
		Action: models.TradeActionCancel,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "не участник")
}

func TestTradeService_ApplyAction_RequiredFields(t *testing.T) {
	svc, _, _, trade, buyerID, sellerID := newTradeFixture(t)
	ctx := context.Background()

	_, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionSendPaymentInfo,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "реквизиты")

	_, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionSendPaymentInfo, PaymentInfo: "карта 1234",
	})
	require.NoError(t, err)

	_, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID,
		Action: models.TradeActionSubmitReceipt,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "квитанция")
}

func TestTradeService_ApplyAction_UnknownAction(t *testing.T) {
	svc, _, _, trade, buyerID, _ := newTradeFixture(t)

	_, err := svc.ApplyAction(context.Background(), TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID, Action: "teleport",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "неизвестное действие")
}

func TestTradeService_Cancel_RestoresStock(t *testing.T) {
	svc, repo, _, trade, buyerID, _ := newTradeFixture(t)

	updated, err := svc.ApplyAction(context.Background(), TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID, Action: models.TradeActionCancel,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusCancelled, updated.Status)
	assert.Equal(t, 1, repo.restored)
}

func TestTradeService_ApplyAction_StateConflict(t *testing.T) {
	svc, _, _, trade, buyerID, sellerID := newTradeFixture(t)
	ctx := context.Background()

	_, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID,
		Action: models.TradeActionSendPaymentInfo, PaymentInfo: "карта",
	})
	require.NoError(t, err)

	receiptID := uuid.New()
	_, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID,
		Action: models.TradeActionSubmitReceipt, ReceiptMediaID: &receiptID,
	})
	require.NoError(t, err)

	// После оплаты отменить сделку уже нельзя.
	_, err = svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: buyerID, Action: models.TradeActionCancel,
	})
	require.Error(t, err)

	var conflict *repository.StateConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, models.TradeStatusPaid, conflict.Current)
}

func TestTradeService_ConcurrentConflictingActions(t *testing.T) {
	svc, repo, _, trade, buyerID, sellerID := newTradeFixture(t)
	ctx := context.Background()

	// Продавец отправляет реквизиты и покупатель отменяет одновременно:
	// оба перехода допустимы из pending, но выиграть должен ровно один.
	var wg sync.WaitGroup
	results := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = svc.ApplyAction(ctx, TradeActionInput{
			TradeID: trade.ID, ActorID: sellerID,
			Action: models.TradeActionSendPaymentInfo, PaymentInfo: "карта",
		})
	}()
	go func() {
		defer wg.Done()
		_, results[1] = svc.ApplyAction(ctx, TradeActionInput{
			TradeID: trade.ID, ActorID: buyerID, Action: models.TradeActionCancel,
		})
	}()
	wg.Wait()

	succeeded := 0
	conflicts := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var conflict *repository.StateConflictError
		if errors.As(err, &conflict) {
			conflicts++
		}
	}

	// cancel тоже допустим из awaiting_payment, поэтому возможен и порядок,
	// где проходят оба действия. Недопустим только двойной выигрыш
	// конфликтующей пары и потерянный переход.
	final, err := repo.GetByID(ctx, trade.ID)
	require.NoError(t, err)
	if succeeded == 2 {
		assert.Equal(t, models.TradeStatusCancelled, final.Status)
	} else {
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, conflicts)
	}
}

func TestTradeService_MarkDisputed(t *testing.T) {
	svc, _, _, trade, buyerID, sellerID := newTradeFixture(t)
	ctx := context.Background()

	// Из терминального статуса спор недоступен.
	_, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: trade.ID, ActorID: sellerID, Action: models.TradeActionCancel,
	})
	require.NoError(t, err)

	_, err = svc.MarkDisputed(ctx, trade.ID, buyerID, disputableStatuses)
	require.Error(t, err)
	var conflict *repository.StateConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, models.TradeStatusCancelled, conflict.Current)

	// А из pending — доступен с момента создания сделки.
	svc2, _, _, trade2, buyer2, _ := newTradeFixture(t)
	updated, err := svc2.MarkDisputed(ctx, trade2.ID, buyer2, disputableStatuses)
	require.NoError(t, err)
	assert.Equal(t, models.TradeStatusDisputed, updated.Status)
}

func TestTradeService_CompleteDisputed(t *testing.T) {
	ctx := context.Background()

	t.Run("release завершает сделку", func(t *testing.T) {
		svc, repo, _, trade, buyerID, sellerID := newTradeFixture(t)
		toDisputed(ctx, t, svc, trade.ID, buyerID, sellerID)

		arbiterID := uuid.New()
		updated, err := svc.CompleteDisputed(ctx, trade.ID, arbiterID, true)
		require.NoError(t, err)
		assert.Equal(t, models.TradeStatusCompleted, updated.Status)
		assert.Equal(t, 0, repo.restored)
	})

	t.Run("refund отменяет и возвращает остаток", func(t *testing.T) {
		svc, repo, _, trade, buyerID, sellerID := newTradeFixture(t)
		toDisputed(ctx, t, svc, trade.ID, buyerID, sellerID)

		arbiterID := uuid.New()
		updated, err := svc.CompleteDisputed(ctx, trade.ID, arbiterID, false)
		require.NoError(t, err)
		assert.Equal(t, models.TradeStatusCancelled, updated.Status)
		assert.Equal(t, 1, repo.restored)
	})

	t.Run("повторный вердикт не проходит", func(t *testing.T) {
		svc, _, _, trade, buyerID, sellerID := newTradeFixture(t)
		toDisputed(ctx, t, svc, trade.ID, buyerID, sellerID)

		arbiterID := uuid.New()
		_, err := svc.CompleteDisputed(ctx, trade.ID, arbiterID, true)
		require.NoError(t, err)

		_, err = svc.CompleteDisputed(ctx, trade.ID, arbiterID, false)
		require.Error(t, err)
		var conflict *repository.StateConflictError
		assert.True(t, errors.As(err, &conflict))
	})
}

// toDisputed доводит сделку до статуса disputed.
func toDisputed(ctx context.Context, t *testing.T, svc *TradeService, tradeID, buyerID, sellerID uuid.UUID) {
	t.Helper()

	_, err := svc.ApplyAction(ctx, TradeActionInput{
		TradeID: tradeID, ActorID: sellerID,
		Action: models.TradeActionSendPaymentInfo, PaymentInfo: "карта",
	})
	require.NoError(t, err)

	_, err = svc.MarkDisputed(ctx, tradeID, buyerID, []string{models.TradeStatusAwaitingPayment})
	require.NoError(t, err)
}

func TestTradeService_GetTrade_Access(t *testing.T) {
	svc, _, _, trade, buyerID, _ := newTradeFixture(t)
	ctx := context.Background()

	got, err := svc.GetTrade(ctx, trade.ID, buyerID, false)
	require.NoError(t, err)
	assert.Equal(t, trade.ID, got.ID)

	// Посторонний без роли арбитра не видит сделку.
	_, err = svc.GetTrade(ctx, trade.ID, uuid.New(), false)
	assert.Error(t, err)

	// Арбитр видит любую сделку.
	_, err = svc.GetTrade(ctx, trade.ID, uuid.New(), true)
	assert.NoError(t, err)
}

func TestTradeService_ListMyTrades_InvalidStatus(t *testing.T) {
	svc, _, _, _, buyerID, _ := newTradeFixture(t)

	_, err := svc.ListMyTrades(context.Background(), buyerID, "shipped", 20, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "некорректный статус")
}
