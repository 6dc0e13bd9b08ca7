package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/p2p-exchange-backend/internal/goroutine"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
)

// TradeRepositoryContract описывает взаимодействие сервиса с хранилищем сделок.
type TradeRepositoryContract interface {
	Create(ctx context.Context, trade *models.Trade) (*models.TradeEvent, error)
	UpdateStatus(ctx context.Context, upd repository.StatusUpdate) (*models.Trade, *models.TradeEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Trade, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Trade, error)
	ListEvents(ctx context.Context, tradeID uuid.UUID) ([]models.TradeEvent, error)
}

// OfferReader выдаёт объявления для проверки условий при создании сделки.
type OfferReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
}

// SystemMessageWriter пишет системные сообщения в чат сделки.
type SystemMessageWriter interface {
	AddSystemMessage(ctx context.Context, tradeID uuid.UUID, kind, content string, attachmentID *uuid.UUID) (*models.Message, error)
}

// TradeEventSink получает события сделок после фиксации перехода в БД.
// Рассылка идёт уже после коммита: упавший подписчик не откатит переход.
type TradeEventSink interface {
	TradeCreated(trade *models.Trade)
	TradeStatusChanged(trade *models.Trade, event *models.TradeEvent, actorID uuid.UUID)
}

// ReputationApplier учитывает терминальные события в репутации сторон.
type ReputationApplier interface {
	Apply(ctx context.Context, event *models.TradeEvent) error
}

// TradeService реализует машину состояний сделки. Допустимость каждого
// перехода проверяется в репозитории под блокировкой строки, поэтому
// из двух одновременных конфликтующих действий выигрывает ровно одно.
type TradeService struct {
	repo       TradeRepositoryContract
	offers     OfferReader
	messages   SystemMessageWriter
	events     TradeEventSink
	reputation ReputationApplier
}

// NewTradeService создаёт сервис сделок.
func NewTradeService(repo TradeRepositoryContract, offers OfferReader, messages SystemMessageWriter) *TradeService {
	return &TradeService{
		repo:     repo,
		offers:   offers,
		messages: messages,
	}
}

// SetEventSink устанавливает получателя событий сделок.
func (s *TradeService) SetEventSink(sink TradeEventSink) {
	s.events = sink
}

// SetReputationApplier устанавливает обработчик репутации.
func (s *TradeService) SetReputationApplier(applier ReputationApplier) {
	s.reputation = applier
}

// CreateTradeInput описывает заявку покупателя на сделку.
type TradeActionInput struct {
	TradeID        uuid.UUID
	ActorID        uuid.UUID
	Action         string
	PaymentInfo    string     // реквизиты продавца при send_payment_info
	ReceiptMediaID *uuid.UUID // квитанция при submit_receipt
}

// CreateTradeInput описывает данные новой сделки.
type CreateTradeInput struct {
	OfferID     uuid.UUID
	BuyerID     uuid.UUID
	AmountAsset decimal.Decimal
}

// переходы машины состояний: действие -> из каких статусов и куда.
// raise_dispute сюда не входит, его обслуживает DisputeService.
type transition struct {
	allowedFrom  []string
	to           string
	bySeller     bool
	byBuyer      bool
	restoreStock bool
}

var tradeTransitions = map[string]transition{
	// Повторная отправка реквизитов допустима: продавец может их
	// поправить, статус при этом не меняется.
	models.TradeActionSendPaymentInfo: {
		allowedFrom: []string{models.TradeStatusPending, models.TradeStatusAwaitingPayment},
		to:          models.TradeStatusAwaitingPayment,
		bySeller:    true,
	},
	// Покупатель может приложить квитанцию и до получения реквизитов,
	// если оплатил по договорённости в чате.
	models.TradeActionSubmitReceipt: {
		allowedFrom: []string{models.TradeStatusPending, models.TradeStatusAwaitingPayment},
		to:          models.TradeStatusPaid,
		byBuyer:     true,
	},
	models.TradeActionConfirmReceipt: {
		allowedFrom: []string{models.TradeStatusPaid, models.TradeStatusAwaitingRelease},
		to:          models.TradeStatusCompleted,
		bySeller:    true,
	},
	models.TradeActionCancel: {
		allowedFrom:  []string{models.TradeStatusPending, models.TradeStatusAwaitingPayment},
		to:           models.TradeStatusCancelled,
		bySeller:     true,
		byBuyer:      true,
		restoreStock: true,
	},
}

// CreateTrade создаёт сделку по объявлению. Курс и суммы фиксируются
// в момент создания, остаток объявления резервируется в той же транзакции.
func (s *TradeService) CreateTrade(ctx context.Context, in CreateTradeInput) (*models.Trade, error) {
	offer, err := s.offers.GetByID(ctx, in.OfferID)
	if err != nil {
		return nil, err
	}

	if !offer.IsActive {
		return nil, fmt.Errorf("trade service: объявление снято с каталога")
	}
	if offer.SellerID == in.BuyerID {
		return nil, fmt.Errorf("trade service: нельзя открыть сделку по своему объявлению")
	}
	if in.AmountAsset.LessThan(offer.MinAmount) || in.AmountAsset.GreaterThan(offer.MaxAmount) {
		return nil, fmt.Errorf("trade service: сумма вне пределов объявления (%s — %s)",
			offer.MinAmount.String(), offer.MaxAmount.String())
	}

	trade := &models.Trade{
		OfferID:     offer.ID,
		BuyerID:     in.BuyerID,
		SellerID:    offer.SellerID,
		AmountAsset: in.AmountAsset,
		AmountLocal: in.AmountAsset.Mul(offer.Rate).Round(2),
		Rate:        offer.Rate,
		Currency:    offer.Currency,
		Platform:    offer.Platform,
	}

	if _, err := s.repo.Create(ctx, trade); err != nil {
		return nil, err
	}

	if s.events != nil {
		created := *trade
		goroutine.SafeGo(func() {
			s.events.TradeCreated(&created)
		})
	}

	return trade, nil
}

// ApplyAction выполняет действие участника над сделкой. Порядок строгий:
// сначала переход фиксируется в БД вместе со строкой события, и только
// после коммита идут системное сообщение, рассылка и репутация.
func (s *TradeService) ApplyAction(ctx context.Context, in TradeActionInput) (*models.Trade, error) {
	tr, ok := tradeTransitions[in.Action]
	if !ok {
		return nil, fmt.Errorf("trade service: неизвестное действие %q", in.Action)
	}

	trade, err := s.repo.GetByID(ctx, in.TradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Participant(in.ActorID) {
		return nil, fmt.Errorf("trade service: вы не участник этой сделки")
	}

	isSeller := trade.SellerID == in.ActorID
	if isSeller && !tr.bySeller {
		return nil, fmt.Errorf("trade service: действие %q доступно только покупателю", in.Action)
	}
	if !isSeller && !tr.byBuyer {
		return nil, fmt.Errorf("trade service: действие %q доступно только продавцу", in.Action)
	}

	if in.Action == models.TradeActionSendPaymentInfo && in.PaymentInfo == "" {
		return nil, fmt.Errorf("trade service: реквизиты оплаты не могут быть пустыми")
	}
	if in.Action == models.TradeActionSubmitReceipt && in.ReceiptMediaID == nil {
		return nil, fmt.Errorf("trade service: к подтверждению оплаты нужна квитанция")
	}

	actorID := in.ActorID
	updated, event, err := s.repo.UpdateStatus(ctx, repository.StatusUpdate{
		TradeID:        in.TradeID,
		ActorID:        &actorID,
		AllowedFrom:    tr.allowedFrom,
		NewStatus:      tr.to,
		ReceiptMediaID: in.ReceiptMediaID,
		RestoreStock:   tr.restoreStock,
	})
	if err != nil {
		return nil, err
	}

	s.writeActionMessage(ctx, updated, in)
	s.publish(ctx, updated, event, in.ActorID)

	return updated, nil
}

// CompleteDisputed закрывает спорную сделку вердиктом арбитра.
// Вызывается сервисом споров, сам по себе переход тот же: под блокировкой,
// с проверкой исходного статуса и строкой события.
func (s *TradeService) CompleteDisputed(ctx context.Context, tradeID, arbiterID uuid.UUID, release bool) (*models.Trade, error) {
	newStatus := models.TradeStatusCompleted
	restore := false
	if !release {
		newStatus = models.TradeStatusCancelled
		restore = true
	}

	updated, event, err := s.repo.UpdateStatus(ctx, repository.StatusUpdate{
		TradeID:      tradeID,
		ActorID:      &arbiterID,
		AllowedFrom:  []string{models.TradeStatusDisputed},
		NewStatus:    newStatus,
		RestoreStock: restore,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated, event, arbiterID)
	return updated, nil
}

// MarkDisputed переводит сделку в спор. Допустимые исходные статусы
// передаёт сервис споров, он же создаёт строку спора.
func (s *TradeService) MarkDisputed(ctx context.Context, tradeID, actorID uuid.UUID, allowedFrom []string) (*models.Trade, error) {
	updated, event, err := s.repo.UpdateStatus(ctx, repository.StatusUpdate{
		TradeID:     tradeID,
		ActorID:     &actorID,
		AllowedFrom: allowedFrom,
		NewStatus:   models.TradeStatusDisputed,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated, event, actorID)
	return updated, nil
}

// GetTrade возвращает сделку, доступ только участникам и арбитрам.
func (s *TradeService) GetTrade(ctx context.Context, tradeID, userID uuid.UUID, isArbiter bool) (*models.Trade, error) {
	trade, err := s.repo.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Participant(userID) && !isArbiter {
		return nil, fmt.Errorf("trade service: у вас нет доступа к этой сделке")
	}
	return trade, nil
}

// ListMyTrades возвращает сделки пользователя.
func (s *TradeService) ListMyTrades(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Trade, error) {
	if status != "" {
		if _, ok := models.ValidTradeStatuses[status]; !ok {
			return nil, fmt.Errorf("trade service: некорректный статус %q", status)
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListByUser(ctx, userID, status, limit, offset)
}

// ListEvents возвращает журнал переходов сделки участнику или арбитру.
func (s *TradeService) ListEvents(ctx context.Context, tradeID, userID uuid.UUID, isArbiter bool) ([]models.TradeEvent, error) {
	trade, err := s.repo.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Participant(userID) && !isArbiter {
		return nil, fmt.Errorf("trade service: у вас нет доступа к этой сделке")
	}
	return s.repo.ListEvents(ctx, tradeID)
}

// writeActionMessage добавляет системное сообщение по итогам действия.
// Чат вторичен к переходу: ошибка записи не откатывает сделку.
func (s *TradeService) writeActionMessage(ctx context.Context, trade *models.Trade, in TradeActionInput) {
	if s.messages == nil {
		return
	}

	switch in.Action {
	case models.TradeActionSendPaymentInfo:
		_, _ = s.messages.AddSystemMessage(ctx, trade.ID, models.MessageKindPaymentInfo, in.PaymentInfo, nil)
	case models.TradeActionSubmitReceipt:
		_, _ = s.messages.AddSystemMessage(ctx, trade.ID, models.MessageKindSystem,
			"Покупатель приложил квитанцию об оплате", in.ReceiptMediaID)
	case models.TradeActionConfirmReceipt:
		_, _ = s.messages.AddSystemMessage(ctx, trade.ID, models.MessageKindSystem,
			"Продавец подтвердил получение оплаты, сделка завершена", nil)
	case models.TradeActionCancel:
		_, _ = s.messages.AddSystemMessage(ctx, trade.ID, models.MessageKindSystem,
			"Сделка отменена", nil)
	}
}

func (s *TradeService) publish(ctx context.Context, trade *models.Trade, event *models.TradeEvent, actorID uuid.UUID) {
	if s.events != nil {
		t, e := *trade, *event
		goroutine.SafeGo(func() {
			s.events.TradeStatusChanged(&t, &e, actorID)
		})
	}

	if s.reputation != nil && models.IsTerminalTradeStatus(event.NewStatus) {
		e := *event
		goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
			_ = s.reputation.Apply(ctx, &e)
		})
	}
}
