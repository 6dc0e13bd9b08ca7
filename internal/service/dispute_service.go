package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-exchange-backend/internal/goroutine"
	"github.com/ignatzorin/p2p-exchange-backend/internal/logger"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
	"github.com/ignatzorin/p2p-exchange-backend/internal/validation"
)

// DisputeRepositoryContract описывает хранилище споров.
type DisputeRepositoryContract interface {
	Create(ctx context.Context, dispute *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
	ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]models.Dispute, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	Resolve(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, outcome string) (*models.Dispute, error)
}

// DisputeTradeMachine выполняет переходы сделки, связанные со спорами.
type DisputeTradeMachine interface {
	MarkDisputed(ctx context.Context, tradeID, actorID uuid.UUID, allowedFrom []string) (*models.Trade, error)
	CompleteDisputed(ctx context.Context, tradeID, arbiterID uuid.UUID, release bool) (*models.Trade, error)
}

// UserReader выдаёт пользователей для проверки роли арбитра.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// DisputeSink получает события споров после их фиксации в БД.
type DisputeSink interface {
	DisputeOpened(trade *models.Trade, dispute *models.Dispute)
	DisputeResolved(trade *models.Trade, dispute *models.Dispute)
}

// DisputeService содержит бизнес-логику споров. Спор замораживает
// сделку до вердикта арбитра; стороны выйти из спора сами не могут.
type DisputeService struct {
	repo     DisputeRepositoryContract
	trades   TradeReader
	sm       DisputeTradeMachine
	users    UserReader
	sink     DisputeSink
	messages SystemMessageWriter
}

// NewDisputeService создаёт сервис споров.
func NewDisputeService(repo DisputeRepositoryContract, trades TradeReader, sm DisputeTradeMachine, users UserReader) *DisputeService {
	return &DisputeService{
		repo:   repo,
		trades: trades,
		sm:     sm,
		users:  users,
	}
}

// SetSink устанавливает получателя событий споров.
func (s *DisputeService) SetSink(sink DisputeSink) {
	s.sink = sink
}

// SetMessageWriter устанавливает писателя системных сообщений чата.
func (s *DisputeService) SetMessageWriter(messages SystemMessageWriter) {
	s.messages = messages
}

// статусы, из которых участник может открыть спор.
var disputableStatuses = []string{
	models.TradeStatusPending,
	models.TradeStatusAwaitingPayment,
	models.TradeStatusPaid,
	models.TradeStatusAwaitingRelease,
}

// Raise открывает спор по сделке. Сначала фиксируется переход в disputed
// (он же сериализует конкурирующие действия), затем пишется строка спора.
func (s *DisputeService) Raise(ctx context.Context, tradeID, actorID uuid.UUID, reason string) (*models.Dispute, error) {
	if err := validation.ValidateDisputeReason(reason); err != nil {
		return nil, fmt.Errorf("dispute service: %w", err)
	}

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Participant(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "вы не участник этой сделки")
	}

	updated, err := s.sm.MarkDisputed(ctx, tradeID, actorID, disputableStatuses)
	if err != nil {
		// Сделка уже в споре: это не обычный конфликт статусов,
		// клиенту важно отличать повторное открытие.
		var conflict *repository.StateConflictError
		if errors.As(err, &conflict) && conflict.Current == models.TradeStatusDisputed {
			return nil, repository.ErrDisputeAlreadyOpen
		}
		return nil, err
	}

	dispute := &models.Dispute{
		TradeID:  tradeID,
		RaisedBy: actorID,
		Reason:   reason,
	}
	if err := s.repo.Create(ctx, dispute); err != nil {
		return nil, err
	}

	s.writeSystemMessage(ctx, tradeID, fmt.Sprintf("Открыт спор: %s", reason))

	if s.sink != nil {
		t, d := *updated, *dispute
		goroutine.SafeGo(func() {
			s.sink.DisputeOpened(&t, &d)
		})
	}

	return dispute, nil
}

// Resolve закрывает спор вердиктом арбитра: release завершает сделку,
// refund отменяет её и возвращает остаток объявлению. Повторный вердикт
// по тому же спору отклоняется условием по статусу в хранилище.
func (s *DisputeService) Resolve(ctx context.Context, disputeID, arbiterID uuid.UUID, outcome string) (*models.Dispute, error) {
	if _, ok := models.ValidDisputeOutcomes[outcome]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("некорректный вердикт %q", outcome))
	}

	if err := s.requireArbiter(ctx, arbiterID); err != nil {
		return nil, err
	}

	resolved, err := s.repo.Resolve(ctx, disputeID, arbiterID, outcome)
	if err != nil {
		return nil, err
	}

	trade, err := s.sm.CompleteDisputed(ctx, resolved.TradeID, arbiterID, outcome == models.DisputeOutcomeRelease)
	if err != nil {
		// Спор закрыт, а переход не прошёл. Журнал событий сделки
		// покажет расхождение, фиксируем его в логе.
		if logger.Log != nil {
			logger.Log.WithFields(map[string]interface{}{
				"dispute_id": disputeID,
				"trade_id":   resolved.TradeID,
				"error":      err.Error(),
			}).Error("dispute service: спор закрыт, но переход сделки не выполнен")
		}
		return nil, err
	}

	verdict := "Арбитр завершил сделку в пользу покупателя"
	if outcome == models.DisputeOutcomeRefund {
		verdict = "Арбитр отменил сделку, остаток возвращён объявлению"
	}
	s.writeSystemMessage(ctx, resolved.TradeID, "Спор разрешён. "+verdict)

	if s.sink != nil {
		t, d := *trade, *resolved
		goroutine.SafeGo(func() {
			s.sink.DisputeResolved(&t, &d)
		})
	}

	return resolved, nil
}

// writeSystemMessage добавляет системное сообщение спора в чат сделки.
// Чат вторичен к переходу: ошибка записи не откатывает спор.
func (s *DisputeService) writeSystemMessage(ctx context.Context, tradeID uuid.UUID, content string) {
	if s.messages == nil {
		return
	}
	_, _ = s.messages.AddSystemMessage(ctx, tradeID, models.MessageKindSystem, content, nil)
}

// GetDispute возвращает спор участнику сделки или арбитру.
func (s *DisputeService) GetDispute(ctx context.Context, disputeID, userID uuid.UUID, isArbiter bool) (*models.Dispute, error) {
	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	if !isArbiter {
		trade, err := s.trades.GetByID(ctx, dispute.TradeID)
		if err != nil {
			return nil, err
		}
		if !trade.Participant(userID) {
			return nil, apperror.New(apperror.ErrCodeForbidden, "у вас нет доступа к этому спору")
		}
	}

	return dispute, nil
}

// ListOpen возвращает очередь открытых споров. Только для арбитров.
func (s *DisputeService) ListOpen(ctx context.Context, arbiterID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if err := s.requireArbiter(ctx, arbiterID); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListOpen(ctx, limit, offset)
}

// ListMine возвращает споры пользователя по обеим его ролям в сделках.
func (s *DisputeService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.ListByParticipant(ctx, userID, limit, offset)
}

// ListByTrade возвращает историю споров сделки.
func (s *DisputeService) ListByTrade(ctx context.Context, tradeID, userID uuid.UUID, isArbiter bool) ([]models.Dispute, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Participant(userID) && !isArbiter {
		return nil, apperror.New(apperror.ErrCodeForbidden, "у вас нет доступа к этой сделке")
	}

	return s.repo.ListByTrade(ctx, tradeID)
}

// requireArbiter проверяет роль по данным хранилища, а не по токену:
// отозванная роль перестаёт действовать сразу.
func (s *DisputeService) requireArbiter(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role != models.RoleArbiter {
		return apperror.New(apperror.ErrCodeForbidden, "действие доступно только арбитру")
	}
	return nil
}
