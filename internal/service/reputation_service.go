package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-exchange-backend/internal/logger"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

// ReputationEventSource описывает журнал терминальных событий сделок.
type ReputationEventSource interface {
	MarkReputationApplied(ctx context.Context, eventID uuid.UUID) (bool, error)
	ListPendingTerminalEvents(ctx context.Context, limit int) ([]models.TradeEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Trade, error)
}

// ProfileCounters обновляет агрегаты репутации в профилях.
type ProfileCounters interface {
	ApplyTradeOutcome(ctx context.Context, userID uuid.UUID, successful bool) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error
}

// verifiedSuccessThreshold — число успешных сделок, после которого
// профиль получает метку проверенного трейдера.
const verifiedSuccessThreshold = 10

// ReputationService учитывает терминальные события сделок в профилях
// сторон. Событие сначала помечается учтённым условным UPDATE, поэтому
// повторная доставка того же события счётчики не меняет.
type ReputationService struct {
	events   ReputationEventSource
	profiles ProfileCounters
}

// NewReputationService создаёт сервис репутации.
func NewReputationService(events ReputationEventSource, profiles ProfileCounters) *ReputationService {
	return &ReputationService{
		events:   events,
		profiles: profiles,
	}
}

// Apply учитывает одно терминальное событие. Нетерминальные события
// пропускаются молча: на репутацию влияет только итог сделки.
func (s *ReputationService) Apply(ctx context.Context, event *models.TradeEvent) error {
	if !models.IsTerminalTradeStatus(event.NewStatus) {
		return nil
	}

	claimed, err := s.events.MarkReputationApplied(ctx, event.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	trade, err := s.events.GetByID(ctx, event.TradeID)
	if err != nil {
		return fmt.Errorf("reputation service: сделка события не найдена: %w", err)
	}

	successful := event.NewStatus == models.TradeStatusCompleted

	if err := s.profiles.ApplyTradeOutcome(ctx, trade.BuyerID, successful); err != nil {
		return err
	}
	if err := s.profiles.ApplyTradeOutcome(ctx, trade.SellerID, successful); err != nil {
		return err
	}

	if successful {
		s.refreshVerified(ctx, trade.BuyerID)
		s.refreshVerified(ctx, trade.SellerID)
	}

	return nil
}

// refreshVerified выставляет метку проверенного трейдера по порогу
// успешных сделок. Метка производная, её отказ не откатывает учёт.
func (s *ReputationService) refreshVerified(ctx context.Context, userID uuid.UUID) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil || profile.IsVerified || profile.SuccessfulTrades < verifiedSuccessThreshold {
		return
	}

	if err := s.profiles.SetVerified(ctx, userID, true); err != nil && logger.Log != nil {
		logger.Log.WithFields(map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("reputation service: не удалось обновить метку проверенного")
	}
}

// ApplyPending доучитывает события, оставшиеся неучтёнными после
// рестарта. Переход и его строка события пишутся одной транзакцией,
// поэтому журнал полон и догон всегда возможен.
func (s *ReputationService) ApplyPending(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	events, err := s.events.ListPendingTerminalEvents(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range events {
		if err := s.Apply(ctx, &events[i]); err != nil {
			if logger.Log != nil {
				logger.Log.WithFields(map[string]interface{}{
					"event_id": events[i].ID,
					"trade_id": events[i].TradeID,
					"error":    err.Error(),
				}).Warn("reputation service: не удалось доучесть событие")
			}
			continue
		}
		applied++
	}

	return applied, nil
}
