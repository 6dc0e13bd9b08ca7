package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

var (
	// ErrTradeNotFound возвращается, когда сделка не найдена.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrOfferUnavailable возвращается, когда объявление неактивно
	// или его остатка не хватает на запрошенную сумму.
	ErrOfferUnavailable = errors.New("offer unavailable")
)

// StateConflictError возвращается, когда переход запрещён из текущего
// статуса сделки. Проигравший гонку участник получает именно эту ошибку
// вместе с актуальным статусом.
type StateConflictError struct {
	Current string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict: trade is %s", e.Current)
}

// StatusUpdate описывает один переход состояния сделки.
type StatusUpdate struct {
	TradeID        uuid.UUID
	ActorID        *uuid.UUID
	AllowedFrom    []string
	NewStatus      string
	ReceiptMediaID *uuid.UUID // проставляется при приложении квитанции
	RestoreStock   bool       // вернуть зарезервированный остаток объявлению
}

// TradeRepository отвечает за таблицы trades и trade_events.
type TradeRepository struct {
	db *sqlx.DB
}

// NewTradeRepository создаёт экземпляр репозитория.
func NewTradeRepository(db *sqlx.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create создаёт сделку и в той же транзакции резервирует остаток
// объявления. Условный UPDATE гарантирует, что два покупателя не
// заберут один и тот же остаток.
func (r *TradeRepository) Create(ctx context.Context, trade *models.Trade) (*models.TradeEvent, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("trade repository: begin tx %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reserve := `
		UPDATE offers
		SET available_amount = available_amount - $2, updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE AND available_amount >= $2
	`
	result, err := tx.ExecContext(ctx, reserve, trade.OfferID, trade.AmountAsset)
	if err != nil {
		return nil, fmt.Errorf("trade repository: reserve stock %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("trade repository: reserve stock rows affected %w", err)
	}
	if affected == 0 {
		err = ErrOfferUnavailable
		return nil, err
	}

	insert := `
		INSERT INTO trades (offer_id, buyer_id, seller_id, amount_asset, amount_local, rate, currency, platform, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	if err = tx.QueryRowxContext(
		ctx, insert,
		trade.OfferID, trade.BuyerID, trade.SellerID,
		trade.AmountAsset, trade.AmountLocal, trade.Rate,
		trade.Currency, trade.Platform, models.TradeStatusPending,
	).Scan(&trade.ID, &trade.CreatedAt, &trade.UpdatedAt); err != nil {
		return nil, fmt.Errorf("trade repository: insert trade %w", err)
	}
	trade.Status = models.TradeStatusPending

	event := &models.TradeEvent{
		TradeID:   trade.ID,
		ActorID:   &trade.BuyerID,
		OldStatus: "",
		NewStatus: models.TradeStatusPending,
	}
	if err = r.insertEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("trade repository: commit %w", err)
	}

	return event, nil
}

// UpdateStatus выполняет переход состояния под блокировкой строки сделки.
// Строка сделки берётся через SELECT ... FOR UPDATE, допустимость перехода
// проверяется уже под блокировкой, событие пишется в той же транзакции.
func (r *TradeRepository) UpdateStatus(ctx context.Context, upd StatusUpdate) (*models.Trade, *models.TradeEvent, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("trade repository: begin tx %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var trade models.Trade
	if err = tx.GetContext(ctx, &trade, `SELECT * FROM trades WHERE id = $1 FOR UPDATE`, upd.TradeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrTradeNotFound
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("trade repository: lock trade %w", err)
	}

	allowed := false
	for _, from := range upd.AllowedFrom {
		if trade.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		err = &StateConflictError{Current: trade.Status}
		return nil, nil, err
	}

	oldStatus := trade.Status
	update := `
		UPDATE trades
		SET status = $2, receipt_media_id = COALESCE($3, receipt_media_id), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at, receipt_media_id
	`
	if err = tx.QueryRowxContext(ctx, update, trade.ID, upd.NewStatus, upd.ReceiptMediaID).
		Scan(&trade.UpdatedAt, &trade.ReceiptMediaID); err != nil {
		return nil, nil, fmt.Errorf("trade repository: update status %w", err)
	}
	trade.Status = upd.NewStatus

	if upd.RestoreStock {
		restore := `
			UPDATE offers
			SET available_amount = available_amount + $2, updated_at = NOW()
			WHERE id = $1
		`
		if _, err = tx.ExecContext(ctx, restore, trade.OfferID, trade.AmountAsset); err != nil {
			return nil, nil, fmt.Errorf("trade repository: restore stock %w", err)
		}
	}

	event := &models.TradeEvent{
		TradeID:   trade.ID,
		ActorID:   upd.ActorID,
		OldStatus: oldStatus,
		NewStatus: upd.NewStatus,
	}
	if err = r.insertEvent(ctx, tx, event); err != nil {
		return nil, nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("trade repository: commit %w", err)
	}

	return &trade, event, nil
}

func (r *TradeRepository) insertEvent(ctx context.Context, tx *sqlx.Tx, event *models.TradeEvent) error {
	query := `
		INSERT INTO trade_events (trade_id, actor_id, old_status, new_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := tx.QueryRowxContext(ctx, query, event.TradeID, event.ActorID, event.OldStatus, event.NewStatus).
		Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("trade repository: insert event %w", err)
	}
	return nil
}

// GetByID возвращает сделку по идентификатору.
func (r *TradeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	var trade models.Trade
	if err := r.db.GetContext(ctx, &trade, `SELECT * FROM trades WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("trade repository: get by id %w", err)
	}
	return &trade, nil
}

// ListByUser возвращает сделки, в которых пользователь участвует
// как покупатель или продавец, с необязательным фильтром по статусу.
func (r *TradeRepository) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Trade, error) {
	query := `SELECT * FROM trades WHERE (buyer_id = $1 OR seller_id = $1)`
	args := []interface{}{userID}
	argIndex := 2

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	trades := []models.Trade{}
	if err := r.db.SelectContext(ctx, &trades, query, args...); err != nil {
		return nil, fmt.Errorf("trade repository: list by user %w", err)
	}
	return trades, nil
}

// ListEvents возвращает журнал переходов сделки в порядке их записи.
func (r *TradeRepository) ListEvents(ctx context.Context, tradeID uuid.UUID) ([]models.TradeEvent, error) {
	events := []models.TradeEvent{}
	query := `SELECT * FROM trade_events WHERE trade_id = $1 ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &events, query, tradeID); err != nil {
		return nil, fmt.Errorf("trade repository: list events %w", err)
	}
	return events, nil
}

// ListPendingTerminalEvents возвращает терминальные события, которые
// ещё не были учтены в репутации. Используется для доотправки после
// рестартов: событие фиксируется до публикации, поэтому журнал полон.
func (r *TradeRepository) ListPendingTerminalEvents(ctx context.Context, limit int) ([]models.TradeEvent, error) {
	events := []models.TradeEvent{}
	query := `
		SELECT * FROM trade_events
		WHERE reputation_applied = FALSE AND new_status IN ($1, $2)
		ORDER BY created_at
		LIMIT $3
	`
	if err := r.db.SelectContext(ctx, &events, query,
		models.TradeStatusCompleted, models.TradeStatusCancelled, limit); err != nil {
		return nil, fmt.Errorf("trade repository: list pending terminal events %w", err)
	}
	return events, nil
}

// MarkReputationApplied помечает событие учтённым. Возвращает false,
// если событие уже было учтено: повторная доставка не меняет счётчики.
func (r *TradeRepository) MarkReputationApplied(ctx context.Context, eventID uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE trade_events SET reputation_applied = TRUE WHERE id = $1 AND reputation_applied = FALSE`,
		eventID)
	if err != nil {
		return false, fmt.Errorf("trade repository: mark reputation applied %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("trade repository: mark reputation applied rows affected %w", err)
	}
	return affected > 0, nil
}
