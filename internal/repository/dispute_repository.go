package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

var (
	// ErrDisputeNotFound возвращается, когда спор не найден.
	ErrDisputeNotFound = errors.New("dispute not found")
	// ErrDisputeAlreadyOpen возвращается при попытке открыть второй
	// спор по сделке, пока первый не разрешён.
	ErrDisputeAlreadyOpen = errors.New("dispute already open")
)

// DisputeRepository отвечает за таблицу disputes.
type DisputeRepository struct {
	db *sqlx.DB
}

// NewDisputeRepository создаёт экземпляр репозитория.
func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create открывает спор. Частичный уникальный индекс по открытым спорам
// гарантирует не больше одного открытого спора на сделку даже при гонке.
func (r *DisputeRepository) Create(ctx context.Context, dispute *models.Dispute) error {
	query := `
		INSERT INTO disputes (trade_id, raised_by, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(
		ctx, query,
		dispute.TradeID, dispute.RaisedBy, dispute.Reason, models.DisputeStatusOpen,
	).Scan(&dispute.ID, &dispute.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDisputeAlreadyOpen
		}
		return fmt.Errorf("dispute repository: create %w", err)
	}

	dispute.Status = models.DisputeStatusOpen
	return nil
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.db.GetContext(ctx, &dispute, `SELECT * FROM disputes WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: get by id %w", err)
	}
	return &dispute, nil
}

// ListOpen возвращает открытые споры для очереди арбитра,
// от самых старых к новым.
func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	disputes := []models.Dispute{}
	query := `
		SELECT * FROM disputes
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &disputes, query, models.DisputeStatusOpen, limit, offset); err != nil {
		return nil, fmt.Errorf("dispute repository: list open %w", err)
	}
	return disputes, nil
}

// ListByTrade возвращает все споры по сделке, включая разрешённые.
func (r *DisputeRepository) ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]models.Dispute, error) {
	disputes := []models.Dispute{}
	query := `SELECT * FROM disputes WHERE trade_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &disputes, query, tradeID); err != nil {
		return nil, fmt.Errorf("dispute repository: list by trade %w", err)
	}
	return disputes, nil
}

// ListByParticipant возвращает споры по сделкам, где пользователь
// выступает покупателем или продавцом.
func (r *DisputeRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	disputes := []models.Dispute{}
	query := `
		SELECT d.* FROM disputes d
		JOIN trades t ON t.id = d.trade_id
		WHERE t.buyer_id = $1 OR t.seller_id = $1
		ORDER BY d.created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &disputes, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("dispute repository: list by participant %w", err)
	}
	return disputes, nil
}

// Resolve закрывает спор с вердиктом арбитра. Условие по статусу делает
// операцию идемпотентной: повторное разрешение вернёт ErrDisputeNotFound.
func (r *DisputeRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, outcome string) (*models.Dispute, error) {
	var dispute models.Dispute
	query := `
		UPDATE disputes
		SET status = $3, outcome = $4, resolved_by = $2, resolved_at = NOW()
		WHERE id = $1 AND status = $5
		RETURNING *
	`
	err := r.db.QueryRowxContext(ctx, query,
		id, resolvedBy, models.DisputeStatusResolved, outcome, models.DisputeStatusOpen,
	).StructScan(&dispute)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: resolve %w", err)
	}

	return &dispute, nil
}
