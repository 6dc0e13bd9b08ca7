package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

// NotificationRepository отвечает за таблицу notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository создаёт экземпляр репозитория.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет уведомление.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, title, content, trade_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		notification.UserID, notification.Type, notification.Title, notification.Content, notification.TradeID,
	).Scan(&notification.ID, &notification.CreatedAt); err != nil {
		return fmt.Errorf("notification repository: create %w", err)
	}

	return nil
}

// ListByUser возвращает уведомления пользователя, новые первыми.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]models.Notification, error) {
	query := `SELECT * FROM notifications WHERE user_id = $1`
	args := []interface{}{userID}
	argIndex := 2

	if onlyUnread {
		query += " AND is_read = FALSE"
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	notifications := []models.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("notification repository: list by user %w", err)
	}
	return notifications, nil
}

// MarkRead помечает уведомление прочитанным.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID); err != nil {
		return fmt.Errorf("notification repository: mark read %w", err)
	}
	return nil
}

// MarkAllRead помечает все уведомления пользователя прочитанными.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`,
		userID); err != nil {
		return fmt.Errorf("notification repository: mark all read %w", err)
	}
	return nil
}

// Delete удаляет уведомление пользователя.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		id, userID); err != nil {
		return fmt.Errorf("notification repository: delete %w", err)
	}
	return nil
}

// CountUnread возвращает число непрочитанных уведомлений.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`,
		userID); err != nil {
		return 0, fmt.Errorf("notification repository: count unread %w", err)
	}
	return count, nil
}
