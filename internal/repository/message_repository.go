package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

// MessageRepository отвечает за журнал сообщений чатов сделок.
// Журнал append-only: сообщения не редактируются и не удаляются.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository создаёт экземпляр репозитория.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Add добавляет сообщение в журнал чата сделки.
func (r *MessageRepository) Add(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (trade_id, sender_id, kind, content, attachment_media_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, seq, created_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		message.TradeID, message.SenderID, message.Kind, message.Content, message.AttachmentMediaID,
	).Scan(&message.ID, &message.Seq, &message.CreatedAt); err != nil {
		return fmt.Errorf("message repository: add %w", err)
	}

	return nil
}

// ListByTrade возвращает сообщения сделки в порядке отправки.
func (r *MessageRepository) ListByTrade(ctx context.Context, tradeID uuid.UUID, limit, offset int) ([]models.Message, error) {
	messages := []models.Message{}
	query := `
		SELECT * FROM messages
		WHERE trade_id = $1
		ORDER BY created_at, seq
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &messages, query, tradeID, limit, offset); err != nil {
		return nil, fmt.Errorf("message repository: list by trade %w", err)
	}
	return messages, nil
}

// ListSince возвращает сообщения сделки с seq строго больше курсора.
// Используется для догрузки пропущенного после переподключения.
func (r *MessageRepository) ListSince(ctx context.Context, tradeID uuid.UUID, sinceSeq int64, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	query := `
		SELECT * FROM messages
		WHERE trade_id = $1 AND seq > $2
		ORDER BY created_at, seq
		LIMIT $3
	`
	if err := r.db.SelectContext(ctx, &messages, query, tradeID, sinceSeq, limit); err != nil {
		return nil, fmt.Errorf("message repository: list since %w", err)
	}
	return messages, nil
}
