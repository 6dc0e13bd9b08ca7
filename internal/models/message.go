package models

import (
	"time"

	"github.com/google/uuid"
)

// Message описывает сообщение в чате сделки. Журнал сообщений append-only,
// порядок внутри сделки задаётся парой (created_at, seq).
// Системные сообщения (kind system/payment_info) имеют пустой sender_id.
type Message struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	Seq               int64      `db:"seq" json:"seq"`
	TradeID           uuid.UUID  `db:"trade_id" json:"trade_id"`
	SenderID          *uuid.UUID `db:"sender_id" json:"sender_id,omitempty"`
	Kind              string     `db:"kind" json:"kind"`
	Content           string     `db:"content" json:"content"`
	AttachmentMediaID *uuid.UUID `db:"attachment_media_id" json:"attachment_media_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// Notification описывает событие, отправленное пользователю.
// Уведомления производные: их потеря не влияет на корректность сделок.
type Notification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Content   string     `db:"content" json:"content"`
	TradeID   *uuid.UUID `db:"trade_id" json:"trade_id,omitempty"`
	IsRead    bool       `db:"is_read" json:"is_read"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
