package models

import (
	"time"

	"github.com/google/uuid"
)

// Dispute описывает спор по сделке. Одновременно может быть открыт
// только один спор на сделку; разрешённые споры остаются как аудиторский след.
type Dispute struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	TradeID    uuid.UUID  `db:"trade_id" json:"trade_id"`
	RaisedBy   uuid.UUID  `db:"raised_by" json:"raised_by"`
	Reason     string     `db:"reason" json:"reason"`
	Status     string     `db:"status" json:"status"`
	Outcome    *string    `db:"outcome" json:"outcome,omitempty"`
	ResolvedBy *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
