package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade описывает сделку покупателя и продавца по объявлению.
// Курс и суммы фиксируются в момент создания и далее не меняются,
// даже если курс объявления будет отредактирован. Сделки никогда
// не удаляются физически.
type Trade struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	OfferID        uuid.UUID       `db:"offer_id" json:"offer_id"`
	BuyerID        uuid.UUID       `db:"buyer_id" json:"buyer_id"`
	SellerID       uuid.UUID       `db:"seller_id" json:"seller_id"`
	AmountAsset    decimal.Decimal `db:"amount_asset" json:"amount_asset"`
	AmountLocal    decimal.Decimal `db:"amount_local" json:"amount_local"`
	Rate           decimal.Decimal `db:"rate" json:"rate"`
	Currency       string          `db:"currency" json:"currency"`
	Platform       string          `db:"platform" json:"platform"`
	Status         string          `db:"status" json:"status"`
	ReceiptMediaID *uuid.UUID      `db:"receipt_media_id" json:"receipt_media_id,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Participant сообщает, является ли пользователь стороной сделки.
func (t *Trade) Participant(userID uuid.UUID) bool {
	return t.BuyerID == userID || t.SellerID == userID
}

// Counterparty возвращает вторую сторону сделки относительно actor.
func (t *Trade) Counterparty(actor uuid.UUID) uuid.UUID {
	if t.BuyerID == actor {
		return t.SellerID
	}
	return t.BuyerID
}

// TradeEvent фиксирует один переход состояния сделки.
// Строка события пишется в той же транзакции, что и сам переход,
// поэтому по журналу событий всегда можно восстановить рассылку.
type TradeEvent struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	TradeID           uuid.UUID  `db:"trade_id" json:"trade_id"`
	ActorID           *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	OldStatus         string     `db:"old_status" json:"old_status"`
	NewStatus         string     `db:"new_status" json:"new_status"`
	ReputationApplied bool       `db:"reputation_applied" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}
