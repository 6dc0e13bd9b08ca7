package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Offer описывает объявление продавца о продаже остатка на платёжной платформе.
// Инвариант: min_amount <= max_amount <= available_amount, rate > 0.
type Offer struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	SellerID        uuid.UUID       `db:"seller_id" json:"seller_id"`
	Platform        string          `db:"platform" json:"platform"`
	Currency        string          `db:"currency" json:"currency"`
	Rate            decimal.Decimal `db:"rate" json:"rate"`
	AvailableAmount decimal.Decimal `db:"available_amount" json:"available_amount"`
	MinAmount       decimal.Decimal `db:"min_amount" json:"min_amount"`
	MaxAmount       decimal.Decimal `db:"max_amount" json:"max_amount"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}
