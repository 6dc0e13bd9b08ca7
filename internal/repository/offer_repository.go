package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
)

// ErrOfferNotFound возвращается, когда объявление не найдено.
var ErrOfferNotFound = errors.New("offer not found")

// OfferFilter задаёт фильтры выборки каталога объявлений.
type OfferFilter struct {
	Currency  string
	Platform  string
	SellerID  *uuid.UUID
	MinAmount *decimal.Decimal // показывать только объявления, покрывающие сумму
	Limit     int
	Offset    int
}

// OfferRepository отвечает за таблицу offers.
type OfferRepository struct {
	db *sqlx.DB
}

// NewOfferRepository создаёт экземпляр репозитория.
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// Create создаёт объявление.
func (r *OfferRepository) Create(ctx context.Context, offer *models.Offer) error {
	query := `
		INSERT INTO offers (seller_id, platform, currency, rate, available_amount, min_amount, max_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		offer.SellerID, offer.Platform, offer.Currency,
		offer.Rate, offer.AvailableAmount, offer.MinAmount, offer.MaxAmount,
	).Scan(&offer.ID, &offer.CreatedAt, &offer.UpdatedAt); err != nil {
		return fmt.Errorf("offer repository: create %w", err)
	}

	offer.IsActive = true
	return nil
}

// GetByID возвращает объявление по идентификатору.
func (r *OfferRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.GetContext(ctx, &offer, `SELECT * FROM offers WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("offer repository: get by id %w", err)
	}
	return &offer, nil
}

// List возвращает активные объявления каталога по фильтрам,
// отсортированные по курсу от выгодного к дорогому.
func (r *OfferRepository) List(ctx context.Context, filter OfferFilter) ([]models.Offer, error) {
	query := `SELECT * FROM offers WHERE is_active = TRUE`
	args := []interface{}{}
	argIndex := 1

	if filter.Currency != "" {
		query += fmt.Sprintf(" AND currency = $%d", argIndex)
		args = append(args, filter.Currency)
		argIndex++
	}
	if filter.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argIndex)
		args = append(args, filter.Platform)
		argIndex++
	}
	if filter.SellerID != nil {
		query += fmt.Sprintf(" AND seller_id = $%d", argIndex)
		args = append(args, *filter.SellerID)
		argIndex++
	}
	if filter.MinAmount != nil {
		query += fmt.Sprintf(" AND available_amount >= $%d AND min_amount <= $%d", argIndex, argIndex)
		args = append(args, *filter.MinAmount)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY rate ASC, created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	offers := []models.Offer{}
	if err := r.db.SelectContext(ctx, &offers, query, args...); err != nil {
		return nil, fmt.Errorf("offer repository: list %w", err)
	}
	return offers, nil
}

// Update обновляет редактируемые поля объявления. Только владелец может
// менять объявление, проверка владельца входит в условие WHERE.
func (r *OfferRepository) Update(ctx context.Context, offer *models.Offer) error {
	query := `
		UPDATE offers
		SET rate = $3, available_amount = $4, min_amount = $5, max_amount = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1 AND seller_id = $2
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(
		ctx, query,
		offer.ID, offer.SellerID,
		offer.Rate, offer.AvailableAmount, offer.MinAmount, offer.MaxAmount, offer.IsActive,
	).Scan(&offer.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOfferNotFound
		}
		return fmt.Errorf("offer repository: update %w", err)
	}

	return nil
}

// Deactivate снимает объявление с каталога. Уже созданные по нему
// сделки продолжают жить со «замороженными» условиями.
func (r *OfferRepository) Deactivate(ctx context.Context, id, sellerID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE offers SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND seller_id = $2`,
		id, sellerID)
	if err != nil {
		return fmt.Errorf("offer repository: deactivate %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("offer repository: deactivate rows affected %w", err)
	}
	if affected == 0 {
		return ErrOfferNotFound
	}

	return nil
}
