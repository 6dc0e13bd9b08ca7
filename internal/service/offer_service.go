package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
	"github.com/ignatzorin/p2p-exchange-backend/internal/validation"
)

// OfferRepositoryContract описывает взаимодействие сервиса с хранилищем объявлений.
type OfferRepositoryContract interface {
	Create(ctx context.Context, offer *models.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	List(ctx context.Context, filter repository.OfferFilter) ([]models.Offer, error)
	Update(ctx context.Context, offer *models.Offer) error
	Deactivate(ctx context.Context, id, sellerID uuid.UUID) error
}

// OfferService содержит бизнес-логику каталога объявлений.
type OfferService struct {
	repo OfferRepositoryContract
}

// NewOfferService создаёт сервис каталога.
func NewOfferService(repo OfferRepositoryContract) *OfferService {
	return &OfferService{repo: repo}
}

// CreateOfferInput описывает данные нового объявления.
type CreateOfferInput struct {
	SellerID        uuid.UUID
	Platform        string
	Currency        string
	Rate            decimal.Decimal
	AvailableAmount decimal.Decimal
	MinAmount       decimal.Decimal
	MaxAmount       decimal.Decimal
}

// UpdateOfferInput описывает изменяемые поля объявления.
type UpdateOfferInput struct {
	OfferID         uuid.UUID
	SellerID        uuid.UUID
	Rate            decimal.Decimal
	AvailableAmount decimal.Decimal
	MinAmount       decimal.Decimal
	MaxAmount       decimal.Decimal
	IsActive        bool
}

// CreateOffer создаёт объявление после проверки инвариантов каталога.
func (s *OfferService) CreateOffer(ctx context.Context, in CreateOfferInput) (*models.Offer, error) {
	if err := validation.ValidatePlatform(in.Platform); err != nil {
		return nil, fmt.Errorf("offer service: %w", err)
	}
	if err := validation.ValidateCurrency(in.Currency); err != nil {
		return nil, fmt.Errorf("offer service: %w", err)
	}
	if err := validation.ValidatePositiveAmount("курс", in.Rate); err != nil {
		return nil, fmt.Errorf("offer service: %w", err)
	}
	if err := validation.ValidateOfferBounds(in.MinAmount, in.MaxAmount, in.AvailableAmount); err != nil {
		return nil, fmt.Errorf("offer service: %w", err)
	}

	offer := &models.Offer{
		SellerID:        in.SellerID,
		Platform:        in.Platform,
		Currency:        in.Currency,
		Rate:            in.Rate,
		AvailableAmount: in.AvailableAmount,
		MinAmount:       in.MinAmount,
		MaxAmount:       in.MaxAmount,
	}

	if err := s.repo.Create(ctx, offer); err != nil {
		return nil, err
	}

	return offer, nil
}

// GetOffer возвращает объявление по идентификатору.
func (s *OfferService) GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	return s.repo.GetByID(ctx, id)
}

// ListOffers возвращает каталог по фильтрам.
func (s *OfferService) ListOffers(ctx context.Context, filter repository.OfferFilter) ([]models.Offer, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return s.repo.List(ctx, filter)
}

// UpdateOffer обновляет объявление продавца. Изменение курса не влияет
// на уже созданные сделки: их условия зафиксированы при создании.
func (s *OfferService) UpdateOffer(ctx context.Context, in UpdateOfferInput) (*models.Offer, error) {
	existing, err := s.repo.GetByID(ctx, in.OfferID)
	if err != nil {
		return nil, err
	}

	if existing.SellerID != in.SellerID {
		return nil, fmt.Errorf("offer service: у вас нет прав на изменение объявления")
	}

	if err := validation.ValidatePositiveAmount("курс", in.Rate); err != nil {
		return nil, fmt.Errorf("offer service: %w", err)
	}
	if err := validation.ValidateOfferBounds(in.MinAmount, in.MaxAmount, in.AvailableAmount); err != nil {
		return nil, fmt.Errorf("offer service: %w", err)
	}

	existing.Rate = in.Rate
	existing.AvailableAmount = in.AvailableAmount
	existing.MinAmount = in.MinAmount
	existing.MaxAmount = in.MaxAmount
	existing.IsActive = in.IsActive

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}

	return existing, nil
}

// DeactivateOffer снимает объявление с каталога.
func (s *OfferService) DeactivateOffer(ctx context.Context, offerID, sellerID uuid.UUID) error {
	return s.repo.Deactivate(ctx, offerID, sellerID)
}
