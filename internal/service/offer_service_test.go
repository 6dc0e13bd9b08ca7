package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/repository"
)

type mockOfferRepo struct {
	mock.Mock
}

func (m *mockOfferRepo) Create(ctx context.Context, offer *models.Offer) error {
	args := m.Called(ctx, offer)
	if args.Error(0) == nil {
		offer.ID = uuid.New()
		offer.IsActive = true
	}
	return args.Error(0)
}

func (m *mockOfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Offer), args.Error(1)
}

func (m *mockOfferRepo) List(ctx context.Context, filter repository.OfferFilter) ([]models.Offer, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Offer), args.Error(1)
}

func (m *mockOfferRepo) Update(ctx context.Context, offer *models.Offer) error {
	args := m.Called(ctx, offer)
	return args.Error(0)
}

func (m *mockOfferRepo) Deactivate(ctx context.Context, id, sellerID uuid.UUID) error {
	args := m.Called(ctx, id, sellerID)
	return args.Error(0)
}

func validOfferInput(sellerID uuid.UUID) CreateOfferInput {
	return CreateOfferInput{
		SellerID:        sellerID,
		Platform:        "steam",
		Currency:        "RUB",
		Rate:            decimal.NewFromFloat(95.50),
		AvailableAmount: decimal.NewFromInt(1000),
		MinAmount:       decimal.NewFromInt(10),
		MaxAmount:       decimal.NewFromInt(500),
	}
}

func TestOfferService_CreateOffer_Success(t *testing.T) {
	repo := new(mockOfferRepo)
	svc := NewOfferService(repo)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*models.Offer")).Return(nil)

	offer, err := svc.CreateOffer(ctx, validOfferInput(uuid.New()))
	require.NoError(t, err)
	assert.True(t, offer.IsActive)
	repo.AssertExpectations(t)
}

func TestOfferService_CreateOffer_Validation(t *testing.T) {
	repo := new(mockOfferRepo)
	svc := NewOfferService(repo)
	ctx := context.Background()
	sellerID := uuid.New()

	t.Run("валюта не по ISO", func(t *testing.T) {
		in := validOfferInput(sellerID)
		in.Currency = "rub"
		_, err := svc.CreateOffer(ctx, in)
		assert.Error(t, err)
	})

	t.Run("нулевой курс", func(t *testing.T) {
		in := validOfferInput(sellerID)
		in.Rate = decimal.Zero
		_, err := svc.CreateOffer(ctx, in)
		assert.Error(t, err)
	})

	t.Run("min больше max", func(t *testing.T) {
		in := validOfferInput(sellerID)
		in.MinAmount = decimal.NewFromInt(600)
		_, err := svc.CreateOffer(ctx, in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "не может превышать максимальную")
	})

	t.Run("max больше остатка", func(t *testing.T) {
		in := validOfferInput(sellerID)
		in.MaxAmount = decimal.NewFromInt(1500)
		_, err := svc.CreateOffer(ctx, in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "доступный остаток")
	})

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOfferService_ListOffers_ClampsLimit(t *testing.T) {
	repo := new(mockOfferRepo)
	svc := NewOfferService(repo)
	ctx := context.Background()

	repo.On("List", ctx, mock.MatchedBy(func(f repository.OfferFilter) bool {
		return f.Limit == 20 && f.Offset == 0
	})).Return([]models.Offer{}, nil)

	_, err := svc.ListOffers(ctx, repository.OfferFilter{Limit: 100500, Offset: -5})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestOfferService_UpdateOffer_OwnerOnly(t *testing.T) {
	repo := new(mockOfferRepo)
	svc := NewOfferService(repo)
	ctx := context.Background()

	ownerID := uuid.New()
	offer := &models.Offer{
		ID:              uuid.New(),
		SellerID:        ownerID,
		Platform:        "steam",
		Currency:        "RUB",
		Rate:            decimal.NewFromInt(90),
		AvailableAmount: decimal.NewFromInt(1000),
		MinAmount:       decimal.NewFromInt(10),
		MaxAmount:       decimal.NewFromInt(500),
		IsActive:        true,
	}
	repo.On("GetByID", ctx, offer.ID).Return(offer, nil)

	_, err := svc.UpdateOffer(ctx, UpdateOfferInput{
		OfferID:         offer.ID,
		SellerID:        uuid.New(),
		Rate:            decimal.NewFromInt(92),
		AvailableAmount: decimal.NewFromInt(1000),
		MinAmount:       decimal.NewFromInt(10),
		MaxAmount:       decimal.NewFromInt(500),
		IsActive:        true,
	})
	require.Error(t, err)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestOfferService_DeactivateOffer(t *testing.T) {
	repo := new(mockOfferRepo)
	svc := NewOfferService(repo)
	ctx := context.Background()

	offerID, sellerID := uuid.New(), uuid.New()
	repo.On("Deactivate", ctx, offerID, sellerID).Return(nil)

	require.NoError(t, svc.DeactivateOffer(ctx, offerID, sellerID))
	repo.AssertExpectations(t)
}
