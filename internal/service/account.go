package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/ayo6706/wallet-transfer/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountService struct {
	store repository.Store
}

func NewAccountService(store repository.Store) *AccountService {
	return &AccountService{store: store}
}

func (s *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return s.store.GetAccount(ctx, nil, accountID)
}

// CreateAccount opens an account for ownerID with a non-negative opening
// balance. An empty currency defaults to USD.
func (s *AccountService) CreateAccount(ctx context.Context, ownerID uuid.UUID, currency string, openingBalance decimal.Decimal) (*models.Account, error) {
	if ownerID == uuid.Nil {
		return nil, &domain.ValidationError{Field: "owner_id", Reason: "owner is required"}
	}
	if openingBalance.IsNegative() {
		return nil, &domain.ValidationError{Field: "balance", Reason: "opening balance cannot be negative"}
	}
	if err := domain.CheckScale("balance", openingBalance); err != nil {
		return nil, err
	}
	code, err := domain.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Currency: code,
		Balance:  openingBalance,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}
