package engine

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pessimistic locks both rows before touching them. Conflicting transfers
// queue on the row locks instead of failing, so it never returns a
// ConcurrencyError.
type Pessimistic struct {
	store AccountStore
}

func NewPessimistic(store AccountStore) *Pessimistic {
	return &Pessimistic{store: store}
}

func (p *Pessimistic) Name() domain.Strategy {
	return domain.StrategyPessimistic
}

// Acquire locks the pair in ascending id order regardless of direction, so
// A->B and B->A running together cannot deadlock.
func (p *Pessimistic) Acquire(ctx context.Context, uow UnitOfWork, senderID, receiverID uuid.UUID) (*models.Account, *models.Account, error) {
	firstID, secondID := lockOrder(senderID, receiverID)

	first, err := p.store.GetAccountForUpdate(ctx, uow, firstID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock account %s: %w", firstID, err)
	}
	second, err := p.store.GetAccountForUpdate(ctx, uow, secondID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock account %s: %w", secondID, err)
	}

	if first.ID == senderID {
		return first, second, nil
	}
	return second, first, nil
}

func (p *Pessimistic) Apply(ctx context.Context, uow UnitOfWork, sender, receiver *models.Account, amount decimal.Decimal) error {
	if err := p.store.UpdateBalance(ctx, uow, sender.ID, sender.Balance.Sub(amount)); err != nil {
		return fmt.Errorf("debit sender: %w", err)
	}
	if err := p.store.UpdateBalance(ctx, uow, receiver.ID, receiver.Balance.Add(amount)); err != nil {
		return fmt.Errorf("credit receiver: %w", err)
	}
	return nil
}
