package engine

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Optimistic reads without locking and detects interference through the
// version column. A lost race surfaces as *domain.ConcurrencyError; retrying
// is the caller's job.
type Optimistic struct {
	store AccountStore
}

func NewOptimistic(store AccountStore) *Optimistic {
	return &Optimistic{store: store}
}

func (o *Optimistic) Name() domain.Strategy {
	return domain.StrategyOptimistic
}

func (o *Optimistic) Acquire(ctx context.Context, uow UnitOfWork, senderID, receiverID uuid.UUID) (*models.Account, *models.Account, error) {
	sender, err := o.store.GetAccount(ctx, uow, senderID)
	if err != nil {
		return nil, nil, fmt.Errorf("read sender: %w", err)
	}
	receiver, err := o.store.GetAccount(ctx, uow, receiverID)
	if err != nil {
		return nil, nil, fmt.Errorf("read receiver: %w", err)
	}
	return sender, receiver, nil
}

// Apply issues the two conditional writes sender first. When the receiver
// write loses, the sender write is still pending in uow; the engine undoes it
// through its savepoint before returning.
func (o *Optimistic) Apply(ctx context.Context, uow UnitOfWork, sender, receiver *models.Account, amount decimal.Decimal) error {
	ok, err := o.store.CompareAndSetBalance(ctx, uow, sender.ID, sender.Version, sender.Balance.Sub(amount))
	if err != nil {
		return fmt.Errorf("debit sender: %w", err)
	}
	if !ok {
		return &domain.ConcurrencyError{AccountID: sender.ID, ExpectedVersion: sender.Version}
	}

	ok, err = o.store.CompareAndSetBalance(ctx, uow, receiver.ID, receiver.Version, receiver.Balance.Add(amount))
	if err != nil {
		return fmt.Errorf("credit receiver: %w", err)
	}
	if !ok {
		return &domain.ConcurrencyError{AccountID: receiver.ID, ExpectedVersion: receiver.Version}
	}
	return nil
}
