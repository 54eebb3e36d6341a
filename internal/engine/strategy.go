package engine

import (
	"context"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy encapsulates how the two account rows of a transfer are acquired
// and mutated safely.
type Strategy interface {
	Name() domain.Strategy
	// Acquire returns consistent views of sender and receiver.
	Acquire(ctx context.Context, uow UnitOfWork, senderID, receiverID uuid.UUID) (sender, receiver *models.Account, err error)
	// Apply debits sender and credits receiver by amount, using the views
	// returned by Acquire.
	Apply(ctx context.Context, uow UnitOfWork, sender, receiver *models.Account, amount decimal.Decimal) error
}

// lockOrder returns a and b in canonical ascending order.
func lockOrder(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}
