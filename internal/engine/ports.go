package engine

import (
	"context"

	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnitOfWork is the caller-owned transactional scope a transfer runs in.
// The engine only opens savepoints inside it; begin, commit and abort stay
// with the caller. A UnitOfWork must not be shared between goroutines.
type UnitOfWork interface {
	Savepoint(ctx context.Context) (Savepoint, error)
}

// Savepoint is a nested scope that can be undone without ending the unit of work.
type Savepoint interface {
	Release(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AccountStore is the sole mutator of account rows.
type AccountStore interface {
	// GetAccount reads an account without locking it.
	GetAccount(ctx context.Context, uow UnitOfWork, id uuid.UUID) (*models.Account, error)
	// GetAccountForUpdate reads an account and holds an exclusive lock on it
	// until uow ends. It blocks while another unit of work holds the lock.
	GetAccountForUpdate(ctx context.Context, uow UnitOfWork, id uuid.UUID) (*models.Account, error)
	// UpdateBalance overwrites the balance of an account locked by uow and
	// bumps its version by one.
	UpdateBalance(ctx context.Context, uow UnitOfWork, id uuid.UUID, newBalance decimal.Decimal) error
	// CompareAndSetBalance writes newBalance only if the account is still at
	// expectedVersion, bumping the version by one. It never blocks; a row
	// held by another unit of work counts as a mismatch.
	CompareAndSetBalance(ctx context.Context, uow UnitOfWork, id uuid.UUID, expectedVersion int64, newBalance decimal.Decimal) (bool, error)
}

// Ledger appends completed transfer records.
type Ledger interface {
	// AppendTransfer reports false, and writes nothing, when a record with
	// rec.ID already exists or is being written by another unit of work.
	AppendTransfer(ctx context.Context, uow UnitOfWork, rec models.TransferRecord) (bool, error)
	// FindTransfer returns the record stored under id as seen by uow, or a
	// *domain.NotFoundError.
	FindTransfer(ctx context.Context, uow UnitOfWork, id uuid.UUID) (*models.TransferRecord, error)
}
