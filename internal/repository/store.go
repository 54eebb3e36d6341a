package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/wallet-transfer/internal/engine"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
)

var (
	ErrUnitOfWorkClosed  = errors.New("unit of work already finished")
	ErrForeignUnitOfWork = errors.New("unit of work belongs to a different store")
	ErrUnitOfWorkMissing = errors.New("operation requires a unit of work")
	ErrNotLocked         = errors.New("account is not locked by this unit of work")
	ErrNegativeBalance   = errors.New("balance would become negative")
	ErrDuplicateAccount  = errors.New("account already exists")
)

// UnitOfWork is the transaction handle a caller begins, passes to the
// engine and finally commits or rolls back.
type UnitOfWork interface {
	engine.UnitOfWork
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is a persistence backend for accounts and the transfer ledger.
type Store interface {
	engine.AccountStore
	engine.Ledger
	Begin(ctx context.Context) (UnitOfWork, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*models.TransferRecord, error)
}

// RunInTx executes fn within a unit of work begun on store, committing when
// fn returns nil and rolling back otherwise.
func RunInTx(ctx context.Context, store Store, fn func(uow UnitOfWork) error) error {
	uow, err := store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer uow.Rollback(ctx)

	if err := fn(uow); err != nil {
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}
