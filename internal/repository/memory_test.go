package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newMemAccount(t *testing.T, s *MemoryStore, balance string) *models.Account {
	t.Helper()
	acc := &models.Account{OwnerID: uuid.New(), Balance: dec(balance), Currency: "USD"}
	require.NoError(t, s.CreateAccount(context.Background(), acc))
	return acc
}

func TestMemoryStore_CreateAccount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acc := &models.Account{OwnerID: uuid.New(), Balance: dec("100.0000"), Currency: "usd"}
	require.NoError(t, s.CreateAccount(ctx, acc))
	assert.NotEqual(t, uuid.Nil, acc.ID)
	assert.Equal(t, int64(1), acc.Version)
	assert.Equal(t, "USD", acc.Currency)

	err := s.CreateAccount(ctx, &models.Account{ID: acc.ID, OwnerID: uuid.New()})
	assert.ErrorIs(t, err, ErrDuplicateAccount)

	err = s.CreateAccount(ctx, &models.Account{OwnerID: uuid.New(), Balance: dec("-1")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMemoryStore_DecimalRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, s, "0")

	err := RunInTx(ctx, s, func(uow UnitOfWork) error {
		if _, err := s.GetAccountForUpdate(ctx, uow, acc.ID); err != nil {
			return err
		}
		return s.UpdateBalance(ctx, uow, acc.ID, dec("100.1234"))
	})
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, nil, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.1234", got.Balance.String())
	assert.True(t, got.Balance.Equal(dec("100.1234")))
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryStore_GetAccount_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetAccount(context.Background(), nil, uuid.New())

	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "account", nf.Resource)
}

func TestMemoryStore_WritesInvisibleUntilCommit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, s, "50")

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	ok, err := s.CompareAndSetBalance(ctx, uow, acc.ID, 1, dec("20"))
	require.NoError(t, err)
	require.True(t, ok)

	own, err := s.GetAccount(ctx, uow, acc.ID)
	require.NoError(t, err)
	assert.True(t, own.Balance.Equal(dec("20")))
	assert.Equal(t, int64(2), own.Version)

	other, err := s.GetAccount(ctx, nil, acc.ID)
	require.NoError(t, err)
	assert.True(t, other.Balance.Equal(dec("50")))
	assert.Equal(t, int64(1), other.Version)

	require.NoError(t, uow.Commit(ctx))
	after, err := s.GetAccount(ctx, nil, acc.ID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(dec("20")))
	assert.Equal(t, int64(2), after.Version)
}

func TestMemoryStore_RollbackDiscards(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, s, "50")

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = s.GetAccountForUpdate(ctx, uow, acc.ID)
	require.NoError(t, err)
	require.NoError(t, s.UpdateBalance(ctx, uow, acc.ID, dec("0")))
	mustAppend(t, s, uow, models.TransferRecord{ID: uuid.New()})
	require.NoError(t, uow.Rollback(ctx))

	got, err := s.GetAccount(ctx, nil, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("50")))
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 0, s.TransferCount())

	assert.ErrorIs(t, uow.Commit(ctx), ErrUnitOfWorkClosed)
}

func TestMemoryStore_CompareAndSet_VersionMismatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, s, "50")

	require.NoError(t, RunInTx(ctx, s, func(uow UnitOfWork) error {
		ok, err := s.CompareAndSetBalance(ctx, uow, acc.ID, 1, dec("40"))
		require.True(t, ok)
		return err
	}))

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	ok, err := s.CompareAndSetBalance(ctx, uow, acc.ID, 1, dec("30"))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetAccount(ctx, nil, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("40")))
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryStore_CompareAndSet_DoesNotWaitOnHeldRow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, s, "50")

	holder, err := s.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx)
	_, err = s.GetAccountForUpdate(ctx, holder, acc.ID)
	require.NoError(t, err)

	contender, err := s.Begin(ctx)
	require.NoError(t, err)
	defer contender.Rollback(ctx)

	start := time.Now()
	ok, err := s.CompareAndSetBalance(ctx, contender, acc.ID, 1, dec("10"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestMemoryStore_ExclusiveLockBlocksUntilCommit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, s, "50")

	holder, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = s.GetAccountForUpdate(ctx, holder, acc.ID)
	require.NoError(t, err)

	waiter, err := s.Begin(ctx)
	require.NoError(t, err)
	defer waiter.Rollback(ctx)

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = s.GetAccountForUpdate(shortCtx, waiter, acc.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *models.Account, 1)
	go func() {
		a, err := s.GetAccountForUpdate(ctx, waiter, acc.ID)
		if err != nil {
			got <- nil
			return
		}
		got <- a
	}()

	require.NoError(t, s.UpdateBalance(ctx, holder, acc.ID, dec("45")))
	select {
	case <-got:
		t.Fatal("lock acquired while still held")
	case <-time.After(30 * time.Millisecond):
	}
	require.NoError(t, holder.Commit(ctx))

	select {
	case a := <-got:
		require.NotNil(t, a)
		assert.True(t, a.Balance.Equal(dec("45")))
		assert.Equal(t, int64(2), a.Version)
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestMemoryStore_UpdateBalanceRequiresLock(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, s, "50")

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	err = s.UpdateBalance(ctx, uow, acc.ID, dec("10"))
	assert.ErrorIs(t, err, ErrNotLocked)
}

func TestMemoryStore_RejectsNegativeBalance(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, s, "50")

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	_, err = s.GetAccountForUpdate(ctx, uow, acc.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, s.UpdateBalance(ctx, uow, acc.ID, dec("-0.0001")), ErrNegativeBalance)
}

func TestMemoryStore_SavepointRollback(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := newMemAccount(t, s, "50")
	b := newMemAccount(t, s, "50")

	uow, err := s.Begin(ctx)
	require.NoError(t, err)

	ok, err := s.CompareAndSetBalance(ctx, uow, a.ID, 1, dec("49"))
	require.NoError(t, err)
	require.True(t, ok)

	sp, err := uow.Savepoint(ctx)
	require.NoError(t, err)
	ok, err = s.CompareAndSetBalance(ctx, uow, b.ID, 1, dec("51"))
	require.NoError(t, err)
	require.True(t, ok)
	mustAppend(t, s, uow, models.TransferRecord{ID: uuid.New()})
	require.NoError(t, sp.Rollback(ctx))

	require.NoError(t, uow.Commit(ctx))

	gotA, _ := s.GetAccount(ctx, nil, a.ID)
	gotB, _ := s.GetAccount(ctx, nil, b.ID)
	assert.True(t, gotA.Balance.Equal(dec("49")))
	assert.Equal(t, int64(2), gotA.Version)
	assert.True(t, gotB.Balance.Equal(dec("50")))
	assert.Equal(t, int64(1), gotB.Version)
	assert.Equal(t, 0, s.TransferCount())
}

func mustAppend(t *testing.T, s *MemoryStore, uow UnitOfWork, rec models.TransferRecord) {
	t.Helper()
	inserted, err := s.AppendTransfer(context.Background(), uow, rec)
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestMemoryStore_AppendTransferRefusesKnownID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := models.TransferRecord{ID: uuid.New(), Amount: dec("1"), Status: domain.TransferStatusCompleted}

	require.NoError(t, RunInTx(ctx, s, func(uow UnitOfWork) error {
		mustAppend(t, s, uow, rec)
		inserted, err := s.AppendTransfer(ctx, uow, rec)
		require.False(t, inserted)
		return err
	}))
	require.NoError(t, RunInTx(ctx, s, func(uow UnitOfWork) error {
		inserted, err := s.AppendTransfer(ctx, uow, rec)
		assert.False(t, inserted)
		return err
	}))

	assert.Equal(t, 1, s.TransferCount())
	got, err := s.GetTransfer(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestMemoryStore_AppendTransferStagedElsewhere(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := models.TransferRecord{ID: uuid.New(), Amount: dec("1")}

	first, err := s.Begin(ctx)
	require.NoError(t, err)
	mustAppend(t, s, first, rec)

	second, err := s.Begin(ctx)
	require.NoError(t, err)
	defer second.Rollback(ctx)
	inserted, err := s.AppendTransfer(ctx, second, rec)
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = s.FindTransfer(ctx, second, rec.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "staged records are private to their unit of work")
	found, err := s.FindTransfer(ctx, first, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)

	require.NoError(t, first.Rollback(ctx))
	mustAppend(t, s, second, rec)
}

func TestMemoryStore_SavepointRollbackFreesLedgerID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := models.TransferRecord{ID: uuid.New(), Amount: dec("1")}

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	sp, err := uow.Savepoint(ctx)
	require.NoError(t, err)
	mustAppend(t, s, uow, rec)
	require.NoError(t, sp.Rollback(ctx))
	require.NoError(t, uow.Rollback(ctx))

	require.NoError(t, RunInTx(ctx, s, func(uow UnitOfWork) error {
		mustAppend(t, s, uow, rec)
		return nil
	}))
	found, err := s.FindTransfer(ctx, nil, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
}

func TestMemoryStore_ForeignUnitOfWork(t *testing.T) {
	a := NewMemoryStore()
	b := NewMemoryStore()
	ctx := context.Background()
	acc := newMemAccount(t, a, "1")

	uow, err := b.Begin(ctx)
	require.NoError(t, err)
	_, err = a.GetAccount(ctx, uow, acc.ID)
	assert.ErrorIs(t, err, ErrForeignUnitOfWork)
}
