package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/engine"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/ayo6706/wallet-transfer/internal/observability"
	"github.com/ayo6706/wallet-transfer/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPublisher struct {
	mu      sync.Mutex
	store   *repository.MemoryStore
	records []models.TransferRecord
	// balances seen by the publisher at publish time, keyed by account
	seen map[uuid.UUID]decimal.Decimal
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, rec models.TransferRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	if p.store != nil {
		if p.seen == nil {
			p.seen = make(map[uuid.UUID]decimal.Decimal)
		}
		for _, id := range []uuid.UUID{rec.SenderAccountID, rec.ReceiverAccountID} {
			acc, err := p.store.GetAccount(ctx, nil, id)
			if err == nil {
				p.seen[id] = acc.Balance
			}
		}
	}
	return p.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedPair(t *testing.T, store *repository.MemoryStore, a, b string) (*models.Account, *models.Account) {
	t.Helper()
	svc := NewAccountService(store)
	ctx := context.Background()
	sender, err := svc.CreateAccount(ctx, uuid.New(), "USD", dec(a))
	require.NoError(t, err)
	receiver, err := svc.CreateAccount(ctx, uuid.New(), "USD", dec(b))
	require.NoError(t, err)
	return sender, receiver
}

func TestTransferService_CommitsThenPublishes(t *testing.T) {
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{store: store}
	svc := NewTransferService(store, engine.New(store, store), WithEvents(pub))
	a, b := seedPair(t, store, "100", "50")

	rec, err := svc.Transfer(context.Background(), engine.TransferCmd{
		Strategy: domain.StrategyPessimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("30"),
	})
	require.NoError(t, err)

	require.Len(t, pub.records, 1)
	assert.Equal(t, rec.ID, pub.records[0].ID)
	assert.True(t, pub.seen[a.ID].Equal(dec("70")), "publish must observe committed balances")
	assert.True(t, pub.seen[b.ID].Equal(dec("80")))

	got, err := svc.GetTransfer(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestTransferService_ResubmittedIDMovesFundsOnce(t *testing.T) {
	for _, strategy := range []domain.Strategy{domain.StrategyPessimistic, domain.StrategyOptimistic} {
		t.Run(strategy.String(), func(t *testing.T) {
			store := repository.NewMemoryStore()
			pub := &recordingPublisher{}
			core, logs := observer.New(zap.InfoLevel)
			svc := NewTransferService(store, engine.New(store, store), WithEvents(pub), WithLogger(zap.New(core)))
			a, b := seedPair(t, store, "100", "50")
			cmd := engine.TransferCmd{
				ID: uuid.New(), Strategy: strategy, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("30"),
			}

			first, err := svc.Transfer(context.Background(), cmd)
			require.NoError(t, err)
			assert.False(t, first.Replayed)

			second, err := svc.Transfer(context.Background(), cmd)
			require.NoError(t, err)
			assert.True(t, second.Replayed)
			assert.Equal(t, first.ID, second.ID)

			sender, err := store.GetAccount(context.Background(), nil, a.ID)
			require.NoError(t, err)
			assert.True(t, sender.Balance.Equal(dec("70")), "sender=%s", sender.Balance)
			assert.Equal(t, int64(2), sender.Version)
			receiver, err := store.GetAccount(context.Background(), nil, b.ID)
			require.NoError(t, err)
			assert.True(t, receiver.Balance.Equal(dec("80")))
			assert.Equal(t, 1, store.TransferCount())

			require.Len(t, pub.records, 1)
			assert.Equal(t, 1, logs.FilterMessage("transfer completed").Len())
			assert.Equal(t, 1, logs.FilterMessage("transfer already recorded").Len())
		})
	}
}

func TestTransferService_LogsTraceID(t *testing.T) {
	store := repository.NewMemoryStore()
	core, logs := observer.New(zap.InfoLevel)
	svc := NewTransferService(store, engine.New(store, store), WithLogger(zap.New(core)))
	a, b := seedPair(t, store, "10", "0")

	ctx := observability.WithTraceID(context.Background(), "trace-abc")
	_, err := svc.Transfer(ctx, engine.TransferCmd{
		Strategy: domain.StrategyPessimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("1"),
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("transfer completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "trace-abc", entries[0].ContextMap()["trace_id"])
}

func TestTransferService_PublishFailureDoesNotFailTransfer(t *testing.T) {
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc := NewTransferService(store, engine.New(store, store), WithEvents(pub))
	a, b := seedPair(t, store, "10", "0")

	_, err := svc.Transfer(context.Background(), engine.TransferCmd{
		Strategy: domain.StrategyOptimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.TransferCount())
}

func TestTransferService_FailureRollsBackAndSkipsPublish(t *testing.T) {
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewTransferService(store, engine.New(store, store), WithEvents(pub))
	a, b := seedPair(t, store, "10", "0")

	_, err := svc.Transfer(context.Background(), engine.TransferCmd{
		Strategy: domain.StrategyPessimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("50"),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Empty(t, pub.records)

	// Locks were released by the rollback, so a follow-up transfer proceeds.
	_, err = svc.Transfer(context.Background(), engine.TransferCmd{
		Strategy: domain.StrategyPessimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("5"),
	})
	require.NoError(t, err)
}

// holdRow keeps id locked in a separate unit of work until the returned
// release func runs.
func holdRow(t *testing.T, store *repository.MemoryStore, id uuid.UUID) func() {
	t.Helper()
	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = store.GetAccountForUpdate(ctx, uow, id)
	require.NoError(t, err)
	var once sync.Once
	return func() { once.Do(func() { _ = uow.Rollback(ctx) }) }
}

func TestTransferService_RetriesOptimisticConflict(t *testing.T) {
	store := repository.NewMemoryStore()
	a, b := seedPair(t, store, "100", "0")
	release := holdRow(t, store, b.ID)
	defer release()

	var delays []time.Duration
	svc := NewTransferService(store, engine.New(store, store), WithRetry(3, 10*time.Millisecond))
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 2 {
			release()
		}
		return nil
	}

	id := uuid.New()
	rec, err := svc.Transfer(context.Background(), engine.TransferCmd{
		ID: id, Strategy: domain.StrategyOptimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("25"),
	})
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	require.Len(t, delays, 2)
	assert.GreaterOrEqual(t, delays[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 20*time.Millisecond)

	acc, err := store.GetAccount(context.Background(), nil, a.ID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("75")))
	assert.Equal(t, int64(2), acc.Version)
	assert.Equal(t, 1, store.TransferCount())
}

func TestTransferService_GivesUpAfterMaxRetries(t *testing.T) {
	store := repository.NewMemoryStore()
	a, b := seedPair(t, store, "100", "0")
	release := holdRow(t, store, a.ID)
	defer release()

	attempts := 0
	svc := NewTransferService(store, engine.New(store, store), WithRetry(2, time.Millisecond))
	svc.sleep = func(context.Context, time.Duration) error {
		attempts++
		return nil
	}

	_, err := svc.Transfer(context.Background(), engine.TransferCmd{
		Strategy: domain.StrategyOptimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("1"),
	})
	var ce *domain.ConcurrencyError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, 2, attempts)
}

func TestTransferService_ZeroRetriesSurfacesConflict(t *testing.T) {
	store := repository.NewMemoryStore()
	a, b := seedPair(t, store, "100", "0")
	release := holdRow(t, store, a.ID)
	defer release()

	svc := NewTransferService(store, engine.New(store, store), WithRetry(0, time.Millisecond))
	svc.sleep = func(context.Context, time.Duration) error {
		t.Fatal("must not sleep when retries are disabled")
		return nil
	}

	_, err := svc.Transfer(context.Background(), engine.TransferCmd{
		Strategy: domain.StrategyOptimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("1"),
	})
	assert.ErrorIs(t, err, domain.ErrConcurrency)
}

func TestTransferService_RetryStopsOnContextCancel(t *testing.T) {
	store := repository.NewMemoryStore()
	a, b := seedPair(t, store, "100", "0")
	release := holdRow(t, store, a.ID)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewTransferService(store, engine.New(store, store), WithRetry(5, time.Second))

	_, err := svc.Transfer(ctx, engine.TransferCmd{
		Strategy: domain.StrategyOptimistic, SenderID: a.ID, ReceiverID: b.ID, Amount: dec("1"),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransferService_DoesNotRetryOtherErrors(t *testing.T) {
	store := repository.NewMemoryStore()
	a, _ := seedPair(t, store, "100", "0")

	svc := NewTransferService(store, engine.New(store, store), WithRetry(3, time.Millisecond))
	svc.sleep = func(context.Context, time.Duration) error {
		t.Fatal("unexpected retry")
		return nil
	}

	_, err := svc.Transfer(context.Background(), engine.TransferCmd{
		Strategy: domain.StrategyOptimistic, SenderID: a.ID, ReceiverID: uuid.New(), Amount: dec("1"),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackoff(t *testing.T) {
	assert.Zero(t, backoff(0, 3))
	for attempt := 0; attempt < 4; attempt++ {
		d := backoff(100*time.Millisecond, attempt)
		floor := 100 * time.Millisecond << attempt
		assert.GreaterOrEqual(t, d, floor)
		assert.LessOrEqual(t, d, floor+floor/2)
	}
}
