package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/engine"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/ayo6706/wallet-transfer/internal/observability"
	"github.com/ayo6706/wallet-transfer/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher receives committed transfers for asynchronous fan-out.
type EventPublisher interface {
	Publish(ctx context.Context, rec models.TransferRecord) error
}

// TransferService owns the unit of work around each engine call: it begins,
// commits or rolls back, retries optimistic conflicts, and publishes the
// committed record.
type TransferService struct {
	store      repository.Store
	engine     *engine.Engine
	events     EventPublisher
	maxRetries int
	retryBase  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

type TransferOption func(*TransferService)

// WithEvents sets the publisher notified after each commit.
func WithEvents(p EventPublisher) TransferOption {
	return func(s *TransferService) { s.events = p }
}

// WithRetry sets how many times a ConcurrencyError is retried and the base
// delay of the exponential backoff. maxRetries of 0 surfaces the first
// conflict unchanged.
func WithRetry(maxRetries int, base time.Duration) TransferOption {
	return func(s *TransferService) {
		s.maxRetries = maxRetries
		s.retryBase = base
	}
}

func WithLogger(logger *zap.Logger) TransferOption {
	return func(s *TransferService) { s.logger = logger }
}

func NewTransferService(store repository.Store, eng *engine.Engine, opts ...TransferOption) *TransferService {
	s := &TransferService{
		store:      store,
		engine:     eng,
		maxRetries: 3,
		retryBase:  100 * time.Millisecond,
		sleep:      sleepCtx,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transfer runs cmd in its own unit of work. The record id is fixed before
// the first attempt so every retry appends under the same ledger identity.
// Submitting a cmd whose ID is already in the ledger returns that record with
// Replayed set; nothing moves and nothing is published.
func (s *TransferService) Transfer(ctx context.Context, cmd engine.TransferCmd) (*models.TransferRecord, error) {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}
	start := time.Now()

	var (
		rec *models.TransferRecord
		err error
	)
	for attempt := 0; ; attempt++ {
		rec, err = s.attempt(ctx, cmd)
		if err == nil || !domain.IsRetryable(err) || attempt >= s.maxRetries {
			break
		}

		observability.IncrementTransferRetry(cmd.Strategy.String())
		delay := backoff(s.retryBase, attempt)
		s.logger.Info("optimistic transfer conflict, retrying",
			zap.String("transfer_id", cmd.ID.String()),
			observability.TraceField(ctx),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			err = fmt.Errorf("retry transfer %s: %w", cmd.ID, sleepErr)
			break
		}
	}

	observability.ObserveTransfer(cmd.Strategy.String(), outcome(rec, err), time.Since(start))
	if err != nil {
		return nil, err
	}
	if rec.Replayed {
		s.logger.Info("transfer already recorded",
			zap.String("transfer_id", rec.ID.String()),
			observability.TraceField(ctx),
		)
		return rec, nil
	}

	s.logger.Info("transfer completed",
		zap.String("transfer_id", rec.ID.String()),
		observability.TraceField(ctx),
		zap.String("strategy", rec.Strategy),
		zap.String("sender_account_id", rec.SenderAccountID.String()),
		zap.String("receiver_account_id", rec.ReceiverAccountID.String()),
		zap.String("amount", domain.FormatAmount(rec.Amount)),
		zap.String("currency", rec.Currency),
	)
	s.publish(ctx, *rec)
	return rec, nil
}

func (s *TransferService) attempt(ctx context.Context, cmd engine.TransferCmd) (*models.TransferRecord, error) {
	var rec *models.TransferRecord
	err := repository.RunInTx(ctx, s.store, func(uow repository.UnitOfWork) error {
		var err error
		rec, err = s.engine.Transfer(ctx, uow, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// publish never fails the transfer: by now the money has moved.
func (s *TransferService) publish(ctx context.Context, rec models.TransferRecord) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("failed to publish transfer event",
			zap.String("transfer_id", rec.ID.String()),
			observability.TraceField(ctx),
			zap.Error(err),
		)
	}
}

func (s *TransferService) GetTransfer(ctx context.Context, id uuid.UUID) (*models.TransferRecord, error) {
	return s.store.GetTransfer(ctx, id)
}

const maxBackoffShift = 16

// backoff returns base*2^attempt plus up to half of that again as jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	d := base << attempt
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

func outcome(rec *models.TransferRecord, err error) string {
	switch {
	case err != nil:
		return string(domain.KindOf(err))
	case rec.Replayed:
		return "replayed"
	default:
		return "success"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
