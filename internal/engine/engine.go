package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferCmd describes one transfer request.
type TransferCmd struct {
	// ID is the ledger identity of the resulting record. Callers that retry
	// should pre-assign it: a command whose ID is already in the ledger
	// returns the stored record with Replayed set and moves nothing.
	// uuid.Nil lets the engine pick one.
	ID         uuid.UUID
	Strategy   domain.Strategy
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Amount     decimal.Decimal
}

// Engine moves value between two accounts inside a caller-provided unit of
// work. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	accounts   AccountStore
	ledger     Ledger
	strategies map[domain.Strategy]Strategy
	now        func() time.Time
	newID      func() uuid.UUID
	logger     *zap.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New builds an engine over accounts and ledger with both strategies registered.
func New(accounts AccountStore, ledger Ledger, opts ...Option) *Engine {
	e := &Engine{
		accounts: accounts,
		ledger:   ledger,
		strategies: map[domain.Strategy]Strategy{
			domain.StrategyPessimistic: NewPessimistic(accounts),
			domain.StrategyOptimistic:  NewOptimistic(accounts),
		},
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.New,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer validates cmd, moves the funds with the selected strategy and
// appends a COMPLETED record, all inside uow. It returns the record or one of
// the domain error kinds. It never commits or aborts uow: on any failure after
// validation the balances inside uow are exactly what they were before the call.
func (e *Engine) Transfer(ctx context.Context, uow UnitOfWork, cmd TransferCmd) (*models.TransferRecord, error) {
	strategy, ok := e.strategies[cmd.Strategy]
	if !ok {
		return nil, &domain.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", cmd.Strategy)}
	}
	if err := validate(cmd); err != nil {
		return nil, err
	}

	if cmd.ID != uuid.Nil {
		prior, err := e.recorded(ctx, uow, cmd)
		if err != nil || prior != nil {
			return prior, err
		}
	}

	// Existence and currency checks read without locking; accounts are never
	// deleted so the answer cannot change before acquisition. Store errors
	// are returned as is so a *domain.NotFoundError reaches the caller intact.
	sender, err := e.accounts.GetAccount(ctx, uow, cmd.SenderID)
	if err != nil {
		return nil, err
	}
	receiver, err := e.accounts.GetAccount(ctx, uow, cmd.ReceiverID)
	if err != nil {
		return nil, err
	}
	if sender.Currency != receiver.Currency {
		return nil, &domain.ValidationError{
			Field:  "receiver_account_id",
			Reason: fmt.Sprintf("currency mismatch: sender is %s, receiver is %s", sender.Currency, receiver.Currency),
		}
	}

	sender, receiver, err = strategy.Acquire(ctx, uow, cmd.SenderID, cmd.ReceiverID)
	if err != nil {
		return nil, err
	}
	if sender.Balance.LessThan(cmd.Amount) {
		return nil, &domain.InsufficientFundsError{
			AccountID: sender.ID,
			Required:  cmd.Amount,
			Available: sender.Balance,
		}
	}

	if cmd.ID == uuid.Nil {
		cmd.ID = e.newID()
	}
	rec := models.TransferRecord{
		ID:                cmd.ID,
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		Amount:            cmd.Amount,
		Currency:          sender.Currency,
		Strategy:          strategy.Name().String(),
		Status:            domain.TransferStatusCompleted,
		CreatedAt:         e.now(),
	}

	err = e.mutate(ctx, uow, strategy, sender, receiver, rec)
	if errors.Is(err, errAlreadyRecorded) {
		// Another unit of work recorded this id after the lookup above. The
		// savepoint is already undone; answer from its record.
		prior, lookupErr := e.recorded(ctx, uow, cmd)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if prior == nil {
			return nil, fmt.Errorf("transfer %s is being recorded by another unit of work: %w", cmd.ID, domain.ErrConcurrency)
		}
		return prior, nil
	}
	if err != nil {
		e.logger.Debug("transfer aborted",
			zap.String("transfer_id", rec.ID.String()),
			zap.String("strategy", rec.Strategy),
			zap.Error(err),
		)
		return nil, err
	}

	e.logger.Debug("transfer applied",
		zap.String("transfer_id", rec.ID.String()),
		zap.String("strategy", rec.Strategy),
		zap.String("sender_account_id", rec.SenderAccountID.String()),
		zap.String("receiver_account_id", rec.ReceiverAccountID.String()),
		zap.String("amount", domain.FormatAmount(rec.Amount)),
	)
	return &rec, nil
}

// mutate applies the debit/credit pair and the ledger append as one nested
// scope of uow.
func (e *Engine) mutate(ctx context.Context, uow UnitOfWork, strategy Strategy, sender, receiver *models.Account, rec models.TransferRecord) (err error) {
	sp, err := uow.Savepoint(ctx)
	if err != nil {
		return fmt.Errorf("open savepoint: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			e.logger.Error("savepoint rollback failed",
				zap.String("transfer_id", rec.ID.String()),
				zap.Error(rbErr),
			)
			err = fmt.Errorf("%w (savepoint rollback: %v)", err, rbErr)
		}
	}()

	if err = strategy.Apply(ctx, uow, sender, receiver, rec.Amount); err != nil {
		return err
	}
	inserted, err := e.ledger.AppendTransfer(ctx, uow, rec)
	if err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	if !inserted {
		return errAlreadyRecorded
	}
	if err = sp.Release(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

var errAlreadyRecorded = errors.New("transfer already recorded")

// recorded returns the ledger record already stored under cmd.ID, or nil when
// there is none. A stored record that disagrees with cmd is a ValidationError.
func (e *Engine) recorded(ctx context.Context, uow UnitOfWork, cmd TransferCmd) (*models.TransferRecord, error) {
	rec, err := e.ledger.FindTransfer(ctx, uow, cmd.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up transfer %s: %w", cmd.ID, err)
	}
	if rec.SenderAccountID != cmd.SenderID || rec.ReceiverAccountID != cmd.ReceiverID || !rec.Amount.Equal(cmd.Amount) {
		return nil, &domain.ValidationError{
			Field:  "id",
			Reason: fmt.Sprintf("transfer %s was already recorded with different accounts or amount", cmd.ID),
		}
	}
	e.logger.Debug("transfer already recorded",
		zap.String("transfer_id", rec.ID.String()),
		zap.String("strategy", rec.Strategy),
	)
	rec.Replayed = true
	return rec, nil
}

func validate(cmd TransferCmd) error {
	if !cmd.Amount.IsPositive() {
		return &domain.ValidationError{Field: "amount", Reason: "transfer amount must be greater than zero"}
	}
	if err := domain.CheckScale("amount", cmd.Amount); err != nil {
		return err
	}
	if cmd.SenderID == cmd.ReceiverID {
		return &domain.ValidationError{Field: "receiver_account_id", Reason: "cannot transfer funds to the same account"}
	}
	return nil
}
