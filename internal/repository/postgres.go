package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/engine"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Balances and amounts cross the driver as text so NUMERIC(18,4) values are
// never routed through a binary float.
const (
	accountColumns  = `id, owner_id, balance::text, currency, version, created_at, updated_at`
	transferColumns = `id, sender_account_id, receiver_account_id, amount::text, currency, strategy, status, created_at`
)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgUnitOfWork{tx: tx}, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	currency, err := domain.NormalizeCurrency(account.Currency)
	if err != nil {
		return err
	}
	account.Currency = currency

	query := `INSERT INTO accounts (id, owner_id, balance, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3::text::numeric, $4, 1, NOW(), NOW())
		RETURNING version, created_at, updated_at`
	err = s.db.QueryRow(ctx, query, account.ID, account.OwnerID, account.Balance.String(), account.Currency).
		Scan(&account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID) (*models.Account, error) {
	q, err := s.querier(uow)
	if err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row, id)
}

func (s *PostgresStore) GetAccountForUpdate(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID) (*models.Account, error) {
	if uow == nil {
		return nil, ErrUnitOfWorkMissing
	}
	q, err := s.querier(uow)
	if err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row, id)
}

func (s *PostgresStore) UpdateBalance(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID, newBalance decimal.Decimal) error {
	if uow == nil {
		return ErrUnitOfWorkMissing
	}
	if newBalance.IsNegative() {
		return fmt.Errorf("update account %s: %w", id, ErrNegativeBalance)
	}
	q, err := s.querier(uow)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx,
		`UPDATE accounts SET balance = $1::text::numeric, version = version + 1, updated_at = NOW() WHERE id = $2`,
		newBalance.String(), id)
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	return requireExactlyOne(tag.RowsAffected(), "update account balance")
}

// CompareAndSetBalance skips rows locked by other transactions instead of
// waiting on them, so the optimistic path never blocks.
func (s *PostgresStore) CompareAndSetBalance(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID, expectedVersion int64, newBalance decimal.Decimal) (bool, error) {
	if uow == nil {
		return false, ErrUnitOfWorkMissing
	}
	if newBalance.IsNegative() {
		return false, fmt.Errorf("update account %s: %w", id, ErrNegativeBalance)
	}
	q, err := s.querier(uow)
	if err != nil {
		return false, err
	}
	query := `
		UPDATE accounts
		SET balance = $1::text::numeric, version = version + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM accounts
			WHERE id = $2 AND version = $3
			FOR UPDATE SKIP LOCKED
		)`
	tag, err := q.Exec(ctx, query, newBalance.String(), id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("conditional update account %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// AppendTransfer inserts rec unless its id is taken. A conflicting insert by
// a transaction still in flight waits for that transaction to finish.
func (s *PostgresStore) AppendTransfer(ctx context.Context, uow engine.UnitOfWork, rec models.TransferRecord) (bool, error) {
	if uow == nil {
		return false, ErrUnitOfWorkMissing
	}
	q, err := s.querier(uow)
	if err != nil {
		return false, err
	}
	query := `INSERT INTO transfers (id, sender_account_id, receiver_account_id, amount, currency, strategy, status, created_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	tag, err := q.Exec(ctx, query,
		rec.ID, rec.SenderAccountID, rec.ReceiverAccountID, rec.Amount.String(),
		rec.Currency, rec.Strategy, rec.Status, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert transfer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FindTransfer(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID) (*models.TransferRecord, error) {
	q, err := s.querier(uow)
	if err != nil {
		return nil, err
	}
	return scanTransfer(q.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id), id)
}

func (s *PostgresStore) GetTransfer(ctx context.Context, id uuid.UUID) (*models.TransferRecord, error) {
	return s.FindTransfer(ctx, nil, id)
}

func scanTransfer(row pgx.Row, id uuid.UUID) (*models.TransferRecord, error) {
	var (
		rec    models.TransferRecord
		amount string
	)
	err := row.Scan(
		&rec.ID, &rec.SenderAccountID, &rec.ReceiverAccountID, &amount,
		&rec.Currency, &rec.Strategy, &rec.Status, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "transfer", ID: id}
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse transfer amount: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) querier(uow engine.UnitOfWork) (querier, error) {
	if uow == nil {
		return s.db, nil
	}
	u, ok := uow.(*pgUnitOfWork)
	if !ok {
		return nil, ErrForeignUnitOfWork
	}
	return u.tx, nil
}

func scanAccount(row pgx.Row, id uuid.UUID) (*models.Account, error) {
	var (
		acc     models.Account
		balance string
	)
	err := row.Scan(&acc.ID, &acc.OwnerID, &balance, &acc.Currency, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "account", ID: id}
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if acc.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse account balance: %w", err)
	}
	return &acc, nil
}

// pgUnitOfWork wraps a pgx transaction. Savepoints map to pgx nested
// transactions (SAVEPOINT / ROLLBACK TO SAVEPOINT).
type pgUnitOfWork struct {
	tx pgx.Tx
}

func (u *pgUnitOfWork) Savepoint(ctx context.Context) (engine.Savepoint, error) {
	sp, err := u.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgSavepoint{tx: sp}, nil
}

func (u *pgUnitOfWork) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

func (u *pgUnitOfWork) Rollback(ctx context.Context) error {
	return u.tx.Rollback(ctx)
}

type pgSavepoint struct {
	tx pgx.Tx
}

func (sp *pgSavepoint) Release(ctx context.Context) error {
	return sp.tx.Commit(ctx)
}

func (sp *pgSavepoint) Rollback(ctx context.Context) error {
	err := sp.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
