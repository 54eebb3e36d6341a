package repository

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/ayo6706/wallet-transfer/internal/domain"
	"github.com/ayo6706/wallet-transfer/internal/engine"
	"github.com/ayo6706/wallet-transfer/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store with row-level exclusive locks and
// read-committed visibility: writes stay private to their unit of work until
// Commit. It is the reference backend for tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]*memRow
	transfers map[uuid.UUID]models.TransferRecord
	pending   map[uuid.UUID]*memUnitOfWork // staged ledger ids by owner
	now       func() time.Time
}

type memRow struct {
	account models.Account // last committed state
	lock    chan struct{}  // holds one token while owned
	owner   *memUnitOfWork
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[uuid.UUID]*memRow),
		transfers: make(map[uuid.UUID]models.TransferRecord),
		pending:   make(map[uuid.UUID]*memUnitOfWork),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (UnitOfWork, error) {
	return &memUnitOfWork{
		store:  s,
		writes: make(map[uuid.UUID]models.Account),
	}, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Balance.IsNegative() {
		return &domain.ValidationError{Field: "balance", Reason: "opening balance cannot be negative"}
	}
	if err := domain.CheckScale("balance", account.Balance); err != nil {
		return err
	}
	currency, err := domain.NormalizeCurrency(account.Currency)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("create account %s: %w", account.ID, ErrDuplicateAccount)
	}
	now := s.now()
	account.Currency = currency
	account.Version = 1
	account.CreatedAt = now
	account.UpdatedAt = now
	s.accounts[account.ID] = &memRow{
		account: *account,
		lock:    make(chan struct{}, 1),
	}
	return nil
}

// GetAccount returns the committed row, or the row as staged by uow when uow
// has already written it. uow may be nil.
func (s *MemoryStore) GetAccount(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID) (*models.Account, error) {
	u, err := s.resolve(uow)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.accounts[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "account", ID: id}
	}
	acc := u.view(row)
	return &acc, nil
}

func (s *MemoryStore) GetAccountForUpdate(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID) (*models.Account, error) {
	u, err := s.resolve(uow)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnitOfWorkMissing
	}

	s.mu.Lock()
	row, ok := s.accounts[id]
	if !ok {
		s.mu.Unlock()
		return nil, &domain.NotFoundError{Resource: "account", ID: id}
	}
	if row.owner == u {
		acc := u.view(row)
		s.mu.Unlock()
		return &acc, nil
	}
	s.mu.Unlock()

	select {
	case row.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row.owner = u
	u.locks = append(u.locks, row)
	acc := u.view(row)
	return &acc, nil
}

func (s *MemoryStore) UpdateBalance(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID, newBalance decimal.Decimal) error {
	u, err := s.resolve(uow)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUnitOfWorkMissing
	}
	if newBalance.IsNegative() {
		return fmt.Errorf("update account %s: %w", id, ErrNegativeBalance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.accounts[id]
	if !ok {
		return &domain.NotFoundError{Resource: "account", ID: id}
	}
	if row.owner != u {
		return fmt.Errorf("update account %s: %w", id, ErrNotLocked)
	}
	u.stage(row, newBalance, s.now())
	return nil
}

// CompareAndSetBalance takes the row lock without waiting. A row held by
// another unit of work is reported as a version mismatch.
func (s *MemoryStore) CompareAndSetBalance(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID, expectedVersion int64, newBalance decimal.Decimal) (bool, error) {
	u, err := s.resolve(uow)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, ErrUnitOfWorkMissing
	}
	if newBalance.IsNegative() {
		return false, fmt.Errorf("update account %s: %w", id, ErrNegativeBalance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.accounts[id]
	if !ok {
		return false, &domain.NotFoundError{Resource: "account", ID: id}
	}

	acquired := false
	if row.owner != u {
		select {
		case row.lock <- struct{}{}:
			row.owner = u
			acquired = true
		default:
			return false, nil
		}
	}

	if u.view(row).Version != expectedVersion {
		if acquired {
			row.owner = nil
			<-row.lock
		}
		return false, nil
	}
	if acquired {
		u.locks = append(u.locks, row)
	}
	u.stage(row, newBalance, s.now())
	return true, nil
}

// AppendTransfer stages rec in uow. An id that is committed, or staged by any
// live unit of work, is refused without waiting.
func (s *MemoryStore) AppendTransfer(ctx context.Context, uow engine.UnitOfWork, rec models.TransferRecord) (bool, error) {
	u, err := s.resolve(uow)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, ErrUnitOfWorkMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transfers[rec.ID]; exists {
		return false, nil
	}
	if _, staged := s.pending[rec.ID]; staged {
		return false, nil
	}
	s.pending[rec.ID] = u
	u.records = append(u.records, rec)
	return true, nil
}

// FindTransfer returns a committed record, or one staged by uow itself.
func (s *MemoryStore) FindTransfer(ctx context.Context, uow engine.UnitOfWork, id uuid.UUID) (*models.TransferRecord, error) {
	u, err := s.resolve(uow)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.transfers[id]; ok {
		return &rec, nil
	}
	if u != nil {
		for _, rec := range u.records {
			if rec.ID == id {
				return &rec, nil
			}
		}
	}
	return nil, &domain.NotFoundError{Resource: "transfer", ID: id}
}

func (s *MemoryStore) GetTransfer(ctx context.Context, id uuid.UUID) (*models.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.transfers[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "transfer", ID: id}
	}
	return &rec, nil
}

// TransferCount returns the number of committed ledger records.
func (s *MemoryStore) TransferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transfers)
}

func (s *MemoryStore) resolve(uow engine.UnitOfWork) (*memUnitOfWork, error) {
	if uow == nil {
		return nil, nil
	}
	u, ok := uow.(*memUnitOfWork)
	if !ok || u.store != s {
		return nil, ErrForeignUnitOfWork
	}
	if u.done {
		return nil, ErrUnitOfWorkClosed
	}
	return u, nil
}

type memUnitOfWork struct {
	store   *MemoryStore
	locks   []*memRow
	writes  map[uuid.UUID]models.Account
	records []models.TransferRecord
	done    bool
}

// view must be called with the store mutex held. A nil receiver sees only
// committed state.
func (u *memUnitOfWork) view(row *memRow) models.Account {
	if u != nil {
		if staged, ok := u.writes[row.account.ID]; ok {
			return staged
		}
	}
	return row.account
}

func (u *memUnitOfWork) stage(row *memRow, balance decimal.Decimal, now time.Time) {
	next := u.view(row)
	next.Balance = balance
	next.Version++
	next.UpdatedAt = now
	u.writes[next.ID] = next
}

func (u *memUnitOfWork) Savepoint(ctx context.Context) (engine.Savepoint, error) {
	if u.done {
		return nil, ErrUnitOfWorkClosed
	}
	return &memSavepoint{
		uow:      u,
		writes:   maps.Clone(u.writes),
		nrecords: len(u.records),
	}, nil
}

func (u *memUnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return ErrUnitOfWorkClosed
	}
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, acc := range u.writes {
		s.accounts[id].account = acc
	}
	for _, rec := range u.records {
		s.transfers[rec.ID] = rec
	}
	u.finish()
	return nil
}

func (u *memUnitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return ErrUnitOfWorkClosed
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.finish()
	return nil
}

// finish releases every held row lock and ledger id. Store mutex must be held.
func (u *memUnitOfWork) finish() {
	u.unstage(u.records)
	for _, row := range u.locks {
		row.owner = nil
		<-row.lock
	}
	u.locks = nil
	u.writes = nil
	u.records = nil
	u.done = true
}

func (u *memUnitOfWork) unstage(records []models.TransferRecord) {
	for _, rec := range records {
		if u.store.pending[rec.ID] == u {
			delete(u.store.pending, rec.ID)
		}
	}
}

type memSavepoint struct {
	uow      *memUnitOfWork
	writes   map[uuid.UUID]models.Account
	nrecords int
	done     bool
}

func (sp *memSavepoint) Release(ctx context.Context) error {
	sp.done = true
	return nil
}

// Rollback discards writes and ledger appends made since the savepoint.
// Row locks taken since then stay held until the unit of work ends.
func (sp *memSavepoint) Rollback(ctx context.Context) error {
	if sp.done {
		return nil
	}
	u := sp.uow
	if u.done {
		return ErrUnitOfWorkClosed
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.writes = sp.writes
	u.unstage(u.records[sp.nrecords:])
	u.records = u.records[:sp.nrecords]
	sp.done = true
	return nil
}
