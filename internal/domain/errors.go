package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrorKind is the stable, inspectable category of a transfer failure.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindConcurrency       ErrorKind = "concurrency"
	KindInternal          ErrorKind = "internal"
)

// Sentinels for errors.Is checks. Every typed error below unwraps to one of them.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConcurrency       = errors.New("concurrent modification")
)

// ValidationError reports malformed input: non-positive amount, bad scale,
// self-transfer, currency mismatch or an unknown strategy.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error   { return ErrValidation }
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// NotFoundError reports a missing resource, usually an account.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error   { return ErrNotFound }
func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// InsufficientFundsError reports a sender whose balance is below the amount.
type InsufficientFundsError struct {
	AccountID uuid.UUID
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: required %s, available %s",
		e.AccountID, FormatAmount(e.Required), FormatAmount(e.Available))
}

func (e *InsufficientFundsError) Unwrap() error   { return ErrInsufficientFunds }
func (e *InsufficientFundsError) Kind() ErrorKind { return KindInsufficientFunds }

// ConcurrencyError reports a failed conditional write: the account moved past
// ExpectedVersion between read and write. The whole transfer must be retried
// with fresh reads.
type ConcurrencyError struct {
	AccountID       uuid.UUID
	ExpectedVersion int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("account %s was modified by another transaction (expected version %d), retry the transfer",
		e.AccountID, e.ExpectedVersion)
}

func (e *ConcurrencyError) Unwrap() error   { return ErrConcurrency }
func (e *ConcurrencyError) Kind() ErrorKind { return KindConcurrency }

type kinded interface {
	Kind() ErrorKind
}

// KindOf returns the kind of the first typed error in err's chain, then
// falls back to the sentinels, and finally to KindInternal.
func KindOf(err error) ErrorKind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

var sentinelKinds = map[error]ErrorKind{
	ErrValidation:        KindValidation,
	ErrNotFound:          KindNotFound,
	ErrInsufficientFunds: KindInsufficientFunds,
	ErrConcurrency:       KindConcurrency,
}

// IsRetryable reports whether the caller may restart the transfer.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrency)
}
