package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a balance-holding row. Version starts at 1 and increases by
// exactly one per committed mutation; Currency never changes after creation.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransferRecord is an immutable ledger row written once per successful transfer.
type TransferRecord struct {
	ID                uuid.UUID       `json:"id"`
	SenderAccountID   uuid.UUID       `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID       `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Strategy          string          `json:"strategy"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`

	// Replayed marks a record returned for a transfer id that was already in
	// the ledger; no funds moved on that call. It is never stored.
	Replayed bool `json:"-"`
}

// AuditEntry is one immutable audit_log row.
type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Action     string    `json:"action"`
	Metadata   []byte    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
