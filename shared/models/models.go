package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of minor-unit digits an amount may carry.
const AmountScale = 2

// AmountIntegerDigits bounds the whole part of an amount. With AmountScale it
// matches the NUMERIC(18,2) column.
const AmountIntegerDigits = 16

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusReversed  Status = "reversed"
)

// Valid reports whether s is one of the known transaction statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusReversed:
		return true
	}
	return false
}

// Transaction is the write model. The Postgres row is the only authoritative copy;
// cache entries and event snapshots are derived from it.
type Transaction struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"createdTimestamp"`
	UpdatedAt time.Time       `json:"updatedTimestamp"`
}

// TransactionPatch carries the fields an update may change. Nil fields are left as stored.
// ExpectedVersion, when set, makes the update conditional on the stored version.
type TransactionPatch struct {
	Amount          *decimal.Decimal `validate:"omitempty,gt=0"`
	Status          *Status          `validate:"omitempty,oneof=pending completed failed reversed"`
	ExpectedVersion *int64           `validate:"omitempty,gte=1"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Amount == nil && p.Status == nil
}
