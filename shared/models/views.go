package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionView is the wire projection of a transaction, used for API responses
// and as the snapshot carried by domain events. Amount is a JSON number fixed to
// AmountScale digits.
type TransactionView struct {
	ID        string      `json:"id"`
	Amount    json.Number `json:"amount"`
	Status    Status      `json:"status"`
	Version   int64       `json:"version"`
	CreatedAt time.Time   `json:"createdTimestamp"`
	UpdatedAt time.Time   `json:"updatedTimestamp"`
}

// ToView converts the write model to its wire projection.
func ToView(t *Transaction) TransactionView {
	return TransactionView{
		ID:        t.ID,
		Amount:    json.Number(t.Amount.StringFixed(AmountScale)),
		Status:    t.Status,
		Version:   t.Version,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// FromView converts a wire projection back to the write model.
func FromView(v TransactionView) (*Transaction, error) {
	amount, err := decimal.NewFromString(v.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", v.Amount, err)
	}
	return &Transaction{
		ID:        v.ID,
		Amount:    amount,
		Status:    v.Status,
		Version:   v.Version,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}, nil
}
