package cqrs

import (
	"github.com/eaglebank/transaction-service/shared/models"
	"github.com/shopspring/decimal"
)

// Kind tags a command or query so the dispatch layer can route it.
type Kind string

const (
	CreateTransactionKind Kind = "CreateTransaction"
	UpdateTransactionKind Kind = "UpdateTransaction"
	GetTransactionKind    Kind = "GetTransaction"
)

// Request is implemented by every command and query.
type Request interface {
	Kind() Kind
}

// CreateTransactionCommand creates a transaction. An empty Status means pending.
type CreateTransactionCommand struct {
	Amount *decimal.Decimal `validate:"required,gt=0"`
	Status models.Status    `validate:"omitempty,oneof=pending completed failed reversed"`
}

func (CreateTransactionCommand) Kind() Kind { return CreateTransactionKind }

// UpdateTransactionCommand applies Patch to an existing transaction.
type UpdateTransactionCommand struct {
	TransactionID string `validate:"required"`
	Patch         models.TransactionPatch
}

func (UpdateTransactionCommand) Kind() Kind { return UpdateTransactionKind }

