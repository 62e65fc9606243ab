package cqrs

// GetTransactionQuery fetches a single transaction.
type GetTransactionQuery struct {
	TransactionID string `validate:"required"`
}

func (GetTransactionQuery) Kind() Kind { return GetTransactionKind }
