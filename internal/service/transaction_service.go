// Package service composes the command and query services into the dispatch
// bus. It is the only place handler registrations happen.
package service

import (
	"github.com/eaglebank/transaction-service/internal/command"
	"github.com/eaglebank/transaction-service/internal/dispatch"
	"github.com/eaglebank/transaction-service/internal/query"
	"github.com/eaglebank/transaction-service/shared/cqrs"
)

func NewTransactionBus(commands *command.TransactionCommandService, queries *query.TransactionQueryService) (*dispatch.Bus, error) {
	return dispatch.NewBus(
		dispatch.Register(cqrs.CreateTransactionKind, dispatch.Typed(commands.CreateTransaction)),
		dispatch.Register(cqrs.UpdateTransactionKind, dispatch.Typed(commands.UpdateTransaction)),
		dispatch.Register(cqrs.GetTransactionKind, dispatch.Typed(queries.GetTransaction)),
	)
}
