package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eaglebank/transaction-service/shared/cqrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unknownRequest struct{}

func (unknownRequest) Kind() cqrs.Kind { return "Unknown" }

func getHandler() Handler {
	return Typed(func(ctx context.Context, q cqrs.GetTransactionQuery) (string, error) {
		return "got " + q.TransactionID, nil
	})
}

func TestNewBus_RejectsDuplicateKinds(t *testing.T) {
	_, err := NewBus(
		Register(cqrs.GetTransactionKind, getHandler()),
		Register(cqrs.GetTransactionKind, getHandler()),
	)

	var dup *DuplicateHandlerError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, cqrs.GetTransactionKind, dup.Kind)
}

func TestNewBus_RejectsNilHandler(t *testing.T) {
	_, err := NewBus(Register(cqrs.CreateTransactionKind, nil))

	var dup *DuplicateHandlerError
	assert.ErrorAs(t, err, &dup)
}

func TestDispatch(t *testing.T) {
	bus, err := NewBus(Register(cqrs.GetTransactionKind, getHandler()))
	require.NoError(t, err)

	tests := []struct {
		name       string
		req        cqrs.Request
		want       any
		unroutable bool
	}{
		{name: "routes registered kind", req: cqrs.GetTransactionQuery{TransactionID: "txn-1"}, want: "got txn-1"},
		{name: "unregistered kind", req: cqrs.UpdateTransactionCommand{TransactionID: "txn-1"}, unroutable: true},
		{name: "unknown request type", req: unknownRequest{}, unroutable: true},
		{name: "nil request", req: nil, unroutable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bus.Dispatch(context.Background(), tt.req)
			if tt.unroutable {
				var unroutable *UnroutableRequestError
				assert.ErrorAs(t, err, &unroutable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTyped_MismatchedRequest(t *testing.T) {
	// A handler registered under the wrong kind reports the mismatch instead of panicking.
	bus, err := NewBus(Register(cqrs.UpdateTransactionKind, getHandler()))
	require.NoError(t, err)

	_, err = bus.Dispatch(context.Background(), cqrs.UpdateTransactionCommand{})
	assert.Error(t, err)
}

func TestExecute(t *testing.T) {
	bus, err := NewBus(Register(cqrs.GetTransactionKind, getHandler()))
	require.NoError(t, err)

	got, err := Execute[string](context.Background(), bus, cqrs.GetTransactionQuery{TransactionID: "txn-1"})
	require.NoError(t, err)
	assert.Equal(t, "got txn-1", got)

	_, err = Execute[int](context.Background(), bus, cqrs.GetTransactionQuery{TransactionID: "txn-1"})
	assert.Error(t, err, "result type mismatch")

	handlerErr := errors.New("boom")
	failing, err := NewBus(Register(cqrs.GetTransactionKind, HandlerFunc(func(context.Context, cqrs.Request) (any, error) {
		return nil, handlerErr
	})))
	require.NoError(t, err)
	_, err = Execute[string](context.Background(), failing, cqrs.GetTransactionQuery{})
	assert.ErrorIs(t, err, handlerErr)
}

func TestBus_Kinds(t *testing.T) {
	bus, err := NewBus(
		Register(cqrs.UpdateTransactionKind, getHandler()),
		Register(cqrs.CreateTransactionKind, getHandler()),
		Register(cqrs.GetTransactionKind, getHandler()),
	)
	require.NoError(t, err)
	assert.Equal(t, []cqrs.Kind{cqrs.CreateTransactionKind, cqrs.GetTransactionKind, cqrs.UpdateTransactionKind}, bus.Kinds())
}

func TestDispatch_Concurrent(t *testing.T) {
	bus, err := NewBus(Register(cqrs.GetTransactionKind, getHandler()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Execute[string](context.Background(), bus, cqrs.GetTransactionQuery{TransactionID: "txn-1"})
			assert.NoError(t, err)
			assert.Equal(t, "got txn-1", got)
		}()
	}
	wg.Wait()
}
