package query

import (
	"context"
	"testing"
	"time"

	"github.com/eaglebank/transaction-service/shared/apperrors"
	"github.com/eaglebank/transaction-service/shared/cqrs"
	"github.com/eaglebank/transaction-service/shared/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFinder struct {
	calls        int
	FindByIDFunc func(ctx context.Context, id string) (*models.Transaction, error)
}

func (m *mockFinder) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	m.calls++
	return m.FindByIDFunc(ctx, id)
}

type mapCache struct {
	entries map[string]*models.Transaction
	sets    int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]*models.Transaction{}} }

func (c *mapCache) Get(ctx context.Context, id string) (*models.Transaction, bool) {
	t, ok := c.entries[id]
	return t, ok
}

func (c *mapCache) Set(ctx context.Context, t *models.Transaction) {
	c.sets++
	c.entries[t.ID] = t
}

func sampleTransaction() *models.Transaction {
	now := time.Now().UTC()
	return &models.Transaction{
		ID:        "txn-1",
		Amount:    decimal.RequireFromString("100.00"),
		Status:    models.StatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestGetTransaction(t *testing.T) {
	tests := []struct {
		name      string
		cached    bool
		findErr   error
		wantErr   error
		wantFinds int
		wantSets  int
	}{
		{name: "cache hit skips store", cached: true, wantFinds: 0, wantSets: 0},
		{name: "miss reads store and repopulates", wantFinds: 1, wantSets: 1},
		{name: "not found is not cached", findErr: apperrors.ErrNotFound, wantErr: apperrors.ErrNotFound, wantFinds: 1},
		{
			name:      "store unavailable surfaces",
			findErr:   &apperrors.StoreUnavailableError{Op: "find transaction", Err: context.DeadlineExceeded},
			wantErr:   apperrors.ErrStoreUnavailable,
			wantFinds: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newMapCache()
			if tt.cached {
				cache.entries["txn-1"] = sampleTransaction()
			}
			finder := &mockFinder{FindByIDFunc: func(ctx context.Context, id string) (*models.Transaction, error) {
				_, ok := ctx.Deadline()
				assert.True(t, ok)
				if tt.findErr != nil {
					return nil, tt.findErr
				}
				return sampleTransaction(), nil
			}}
			svc := NewTransactionQueryService(finder, cache, time.Second, zerolog.Nop())

			got, err := svc.GetTransaction(context.Background(), cqrs.GetTransactionQuery{TransactionID: "txn-1"})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, cache.entries)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "txn-1", got.ID)
			}
			assert.Equal(t, tt.wantFinds, finder.calls)
			assert.Equal(t, tt.wantSets, cache.sets)
		})
	}
}

func TestGetTransaction_RequiresID(t *testing.T) {
	finder := &mockFinder{}
	svc := NewTransactionQueryService(finder, newMapCache(), time.Second, zerolog.Nop())

	_, err := svc.GetTransaction(context.Background(), cqrs.GetTransactionQuery{})

	var verr *apperrors.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Zero(t, finder.calls)
}
