package query

import (
	"context"
	"time"

	"github.com/eaglebank/transaction-service/shared/apperrors"
	"github.com/eaglebank/transaction-service/shared/cqrs"
	"github.com/eaglebank/transaction-service/shared/logger"
	"github.com/eaglebank/transaction-service/shared/models"
	"github.com/eaglebank/transaction-service/shared/validation"
	"github.com/rs/zerolog"
)

type TransactionFinder interface {
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
}

// TransactionCache is the read-through cache in front of the store.
type TransactionCache interface {
	Get(ctx context.Context, id string) (*models.Transaction, bool)
	Set(ctx context.Context, t *models.Transaction)
}

// TransactionQueryService serves point reads from the cache, falling back to the
// store on a miss and repopulating the cache from the store's answer.
type TransactionQueryService struct {
	store        TransactionFinder
	cache        TransactionCache
	storeTimeout time.Duration
	log          zerolog.Logger
}

func NewTransactionQueryService(store TransactionFinder, cache TransactionCache, storeTimeout time.Duration, log zerolog.Logger) *TransactionQueryService {
	return &TransactionQueryService{store: store, cache: cache, storeTimeout: storeTimeout, log: log}
}

func (s *TransactionQueryService) GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.Transaction, error) {
	if fields := validation.Struct(q); fields != nil {
		return nil, &apperrors.ValidationError{Fields: fields}
	}

	if cached, ok := s.cache.Get(ctx, q.TransactionID); ok {
		return cached, nil
	}

	transaction, err := s.find(ctx, q.TransactionID)
	if err != nil {
		// Not-found answers are never cached; the id may be created moments later.
		return nil, err
	}

	s.cache.Set(ctx, transaction)
	logger.FromContext(ctx, s.log).Debug().
		Str("transaction_id", transaction.ID).
		Msg("transaction cache repopulated")
	return transaction, nil
}

func (s *TransactionQueryService) find(ctx context.Context, id string) (*models.Transaction, error) {
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}
	return s.store.FindByID(ctx, id)
}
