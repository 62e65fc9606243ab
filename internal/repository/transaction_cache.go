package repository

import (
	"context"
	"time"

	"github.com/eaglebank/transaction-service/shared/models"
	sharedredis "github.com/eaglebank/transaction-service/shared/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const transactionViewKeyPrefix = "transaction:view:"

// TransactionCache is the read-through cache in front of the store. It is
// advisory: entries expire after the configured TTL, and backend failures are
// absorbed by the underlying ViewCache.
type TransactionCache struct {
	cache *sharedredis.ViewCache[models.Transaction]
}

func NewTransactionCache(client goredis.Cmdable, ttl, timeout time.Duration, log zerolog.Logger) *TransactionCache {
	return &TransactionCache{
		cache: sharedredis.NewViewCache[models.Transaction](client, ttl, timeout, log.With().Str("component", "transaction_cache").Logger()),
	}
}

func (c *TransactionCache) Get(ctx context.Context, id string) (*models.Transaction, bool) {
	return c.cache.Get(ctx, transactionViewKeyPrefix+id)
}

func (c *TransactionCache) Set(ctx context.Context, t *models.Transaction) {
	c.cache.Set(ctx, transactionViewKeyPrefix+t.ID, t)
}

func (c *TransactionCache) Invalidate(ctx context.Context, id string) {
	c.cache.Delete(ctx, transactionViewKeyPrefix+id)
}
