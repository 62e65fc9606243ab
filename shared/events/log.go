package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Log is an append-only event log that preserves order per TransactionID.
type Log interface {
	Append(ctx context.Context, event Event) error
	Close() error
}

// RedisStreamLog appends events to a Redis stream. A stream is totally ordered,
// which subsumes per-transaction ordering.
type RedisStreamLog struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamLog creates a log on stream. maxLen > 0 caps the stream length
// approximately; 0 leaves it unbounded.
func NewRedisStreamLog(client *redis.Client, stream string, maxLen int64) *RedisStreamLog {
	return &RedisStreamLog{client: client, stream: stream, maxLen: maxLen}
}

func (l *RedisStreamLog) Append(ctx context.Context, event Event) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return &permanentError{fmt.Errorf("failed to marshal event: %w", err)}
	}

	args := &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]any{
			"event":         eventJSON,
			"type":          event.Type,
			"transactionId": event.TransactionID,
		},
	}
	if l.maxLen > 0 {
		args.MaxLen = l.maxLen
		args.Approx = true
	}

	if _, err := l.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close is a no-op: the Redis client is shared and closed by its owner.
func (l *RedisStreamLog) Close() error { return nil }

// permanentError marks an append failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
