package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisStreamLog_Append(t *testing.T) {
	client, _ := newTestRedis(t)
	log := NewRedisStreamLog(client, TransactionEventsStream, 0)
	ctx := context.Background()
	event := testEvent("txn-1")

	require.NoError(t, log.Append(ctx, event))
	require.NoError(t, log.Append(ctx, testEvent("txn-2")))

	msgs, err := client.XRange(ctx, TransactionEventsStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "txn-1", msgs[0].Values["transactionId"])
	assert.Equal(t, TransactionCreated, msgs[0].Values["type"])

	decoded, err := decodeMessage(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.DedupKey(), decoded.DedupKey())
	assert.Equal(t, event.Snapshot.Amount, decoded.Snapshot.Amount)
}

func TestRedisStreamLog_AppendFailsWhenRedisDown(t *testing.T) {
	client, mr := newTestRedis(t)
	log := NewRedisStreamLog(client, TransactionEventsStream, 0)
	mr.Close()

	err := log.Append(context.Background(), testEvent("txn-1"))
	assert.Error(t, err)
	var perm *permanentError
	assert.False(t, errors.As(err, &perm), "connection errors must be retryable")
}

func TestDecodeMessage_InvalidFormat(t *testing.T) {
	_, err := decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]any{"other": "x"}})
	assert.Error(t, err)

	_, err = decodeMessage(redis.XMessage{ID: "1-0", Values: map[string]any{"event": "{"}})
	assert.Error(t, err)
}

func TestSubscriber_ProcessMessageDeduplicates(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, NewRedisStreamLog(client, TransactionEventsStream, 0).Append(ctx, testEvent("txn-1")))
	msgs, err := client.XRange(ctx, TransactionEventsStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var handled []Event
	failNext := true
	sub := NewSubscriber(client, SubscriberConfig{
		Group:    "test-group",
		Consumer: "c1",
		Stream:   TransactionEventsStream,
		Deduper:  NewDeduper(client, time.Hour, zerolog.Nop()),
		Handler: func(ctx context.Context, e Event) error {
			if failNext {
				failNext = false
				return errors.New("transient")
			}
			handled = append(handled, e)
			return nil
		},
	}, zerolog.Nop())

	sub.processMessage(ctx, msgs[0]) // handler fails, not marked
	sub.processMessage(ctx, msgs[0]) // handled
	sub.processMessage(ctx, msgs[0]) // duplicate, skipped

	require.Len(t, handled, 1)
	assert.Equal(t, "txn-1", handled[0].TransactionID)
}

func TestDeduper(t *testing.T) {
	client, mr := newTestRedis(t)
	d := NewDeduper(client, time.Minute, zerolog.Nop())
	ctx := context.Background()
	event := testEvent("txn-1")

	assert.False(t, d.Seen(ctx, event))
	d.Mark(ctx, event)
	assert.True(t, d.Seen(ctx, event))

	later := event
	later.Timestamp = event.Timestamp.Add(time.Millisecond)
	assert.False(t, d.Seen(ctx, later), "a later event for the same transaction is not a duplicate")

	mr.FastForward(2 * time.Minute)
	assert.False(t, d.Seen(ctx, event), "marks expire")
}

func TestKafkaMessage(t *testing.T) {
	event := testEvent("txn-1")

	msg, err := kafkaMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("txn-1"), msg.Key)
	assert.Equal(t, event.Timestamp, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, []byte(TransactionCreated), msg.Headers[0].Value)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
}
