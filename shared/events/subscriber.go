package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Handler func(ctx context.Context, event Event) error

// Subscriber reads a Redis stream through a consumer group and acknowledges
// each message once the handler has processed it.
type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	dedup         *Deduper
	batchSize     int64
	blockDuration time.Duration
	log           zerolog.Logger
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	Deduper       *Deduper
	BatchSize     int64
	BlockDuration time.Duration
}

func NewSubscriber(client *redis.Client, config SubscriberConfig, log zerolog.Logger) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		dedup:         config.Deduper,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		log:           log.With().Str("stream", config.Stream).Str("group", config.Group).Logger(),
	}
}

func (s *Subscriber) Start(ctx context.Context) error {
	// Create consumer group if it doesn't exist
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.log.Info().Str("consumer", s.consumer).Msg("subscriber started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("subscriber stopping")
			return ctx.Err()
		default:
			if err := s.readMessages(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("error reading messages")
				time.Sleep(time.Second)
			}
		}
	}
}

func (s *Subscriber) readMessages(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil // No messages
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			s.processMessage(ctx, message)
		}
	}
	return nil
}

// processMessage handles one stream entry. Failed messages are left pending so
// they are redelivered; undecodable ones are acknowledged and dropped.
func (s *Subscriber) processMessage(ctx context.Context, message redis.XMessage) {
	event, err := decodeMessage(message)
	if err != nil {
		s.log.Error().Err(err).Str("message_id", message.ID).Msg("undecodable event skipped")
	} else if err := handleOnce(ctx, s.dedup, s.handler, event); err != nil {
		s.log.Error().Err(err).Str("message_id", message.ID).Msg("failed to process message")
		return
	}

	if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
		s.log.Error().Err(err).Str("message_id", message.ID).Msg("failed to ACK message")
	}
}

func decodeMessage(message redis.XMessage) (Event, error) {
	eventData, ok := message.Values["event"].(string)
	if !ok {
		return Event{}, fmt.Errorf("invalid message format")
	}

	var event Event
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}

// handleOnce runs handler unless dedup has already seen the event, and records
// the event as processed after the handler succeeds.
func handleOnce(ctx context.Context, dedup *Deduper, handler Handler, event Event) error {
	if dedup != nil && dedup.Seen(ctx, event) {
		return nil
	}
	if err := handler(ctx, event); err != nil {
		return err
	}
	if dedup != nil {
		dedup.Mark(ctx, event)
	}
	return nil
}

const processedEventKeyPrefix = "processed:event:"

// Deduper remembers processed events in Redis so redeliveries under
// at-least-once semantics are skipped.
type Deduper struct {
	client redis.Cmdable
	ttl    time.Duration
	log    zerolog.Logger
}

// NewDeduper creates a Deduper whose marks expire after ttl. The window should
// cover any realistic redelivery delay.
func NewDeduper(client redis.Cmdable, ttl time.Duration, log zerolog.Logger) *Deduper {
	return &Deduper{client: client, ttl: ttl, log: log}
}

// Seen reports whether event was already processed. Lookup failures count as
// unseen: processing twice is tolerated, skipping is not.
func (d *Deduper) Seen(ctx context.Context, event Event) bool {
	n, err := d.client.Exists(ctx, processedEventKeyPrefix+event.DedupKey()).Result()
	if err != nil {
		d.log.Warn().Err(err).Str("transaction_id", event.TransactionID).Msg("dedup lookup failed")
		return false
	}
	return n > 0
}

func (d *Deduper) Mark(ctx context.Context, event Event) {
	if err := d.client.Set(ctx, processedEventKeyPrefix+event.DedupKey(), "1", d.ttl).Err(); err != nil {
		d.log.Warn().Err(err).Str("transaction_id", event.TransactionID).Msg("failed to mark event processed")
	}
}
