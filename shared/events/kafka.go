package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaLog appends events to a Kafka topic keyed by TransactionID. The hash
// balancer maps a key to a fixed partition, which gives per-transaction order.
type KafkaLog struct {
	writer *kafka.Writer
}

func NewKafkaLog(brokers []string, topic string) *KafkaLog {
	return &KafkaLog{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            1, // Publisher owns retries.
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (l *KafkaLog) Append(ctx context.Context, event Event) error {
	msg, err := kafkaMessage(event)
	if err != nil {
		return &permanentError{err}
	}
	if err := l.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (l *KafkaLog) Close() error {
	return l.writer.Close()
}

func kafkaMessage(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.TransactionID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}, nil
}

// KafkaSubscriber consumes a topic as part of a consumer group. Offsets are
// committed only after the handler succeeds or the event is a known duplicate.
type KafkaSubscriber struct {
	reader  *kafka.Reader
	handler Handler
	dedup   *Deduper
	log     zerolog.Logger
}

type KafkaSubscriberConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	Handler Handler
	Deduper *Deduper
}

func NewKafkaSubscriber(config KafkaSubscriberConfig, log zerolog.Logger) *KafkaSubscriber {
	return &KafkaSubscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  config.Brokers,
			GroupID:  config.GroupID,
			Topic:    config.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		handler: config.Handler,
		dedup:   config.Deduper,
		log:     log.With().Str("topic", config.Topic).Str("group", config.GroupID).Logger(),
	}
}

func (s *KafkaSubscriber) Start(ctx context.Context) error {
	s.log.Info().Msg("kafka subscriber started")
	defer s.reader.Close()

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.log.Info().Msg("kafka subscriber stopping")
				return ctx.Err()
			}
			s.log.Error().Err(err).Msg("failed to fetch message")
			time.Sleep(time.Second)
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Poison message: commit it so the partition keeps moving.
			s.log.Error().Err(err).Int64("offset", msg.Offset).Msg("undecodable event skipped")
		} else if err := handleOnce(ctx, s.dedup, s.handler, event); err != nil {
			s.log.Error().Err(err).Str("transaction_id", event.TransactionID).Msg("failed to process event")
			continue
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			s.log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
		}
	}
}
