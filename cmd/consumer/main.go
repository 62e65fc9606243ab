// Command consumer is a reference downstream consumer of transaction events. It
// reads the configured event backend through a consumer group, drops duplicate
// deliveries and logs each event.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglebank/transaction-service/internal/config"
	"github.com/eaglebank/transaction-service/shared/events"
	"github.com/eaglebank/transaction-service/shared/logger"
	"github.com/eaglebank/transaction-service/shared/models"
	redisClient "github.com/eaglebank/transaction-service/shared/redis"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info")
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel).With().Str("service", "transaction-consumer").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The deduper lives in Redis for both backends.
	redis, err := redisClient.NewClient(ctx, redisClient.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redis.Close()

	dedup := events.NewDeduper(redis.Client, 24*time.Hour, log)
	handle := logEvent(log)

	var start func(context.Context) error
	switch cfg.EventBackend {
	case config.EventBackendKafka:
		start = events.NewKafkaSubscriber(events.KafkaSubscriberConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.EventTopic,
			Handler: handle,
			Deduper: dedup,
		}, log).Start
	default:
		hostname, _ := os.Hostname()
		start = events.NewSubscriber(redis.Client, events.SubscriberConfig{
			Group:    cfg.KafkaGroupID,
			Consumer: hostname,
			Stream:   cfg.EventTopic,
			Handler:  handle,
			Deduper:  dedup,
		}, log).Start
	}

	log.Info().Str("event_backend", cfg.EventBackend).Msg("Transaction consumer starting")
	if err := start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Consumer stopped")
		return
	}
	log.Info().Msg("Transaction consumer stopped")
}

// logEvent logs each event's snapshot. Snapshots that do not decode into a
// transaction are logged and skipped so they are not redelivered forever.
func logEvent(log zerolog.Logger) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		tx, err := models.FromView(event.Snapshot)
		if err == nil && !tx.Status.Valid() {
			err = fmt.Errorf("unknown status %q", tx.Status)
		}
		if err != nil {
			log.Error().Err(err).
				Str("event_id", event.ID).
				Str("transaction_id", event.TransactionID).
				Msg("malformed transaction event skipped")
			return nil
		}

		log.Info().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Str("transaction_id", tx.ID).
			Str("amount", tx.Amount.StringFixed(models.AmountScale)).
			Str("status", string(tx.Status)).
			Int64("version", tx.Version).
			Time("updated_at", tx.UpdatedAt).
			Msg("transaction event received")
		return nil
	}
}
