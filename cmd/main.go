package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/eaglebank/transaction-service/internal/command"
	"github.com/eaglebank/transaction-service/internal/config"
	"github.com/eaglebank/transaction-service/internal/handler"
	"github.com/eaglebank/transaction-service/internal/query"
	"github.com/eaglebank/transaction-service/internal/repository"
	"github.com/eaglebank/transaction-service/internal/service"
	"github.com/eaglebank/transaction-service/shared/events"
	"github.com/eaglebank/transaction-service/shared/logger"
	"github.com/eaglebank/transaction-service/shared/middleware"
	"github.com/eaglebank/transaction-service/shared/postgres"
	redisClient "github.com/eaglebank/transaction-service/shared/redis"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info")
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.New(cfg.LogLevel).With().Str("service", "transaction-service").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database connection
	db, err := postgres.Open(ctx, postgres.Options{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.DBAutoSchema {
		if err := repository.EnsureSchema(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	// Redis connection
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

	// Event log, publisher and dead-letter path
	eventLog := newEventLog(cfg, redis)
	defer eventLog.Close()

	deadLetters := repository.NewDeadLetterRepository(db)
	publisher := events.NewPublisher(eventLog, deadLetters, events.RetryPolicy{
		MaxAttempts:     cfg.PublishMaxAttempts,
		InitialInterval: cfg.PublishInitialBackoff,
		MaxInterval:     cfg.PublishMaxBackoff,
		AttemptTimeout:  cfg.PublishAttemptTimeout,
	}, log.With().Str("component", "publisher").Logger())
	emitter := events.NewEmitter(publisher, cfg.EmitterShards, cfg.EmitterBuffer, log.With().Str("component", "emitter").Logger())

	var background sync.WaitGroup
	redriver := events.NewRedriver(eventLog, deadLetters, cfg.RedriveBatch, log.With().Str("component", "redriver").Logger())
	background.Add(1)
	go func() {
		defer background.Done()
		redriver.Run(ctx, cfg.RedriveInterval)
	}()

	// CQRS: write store and read-through cache
	store := repository.NewTransactionWriteRepository(db)
	cache := repository.NewTransactionCache(redis.Client, cfg.CacheTTL, cfg.CacheTimeout, log)

	// Command + Query services behind the dispatch bus
	commandSvc := command.NewTransactionCommandService(store, cache, emitter, cfg.StoreTimeout, log)
	querySvc := query.NewTransactionQueryService(store, cache, cfg.StoreTimeout, log)
	bus, err := service.NewTransactionBus(commandSvc, querySvc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register handlers")
	}
	log.Info().Interface("kinds", bus.Kinds()).Msg("Request handlers registered")

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Transaction routes
	handler.NewTransactionHandler(bus, log).RegisterRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Str("event_backend", cfg.EventBackend).Msg("Transaction service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	// Requests are drained; flush queued events before closing the log.
	emitter.Close()
	background.Wait()
	log.Info().Msg("Transaction service stopped")
}

func newEventLog(cfg config.Config, redis *redisClient.Client) events.Log {
	if cfg.EventBackend == config.EventBackendKafka {
		return events.NewKafkaLog(cfg.KafkaBrokers, cfg.EventTopic)
	}
	return events.NewRedisStreamLog(redis.Client, cfg.EventTopic, cfg.EventStreamMaxLen)
}
