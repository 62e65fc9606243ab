package command

import (
	"context"
	"time"

	"github.com/eaglebank/transaction-service/shared/apperrors"
	"github.com/eaglebank/transaction-service/shared/cqrs"
	"github.com/eaglebank/transaction-service/shared/events"
	"github.com/eaglebank/transaction-service/shared/logger"
	"github.com/eaglebank/transaction-service/shared/models"
	"github.com/eaglebank/transaction-service/shared/utils"
	"github.com/eaglebank/transaction-service/shared/validation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TransactionStore is the durable write side. It is the only authoritative copy.
type TransactionStore interface {
	Insert(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	Update(ctx context.Context, id string, patch models.TransactionPatch) (*models.Transaction, error)
}

// TransactionCache is best effort; its methods never fail the caller.
type TransactionCache interface {
	Set(ctx context.Context, t *models.Transaction)
	Invalidate(ctx context.Context, id string)
}

type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// TransactionCommandService runs the write pipeline: store, then cache, then
// event. Only a store or validation failure reaches the caller.
type TransactionCommandService struct {
	store        TransactionStore
	cache        TransactionCache
	emitter      EventEmitter
	storeTimeout time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

func NewTransactionCommandService(
	store TransactionStore,
	cache TransactionCache,
	emitter EventEmitter,
	storeTimeout time.Duration,
	log zerolog.Logger,
) *TransactionCommandService {
	return &TransactionCommandService{
		store:        store,
		cache:        cache,
		emitter:      emitter,
		storeTimeout: storeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		log:          log,
	}
}

func (s *TransactionCommandService) CreateTransaction(ctx context.Context, cmd cqrs.CreateTransactionCommand) (*models.Transaction, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}
	status := cmd.Status
	if status == "" {
		status = models.StatusPending
	}

	now := s.now()
	transaction := &models.Transaction{
		ID:        utils.GenerateID(utils.TransactionIDPrefix),
		Amount:    *cmd.Amount,
		Status:    status,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	storeCtx, cancel := s.withStoreTimeout(ctx)
	created, err := s.store.Insert(storeCtx, transaction)
	cancel()
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, created)
	s.emitter.Emit(ctx, events.NewTransactionEvent(events.TransactionCreated, created))

	logger.FromContext(ctx, s.log).Info().
		Str("transaction_id", created.ID).
		Str("status", string(created.Status)).
		Msg("transaction created")
	return created, nil
}

func (s *TransactionCommandService) UpdateTransaction(ctx context.Context, cmd cqrs.UpdateTransactionCommand) (*models.Transaction, error) {
	if err := validateUpdate(cmd); err != nil {
		return nil, err
	}

	storeCtx, cancel := s.withStoreTimeout(ctx)
	updated, err := s.store.Update(storeCtx, cmd.TransactionID, cmd.Patch)
	cancel()
	if err != nil {
		return nil, err
	}

	// Invalidate rather than Set: a concurrent read may already hold an older row.
	s.cache.Invalidate(ctx, updated.ID)
	s.emitter.Emit(ctx, events.NewTransactionEvent(events.TransactionUpdated, updated))

	logger.FromContext(ctx, s.log).Info().
		Str("transaction_id", updated.ID).
		Int64("version", updated.Version).
		Msg("transaction updated")
	return updated, nil
}

func (s *TransactionCommandService) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func validateCreate(cmd cqrs.CreateTransactionCommand) error {
	fields := validation.Struct(cmd)
	fields = appendAmountChecks(fields, cmd.Amount)
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}
	return nil
}

func validateUpdate(cmd cqrs.UpdateTransactionCommand) error {
	fields := validation.Struct(cmd)
	if cmd.Patch.IsEmpty() {
		fields = append(fields, apperrors.FieldError{
			Field:   "Patch",
			Message: "At least one of amount or status must be provided",
			Type:    "required",
		})
	}
	fields = appendAmountChecks(fields, cmd.Patch.Amount)
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}
	return nil
}

// appendAmountChecks adds the precision checks the validate tags cannot express.
func appendAmountChecks(fields []apperrors.FieldError, amount *decimal.Decimal) []apperrors.FieldError {
	if fe := validation.Scale("Amount", amount, models.AmountScale); fe != nil {
		fields = append(fields, *fe)
	}
	if fe := validation.Magnitude("Amount", amount, models.AmountIntegerDigits); fe != nil {
		fields = append(fields, *fe)
	}
	return fields
}
