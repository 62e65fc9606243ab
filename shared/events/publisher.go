package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeadLetter is an event that exhausted its publish attempts.
type DeadLetter struct {
	ID        string
	Event     Event
	Attempts  int
	LastError string
	FailedAt  time.Time
}

// DeadLetterSink durably records events that could not be published.
type DeadLetterSink interface {
	Record(ctx context.Context, letter DeadLetter) error
}

// PublishError reports that an event was not appended after every attempt.
// The event has been handed to the dead-letter path.
type PublishError struct {
	EventType     string
	TransactionID string
	Attempts      int
	Err           error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s for %s failed after %d attempts: %v", e.EventType, e.TransactionID, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

// DefaultRetryPolicy is used for any zero field of a configured policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     5,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	AttemptTimeout:  3 * time.Second,
}

// Publisher appends events to a Log with bounded exponential backoff and
// escalates exhausted events to a DeadLetterSink.
type Publisher struct {
	log         Log
	deadLetters DeadLetterSink
	policy      RetryPolicy
	logger      zerolog.Logger
}

func NewPublisher(log Log, deadLetters DeadLetterSink, policy RetryPolicy, logger zerolog.Logger) *Publisher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = DefaultRetryPolicy.AttemptTimeout
	}
	return &Publisher{log: log, deadLetters: deadLetters, policy: policy, logger: logger}
}

// Publish appends event, retrying transient failures. It returns nil once the
// log acknowledges the event, or a *PublishError after the event has been
// dead-lettered.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	attempts := 0
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.policy.AttemptTimeout)
		defer cancel()

		err := p.log.Append(attemptCtx, event)
		var perm *permanentError
		if errors.As(err, &perm) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		p.logger.Warn().Err(err).
			Str("event_type", event.Type).
			Str("transaction_id", event.TransactionID).
			Int("attempt", attempts).
			Dur("retry_in", next).
			Msg("event publish failed, retrying")
	}

	err := backoff.RetryNotify(op, p.backOff(ctx), notify)
	if err == nil {
		return nil
	}

	p.DeadLetter(ctx, event, attempts, err)
	return &PublishError{
		EventType:     event.Type,
		TransactionID: event.TransactionID,
		Attempts:      attempts,
		Err:           err,
	}
}

// DeadLetter records event on the dead-letter path. When the sink itself fails
// the whole event is logged so it can be recovered from the logs.
func (p *Publisher) DeadLetter(ctx context.Context, event Event, attempts int, cause error) {
	letter := DeadLetter{
		ID:        uuid.NewString(),
		Event:     event,
		Attempts:  attempts,
		LastError: cause.Error(),
		FailedAt:  time.Now().UTC(),
	}

	// The caller's context may already be done; recording must still happen.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.policy.AttemptTimeout)
	defer cancel()

	if err := p.deadLetters.Record(recordCtx, letter); err != nil {
		p.logger.Error().Err(err).
			Str("cause", letter.LastError).
			Interface("event", event).
			Msg("dead-letter write failed, event dropped")
		return
	}
	p.logger.Error().
		Str("dead_letter_id", letter.ID).
		Str("event_type", event.Type).
		Str("transaction_id", event.TransactionID).
		Int("attempts", attempts).
		Str("cause", letter.LastError).
		Msg("event dead-lettered")
}

func (p *Publisher) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.policy.InitialInterval
	exp.MaxInterval = p.policy.MaxInterval
	exp.MaxElapsedTime = 0 // bounded by attempts instead
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.policy.MaxAttempts-1)), ctx)
}
