package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DeadLetterStore is the dead-letter path seen by the redriver.
type DeadLetterStore interface {
	DeadLetterSink
	Pending(ctx context.Context, limit int) ([]DeadLetter, error)
	MarkRedriven(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// Redriver republishes dead-lettered events. Each pass appends every pending
// letter once, in the order they failed; letters that fail again stay pending.
type Redriver struct {
	log    Log
	store  DeadLetterStore
	batch  int
	logger zerolog.Logger
}

func NewRedriver(log Log, store DeadLetterStore, batch int, logger zerolog.Logger) *Redriver {
	if batch <= 0 {
		batch = 100
	}
	return &Redriver{log: log, store: store, batch: batch, logger: logger}
}

// RedriveOnce runs a single pass and returns how many letters were republished.
func (r *Redriver) RedriveOnce(ctx context.Context) (int, error) {
	letters, err := r.store.Pending(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to load dead letters: %w", err)
	}

	redriven := 0
	for _, letter := range letters {
		if err := r.log.Append(ctx, letter.Event); err != nil {
			r.logger.Warn().Err(err).
				Str("dead_letter_id", letter.ID).
				Str("transaction_id", letter.Event.TransactionID).
				Msg("redrive failed")
			if err := r.store.MarkFailed(ctx, letter.ID, err); err != nil {
				return redriven, fmt.Errorf("failed to update dead letter %s: %w", letter.ID, err)
			}
			continue
		}
		if err := r.store.MarkRedriven(ctx, letter.ID); err != nil {
			// Already appended; a later pass will append it again and consumers dedupe.
			return redriven, fmt.Errorf("failed to resolve dead letter %s: %w", letter.ID, err)
		}
		redriven++
	}
	return redriven, nil
}

// Run redrives every interval until ctx is done.
func (r *Redriver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RedriveOnce(ctx)
			if err != nil {
				r.logger.Error().Err(err).Msg("redrive pass failed")
			}
			if n > 0 {
				r.logger.Info().Int("redriven", n).Msg("dead letters republished")
			}
		}
	}
}
