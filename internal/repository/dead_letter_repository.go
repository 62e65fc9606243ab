package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/eaglebank/transaction-service/shared/events"
)

const (
	deadLetterPending  = "pending"
	deadLetterRedriven = "redriven"
)

// DeadLetterRepository persists events that exhausted their publish attempts in
// PostgreSQL, next to the rows they describe.
type DeadLetterRepository struct {
	db *sql.DB
}

func NewDeadLetterRepository(db *sql.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Record(ctx context.Context, letter events.DeadLetter) error {
	payload, err := json.Marshal(letter.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	query := `
		INSERT INTO transaction_event_dead_letters
			(id, event_id, event_type, transaction_id, payload, attempts, last_error, status, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		letter.ID, letter.Event.ID, letter.Event.Type, letter.Event.TransactionID,
		payload, letter.Attempts, letter.LastError, deadLetterPending, letter.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

// Pending returns up to limit unresolved letters, oldest first.
func (r *DeadLetterRepository) Pending(ctx context.Context, limit int) ([]events.DeadLetter, error) {
	query := `
		SELECT id, payload, attempts, last_error, failed_at
		FROM transaction_event_dead_letters
		WHERE status = $1
		ORDER BY failed_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, deadLetterPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []events.DeadLetter
	for rows.Next() {
		var letter events.DeadLetter
		var payload []byte
		if err := rows.Scan(&letter.ID, &payload, &letter.Attempts, &letter.LastError, &letter.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if err := json.Unmarshal(payload, &letter.Event); err != nil {
			return nil, fmt.Errorf("failed to decode dead letter %s: %w", letter.ID, err)
		}
		letters = append(letters, letter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return letters, nil
}

func (r *DeadLetterRepository) MarkRedriven(ctx context.Context, id string) error {
	query := `UPDATE transaction_event_dead_letters SET status = $2, redriven_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, deadLetterRedriven); err != nil {
		return fmt.Errorf("failed to mark dead letter redriven: %w", err)
	}
	return nil
}

func (r *DeadLetterRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	query := `UPDATE transaction_event_dead_letters SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, cause.Error()); err != nil {
		return fmt.Errorf("failed to update dead letter: %w", err)
	}
	return nil
}
