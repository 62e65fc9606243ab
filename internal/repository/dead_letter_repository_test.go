package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/eaglebank/transaction-service/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewDeadLetterRepository(db)
	ctx := context.Background()

	event := events.NewTransactionEvent(events.TransactionCreated, testTransaction())
	letter := events.DeadLetter{
		ID:        "5f0c7a0e-2d1b-4f44-9b7a-3f0c0b1f9c11",
		Event:     event,
		Attempts:  5,
		LastError: "broker unavailable",
		FailedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transaction_event_dead_letters")).
		WithArgs(letter.ID, event.ID, event.Type, event.TransactionID, payload, 5, "broker unavailable", "pending", letter.FailedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM transaction_event_dead_letters")).
		WithArgs("pending", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload", "attempts", "last_error", "failed_at"}).
			AddRow(letter.ID, payload, 5, "broker unavailable", letter.FailedAt))
	mock.ExpectExec(regexp.QuoteMeta("SET status = $2")).
		WithArgs(letter.ID, "redriven").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1")).
		WithArgs(letter.ID, "still down").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Record(ctx, letter))

	pending, err := repo.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, letter.ID, pending[0].ID)
	assert.Equal(t, event.ID, pending[0].Event.ID)
	assert.Equal(t, event.DedupKey(), pending[0].Event.DedupKey())
	assert.Equal(t, 5, pending[0].Attempts)

	require.NoError(t, repo.MarkRedriven(ctx, letter.ID))
	require.NoError(t, repo.MarkFailed(ctx, letter.ID, errors.New("still down")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadLetterRepository_RecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transaction_event_dead_letters")).
		WillReturnError(errors.New("connection refused"))

	err = NewDeadLetterRepository(db).Record(context.Background(), events.DeadLetter{ID: "x"})
	assert.Error(t, err)
}
