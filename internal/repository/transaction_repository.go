package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/transaction-service/shared/apperrors"
	"github.com/eaglebank/transaction-service/shared/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, amount, status, version, created_at, updated_at`

// TransactionWriteRepository is the store adapter for transactions. It operates
// exclusively against PostgreSQL, the source of truth. Every method is a single
// statement on a single row and is durable when it returns.
type TransactionWriteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTransactionWriteRepository(db *sql.DB) *TransactionWriteRepository {
	return &TransactionWriteRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Insert stores a new transaction and returns the row as persisted.
func (r *TransactionWriteRepository) Insert(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (id, amount, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + transactionColumns
	row := r.db.QueryRowContext(ctx, query,
		t.ID, t.Amount, string(t.Status), t.Version, t.CreatedAt, t.UpdatedAt,
	)
	created, err := scanTransaction(row)
	if err != nil {
		return nil, storeError("insert transaction", err)
	}
	return created, nil
}

// Update applies patch to the row with the given id. It never inserts. When the
// patch carries ExpectedVersion the update only applies to that version.
func (r *TransactionWriteRepository) Update(ctx context.Context, id string, patch models.TransactionPatch) (*models.Transaction, error) {
	var amount decimal.NullDecimal
	if patch.Amount != nil {
		amount = decimal.NewNullDecimal(*patch.Amount)
	}
	var status sql.NullString
	if patch.Status != nil {
		status = sql.NullString{String: string(*patch.Status), Valid: true}
	}
	var expected sql.NullInt64
	if patch.ExpectedVersion != nil {
		expected = sql.NullInt64{Int64: *patch.ExpectedVersion, Valid: true}
	}

	// updated_at never moves backwards and never precedes created_at.
	query := `
		UPDATE transactions
		SET amount = COALESCE($2, amount),
		    status = COALESCE($3, status),
		    version = version + 1,
		    updated_at = GREATEST($4, updated_at, created_at)
		WHERE id = $1 AND ($5::bigint IS NULL OR version = $5)
		RETURNING ` + transactionColumns
	row := r.db.QueryRowContext(ctx, query, id, amount, status, r.now(), expected)
	updated, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) && patch.ExpectedVersion != nil {
		// Either the row is gone or its version moved on.
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, apperrors.ErrConflict
	}
	if err != nil {
		return nil, storeError("update transaction", err)
	}
	return updated, nil
}

// FindByID returns the authoritative row for id.
func (r *TransactionWriteRepository) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storeError("find transaction", err)
	}
	return t, nil
}

func scanTransaction(row *sql.Row) (*models.Transaction, error) {
	var t models.Transaction
	var status string
	if err := row.Scan(&t.ID, &t.Amount, &status, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = models.Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// Postgres error codes the adapter distinguishes.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	// Class 22 covers values the column types reject, such as numeric overflow.
	pgDataExceptionClass = "22"
)

// storeError maps driver errors onto the store error taxonomy. Anything that is
// not a recognised domain outcome means the store could not serve the request.
func storeError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, apperrors.ErrDuplicateKey)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%s: %w", op, apperrors.ErrConflict)
		}
		if pqErr.Code.Class() == pgDataExceptionClass {
			return &apperrors.ValidationError{Fields: []apperrors.FieldError{{
				Field:   pqErr.Column,
				Message: "Value rejected by the transaction store",
				Type:    "invalid",
			}}}
		}
	}
	return &apperrors.StoreUnavailableError{Op: op, Err: err}
}
