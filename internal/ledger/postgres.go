package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresLedger stores balances in the credit_accounts table. The reserve is
// a single conditional UPDATE so concurrent debits on one account serialize at
// the store layer.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a ledger backed by the given database.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Balance returns the current balance for a user.
func (l *PostgresLedger) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM credit_accounts WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// Reserve decrements the balance only if the account can cover the amount.
func (l *PostgresLedger) Reserve(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, `
		UPDATE credit_accounts
		SET balance = balance - $2
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`, userID, amount).Scan(&balance)

	if err == sql.ErrNoRows {
		// Either the account is missing or the balance cannot cover the
		// amount; distinguish with a plain read.
		available, readErr := l.Balance(ctx, userID)
		if readErr != nil {
			return 0, readErr
		}
		return available, &InsufficientCreditsError{Required: amount, Available: available}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reserve credits: %w", err)
	}
	return balance, nil
}

// Refund returns held credits to the balance.
func (l *PostgresLedger) Refund(ctx context.Context, userID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx, `
		UPDATE credit_accounts
		SET balance = balance + $2
		WHERE user_id = $1
		RETURNING balance
	`, userID, amount).Scan(&balance)

	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to refund credits: %w", err)
	}
	return balance, nil
}
