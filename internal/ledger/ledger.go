// Package ledger manages per-user credit balances. Admission and debit are a
// single atomic reserve: Reserve conditionally decrements the balance and
// rejects when funds are insufficient, so two concurrent requests can never
// jointly overdraw an account. Settlement adjusts the hold to actual cost by
// refunding or reserving the delta.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAccountNotFound indicates the user has no credit account.
var ErrAccountNotFound = errors.New("credit account not found")

// InsufficientCreditsError reports a rejected reserve with the exact shortfall.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: %d required, %d available", e.Required, e.Available)
}

// Ledger is the credit store consumed by the pipeline. Reserve must be
// implemented as a single conditional decrement at the store layer, never a
// read-then-write in application code.
type Ledger interface {
	// Balance returns the current credit balance for a user.
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)

	// Reserve atomically decrements the balance by amount and returns the new
	// balance. Returns *InsufficientCreditsError when the balance would go
	// negative; the balance is left untouched in that case.
	Reserve(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)

	// Refund returns previously reserved credits to the balance.
	Refund(ctx context.Context, userID uuid.UUID, amount int64) (int64, error)
}
