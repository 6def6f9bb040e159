package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLedger is a mutex-guarded in-memory ledger used in tests and when the
// server runs without a database.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[uuid.UUID]int64)}
}

// SetBalance seeds a user balance. Intended for tests and DB-less mode.
func (l *MemoryLedger) SetBalance(userID uuid.UUID, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

// Balance returns the current balance for a user.
func (l *MemoryLedger) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

// Reserve atomically decrements the balance, rejecting a decrement that would
// drive it negative.
func (l *MemoryLedger) Reserve(_ context.Context, userID uuid.UUID, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if balance < amount {
		return balance, &InsufficientCreditsError{Required: amount, Available: balance}
	}
	balance -= amount
	l.balances[userID] = balance
	return balance, nil
}

// Refund returns held credits to the balance.
func (l *MemoryLedger) Refund(_ context.Context, userID uuid.UUID, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	balance += amount
	l.balances[userID] = balance
	return balance, nil
}
