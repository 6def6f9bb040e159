package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vocalize/internal/ledger"
)

func TestReserveAndRefund(t *testing.T) {
	t.Parallel()

	l := ledger.NewMemoryLedger()
	userID := uuid.New()
	l.SetBalance(userID, 100)

	balance, err := l.Reserve(context.Background(), userID, 60)
	require.NoError(t, err)
	require.Equal(t, int64(40), balance)

	balance, err = l.Refund(context.Background(), userID, 10)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
}

func TestReserveRejectsOverdraw(t *testing.T) {
	t.Parallel()

	l := ledger.NewMemoryLedger()
	userID := uuid.New()
	l.SetBalance(userID, 50)

	_, err := l.Reserve(context.Background(), userID, 100)
	var insufficient *ledger.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(100), insufficient.Required)
	require.Equal(t, int64(50), insufficient.Available)

	// The rejected reserve leaves the balance untouched.
	balance, err := l.Balance(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
}

func TestUnknownAccount(t *testing.T) {
	t.Parallel()

	l := ledger.NewMemoryLedger()
	_, err := l.Balance(context.Background(), uuid.New())
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

// TestConcurrentReserves checks the ledger invariant: the final balance equals
// the initial balance minus the sum of successful debits, and no debit
// succeeds that would drive the balance negative.
func TestConcurrentReserves(t *testing.T) {
	t.Parallel()

	const (
		initial = 100
		workers = 50
		amount  = 7
	)

	l := ledger.NewMemoryLedger()
	userID := uuid.New()
	l.SetBalance(userID, initial)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(context.Background(), userID, amount); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	balance, err := l.Balance(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(initial-succeeded*amount), balance)
	require.GreaterOrEqual(t, balance, int64(0))
	require.Equal(t, initial/amount, succeeded)
}
