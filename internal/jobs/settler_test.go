package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vocalize/internal/ledger"
	"vocalize/internal/model"
	"vocalize/internal/prediction"
	"vocalize/internal/pricing"
	"vocalize/internal/store"
)

func settlerFixture(t *testing.T, balance int64) (*Settler, *ledger.MemoryLedger, uuid.UUID) {
	t.Helper()
	l := ledger.NewMemoryLedger()
	userID := uuid.New()
	l.SetBalance(userID, balance)
	return NewSettler(l, store.NewMemoryStore()), l, userID
}

func succeededJob(id string, seconds float64) *prediction.Result {
	return &prediction.Result{
		ID:              id,
		Status:          prediction.StatusSucceeded,
		OutputRef:       "https://cdn/out.mp3",
		DurationSeconds: seconds,
	}
}

func TestSettleWritesCompletedRecord(t *testing.T) {
	t.Parallel()

	s, l, userID := settlerFixture(t, 100)
	ctx := context.Background()

	req := &model.GenerationRequest{Kind: model.KindTTS, Text: "hello", Model: model.ModelTTSTurbo}
	quote := pricing.Quote{RequiredCredits: 60, Model: model.ModelTTSTurbo, BasisUnits: 100}

	_, err := l.Reserve(ctx, userID, quote.RequiredCredits)
	require.NoError(t, err)

	rec, remaining, err := s.Settle(ctx, userID, req, quote, quote.RequiredCredits, succeededJob("job-1", 0))
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, rec.Status)
	require.Equal(t, int64(60), rec.CreditsCharged)
	require.Equal(t, "https://cdn/out.mp3", rec.OutputRef)
	require.Equal(t, int64(40), remaining)
}

func TestSettleIsIdempotentPerJob(t *testing.T) {
	t.Parallel()

	s, l, userID := settlerFixture(t, 200)
	ctx := context.Background()

	req := &model.GenerationRequest{Kind: model.KindTTS, Text: "hello", Model: model.ModelTTSHD}
	quote := pricing.Quote{RequiredCredits: 50, Model: model.ModelTTSHD, BasisUnits: 50}

	_, err := l.Reserve(ctx, userID, quote.RequiredCredits)
	require.NoError(t, err)

	first, _, err := s.Settle(ctx, userID, req, quote, quote.RequiredCredits, succeededJob("job-dup", 0))
	require.NoError(t, err)

	// A duplicate settle of the same job never double-debits.
	second, remaining, err := s.Settle(ctx, userID, req, quote, quote.RequiredCredits, succeededJob("job-dup", 0))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(150), remaining)
}

func TestSettleRefundsWhenActualIsLower(t *testing.T) {
	t.Parallel()

	s, l, userID := settlerFixture(t, 100)
	ctx := context.Background()

	// Pre-flight estimate 5 minutes, actual 2 minutes.
	req := &model.GenerationRequest{Kind: model.KindTranscribe, Model: model.ModelTranscribe}
	quote := pricing.Quote{RequiredCredits: 50, Model: model.ModelTranscribe, BasisUnits: 5}

	_, err := l.Reserve(ctx, userID, quote.RequiredCredits)
	require.NoError(t, err)

	rec, remaining, err := s.Settle(ctx, userID, req, quote, quote.RequiredCredits, succeededJob("job-2", 110))
	require.NoError(t, err)
	require.Equal(t, int64(20), rec.CreditsCharged)
	require.Equal(t, int64(80), remaining)
}

func TestSettleChargesDeltaWhenActualIsHigher(t *testing.T) {
	t.Parallel()

	s, l, userID := settlerFixture(t, 100)
	ctx := context.Background()

	// Pre-flight estimate 2 minutes, actual 6 minutes.
	req := &model.GenerationRequest{Kind: model.KindTranscribe, Model: model.ModelTranscribe}
	quote := pricing.Quote{RequiredCredits: 20, Model: model.ModelTranscribe, BasisUnits: 2}

	_, err := l.Reserve(ctx, userID, quote.RequiredCredits)
	require.NoError(t, err)

	rec, remaining, err := s.Settle(ctx, userID, req, quote, quote.RequiredCredits, succeededJob("job-3", 360))
	require.NoError(t, err)
	require.Equal(t, int64(60), rec.CreditsCharged)
	require.Equal(t, int64(40), remaining)
}

func TestSettleChargesHoldWhenBalanceCannotCoverOverrun(t *testing.T) {
	t.Parallel()

	s, l, userID := settlerFixture(t, 20)
	ctx := context.Background()

	req := &model.GenerationRequest{Kind: model.KindTranscribe, Model: model.ModelTranscribe}
	quote := pricing.Quote{RequiredCredits: 20, Model: model.ModelTranscribe, BasisUnits: 2}

	_, err := l.Reserve(ctx, userID, quote.RequiredCredits)
	require.NoError(t, err)

	// Actual cost 60 but the account is empty after the hold: the job still
	// settles at the held amount.
	rec, remaining, err := s.Settle(ctx, userID, req, quote, quote.RequiredCredits, succeededJob("job-4", 360))
	require.NoError(t, err)
	require.Equal(t, int64(20), rec.CreditsCharged)
	require.Equal(t, int64(0), remaining)
}

func TestSettleRejectsNonSucceededJob(t *testing.T) {
	t.Parallel()

	s, _, userID := settlerFixture(t, 100)
	req := &model.GenerationRequest{Kind: model.KindTTS, Text: "x", Model: model.ModelTTSHD}
	quote := pricing.Quote{RequiredCredits: 1, Model: model.ModelTTSHD, BasisUnits: 1}

	_, _, err := s.Settle(context.Background(), userID, req, quote, 1,
		&prediction.Result{ID: "j", Status: prediction.StatusFailed})
	require.Error(t, err)
}

func TestAbortRestoresBalance(t *testing.T) {
	t.Parallel()

	s, l, userID := settlerFixture(t, 100)
	ctx := context.Background()

	_, err := l.Reserve(ctx, userID, 60)
	require.NoError(t, err)

	s.Abort(ctx, userID, 60)

	balance, err := l.Balance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}
