package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"vocalize/internal/ledger"
	"vocalize/internal/model"
	"vocalize/internal/prediction"
	"vocalize/internal/pricing"
)

// Settler pairs the final credit charge with persistence of the result
// record. Settlement is keyed by external job id and performed at most once
// per job, so a duplicate settle never double-debits.
type Settler struct {
	Ledger ledger.Ledger
	Store  RecordStore

	mu      sync.Mutex
	settled map[string]uuid.UUID
}

// RecordStore is the subset of the record store the settler needs.
type RecordStore interface {
	Create(ctx context.Context, rec *model.ResultRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ResultRecord, error)
}

// NewSettler creates a settler over the given ledger and record store.
func NewSettler(l ledger.Ledger, s RecordStore) *Settler {
	return &Settler{
		Ledger:  l,
		Store:   s,
		settled: make(map[string]uuid.UUID),
	}
}

// Settle finalizes a succeeded job. The hold taken at admission is adjusted
// to the actual cost (recomputed from actual consumption), then a completed
// record is written. The ledger adjustment runs first: a charged-but-
// unrecorded job is recoverable from logs, an unpaid recorded job is revenue
// loss. Returns the record and the user's remaining balance.
func (s *Settler) Settle(ctx context.Context, userID uuid.UUID, req *model.GenerationRequest, quote pricing.Quote, hold int64, res *prediction.Result) (*model.ResultRecord, int64, error) {
	if res.Status != prediction.StatusSucceeded {
		return nil, 0, fmt.Errorf("cannot settle job in state %q", res.Status)
	}

	if res.ID != "" {
		s.mu.Lock()
		recID, done := s.settled[res.ID]
		s.mu.Unlock()
		if done {
			rec, err := s.Store.GetByID(ctx, recID)
			if err != nil {
				return nil, 0, err
			}
			balance, err := s.Ledger.Balance(ctx, userID)
			if err != nil {
				return nil, 0, err
			}
			log.Printf("[Settler] Job %s already settled, returning record %s", res.ID, recID)
			return rec, balance, nil
		}
	}

	actual := pricing.Actual(quote, res.DurationSeconds)
	charged, balance, err := s.finalizeHold(ctx, userID, hold, actual)
	if err != nil {
		return nil, 0, err
	}
	if actual != quote.RequiredCredits {
		log.Printf("[Settler] Actual cost %d differs from pre-flight quote %d (job %s)",
			actual, quote.RequiredCredits, res.ID)
	}

	now := time.Now().UTC()
	rec := &model.ResultRecord{
		ID:             uuid.New(),
		UserID:         userID,
		Kind:           req.Kind,
		InputSummary:   InputSummary(req),
		OutputRef:      res.OutputRef,
		ExternalJobID:  res.ID,
		CreditsCharged: charged,
		Status:         model.StatusCompleted,
		Progress:       100,
		CreatedAt:      now,
		CompletedAt:    &now,
	}
	if err := s.Store.Create(ctx, rec); err != nil {
		return nil, 0, fmt.Errorf("failed to persist result record: %w", err)
	}

	if res.ID != "" {
		s.mu.Lock()
		s.settled[res.ID] = rec.ID
		s.mu.Unlock()
	}
	return rec, balance, nil
}

// Abort releases the admission hold on any failure path. A request that fails
// before settlement must leave the ledger untouched.
func (s *Settler) Abort(ctx context.Context, userID uuid.UUID, hold int64) {
	if hold <= 0 {
		return
	}
	if _, err := s.Ledger.Refund(ctx, userID, hold); err != nil {
		log.Printf("[Settler] Failed to refund hold of %d for user %s: %v", hold, userID, err)
	}
}

// finalizeHold adjusts the admission hold to the actual cost and returns the
// amount charged plus the resulting balance.
func (s *Settler) finalizeHold(ctx context.Context, userID uuid.UUID, hold, actual int64) (int64, int64, error) {
	switch {
	case actual < hold:
		balance, err := s.Ledger.Refund(ctx, userID, hold-actual)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to refund cost delta: %w", err)
		}
		return actual, balance, nil
	case actual > hold:
		balance, err := s.Ledger.Reserve(ctx, userID, actual-hold)
		if err != nil {
			var insufficient *ledger.InsufficientCreditsError
			if errors.As(err, &insufficient) {
				// The balance cannot cover the overrun; charge the hold only
				// rather than failing a job the user already paid to run.
				log.Printf("[Settler] Balance cannot cover actual cost %d (held %d) for user %s, charging hold only",
					actual, hold, userID)
				balance, berr := s.Ledger.Balance(ctx, userID)
				if berr != nil {
					return 0, 0, berr
				}
				return hold, balance, nil
			}
			return 0, 0, fmt.Errorf("failed to charge cost delta: %w", err)
		}
		return actual, balance, nil
	default:
		balance, err := s.Ledger.Balance(ctx, userID)
		if err != nil {
			return 0, 0, err
		}
		return actual, balance, nil
	}
}

// InputSummary renders the short human-readable summary stored with a record.
func InputSummary(req *model.GenerationRequest) string {
	switch req.Kind {
	case model.KindTranscribe:
		return fmt.Sprintf("audio %s (%d bytes)", req.Filename, len(req.Audio))
	case model.KindVoiceClone:
		return fmt.Sprintf("voice %q from %s", req.Text, req.Filename)
	default:
		text := req.Text
		if len([]rune(text)) > 100 {
			text = string([]rune(text)[:100]) + "..."
		}
		return text
	}
}
