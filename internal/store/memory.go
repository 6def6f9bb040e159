package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"vocalize/internal/model"
)

// MemoryStore keeps result records in a mutex-guarded map. Used in tests and
// when the server runs without a database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.ResultRecord
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*model.ResultRecord)}
}

// Create persists a new result record.
func (s *MemoryStore) Create(_ context.Context, rec *model.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// UpdateProcessing overwrites an existing record if it is still processing.
func (s *MemoryStore) UpdateProcessing(_ context.Context, rec *model.ResultRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.ID]
	if !ok || cur.Status != model.StatusProcessing {
		return false, nil
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return true, nil
}

// GetByID retrieves a record by id.
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*model.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// GetByJobID retrieves a record by external job id.
func (s *MemoryStore) GetByJobID(_ context.Context, jobID string) (*model.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ExternalJobID == jobID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListByUser retrieves a user's records, newest first.
func (s *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]model.ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ResultRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
