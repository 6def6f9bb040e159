// Package store persists generation result records: history entries for TTS
// and transcription, cloned-voice records for voice cloning.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"vocalize/internal/model"
)

// ErrNotFound indicates no record matched the lookup.
var ErrNotFound = errors.New("result record not found")

// RecordStore defines data access for result records.
type RecordStore interface {
	// Create persists a new result record.
	Create(ctx context.Context, rec *model.ResultRecord) error

	// UpdateProcessing overwrites the mutable fields of an existing record
	// (status, output ref, credits, error message, progress, completion time)
	// only while the stored record is still processing, and reports whether
	// the update was applied. The compare-and-swap means exactly one of any
	// concurrent callers can finalize a record.
	UpdateProcessing(ctx context.Context, rec *model.ResultRecord) (bool, error)

	// GetByID retrieves a record by its id.
	GetByID(ctx context.Context, id uuid.UUID) (*model.ResultRecord, error)

	// GetByJobID retrieves a record by the external prediction job id.
	GetByJobID(ctx context.Context, jobID string) (*model.ResultRecord, error)

	// ListByUser retrieves a user's records, newest first, with pagination.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.ResultRecord, error)
}
