package model

import (
	"time"

	"github.com/google/uuid"
)

// Result record statuses. A voice-clone record may be created as "processing"
// before the external job resolves and is flipped later by the status endpoint.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ResultRecord is the persisted outcome of a generation: a history entry for
// TTS and transcription, or a cloned-voice record for voice cloning. Exactly
// one completed record is written per successful job.
type ResultRecord struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Kind           Kind       `json:"kind"`
	InputSummary   string     `json:"input_summary"`
	OutputRef      string     `json:"output_ref,omitempty"`
	ExternalJobID  string     `json:"external_job_id,omitempty"`
	PollingURL     string     `json:"-"`
	CreditsCharged int64      `json:"credits_charged"`
	Status         string     `json:"status"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	Progress       int        `json:"progress"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
