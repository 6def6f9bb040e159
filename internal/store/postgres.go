package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"vocalize/internal/model"
)

// PostgresStore persists result records in the result_records table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a record store backed by the given database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
	id, user_id, kind, input_summary, output_ref, external_job_id, polling_url,
	credits_charged, status, error_message, progress, created_at, completed_at
`

// Create persists a new result record.
func (s *PostgresStore) Create(ctx context.Context, rec *model.ResultRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO result_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		rec.ID, rec.UserID, rec.Kind, rec.InputSummary, rec.OutputRef,
		rec.ExternalJobID, rec.PollingURL, rec.CreditsCharged, rec.Status,
		rec.ErrorMessage, rec.Progress, rec.CreatedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create result record: %w", err)
	}
	return nil
}

// UpdateProcessing overwrites the mutable fields of an existing record if it
// is still processing. The status guard in the WHERE clause is the
// compare-and-swap; zero rows affected means another writer got there first
// (or the record does not exist).
func (s *PostgresStore) UpdateProcessing(ctx context.Context, rec *model.ResultRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE result_records
		SET output_ref = $2,
		    credits_charged = $3,
		    status = $4,
		    error_message = $5,
		    progress = $6,
		    completed_at = $7
		WHERE id = $1 AND status = $8
	`,
		rec.ID, rec.OutputRef, rec.CreditsCharged, rec.Status,
		rec.ErrorMessage, rec.Progress, rec.CompletedAt,
		model.StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update result record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update result record: %w", err)
	}
	return n > 0, nil
}

// GetByID retrieves a record by id.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*model.ResultRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM result_records WHERE id = $1`, id)
	return scanRecord(row)
}

// GetByJobID retrieves a record by external prediction job id.
func (s *PostgresStore) GetByJobID(ctx context.Context, jobID string) (*model.ResultRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM result_records WHERE external_job_id = $1`, jobID)
	return scanRecord(row)
}

// ListByUser retrieves a user's records, newest first, with pagination.
func (s *PostgresStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM result_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query result records: %w", err)
	}
	defer rows.Close()

	var records []model.ResultRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ResultRecord, error) {
	var rec model.ResultRecord
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Kind, &rec.InputSummary, &rec.OutputRef,
		&rec.ExternalJobID, &rec.PollingURL, &rec.CreditsCharged, &rec.Status,
		&rec.ErrorMessage, &rec.Progress, &rec.CreatedAt, &rec.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan result record: %w", err)
	}
	return &rec, nil
}
