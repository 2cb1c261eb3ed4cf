package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

type ObservationStore struct {
	db *sql.DB
}

func NewObservationStore(db *sql.DB) *ObservationStore {
	return &ObservationStore{db: db}
}

// Create queues a new observation. targetIsLocal marks targetID as the local
// ID of a pending placement that has not been accepted by the server yet.
func (s *ObservationStore) Create(ctx context.Context, targetID int64, targetIsLocal bool, status, note string, photo []byte, photoMime string) (*domain.PendingObservation, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_observations (client_ref, target_id, target_is_local, status, note, photo, photo_mime, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), targetID, targetIsLocal, status, note, photo, photoMime, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create observation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

const observationColumns = `id, client_ref, target_id, target_is_local, status, note, photo,
	photo_mime, created_at, attempts, next_attempt_at, dead, last_error`

func scanObservation(row interface{ Scan(...any) error }) (*domain.PendingObservation, error) {
	o := &domain.PendingObservation{}
	err := row.Scan(&o.LocalID, &o.ClientRef, &o.TargetID, &o.TargetIsLocal, &o.Status, &o.Note, &o.Photo,
		&o.PhotoMime, &o.CreatedAt, &o.Attempts, &o.NextAttemptAt, &o.Dead, &o.LastError)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *ObservationStore) GetByID(ctx context.Context, id int64) (*domain.PendingObservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+observationColumns+` FROM pending_observations WHERE id = ?
	`, id)

	o, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}
	return o, nil
}

// ListPending returns queued observations eligible for processing at now,
// first-created first. Observations still pointing at an unresolved local
// placement are included; the orchestrator skips them for the run.
func (s *ObservationStore) ListPending(ctx context.Context, now time.Time) ([]*domain.PendingObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+observationColumns+` FROM pending_observations
		WHERE dead = 0 AND next_attempt_at <= ?
		ORDER BY created_at ASC, id ASC
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending observations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var observations []*domain.PendingObservation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return observations, nil
}

// RetargetLocal rewrites every observation still referencing the placement's
// local ID to reference the server ID instead. Returns the number of rows
// rewritten; a second call with the same pair matches nothing and is a no-op.
func (s *ObservationStore) RetargetLocal(ctx context.Context, localTargetID, serverID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pending_observations SET target_id = ?, target_is_local = 0
		WHERE target_is_local = 1 AND target_id = ?
	`, serverID, localTargetID)
	if err != nil {
		return 0, fmt.Errorf("failed to retarget observations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// RecordFailure persists the failure state after an unsuccessful submission.
func (s *ObservationStore) RecordFailure(ctx context.Context, localID int64, attempts int, nextAttemptAt time.Time, dead bool, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_observations SET attempts = ?, next_attempt_at = ?, dead = ?, last_error = ? WHERE id = ?
	`, attempts, nextAttemptAt.UTC(), dead, lastError, localID)
	if err != nil {
		return fmt.Errorf("failed to record observation failure: %w", err)
	}
	return nil
}

func (s *ObservationStore) Delete(ctx context.Context, localID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_observations WHERE id = ?
	`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete observation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("observation not found")
	}
	return nil
}

// CountPending returns the number of live queued observations and the number
// parked in the dead-letter state.
func (s *ObservationStore) CountPending(ctx context.Context) (pending, dead int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN dead = 0 THEN 1 END),
			COUNT(CASE WHEN dead = 1 THEN 1 END)
		FROM pending_observations
	`).Scan(&pending, &dead)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return pending, dead, nil
}

func (s *ObservationStore) ListDead(ctx context.Context) ([]*domain.PendingObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+observationColumns+` FROM pending_observations
		WHERE dead = 1 ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead observations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var observations []*domain.PendingObservation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	return observations, nil
}
