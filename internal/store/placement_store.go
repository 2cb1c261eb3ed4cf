package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

type PlacementStore struct {
	db *sql.DB
}

func NewPlacementStore(db *sql.DB) *PlacementStore {
	return &PlacementStore{db: db}
}

// Create queues a new placement. The store assigns the local ID and the
// client reference UUID; created_at is the client clock at enqueue time.
func (s *PlacementStore) Create(ctx context.Context, naturalKey string, siteID, typeID int64, description string) (*domain.PendingPlacement, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_placements (client_ref, natural_key, site_id, type_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), naturalKey, siteID, typeID, description, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create placement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

const placementColumns = `id, client_ref, natural_key, site_id, type_id, description,
	created_at, synced, server_id, attempts, next_attempt_at, dead, last_error`

func scanPlacement(row interface{ Scan(...any) error }) (*domain.PendingPlacement, error) {
	p := &domain.PendingPlacement{}
	err := row.Scan(&p.LocalID, &p.ClientRef, &p.NaturalKey, &p.SiteID, &p.TypeID, &p.Description,
		&p.CreatedAt, &p.Synced, &p.ServerID, &p.Attempts, &p.NextAttemptAt, &p.Dead, &p.LastError)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PlacementStore) GetByID(ctx context.Context, id int64) (*domain.PendingPlacement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+placementColumns+` FROM pending_placements WHERE id = ?
	`, id)

	p, err := scanPlacement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get placement: %w", err)
	}
	return p, nil
}

func (s *PlacementStore) GetByNaturalKey(ctx context.Context, naturalKey string) (*domain.PendingPlacement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+placementColumns+` FROM pending_placements WHERE natural_key = ?
	`, naturalKey)

	p, err := scanPlacement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get placement by natural key: %w", err)
	}
	return p, nil
}

// ListUnsynced returns queued placements eligible for submission at now,
// first-created first. Dead items and items still backing off are excluded.
func (s *PlacementStore) ListUnsynced(ctx context.Context, now time.Time) ([]*domain.PendingPlacement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+placementColumns+` FROM pending_placements
		WHERE synced = 0 AND dead = 0 AND next_attempt_at <= ?
		ORDER BY created_at ASC, id ASC
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced placements: %w", err)
	}
	defer rows.Close()

	var placements []*domain.PendingPlacement
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan placement: %w", err)
		}
		placements = append(placements, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating placements: %w", err)
	}

	return placements, nil
}

// MarkSynced records the server identifier for a placement and clears any
// failure state. Safe to call again with the same arguments.
func (s *PlacementStore) MarkSynced(ctx context.Context, localID, serverID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_placements SET synced = 1, server_id = ?, last_error = '' WHERE id = ?
	`, serverID, localID)
	if err != nil {
		return fmt.Errorf("failed to mark placement synced: %w", err)
	}
	return nil
}

// RecordFailure persists the failure state after an unsuccessful submission.
func (s *PlacementStore) RecordFailure(ctx context.Context, localID int64, attempts int, nextAttemptAt time.Time, dead bool, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_placements SET attempts = ?, next_attempt_at = ?, dead = ?, last_error = ? WHERE id = ?
	`, attempts, nextAttemptAt.UTC(), dead, lastError, localID)
	if err != nil {
		return fmt.Errorf("failed to record placement failure: %w", err)
	}
	return nil
}

func (s *PlacementStore) Delete(ctx context.Context, localID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_placements WHERE id = ?
	`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete placement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("placement not found")
	}
	return nil
}

// CountPending returns the number of live queued placements and the number
// parked in the dead-letter state.
func (s *PlacementStore) CountPending(ctx context.Context) (pending, dead int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN synced = 0 AND dead = 0 THEN 1 END),
			COUNT(CASE WHEN dead = 1 THEN 1 END)
		FROM pending_placements
	`).Scan(&pending, &dead)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count placements: %w", err)
	}
	return pending, dead, nil
}

func (s *PlacementStore) ListDead(ctx context.Context) ([]*domain.PendingPlacement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+placementColumns+` FROM pending_placements
		WHERE dead = 1 ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead placements: %w", err)
	}
	defer rows.Close()

	var placements []*domain.PendingPlacement
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan placement: %w", err)
		}
		placements = append(placements, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating placements: %w", err)
	}

	return placements, nil
}
