package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

type ReferenceStore struct {
	db *sql.DB
}

func NewReferenceStore(db *sql.DB) *ReferenceStore {
	return &ReferenceStore{db: db}
}

// ReplaceKind swaps the cached mirror of one entity kind for a freshly
// fetched set, atomically. A failed refresh leaves the previous cache intact.
func (s *ReferenceStore) ReplaceKind(ctx context.Context, kind string, entities []*domain.ReferenceEntity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reference_entities WHERE kind = ?`, kind); err != nil {
		return fmt.Errorf("failed to clear reference cache: %w", err)
	}

	now := time.Now().UTC()
	for _, e := range entities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reference_entities (server_id, kind, natural_key, name, refreshed_at)
			VALUES (?, ?, ?, ?, ?)
		`, e.ServerID, kind, e.NaturalKey, e.Name, now)
		if err != nil {
			return fmt.Errorf("failed to insert reference entity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reference cache: %w", err)
	}
	return nil
}

func (s *ReferenceStore) GetByServerID(ctx context.Context, kind string, serverID int64) (*domain.ReferenceEntity, error) {
	e := &domain.ReferenceEntity{}
	err := s.db.QueryRowContext(ctx, `
		SELECT server_id, kind, natural_key, name, refreshed_at FROM reference_entities
		WHERE kind = ? AND server_id = ?
	`, kind, serverID).Scan(&e.ServerID, &e.Kind, &e.NaturalKey, &e.Name, &e.RefreshedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reference entity: %w", err)
	}
	return e, nil
}

// GetByNaturalKey resolves a scanned code against the cached mirror without
// a network round trip.
func (s *ReferenceStore) GetByNaturalKey(ctx context.Context, kind, naturalKey string) (*domain.ReferenceEntity, error) {
	e := &domain.ReferenceEntity{}
	err := s.db.QueryRowContext(ctx, `
		SELECT server_id, kind, natural_key, name, refreshed_at FROM reference_entities
		WHERE kind = ? AND natural_key = ?
	`, kind, naturalKey).Scan(&e.ServerID, &e.Kind, &e.NaturalKey, &e.Name, &e.RefreshedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reference entity by key: %w", err)
	}
	return e, nil
}

func (s *ReferenceStore) ListByKind(ctx context.Context, kind string) ([]*domain.ReferenceEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, kind, natural_key, name, refreshed_at FROM reference_entities
		WHERE kind = ? ORDER BY name ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference entities: %w", err)
	}
	defer rows.Close()

	var entities []*domain.ReferenceEntity
	for rows.Next() {
		e := &domain.ReferenceEntity{}
		if err := rows.Scan(&e.ServerID, &e.Kind, &e.NaturalKey, &e.Name, &e.RefreshedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reference entity: %w", err)
		}
		entities = append(entities, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reference entities: %w", err)
	}

	return entities, nil
}
