package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sentinelpest/fieldsync/internal/connectivity"
	"github.com/sentinelpest/fieldsync/internal/domain"
	"github.com/sentinelpest/fieldsync/internal/remote"
)

// placementRepository is the subset of store.PlacementStore that
// QueueService requires.
type placementRepository interface {
	Create(ctx context.Context, naturalKey string, siteID, typeID int64, description string) (*domain.PendingPlacement, error)
	GetByID(ctx context.Context, id int64) (*domain.PendingPlacement, error)
	GetByNaturalKey(ctx context.Context, naturalKey string) (*domain.PendingPlacement, error)
	CountPending(ctx context.Context) (pending, dead int, err error)
	ListDead(ctx context.Context) ([]*domain.PendingPlacement, error)
}

// observationRepository is the subset of store.ObservationStore that
// QueueService requires.
type observationRepository interface {
	Create(ctx context.Context, targetID int64, targetIsLocal bool, status, note string, photo []byte, photoMime string) (*domain.PendingObservation, error)
	CountPending(ctx context.Context) (pending, dead int, err error)
	ListDead(ctx context.Context) ([]*domain.PendingObservation, error)
}

// referenceRepository is the subset of store.ReferenceStore that
// QueueService requires.
type referenceRepository interface {
	ReplaceKind(ctx context.Context, kind string, entities []*domain.ReferenceEntity) error
	GetByNaturalKey(ctx context.Context, kind, naturalKey string) (*domain.ReferenceEntity, error)
	ListByKind(ctx context.Context, kind string) ([]*domain.ReferenceEntity, error)
}

// QueueService is the narrow surface the surrounding application (UI, CLI,
// automated agents) uses to feed the queue and inspect it. Enqueue calls
// never block on network state: once the record is persisted locally they
// return, online or offline.
type QueueService struct {
	placements   placementRepository
	observations observationRepository
	references   referenceRepository
	adapter      remote.Adapter
	monitor      connectivity.Monitor
	logger       *slog.Logger
}

func NewQueueService(
	placements placementRepository,
	observations observationRepository,
	references referenceRepository,
	adapter remote.Adapter,
	monitor connectivity.Monitor,
	logger *slog.Logger,
) *QueueService {
	return &QueueService{
		placements:   placements,
		observations: observations,
		references:   references,
		adapter:      adapter,
		monitor:      monitor,
		logger:       logger,
	}
}

// PlacementInput is a new placement as entered by the technician.
type PlacementInput struct {
	NaturalKey  string
	SiteID      int64
	TypeID      int64
	Description string
}

// ObservationInput is a new observation as entered by the technician.
// TargetIsLocal marks TargetID as the local ID of a not-yet-synced placement.
type ObservationInput struct {
	TargetID      int64
	TargetIsLocal bool
	Status        string
	Note          string
	Photo         []byte
	PhotoMime     string
}

// EnqueuePlacement validates and persists a new placement, returning the
// queued record with its store-assigned local ID.
func (s *QueueService) EnqueuePlacement(ctx context.Context, in PlacementInput) (*domain.PendingPlacement, error) {
	if in.NaturalKey == "" {
		return nil, domain.NewValidationError("natural_key", "a scanned code is required")
	}
	if in.SiteID <= 0 {
		return nil, domain.NewValidationError("site_id", "a site is required")
	}
	if in.TypeID <= 0 {
		return nil, domain.NewValidationError("type_id", "a placement type is required")
	}

	existing, err := s.placements.GetByNaturalKey(ctx, in.NaturalKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate code: %w", err)
	}
	if existing != nil {
		return nil, domain.NewValidationError("natural_key", "code already queued on this device")
	}

	p, err := s.placements.Create(ctx, in.NaturalKey, in.SiteID, in.TypeID, in.Description)
	if err != nil {
		return nil, err
	}
	s.logger.Info("placement queued", "local_id", p.LocalID, "natural_key", p.NaturalKey)
	return p, nil
}

// EnqueueObservation validates and persists a new observation. The target
// may be a server placement ID or, with TargetIsLocal, the local ID of a
// placement queued on this device.
func (s *QueueService) EnqueueObservation(ctx context.Context, in ObservationInput) (*domain.PendingObservation, error) {
	if in.TargetID <= 0 {
		return nil, domain.NewValidationError("target", "a target placement is required")
	}
	if in.Status == "" {
		return nil, domain.NewValidationError("status", "an outcome status is required")
	}
	if in.TargetIsLocal {
		target, err := s.placements.GetByID(ctx, in.TargetID)
		if err != nil {
			return nil, fmt.Errorf("failed to check target placement: %w", err)
		}
		if target == nil {
			return nil, domain.NewValidationError("target", "no queued placement with that local id")
		}
	}

	o, err := s.observations.Create(ctx, in.TargetID, in.TargetIsLocal, in.Status, in.Note, in.Photo, in.PhotoMime)
	if err != nil {
		return nil, err
	}
	s.logger.Info("observation queued", "local_id", o.LocalID, "target_id", o.TargetID, "target_is_local", o.TargetIsLocal)
	return o, nil
}

// PendingCounts returns a snapshot of the queue for UI badges.
func (s *QueueService) PendingCounts(ctx context.Context) (*domain.PendingCounts, error) {
	placements, deadPlacements, err := s.placements.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	observations, deadObservations, err := s.observations.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.PendingCounts{
		Placements:       placements,
		Observations:     observations,
		DeadPlacements:   deadPlacements,
		DeadObservations: deadObservations,
	}, nil
}

// DeadLetters lists items that exhausted their retry budget and need manual
// resolution.
func (s *QueueService) DeadLetters(ctx context.Context) ([]*domain.PendingPlacement, []*domain.PendingObservation, error) {
	placements, err := s.placements.ListDead(ctx)
	if err != nil {
		return nil, nil, err
	}
	observations, err := s.observations.ListDead(ctx)
	if err != nil {
		return nil, nil, err
	}
	return placements, observations, nil
}

// CodeResolution is the answer to "what is this scanned code?", computed
// without a network round trip.
type CodeResolution struct {
	Known    bool
	Pending  bool  // matched a placement still queued on this device
	ServerID int64 // set when the code matched the server mirror
	LocalID  int64 // set when the code matched a queued placement
	Name     string
}

// ResolveCode looks a scanned code up in the cached server mirror first and
// the local pending queue second, so a technician can record against a
// placement created minutes ago in the same basement.
func (s *QueueService) ResolveCode(ctx context.Context, code string) (*CodeResolution, error) {
	ref, err := s.references.GetByNaturalKey(ctx, domain.RefPlacement, code)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		return &CodeResolution{Known: true, ServerID: ref.ServerID, Name: ref.Name}, nil
	}

	pending, err := s.placements.GetByNaturalKey(ctx, code)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return &CodeResolution{Known: true, Pending: true, LocalID: pending.LocalID, Name: pending.Description}, nil
	}

	return &CodeResolution{}, nil
}

// RefreshReferences replaces the local mirror of the given kinds with fresh
// server catalogs. Opportunistic: callers invoke it while reachable; it is
// never called by the sync engine mid-run.
func (s *QueueService) RefreshReferences(ctx context.Context, kinds ...string) error {
	if !s.monitor.Reachable() {
		return &domain.RemoteError{Class: domain.RemoteNetwork, Message: "remote service not reachable"}
	}

	for _, kind := range kinds {
		entities, err := s.adapter.FetchReferenceEntities(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to fetch %s catalog: %w", kind, err)
		}
		if err := s.references.ReplaceKind(ctx, kind, entities); err != nil {
			return err
		}
		s.logger.Info("reference cache refreshed", "kind", kind, "entities", len(entities))
	}
	return nil
}
