package sync

import (
	"context"
	"fmt"
	"log/slog"
)

// placementResolver is the subset of store.PlacementStore the reconciler
// requires.
type placementResolver interface {
	MarkSynced(ctx context.Context, localID, serverID int64) error
}

// dependentRewriter is the subset of store.ObservationStore the reconciler
// requires.
type dependentRewriter interface {
	RetargetLocal(ctx context.Context, localTargetID, serverID int64) (int64, error)
}

// Reconciler maps a placement's temporary local ID to its server-assigned ID
// once the server has accepted it, and rewrites every queued observation
// still referencing the local ID.
type Reconciler struct {
	placements   placementResolver
	observations dependentRewriter
	logger       *slog.Logger
}

func NewReconciler(placements placementResolver, observations dependentRewriter, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		placements:   placements,
		observations: observations,
		logger:       logger,
	}
}

// Resolve marks the placement synced under serverID and retargets its
// dependent observations. Idempotent: resolving an already-resolved mapping
// rewrites the same server ID and matches no dependents.
func (r *Reconciler) Resolve(ctx context.Context, localID, serverID int64) error {
	if err := r.placements.MarkSynced(ctx, localID, serverID); err != nil {
		return fmt.Errorf("failed to resolve placement %d: %w", localID, err)
	}

	rewritten, err := r.observations.RetargetLocal(ctx, localID, serverID)
	if err != nil {
		return fmt.Errorf("failed to retarget observations of placement %d: %w", localID, err)
	}

	r.logger.Debug("placement resolved",
		"local_id", localID,
		"server_id", serverID,
		"observations_retargeted", rewritten,
	)
	return nil
}
