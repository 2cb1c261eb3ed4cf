// Package remote is the boundary to the hosted compliance service. The sync
// engine treats it as a black box: it submits pending records, receives
// server-assigned identifiers, and gets back classified errors it can act on.
package remote

import (
	"context"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

// Adapter translates local pending records into the wire calls the remote
// service expects. Every method returns a *domain.RemoteError on failure so
// the orchestrator can tell transient failures from terminal ones.
type Adapter interface {
	// SubmitPlacement registers a placement and returns its server ID.
	// The placement's target references must already be server IDs.
	SubmitPlacement(ctx context.Context, p *domain.PendingPlacement) (int64, error)

	// SubmitObservation records an inspection event against an already
	// registered placement and returns its server ID.
	SubmitObservation(ctx context.Context, o *domain.PendingObservation) (int64, error)

	// FetchReferenceEntities returns the current server-side catalog of the
	// given kind, for the local read-only mirror.
	FetchReferenceEntities(ctx context.Context, kind string) ([]*domain.ReferenceEntity, error)
}
