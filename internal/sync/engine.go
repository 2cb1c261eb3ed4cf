// Package sync drains the device's pending-record queue into the remote
// service: placements first, then the observations that depend on them, one
// run at a time, with per-item failure isolation.
package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sentinelpest/fieldsync/internal/bus"
	"github.com/sentinelpest/fieldsync/internal/connectivity"
	"github.com/sentinelpest/fieldsync/internal/domain"
	"github.com/sentinelpest/fieldsync/internal/remote"
)

// placementQueue is the subset of store.PlacementStore the engine requires.
type placementQueue interface {
	ListUnsynced(ctx context.Context, now time.Time) ([]*domain.PendingPlacement, error)
	MarkSynced(ctx context.Context, localID, serverID int64) error
	RecordFailure(ctx context.Context, localID int64, attempts int, nextAttemptAt time.Time, dead bool, lastError string) error
}

// observationQueue is the subset of store.ObservationStore the engine
// requires.
type observationQueue interface {
	ListPending(ctx context.Context, now time.Time) ([]*domain.PendingObservation, error)
	RetargetLocal(ctx context.Context, localTargetID, serverID int64) (int64, error)
	Delete(ctx context.Context, localID int64) error
	RecordFailure(ctx context.Context, localID int64, attempts int, nextAttemptAt time.Time, dead bool, lastError string) error
}

// Engine is the sync orchestrator. One instance per process; all entry
// points (manual "sync now", reachability transitions, periodic timer)
// funnel through Run, which is single-flight.
type Engine struct {
	placements   placementQueue
	observations observationQueue
	reconciler   *Reconciler
	adapter      remote.Adapter
	monitor      connectivity.Monitor
	events       *bus.Bus
	policy       RetryPolicy
	logger       *slog.Logger

	running atomic.Bool
	now     func() time.Time
}

func NewEngine(
	placements placementQueue,
	observations observationQueue,
	adapter remote.Adapter,
	monitor connectivity.Monitor,
	events *bus.Bus,
	policy RetryPolicy,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		placements:   placements,
		observations: observations,
		reconciler:   NewReconciler(placements, observations, logger),
		adapter:      adapter,
		monitor:      monitor,
		events:       events,
		policy:       policy,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes one sync pass and returns its outcome.
//
// Single-flight: an overlapping call returns {Skipped:true} without touching
// the store — two concurrent drains could double-submit a placement while
// both try to map the same temporary identifier. If the monitor reports
// unreachable the run returns {Offline:true} without touching the store.
//
// Per-item failures are folded into the outcome; only a failure of the local
// store itself aborts the run and propagates as an error.
func (e *Engine) Run(ctx context.Context) (*domain.Outcome, error) {
	// The guard must be set before the first store or network access so a
	// second caller can never observe a half-started run.
	if !e.running.CompareAndSwap(false, true) {
		return &domain.Outcome{Skipped: true}, nil
	}
	defer e.running.Store(false)

	if !e.monitor.Reachable() {
		e.events.Publish(bus.Event{Kind: bus.EventOffline})
		return &domain.Outcome{Offline: true}, nil
	}

	e.events.Publish(bus.Event{Kind: bus.EventStart})
	e.logger.Info("sync run started")

	out := &domain.Outcome{}
	if err := e.drainPlacements(ctx, out); err != nil {
		return nil, err
	}
	if err := e.drainObservations(ctx, out); err != nil {
		return nil, err
	}

	e.events.Publish(bus.Event{Kind: bus.EventComplete, Outcome: out})
	e.logger.Info("sync run complete",
		"placements_synced", out.PlacementsSynced,
		"placements_failed", out.PlacementsFailed,
		"observations_synced", out.ObservationsSynced,
		"observations_failed", out.ObservationsFailed,
		"observations_dropped", out.ObservationsDropped,
	)
	return out, nil
}

// drainPlacements submits queued placements in creation order. Observations
// have a foreign-key dependency on placements, so this phase must complete
// before any observation is transmitted.
func (e *Engine) drainPlacements(ctx context.Context, out *domain.Outcome) error {
	placements, err := e.placements.ListUnsynced(ctx, e.now())
	if err != nil {
		return err
	}

	for _, p := range placements {
		serverID, err := e.adapter.SubmitPlacement(ctx, p)
		if err != nil {
			if ferr := e.failPlacement(ctx, p, err); ferr != nil {
				return ferr
			}
			out.PlacementsFailed++
			out.Failures = append(out.Failures, domain.ItemFailure{Kind: domain.KindPlacement, LocalID: p.LocalID, Err: err})
			continue
		}

		if err := e.reconciler.Resolve(ctx, p.LocalID, serverID); err != nil {
			return err
		}
		out.PlacementsSynced++
		e.events.Publish(bus.Event{Kind: bus.EventItemSynced, Record: domain.KindPlacement, LocalID: p.LocalID, ServerID: serverID})
	}
	return nil
}

// drainObservations submits queued observations in creation order. An
// observation whose target is still a temporary identifier is skipped
// silently this run; it becomes eligible once its placement resolves.
func (e *Engine) drainObservations(ctx context.Context, out *domain.Outcome) error {
	observations, err := e.observations.ListPending(ctx, e.now())
	if err != nil {
		return err
	}

	for _, o := range observations {
		if verr := validateObservation(o); verr != nil {
			// Structurally invalid: can never succeed, so it is removed
			// without a network call and reported as a validation failure.
			if err := e.observations.Delete(ctx, o.LocalID); err != nil {
				return err
			}
			out.ObservationsDropped++
			out.Failures = append(out.Failures, domain.ItemFailure{Kind: domain.KindObservation, LocalID: o.LocalID, Err: verr})
			e.events.Publish(bus.Event{Kind: bus.EventItemFailed, Record: domain.KindObservation, LocalID: o.LocalID, Err: verr})
			e.logger.Warn("dropped invalid observation", "local_id", o.LocalID, "error", verr)
			continue
		}

		if o.TargetIsLocal {
			continue
		}

		serverID, err := e.adapter.SubmitObservation(ctx, o)
		if err != nil {
			if ferr := e.failObservation(ctx, o, err); ferr != nil {
				return ferr
			}
			out.ObservationsFailed++
			out.Failures = append(out.Failures, domain.ItemFailure{Kind: domain.KindObservation, LocalID: o.LocalID, Err: err})
			continue
		}

		if err := e.observations.Delete(ctx, o.LocalID); err != nil {
			return err
		}
		out.ObservationsSynced++
		e.events.Publish(bus.Event{Kind: bus.EventItemSynced, Record: domain.KindObservation, LocalID: o.LocalID, ServerID: serverID})
	}
	return nil
}

func (e *Engine) failPlacement(ctx context.Context, p *domain.PendingPlacement, cause error) error {
	failures := p.Attempts + 1
	dead := e.policy.Exhausted(failures)
	next := e.now().Add(e.policy.Delay(failures))

	if err := e.placements.RecordFailure(ctx, p.LocalID, failures, next, dead, cause.Error()); err != nil {
		return err
	}
	e.events.Publish(bus.Event{Kind: bus.EventItemFailed, Record: domain.KindPlacement, LocalID: p.LocalID, Err: cause})
	e.logger.Warn("placement sync failed",
		"local_id", p.LocalID, "natural_key", p.NaturalKey,
		"attempts", failures, "dead", dead, "error", cause)
	return nil
}

func (e *Engine) failObservation(ctx context.Context, o *domain.PendingObservation, cause error) error {
	failures := o.Attempts + 1
	dead := e.policy.Exhausted(failures)
	next := e.now().Add(e.policy.Delay(failures))

	if err := e.observations.RecordFailure(ctx, o.LocalID, failures, next, dead, cause.Error()); err != nil {
		return err
	}
	e.events.Publish(bus.Event{Kind: bus.EventItemFailed, Record: domain.KindObservation, LocalID: o.LocalID, Err: cause})
	e.logger.Warn("observation sync failed",
		"local_id", o.LocalID, "target_id", o.TargetID,
		"attempts", failures, "dead", dead, "error", cause)
	return nil
}

// validateObservation re-checks the structural invariants enforced at
// enqueue time. Records queued by older app versions may predate a rule.
func validateObservation(o *domain.PendingObservation) error {
	if o.TargetID == 0 {
		return domain.NewValidationError("target", "missing target identifier")
	}
	if o.Status == "" {
		return domain.NewValidationError("status", "missing outcome status")
	}
	return nil
}
