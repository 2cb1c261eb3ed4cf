package domain

import "time"

// RecordKind identifies which pending collection a record belongs to.
type RecordKind string

const (
	KindPlacement   RecordKind = "placement"
	KindObservation RecordKind = "observation"
)

// PendingPlacement is a locally created inspection point waiting to be
// accepted by the server. LocalID is assigned by the store and stays stable
// across restarts; ServerID is nil until the server accepts the record.
type PendingPlacement struct {
	LocalID       int64
	ClientRef     string // device-generated UUID, lets the server deduplicate resubmissions
	NaturalKey    string // scanned code, unique per organization
	SiteID        int64
	TypeID        int64
	Description   string
	CreatedAt     time.Time
	Synced        bool
	ServerID      *int64
	Attempts      int
	NextAttemptAt time.Time
	Dead          bool
	LastError     string
}

// PendingObservation is a locally recorded inspection event. TargetIsLocal
// marks a target that still points at a pending placement's local ID; the
// reconciler flips it to the server ID once the placement is accepted.
type PendingObservation struct {
	LocalID       int64
	ClientRef     string
	TargetID      int64
	TargetIsLocal bool
	Status        string
	Note          string
	Photo         []byte
	PhotoMime     string
	CreatedAt     time.Time
	Attempts      int
	NextAttemptAt time.Time
	Dead          bool
	LastError     string
}

// Reference entity kinds mirrored from the server.
const (
	RefSite          = "site"
	RefPlacementType = "placement_type"
	RefPlacement     = "placement"
)

// ReferenceEntity is a read-only local mirror of a remote catalog row,
// consulted for lookups while offline.
type ReferenceEntity struct {
	ServerID    int64
	Kind        string
	NaturalKey  string // scanned code for placements, empty otherwise
	Name        string
	RefreshedAt time.Time
}

// PendingCounts is a read-only snapshot of the queue for UI badges.
// Dead items are excluded from the pending figures and counted separately.
type PendingCounts struct {
	Placements       int
	Observations     int
	DeadPlacements   int
	DeadObservations int
}

// ItemFailure records one item that could not be synced during a run.
type ItemFailure struct {
	Kind    RecordKind
	LocalID int64
	Err     error
}

// Outcome aggregates one sync run. It is never persisted; it exists for the
// caller and for the notification bus.
type Outcome struct {
	Skipped bool // another run was already in flight
	Offline bool // the monitor reported unreachable, nothing was attempted

	PlacementsSynced    int
	PlacementsFailed    int
	ObservationsSynced  int
	ObservationsFailed  int
	ObservationsDropped int // structurally invalid, deleted without a network call

	Failures []ItemFailure
}
