package storage

import (
	"context"

	"pi-launchpad/internal/domain"
)

// EngagementUpdate carries one participant's snapshotted engagement result.
type EngagementUpdate struct {
	ParticipationID string
	Score           string
	Rank            int
	Tier            domain.Tier
}

// AllocationUpdate carries one participant's final allocation result.
type AllocationUpdate struct {
	ParticipationID string
	AllocatedTokens string
	EffectivePrice  string
}

// LaunchStore provides access to launches storage.
type LaunchStore interface {
	// Insert adds a new launch. Returns ErrDuplicateKey if launch_id exists.
	Insert(ctx context.Context, l *domain.Launch) error

	// GetByID retrieves a launch by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, launchID string) (*domain.Launch, error)

	// List retrieves launches ordered by created_at ASC, launch_id ASC.
	// status filters by launch status when non-nil. afterID is an exclusive
	// cursor (empty means from the beginning); an unknown cursor returns
	// ErrNotFound. limit caps the page size.
	List(ctx context.Context, status *domain.LaunchStatus, afterID string, limit int) ([]*domain.Launch, error)

	// UpdateStatus transitions a launch from one status to another.
	// Returns ErrNotFound if the launch does not exist and ErrStatusConflict
	// if its current status is not from.
	UpdateStatus(ctx context.Context, launchID string, from, to domain.LaunchStatus) error

	// MarkEngagementSnapshot records the engagement snapshot time exactly once.
	// Returns ErrNotFound if the launch does not exist and ErrStatusConflict
	// if it has already been marked.
	MarkEngagementSnapshot(ctx context.Context, launchID string, at int64) error

	// FinalizeAllocation sets the listing price and moves the launch from
	// allocation_running to tge_open in one conditional update. Returns
	// ErrNotFound if the launch does not exist and ErrStatusConflict if it
	// is not in allocation_running.
	FinalizeAllocation(ctx context.Context, launchID string, listingPrice string) error
}

// ParticipationStore provides access to participations storage.
type ParticipationStore interface {
	// Insert adds a new participation. Returns ErrDuplicateKey if
	// participation_id exists.
	Insert(ctx context.Context, p *domain.Participation) error

	// GetByID retrieves a participation by its ID. Returns ErrNotFound if
	// not exists.
	GetByID(ctx context.Context, participationID string) (*domain.Participation, error)

	// GetAllByLaunch retrieves every participation for a launch, ordered by
	// created_at ASC, user_id ASC.
	GetAllByLaunch(ctx context.Context, launchID string) ([]*domain.Participation, error)

	// ListByLaunch retrieves a page of participations for a launch, ordered
	// by created_at ASC, participation_id ASC. afterID is an exclusive
	// cursor (empty means from the beginning); an unknown cursor returns
	// ErrNotFound. limit caps the page size.
	ListByLaunch(ctx context.Context, launchID string, afterID string, limit int) ([]*domain.Participation, error)

	// ApplyCommit refreshes staked_pi and pi_power and adds amount to
	// committed_pi in one conditional update. The update only applies while
	// committed_pi + amount <= power; otherwise ErrCapExceeded is returned
	// and the row is left unchanged. Returns ErrNotFound if the
	// participation does not exist.
	ApplyCommit(ctx context.Context, participationID string, amount, power, stakedPi string) error

	// UpdateEngagementBatch writes snapshotted engagement results for a
	// launch in a single transaction.
	UpdateEngagementBatch(ctx context.Context, launchID string, updates []*EngagementUpdate) error

	// UpdateAllocationBatch writes final allocation results for a launch in
	// a single transaction.
	UpdateAllocationBatch(ctx context.Context, launchID string, updates []*AllocationUpdate) error

	// SumCommitted returns the total committed_pi across a launch as a
	// fixed-point decimal string. Returns "0" when there are no
	// participations.
	SumCommitted(ctx context.Context, launchID string) (string, error)
}

// EngagementEventStore provides access to engagement_events storage.
type EngagementEventStore interface {
	// Insert adds a single engagement event.
	Insert(ctx context.Context, e *domain.EngagementEvent) error

	// InsertBulk adds multiple engagement events in one batch.
	InsertBulk(ctx context.Context, events []*domain.EngagementEvent) error

	// CountByUser returns per-event-type counts for one user within a launch.
	CountByUser(ctx context.Context, launchID, userID string) (map[domain.EventType]int64, error)

	// CountByLaunch returns per-event-type counts for every user within a
	// launch, keyed by user_id.
	CountByLaunch(ctx context.Context, launchID string) (map[string]map[domain.EventType]int64, error)
}

// DividendRoundStore provides access to dividend_rounds storage.
type DividendRoundStore interface {
	// Insert adds a new round. Returns ErrDuplicateKey if round_id exists.
	Insert(ctx context.Context, r *domain.DividendRound) error

	// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, roundID string) (*domain.DividendRound, error)

	// ListByLaunch retrieves all rounds for a launch, ordered by record_at ASC.
	ListByLaunch(ctx context.Context, launchID string) ([]*domain.DividendRound, error)

	// CompleteSnapshot stores the holder snapshot for a round and moves the
	// round from pending to snapshot_done in a single transaction. Any
	// snapshot rows from an interrupted earlier run are replaced. Returns
	// ErrNotFound if the round does not exist and ErrStatusConflict if it
	// is not pending.
	CompleteSnapshot(ctx context.Context, roundID string, totalSupply string, holdersCount int, snaps []*domain.HolderSnapshot) error
}

// HolderSnapshotStore provides access to holder_snapshots storage.
type HolderSnapshotStore interface {
	// GetByRoundAndKey retrieves one holder's snapshot entry. Returns
	// ErrNotFound if not exists.
	GetByRoundAndKey(ctx context.Context, roundID, publicKey string) (*domain.HolderSnapshot, error)

	// ListByRound retrieves a page of snapshot entries for a round, ordered
	// by public_key ASC. afterKey is an exclusive cursor (empty means from
	// the beginning). limit caps the page size.
	ListByRound(ctx context.Context, roundID string, afterKey string, limit int) ([]*domain.HolderSnapshot, error)

	// RecordClaim marks one holder's payout as claimed exactly once.
	// Returns ErrNotFound if the entry does not exist and ErrAlreadyClaimed
	// if it has already been claimed.
	RecordClaim(ctx context.Context, roundID, publicKey string, txHash string, claimedAt int64) error
}
