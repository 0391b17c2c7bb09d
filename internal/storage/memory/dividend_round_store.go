package memory

import (
	"context"
	"sort"
	"sync"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// DividendRoundStore is an in-memory implementation of storage.DividendRoundStore.
// It shares snapshot storage with HolderSnapshotStore so CompleteSnapshot can
// replace snapshot rows and flip the round status under one lock.
type DividendRoundStore struct {
	mu        sync.RWMutex
	rounds    map[string]*domain.DividendRound // keyed by round_id
	snapshots *HolderSnapshotStore
}

// NewDividendRoundStore creates a new in-memory dividend round store bound to
// the given snapshot store.
func NewDividendRoundStore(snapshots *HolderSnapshotStore) *DividendRoundStore {
	return &DividendRoundStore{
		rounds:    make(map[string]*domain.DividendRound),
		snapshots: snapshots,
	}
}

// Insert adds a new round. Returns ErrDuplicateKey if round_id exists.
func (s *DividendRoundStore) Insert(_ context.Context, r *domain.DividendRound) error {
	if r == nil || r.RoundID == "" || r.LaunchID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rounds[r.RoundID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	roundCopy := *r
	s.rounds[r.RoundID] = &roundCopy
	return nil
}

// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
func (s *DividendRoundStore) GetByID(_ context.Context, roundID string) (*domain.DividendRound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rounds[roundID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	roundCopy := *r
	return &roundCopy, nil
}

// ListByLaunch retrieves all rounds for a launch, ordered by record_at ASC.
func (s *DividendRoundStore) ListByLaunch(_ context.Context, launchID string) ([]*domain.DividendRound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DividendRound
	for _, r := range s.rounds {
		if r.LaunchID == launchID {
			roundCopy := *r
			result = append(result, &roundCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RecordAt < result[j].RecordAt
	})

	return result, nil
}

// CompleteSnapshot stores the holder snapshot and moves the round from
// pending to snapshot_done as one step.
func (s *DividendRoundStore) CompleteSnapshot(_ context.Context, roundID string, totalSupply string, holdersCount int, snaps []*domain.HolderSnapshot) error {
	if totalSupply == "" || holdersCount < 0 {
		return storage.ErrInvalidInput
	}
	for _, snap := range snaps {
		if snap == nil || snap.RoundID != roundID || snap.PublicKey == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rounds[roundID]
	if !exists {
		return storage.ErrNotFound
	}
	if r.Status != domain.RoundStatusPending {
		return storage.ErrStatusConflict
	}

	if err := s.snapshots.replaceForRound(roundID, snaps); err != nil {
		return err
	}

	supply := totalSupply
	count := holdersCount
	r.TotalEligibleSupply = &supply
	r.EligibleHoldersCount = &count
	r.Status = domain.RoundStatusSnapshotDone
	r.UpdatedAt = nowMillis()
	return nil
}

// Verify interface compliance at compile time.
var _ storage.DividendRoundStore = (*DividendRoundStore)(nil)
