package memory

import (
	"context"
	"sort"
	"sync"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// LaunchStore is an in-memory implementation of storage.LaunchStore.
type LaunchStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Launch // keyed by launch_id
}

// NewLaunchStore creates a new in-memory launch store.
func NewLaunchStore() *LaunchStore {
	return &LaunchStore{
		data: make(map[string]*domain.Launch),
	}
}

// Insert adds a new launch. Returns ErrDuplicateKey if launch_id exists.
func (s *LaunchStore) Insert(_ context.Context, l *domain.Launch) error {
	if l == nil || l.LaunchID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[l.LaunchID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	launchCopy := *l
	s.data[l.LaunchID] = &launchCopy
	return nil
}

// GetByID retrieves a launch by its ID. Returns ErrNotFound if not exists.
func (s *LaunchStore) GetByID(_ context.Context, launchID string) (*domain.Launch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.data[launchID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	launchCopy := *l
	return &launchCopy, nil
}

// List retrieves launches ordered by created_at ASC, launch_id ASC.
func (s *LaunchStore) List(_ context.Context, status *domain.LaunchStatus, afterID string, limit int) ([]*domain.Launch, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursor *domain.Launch
	if afterID != "" {
		c, exists := s.data[afterID]
		if !exists {
			return nil, storage.ErrNotFound
		}
		cursor = c
	}

	var result []*domain.Launch
	for _, l := range s.data {
		if status != nil && l.Status != *status {
			continue
		}
		if cursor != nil && !launchAfter(l, cursor) {
			continue
		}
		launchCopy := *l
		result = append(result, &launchCopy)
	}

	// Sort by created_at ASC, launch_id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].LaunchID < result[j].LaunchID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// launchAfter reports whether l sorts strictly after the cursor row.
func launchAfter(l, cursor *domain.Launch) bool {
	if l.CreatedAt != cursor.CreatedAt {
		return l.CreatedAt > cursor.CreatedAt
	}
	return l.LaunchID > cursor.LaunchID
}

// UpdateStatus transitions a launch from one status to another.
func (s *LaunchStore) UpdateStatus(_ context.Context, launchID string, from, to domain.LaunchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[launchID]
	if !exists {
		return storage.ErrNotFound
	}
	if l.Status != from {
		return storage.ErrStatusConflict
	}

	l.Status = to
	l.UpdatedAt = nowMillis()
	return nil
}

// MarkEngagementSnapshot records the engagement snapshot time exactly once.
func (s *LaunchStore) MarkEngagementSnapshot(_ context.Context, launchID string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[launchID]
	if !exists {
		return storage.ErrNotFound
	}
	if l.EngagementSnapshotAt != nil {
		return storage.ErrStatusConflict
	}

	l.EngagementSnapshotAt = &at
	l.UpdatedAt = nowMillis()
	return nil
}

// FinalizeAllocation sets the listing price and moves the launch to tge_open.
func (s *LaunchStore) FinalizeAllocation(_ context.Context, launchID string, listingPrice string) error {
	if listingPrice == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[launchID]
	if !exists {
		return storage.ErrNotFound
	}
	if l.Status != domain.StatusAllocationRunning {
		return storage.ErrStatusConflict
	}

	price := listingPrice
	l.ListingPrice = &price
	l.Status = domain.StatusTGEOpen
	l.UpdatedAt = nowMillis()
	return nil
}

// Verify interface compliance at compile time.
var _ storage.LaunchStore = (*LaunchStore)(nil)
