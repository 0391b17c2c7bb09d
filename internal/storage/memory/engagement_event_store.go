package memory

import (
	"context"
	"sync"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// EngagementEventStore is an in-memory implementation of storage.EngagementEventStore.
type EngagementEventStore struct {
	mu     sync.RWMutex
	events []*domain.EngagementEvent
}

// NewEngagementEventStore creates a new in-memory engagement event store.
func NewEngagementEventStore() *EngagementEventStore {
	return &EngagementEventStore{}
}

// Insert adds a single engagement event.
func (s *EngagementEventStore) Insert(_ context.Context, e *domain.EngagementEvent) error {
	if e == nil || e.LaunchID == "" || e.UserID == "" || e.EventType == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	eventCopy := *e
	s.events = append(s.events, &eventCopy)
	return nil
}

// InsertBulk adds multiple engagement events. Fails the entire batch on any
// invalid event.
func (s *EngagementEventStore) InsertBulk(_ context.Context, events []*domain.EngagementEvent) error {
	for _, e := range events {
		if e == nil || e.LaunchID == "" || e.UserID == "" || e.EventType == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		eventCopy := *e
		s.events = append(s.events, &eventCopy)
	}
	return nil
}

// CountByUser returns per-event-type counts for one user within a launch.
func (s *EngagementEventStore) CountByUser(_ context.Context, launchID, userID string) (map[domain.EventType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.EventType]int64)
	for _, e := range s.events {
		if e.LaunchID == launchID && e.UserID == userID {
			counts[e.EventType]++
		}
	}
	return counts, nil
}

// CountByLaunch returns per-event-type counts for every user within a launch.
func (s *EngagementEventStore) CountByLaunch(_ context.Context, launchID string) (map[string]map[domain.EventType]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]map[domain.EventType]int64)
	for _, e := range s.events {
		if e.LaunchID != launchID {
			continue
		}
		byType, ok := counts[e.UserID]
		if !ok {
			byType = make(map[domain.EventType]int64)
			counts[e.UserID] = byType
		}
		byType[e.EventType]++
	}
	return counts, nil
}

// Verify interface compliance at compile time.
var _ storage.EngagementEventStore = (*EngagementEventStore)(nil)
