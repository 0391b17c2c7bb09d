package memory

import (
	"context"
	"sort"
	"sync"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

type snapshotKey struct {
	roundID   string
	publicKey string
}

// HolderSnapshotStore is an in-memory implementation of storage.HolderSnapshotStore.
type HolderSnapshotStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.HolderSnapshot
}

// NewHolderSnapshotStore creates a new in-memory holder snapshot store.
func NewHolderSnapshotStore() *HolderSnapshotStore {
	return &HolderSnapshotStore{
		data: make(map[snapshotKey]*domain.HolderSnapshot),
	}
}

// replaceForRound drops any existing entries for a round and installs the
// given ones. Called by DividendRoundStore.CompleteSnapshot while it holds
// the round lock.
func (s *HolderSnapshotStore) replaceForRound(roundID string, snaps []*domain.HolderSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.data {
		if key.roundID == roundID {
			delete(s.data, key)
		}
	}

	for _, snap := range snaps {
		key := snapshotKey{roundID: snap.RoundID, publicKey: snap.PublicKey}
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		snapCopy := *snap
		s.data[key] = &snapCopy
	}
	return nil
}

// GetByRoundAndKey retrieves one holder's snapshot entry.
func (s *HolderSnapshotStore) GetByRoundAndKey(_ context.Context, roundID, publicKey string) (*domain.HolderSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.data[snapshotKey{roundID: roundID, publicKey: publicKey}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	snapCopy := *snap
	return &snapCopy, nil
}

// ListByRound retrieves a page of snapshot entries for a round, ordered by
// public_key ASC.
func (s *HolderSnapshotStore) ListByRound(_ context.Context, roundID string, afterKey string, limit int) ([]*domain.HolderSnapshot, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.HolderSnapshot
	for key, snap := range s.data {
		if key.roundID != roundID {
			continue
		}
		if afterKey != "" && key.publicKey <= afterKey {
			continue
		}
		snapCopy := *snap
		result = append(result, &snapCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PublicKey < result[j].PublicKey
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// RecordClaim marks one holder's payout as claimed exactly once.
func (s *HolderSnapshotStore) RecordClaim(_ context.Context, roundID, publicKey string, txHash string, claimedAt int64) error {
	if txHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, exists := s.data[snapshotKey{roundID: roundID, publicKey: publicKey}]
	if !exists {
		return storage.ErrNotFound
	}
	if snap.ClaimedAt != nil {
		return storage.ErrAlreadyClaimed
	}

	at := claimedAt
	hash := txHash
	snap.ClaimedAt = &at
	snap.TxHash = &hash
	return nil
}

// Verify interface compliance at compile time.
var _ storage.HolderSnapshotStore = (*HolderSnapshotStore)(nil)
