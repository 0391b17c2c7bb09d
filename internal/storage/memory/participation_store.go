package memory

import (
	"context"
	"sort"
	"sync"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
	"pi-launchpad/internal/storage"

	"github.com/shopspring/decimal"
)

// ParticipationStore is an in-memory implementation of storage.ParticipationStore.
type ParticipationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Participation // keyed by participation_id
}

// NewParticipationStore creates a new in-memory participation store.
func NewParticipationStore() *ParticipationStore {
	return &ParticipationStore{
		data: make(map[string]*domain.Participation),
	}
}

// Insert adds a new participation. Returns ErrDuplicateKey if participation_id exists.
func (s *ParticipationStore) Insert(_ context.Context, p *domain.Participation) error {
	if p == nil || p.ParticipationID == "" || p.LaunchID == "" || p.UserID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ParticipationID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	participationCopy := *p
	s.data[p.ParticipationID] = &participationCopy
	return nil
}

// GetByID retrieves a participation by its ID. Returns ErrNotFound if not exists.
func (s *ParticipationStore) GetByID(_ context.Context, participationID string) (*domain.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[participationID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	participationCopy := *p
	return &participationCopy, nil
}

// GetAllByLaunch retrieves every participation for a launch, ordered by
// created_at ASC, user_id ASC.
func (s *ParticipationStore) GetAllByLaunch(_ context.Context, launchID string) ([]*domain.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Participation
	for _, p := range s.data {
		if p.LaunchID == launchID {
			participationCopy := *p
			result = append(result, &participationCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].UserID < result[j].UserID
	})

	return result, nil
}

// ListByLaunch retrieves a page of participations for a launch, ordered by
// created_at ASC, participation_id ASC.
func (s *ParticipationStore) ListByLaunch(_ context.Context, launchID string, afterID string, limit int) ([]*domain.Participation, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursor *domain.Participation
	if afterID != "" {
		c, exists := s.data[afterID]
		if !exists {
			return nil, storage.ErrNotFound
		}
		cursor = c
	}

	var result []*domain.Participation
	for _, p := range s.data {
		if p.LaunchID != launchID {
			continue
		}
		if cursor != nil && !participationAfter(p, cursor) {
			continue
		}
		participationCopy := *p
		result = append(result, &participationCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ParticipationID < result[j].ParticipationID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// participationAfter reports whether p sorts strictly after the cursor row.
func participationAfter(p, cursor *domain.Participation) bool {
	if p.CreatedAt != cursor.CreatedAt {
		return p.CreatedAt > cursor.CreatedAt
	}
	return p.ParticipationID > cursor.ParticipationID
}

// ApplyCommit refreshes staked_pi and pi_power and adds amount to committed_pi
// while the cap holds.
func (s *ParticipationStore) ApplyCommit(_ context.Context, participationID string, amount, power, stakedPi string) error {
	amountDec, err := fixedpoint.Parse(amount)
	if err != nil {
		return storage.ErrInvalidInput
	}
	powerDec, err := fixedpoint.Parse(power)
	if err != nil {
		return storage.ErrInvalidInput
	}
	if _, err := fixedpoint.Parse(stakedPi); err != nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[participationID]
	if !exists {
		return storage.ErrNotFound
	}

	committed, err := fixedpoint.Parse(p.CommittedPi)
	if err != nil {
		return storage.ErrInvalidInput
	}

	next := committed.Add(amountDec)
	if next.GreaterThan(powerDec) {
		return storage.ErrCapExceeded
	}

	p.StakedPi = stakedPi
	p.PiPower = power
	p.CommittedPi = fixedpoint.Format(next)
	p.UpdatedAt = nowMillis()
	return nil
}

// UpdateEngagementBatch writes snapshotted engagement results for a launch.
// All rows are applied or none.
func (s *ParticipationStore) UpdateEngagementBatch(_ context.Context, launchID string, updates []*storage.EngagementUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating anything.
	for _, u := range updates {
		if u == nil || u.ParticipationID == "" {
			return storage.ErrInvalidInput
		}
		p, exists := s.data[u.ParticipationID]
		if !exists || p.LaunchID != launchID {
			return storage.ErrNotFound
		}
	}

	now := nowMillis()
	for _, u := range updates {
		p := s.data[u.ParticipationID]
		score := u.Score
		rank := u.Rank
		tier := u.Tier
		p.EngagementScore = &score
		p.EngagementRank = &rank
		p.Tier = &tier
		p.UpdatedAt = now
	}
	return nil
}

// UpdateAllocationBatch writes final allocation results for a launch.
// All rows are applied or none.
func (s *ParticipationStore) UpdateAllocationBatch(_ context.Context, launchID string, updates []*storage.AllocationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating anything.
	for _, u := range updates {
		if u == nil || u.ParticipationID == "" {
			return storage.ErrInvalidInput
		}
		p, exists := s.data[u.ParticipationID]
		if !exists || p.LaunchID != launchID {
			return storage.ErrNotFound
		}
	}

	now := nowMillis()
	for _, u := range updates {
		p := s.data[u.ParticipationID]
		allocated := u.AllocatedTokens
		price := u.EffectivePrice
		p.AllocatedTokens = &allocated
		p.EffectivePrice = &price
		p.UpdatedAt = now
	}
	return nil
}

// SumCommitted returns the total committed_pi across a launch.
func (s *ParticipationStore) SumCommitted(_ context.Context, launchID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, p := range s.data {
		if p.LaunchID != launchID {
			continue
		}
		committed, err := fixedpoint.Parse(p.CommittedPi)
		if err != nil {
			return "", storage.ErrInvalidInput
		}
		sum = sum.Add(committed)
	}

	return fixedpoint.Format(sum), nil
}

// Verify interface compliance at compile time.
var _ storage.ParticipationStore = (*ParticipationStore)(nil)
