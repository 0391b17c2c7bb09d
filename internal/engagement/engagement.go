package engagement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
	"pi-launchpad/internal/storage"
)

// Service errors
var (
	ErrWindowClosed = errors.New("engagement window is not open")
	ErrNotClosed    = errors.New("participation window is not closed yet")
	ErrAlreadyDone  = errors.New("engagement snapshot already taken")
)

// DefaultWeight is applied to event categories missing from the weight table.
const DefaultWeight int64 = 1

// Weights maps event categories to their score contribution per event.
var Weights = map[domain.EventType]int64{
	domain.EventTypeRegistration: 1,
	domain.EventTypeMilestone:    2,
	domain.EventTypeReferral:     1,
	domain.EventTypeDailyActive:  1,
}

// Service ingests engagement events and assigns scores, ranks, and tiers.
type Service struct {
	launches       storage.LaunchStore
	participations storage.ParticipationStore
	events         storage.EngagementEventStore
	now            func() int64
}

// ServiceOptions contains configuration for creating a Service.
type ServiceOptions struct {
	LaunchStore          storage.LaunchStore
	ParticipationStore   storage.ParticipationStore
	EngagementEventStore storage.EngagementEventStore

	// Now overrides the clock (Unix ms), for tests.
	Now func() int64
}

// NewService creates an engagement service.
func NewService(opts ServiceOptions) *Service {
	s := &Service{
		launches:       opts.LaunchStore,
		participations: opts.ParticipationStore,
		events:         opts.EngagementEventStore,
		now:            opts.Now,
	}
	if s.now == nil {
		s.now = func() int64 { return time.Now().UnixMilli() }
	}
	return s
}

// Ingest appends one engagement event. Events are accepted only while the
// launch is participation_open. No deduplication is applied: submitting the
// same activity twice scores it twice.
func (s *Service) Ingest(ctx context.Context, launchID, userID string, eventType domain.EventType, payload string, at int64) (*domain.EngagementEvent, error) {
	launch, err := s.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}
	if launch.Status != domain.StatusParticipationOpen {
		return nil, fmt.Errorf("%w: launch %s is %s", ErrWindowClosed, launchID, launch.Status)
	}

	now := s.now()
	if at <= 0 {
		at = now
	}

	event := &domain.EngagementEvent{
		LaunchID:  launchID,
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
		At:        at,
		CreatedAt: now,
	}

	if err := s.events.Insert(ctx, event); err != nil {
		return nil, err
	}

	return event, nil
}

// ScoreOf computes the user's current engagement score: the weighted count
// of their events in the launch. Scores are integral; there is no decay.
func (s *Service) ScoreOf(ctx context.Context, launchID, userID string) (int64, error) {
	counts, err := s.events.CountByUser(ctx, launchID, userID)
	if err != nil {
		return 0, err
	}
	return scoreFromCounts(counts), nil
}

func scoreFromCounts(counts map[domain.EventType]int64) int64 {
	var score int64
	for eventType, count := range counts {
		weight, ok := Weights[eventType]
		if !ok {
			weight = DefaultWeight
		}
		score += weight * count
	}
	return score
}

// SnapshotResult summarizes one engagement snapshot run.
type SnapshotResult struct {
	LaunchID     string
	Participants int
	TopCount     int
	MidCount     int
	BottomCount  int
	SnapshotAt   int64
}

// Snapshot scores every participation in the launch, ranks them, assigns
// tiers, and persists the result once. It requires the launch to be
// participation_closed and not yet snapshotted.
//
// Ranking sorts by score descending; equal scores order by participation
// creation time ascending, then user id, so repeated runs over unchanged
// input produce identical tiers. Tier sizes follow the ceiling split:
// top and mid each take ceil(n/3) (mid capped at what remains), bottom
// absorbs the rest.
//
// The per-participation writes are re-runnable; the launch-level snapshot
// marker is the commit point. A second run after success fails with
// ErrAlreadyDone and changes nothing.
func (s *Service) Snapshot(ctx context.Context, launchID string) (*SnapshotResult, error) {
	launch, err := s.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err
	}
	if launch.Status != domain.StatusParticipationClosed {
		return nil, fmt.Errorf("%w: launch %s is %s", ErrNotClosed, launchID, launch.Status)
	}
	if launch.SnapshotDone() {
		return nil, fmt.Errorf("%w: launch %s", ErrAlreadyDone, launchID)
	}

	participations, err := s.participations.GetAllByLaunch(ctx, launchID)
	if err != nil {
		return nil, err
	}

	counts, err := s.events.CountByLaunch(ctx, launchID)
	if err != nil {
		return nil, err
	}

	ranked := rankParticipations(participations, counts)

	n := len(ranked)
	topCount, midCount, bottomCount := tierCounts(n)

	updates := make([]*storage.EngagementUpdate, n)
	for i, entry := range ranked {
		tier := domain.TierBottom
		switch {
		case i < topCount:
			tier = domain.TierTop
		case i < topCount+midCount:
			tier = domain.TierMid
		}
		updates[i] = &storage.EngagementUpdate{
			ParticipationID: entry.participation.ParticipationID,
			Score:           fixedpoint.Format(decimal.NewFromInt(entry.score)),
			Rank:            i + 1,
			Tier:            tier,
		}
	}

	if n > 0 {
		if err := s.participations.UpdateEngagementBatch(ctx, launchID, updates); err != nil {
			return nil, err
		}
	}

	snapshotAt := s.now()
	if err := s.launches.MarkEngagementSnapshot(ctx, launchID, snapshotAt); err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: launch %s", ErrAlreadyDone, launchID)
		}
		return nil, err
	}

	return &SnapshotResult{
		LaunchID:     launchID,
		Participants: n,
		TopCount:     topCount,
		MidCount:     midCount,
		BottomCount:  bottomCount,
		SnapshotAt:   snapshotAt,
	}, nil
}

type rankedEntry struct {
	participation *domain.Participation
	score         int64
}

func rankParticipations(participations []*domain.Participation, counts map[string]map[domain.EventType]int64) []rankedEntry {
	ranked := make([]rankedEntry, len(participations))
	for i, p := range participations {
		ranked[i] = rankedEntry{
			participation: p,
			score:         scoreFromCounts(counts[p.UserID]),
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.participation.CreatedAt != b.participation.CreatedAt {
			return a.participation.CreatedAt < b.participation.CreatedAt
		}
		return a.participation.UserID < b.participation.UserID
	})

	return ranked
}

// tierCounts splits n ranked participations into tiers. Top and mid each
// target ceil(n/3); bottom takes the remainder. Counts never go negative,
// even for very small n.
func tierCounts(n int) (top, mid, bottom int) {
	top = (n + 2) / 3
	mid = (n + 2) / 3
	if top+mid > n {
		mid = n - top
	}
	bottom = n - top - mid
	return top, mid, bottom
}
