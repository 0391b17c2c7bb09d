package allocation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
	"pi-launchpad/internal/storage"
)

// Engine errors
var (
	ErrNotClosed       = errors.New("launch is not participation_closed")
	ErrAlreadyDone     = errors.New("allocation already ran")
	ErrSnapshotMissing = errors.New("engagement snapshot has not run")
	ErrNoSupply        = errors.New("launch has no tokens available")
	ErrNoCommitments   = errors.New("no positive commitments to allocate")
)

// engagementBonusRate is the slice of supply reserved for the engagement
// bonus pool: 5%.
var engagementBonusRate = decimal.New(5, -2)

// Line is the allocation outcome for one participation.
type Line struct {
	ParticipationID string
	UserID          string
	Rank            int
	Tier            domain.Tier
	EngagementScore string
	CommittedPi     string
	PurchasedTokens string
	BonusTokens     string
	AllocatedTokens string
	EffectivePrice  string
}

// Result summarizes one allocation run.
type Result struct {
	LaunchID       string
	TotalCommitted string
	ListingPrice   string
	EngagementPool string
	Lines          []Line
}

// Engine runs the single-clearing-price allocation.
type Engine struct {
	launches       storage.LaunchStore
	participations storage.ParticipationStore
}

// EngineOptions contains configuration for creating an Engine.
type EngineOptions struct {
	LaunchStore        storage.LaunchStore
	ParticipationStore storage.ParticipationStore
}

// NewEngine creates an allocation engine.
func NewEngine(opts EngineOptions) *Engine {
	return &Engine{
		launches:       opts.LaunchStore,
		participations: opts.ParticipationStore,
	}
}

// Run executes the allocation for a launch at most once.
// Steps:
//  1. Load the launch; it must be participation_closed, snapshotted, and
//     have tokens available
//  2. Load every participation; at least one positive commitment is required
//  3. Compare-and-set participation_closed → allocation_running, which is
//     what makes the run exclusive
//  4. Compute the clearing price p_list = totalCommitted / tokensAvailable
//     and each participation's purchase committed_i / p_list
//  5. Split the 5% engagement pool into equal tier thirds and distribute
//     each third within its tier proportionally to engagement score
//  6. Persist every participation and then flip allocation_running →
//     tge_open with the listing price; that flip is the commit point
//
// On a compute or persist failure the engine reverts to
// participation_closed so the run can be retried.
func (e *Engine) Run(ctx context.Context, launchID string) (*Result, error) {
	// 1. Load the launch and check preconditions
	launch, err := e.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	switch launch.Status {
	case domain.StatusParticipationClosed:
		// proceed
	case domain.StatusAllocationRunning, domain.StatusTGEOpen:
		return nil, fmt.Errorf("%w: launch %s is %s", ErrAlreadyDone, launchID, launch.Status)
	default:
		return nil, fmt.Errorf("%w: launch %s is %s", ErrNotClosed, launchID, launch.Status)
	}

	if !launch.SnapshotDone() {
		return nil, fmt.Errorf("%w: launch %s", ErrSnapshotMissing, launchID)
	}

	available, err := fixedpoint.Parse(launch.TokensAvailable)
	if err != nil {
		return nil, fmt.Errorf("tokens available: %w", err)
	}
	if !available.IsPositive() {
		return nil, fmt.Errorf("%w: launch %s", ErrNoSupply, launchID)
	}

	// 2. Load participations and total the commitments
	participations, err := e.participations.GetAllByLaunch(ctx, launchID)
	if err != nil {
		return nil, err
	}

	totalCommitted := decimal.Zero
	anyPositive := false
	for _, p := range participations {
		committed, err := fixedpoint.Parse(p.CommittedPi)
		if err != nil {
			return nil, fmt.Errorf("participation %s committed pi: %w", p.ParticipationID, err)
		}
		if committed.IsPositive() {
			anyPositive = true
		}
		totalCommitted = totalCommitted.Add(committed)
	}
	if !anyPositive {
		return nil, fmt.Errorf("%w: launch %s", ErrNoCommitments, launchID)
	}

	// 3. Take exclusive ownership of the run
	err = e.launches.UpdateStatus(ctx, launchID,
		domain.StatusParticipationClosed, domain.StatusAllocationRunning)
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: launch %s", ErrAlreadyDone, launchID)
		}
		return nil, err
	}

	result, updates, err := compute(launch, participations, available, totalCommitted)
	if err != nil {
		e.revert(ctx, launchID)
		return nil, err
	}

	// 6. Persist lines, then flip to tge_open with the listing price
	if err := e.participations.UpdateAllocationBatch(ctx, launchID, updates); err != nil {
		e.revert(ctx, launchID)
		return nil, err
	}

	if err := e.launches.FinalizeAllocation(ctx, launchID, result.ListingPrice); err != nil {
		e.revert(ctx, launchID)
		return nil, err
	}

	return result, nil
}

// revert returns the launch to participation_closed after a failed run.
// Best-effort: when the revert itself fails the launch stays
// allocation_running for an operator to resolve.
func (e *Engine) revert(ctx context.Context, launchID string) {
	_ = e.launches.UpdateStatus(ctx, launchID,
		domain.StatusAllocationRunning, domain.StatusParticipationClosed)
}

// Replay recomputes the allocation outcome from already-stored inputs
// without touching storage or launch status. Verification uses it to check
// persisted rows against a fresh computation.
func Replay(launch *domain.Launch, participations []*domain.Participation) (*Result, error) {
	available, err := fixedpoint.Parse(launch.TokensAvailable)
	if err != nil {
		return nil, fmt.Errorf("tokens available: %w", err)
	}
	if !available.IsPositive() {
		return nil, fmt.Errorf("%w: launch %s", ErrNoSupply, launch.LaunchID)
	}

	totalCommitted := decimal.Zero
	anyPositive := false
	for _, p := range participations {
		committed, err := fixedpoint.Parse(p.CommittedPi)
		if err != nil {
			return nil, fmt.Errorf("participation %s committed pi: %w", p.ParticipationID, err)
		}
		if committed.IsPositive() {
			anyPositive = true
		}
		totalCommitted = totalCommitted.Add(committed)
	}
	if !anyPositive {
		return nil, fmt.Errorf("%w: launch %s", ErrNoCommitments, launch.LaunchID)
	}

	result, _, err := compute(launch, participations, available, totalCommitted)
	return result, err
}

// compute derives every allocation line. All quantities round to 7 digits;
// only already-rounded values are summed so the persisted rows are exact.
func compute(launch *domain.Launch, participations []*domain.Participation, available, totalCommitted decimal.Decimal) (*Result, []*storage.AllocationUpdate, error) {
	listingPrice := fixedpoint.Div(totalCommitted, available)
	if !listingPrice.IsPositive() {
		return nil, nil, fmt.Errorf("clearing price %s/%s rounds below asset precision",
			fixedpoint.Format(totalCommitted), fixedpoint.Format(available))
	}

	engagementPool := fixedpoint.Round(available.Mul(engagementBonusRate))
	tierShare := fixedpoint.Div(engagementPool, decimal.NewFromInt(3))

	// Per-tier score totals drive the within-tier bonus split.
	tierScoreSums := make(map[domain.Tier]decimal.Decimal)
	scores := make(map[string]decimal.Decimal, len(participations))
	for _, p := range participations {
		score := decimal.Zero
		if p.EngagementScore != nil {
			parsed, err := fixedpoint.Parse(*p.EngagementScore)
			if err != nil {
				return nil, nil, fmt.Errorf("participation %s engagement score: %w", p.ParticipationID, err)
			}
			score = parsed
		}
		scores[p.ParticipationID] = score
		if p.Tier != nil {
			tierScoreSums[*p.Tier] = tierScoreSums[*p.Tier].Add(score)
		}
	}

	ordered := make([]*domain.Participation, len(participations))
	copy(ordered, participations)
	sort.Slice(ordered, func(i, j int) bool {
		return rankOf(ordered[i]) < rankOf(ordered[j])
	})

	priceStr := fixedpoint.Format(listingPrice)
	result := &Result{
		LaunchID:       launch.LaunchID,
		TotalCommitted: fixedpoint.Format(totalCommitted),
		ListingPrice:   priceStr,
		EngagementPool: fixedpoint.Format(engagementPool),
		Lines:          make([]Line, len(ordered)),
	}
	updates := make([]*storage.AllocationUpdate, len(ordered))

	for i, p := range ordered {
		committed, err := fixedpoint.Parse(p.CommittedPi)
		if err != nil {
			return nil, nil, fmt.Errorf("participation %s committed pi: %w", p.ParticipationID, err)
		}
		purchased := fixedpoint.Div(committed, listingPrice)

		bonus := decimal.Zero
		if p.Tier != nil {
			if sum := tierScoreSums[*p.Tier]; sum.IsPositive() {
				bonus = fixedpoint.Round(tierShare.Mul(scores[p.ParticipationID]).DivRound(sum, 16))
			}
		}

		allocated := purchased.Add(bonus)

		line := Line{
			ParticipationID: p.ParticipationID,
			UserID:          p.UserID,
			EngagementScore: fixedpoint.Format(scores[p.ParticipationID]),
			CommittedPi:     fixedpoint.Format(committed),
			PurchasedTokens: fixedpoint.Format(purchased),
			BonusTokens:     fixedpoint.Format(bonus),
			AllocatedTokens: fixedpoint.Format(allocated),
			EffectivePrice:  priceStr,
		}
		if p.EngagementRank != nil {
			line.Rank = *p.EngagementRank
		}
		if p.Tier != nil {
			line.Tier = *p.Tier
		}
		result.Lines[i] = line

		updates[i] = &storage.AllocationUpdate{
			ParticipationID: p.ParticipationID,
			AllocatedTokens: line.AllocatedTokens,
			EffectivePrice:  priceStr,
		}
	}

	return result, updates, nil
}

// rankOf orders participations by engagement rank; unranked rows sort last.
func rankOf(p *domain.Participation) int {
	if p.EngagementRank == nil {
		return math.MaxInt
	}
	return *p.EngagementRank
}
