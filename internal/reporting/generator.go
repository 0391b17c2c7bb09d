package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pi-launchpad/internal/allocation"
	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
	"pi-launchpad/internal/storage"
	"pi-launchpad/internal/verification"
)

// reportPageSize is the holder page size used when walking a round's
// snapshot rows.
const reportPageSize = 500

// Generator produces reports from stored data.
type Generator struct {
	launches       storage.LaunchStore
	participations storage.ParticipationStore
	rounds         storage.DividendRoundStore
	holders        storage.HolderSnapshotStore
	now            func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	launches storage.LaunchStore,
	participations storage.ParticipationStore,
	rounds storage.DividendRoundStore,
	holders storage.HolderSnapshotStore,
) *Generator {
	return &Generator{
		launches:       launches,
		participations: participations,
		rounds:         rounds,
		holders:        holders,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a launch allocation report. Before the allocation has
// run the report lists commitments; afterwards it carries the full
// purchase breakdown plus the replay verification of the stored rows.
func (g *Generator) Generate(ctx context.Context, launchID string) (*Report, error) {
	launch, err := g.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	participations, err := g.participations.GetAllByLaunch(ctx, launchID)
	if err != nil {
		return nil, err
	}

	summary := LaunchSummary{
		LaunchID:           launch.LaunchID,
		AssetCode:          launch.AssetCode,
		AssetIssuer:        launch.AssetIssuer,
		Status:             launch.Status.String(),
		IsEquityStyle:      launch.IsEquityStyle,
		TokensAvailable:    launch.TokensAvailable,
		ParticipationStart: launch.ParticipationStart,
		ParticipationEnd:   launch.ParticipationEnd,
	}
	if launch.ListingPrice != nil {
		summary.ListingPrice = *launch.ListingPrice
	}

	allocSection, verifSection, err := g.generateAllocation(launch, participations)
	if err != nil {
		return nil, err
	}

	roundRows, err := g.generateRoundRows(ctx, launchID)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt:    g.now(),
		Launch:         summary,
		Allocation:     *allocSection,
		Verification:   *verifSection,
		DividendRounds: roundRows,
	}, nil
}

// GenerateRound produces a dividend round report with the full holder
// table.
func (g *Generator) GenerateRound(ctx context.Context, roundID string) (*RoundReport, error) {
	round, err := g.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	snaps, err := g.loadHolders(ctx, roundID)
	if err != nil {
		return nil, err
	}

	holders := make([]HolderRow, len(snaps))
	claimed := 0
	for i, snap := range snaps {
		row := HolderRow{
			PublicKey:     snap.PublicKey,
			TokenBalance:  snap.TokenBalance,
			ShareOfSupply: snap.ShareOfSupply,
			PayoutAmount:  snap.PayoutAmount,
			Claimed:       snap.Claimed(),
		}
		if snap.TxHash != nil {
			row.TxHash = *snap.TxHash
		}
		if row.Claimed {
			claimed++
		}
		holders[i] = row
	}

	summary := RoundSummary{
		RoundID:           round.RoundID,
		LaunchID:          round.LaunchID,
		AssetCode:         round.PayoutAssetCode,
		AssetIssuer:       round.PayoutAssetIssuer,
		RecordAt:          round.RecordAt,
		Status:            round.Status.String(),
		TotalPayoutAmount: round.TotalPayoutAmount,
		ClaimedHolders:    claimed,
	}
	if round.TotalEligibleSupply != nil {
		summary.TotalEligibleSupply = *round.TotalEligibleSupply
	}
	if round.EligibleHoldersCount != nil {
		summary.EligibleHolders = *round.EligibleHoldersCount
	}

	return &RoundReport{
		GeneratedAt: g.now(),
		Round:       summary,
		Holders:     holders,
	}, nil
}

// generateAllocation builds the allocation and verification sections.
func (g *Generator) generateAllocation(launch *domain.Launch, participations []*domain.Participation) (*AllocationSection, *VerificationSection, error) {
	section := &AllocationSection{
		Participants: len(participations),
		TierCounts:   countTiers(participations),
	}

	if launch.Status == domain.StatusTGEOpen && launch.ListingPrice != nil {
		replayed, err := allocation.Replay(launch, participations)
		if err != nil {
			return nil, nil, fmt.Errorf("replay launch %s: %w", launch.LaunchID, err)
		}

		section.TotalCommitted = replayed.TotalCommitted
		section.EngagementPool = replayed.EngagementPool
		section.Lines = make([]AllocationRow, len(replayed.Lines))
		for i, line := range replayed.Lines {
			section.Lines[i] = AllocationRow{
				Rank:            line.Rank,
				UserID:          line.UserID,
				Tier:            line.Tier.String(),
				EngagementScore: line.EngagementScore,
				CommittedPi:     line.CommittedPi,
				PurchasedTokens: line.PurchasedTokens,
				BonusTokens:     line.BonusTokens,
				AllocatedTokens: line.AllocatedTokens,
			}
		}

		divergences := verification.CompareAllocation(launch, participations, replayed)
		return section, &VerificationSection{
			Checked:     true,
			Match:       len(divergences) == 0,
			Divergences: divergences,
		}, nil
	}

	// Pre-allocation: list commitments in rank order where ranks exist,
	// store order otherwise.
	ordered := make([]*domain.Participation, len(participations))
	copy(ordered, participations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rankOf(ordered[i]) < rankOf(ordered[j])
	})

	total := decimal.Zero
	section.Lines = make([]AllocationRow, len(ordered))
	for i, p := range ordered {
		committed, err := fixedpoint.Parse(p.CommittedPi)
		if err != nil {
			return nil, nil, fmt.Errorf("participation %s committed pi: %w", p.ParticipationID, err)
		}
		total = total.Add(committed)

		row := AllocationRow{
			UserID:      p.UserID,
			CommittedPi: p.CommittedPi,
		}
		if p.EngagementRank != nil {
			row.Rank = *p.EngagementRank
		}
		if p.Tier != nil {
			row.Tier = p.Tier.String()
		}
		if p.EngagementScore != nil {
			row.EngagementScore = *p.EngagementScore
		}
		section.Lines[i] = row
	}
	section.TotalCommitted = fixedpoint.Format(total)

	return section, &VerificationSection{}, nil
}

// generateRoundRows summarizes every dividend round of a launch.
func (g *Generator) generateRoundRows(ctx context.Context, launchID string) ([]DividendRoundRow, error) {
	rounds, err := g.rounds.ListByLaunch(ctx, launchID)
	if err != nil {
		return nil, err
	}

	rows := make([]DividendRoundRow, len(rounds))
	for i, round := range rounds {
		snaps, err := g.loadHolders(ctx, round.RoundID)
		if err != nil {
			return nil, err
		}
		claimed := 0
		for _, snap := range snaps {
			if snap.Claimed() {
				claimed++
			}
		}

		row := DividendRoundRow{
			RoundID:           round.RoundID,
			RecordAt:          round.RecordAt,
			Status:            round.Status.String(),
			TotalPayoutAmount: round.TotalPayoutAmount,
			ClaimedHolders:    claimed,
		}
		if round.EligibleHoldersCount != nil {
			row.EligibleHolders = *round.EligibleHoldersCount
		}
		rows[i] = row
	}

	return rows, nil
}

// loadHolders walks every snapshot page of a round.
func (g *Generator) loadHolders(ctx context.Context, roundID string) ([]*domain.HolderSnapshot, error) {
	var all []*domain.HolderSnapshot
	afterKey := ""
	for {
		page, err := g.holders.ListByRound(ctx, roundID, afterKey, reportPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < reportPageSize {
			return all, nil
		}
		afterKey = page[len(page)-1].PublicKey
	}
}

func countTiers(participations []*domain.Participation) TierCounts {
	var counts TierCounts
	for _, p := range participations {
		if p.Tier == nil {
			continue
		}
		switch *p.Tier {
		case domain.TierTop:
			counts.Top++
		case domain.TierMid:
			counts.Mid++
		case domain.TierBottom:
			counts.Bottom++
		}
	}
	return counts
}

// rankOf orders participations by engagement rank; unranked rows sort
// last.
func rankOf(p *domain.Participation) int {
	if p.EngagementRank == nil {
		return math.MaxInt
	}
	return *p.EngagementRank
}
