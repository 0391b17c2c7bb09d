// Package verification checks persisted allocation outcomes by replaying
// the computation from the stored inputs and comparing field by field.
package verification

import (
	"context"

	"github.com/shopspring/decimal"

	"pi-launchpad/internal/allocation"
	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
)

// Tolerance is the absolute tolerance for value comparisons: one unit in
// the seventh digit, the precision every stored value carries.
var Tolerance = decimal.New(1, -7)

// FieldDivergence represents a failed check on one field.
type FieldDivergence struct {
	Field    string // field name, prefixed with the user ID for per-row checks
	Expected string // recomputed value, or the bound the check enforces
	Actual   string // stored value
}

// Result contains the outcome of verifying one launch's allocation.
type Result struct {
	LaunchID     string            // verified launch ID
	Match        bool              // true if every check passed
	Participants int               // stored rows checked
	Divergences  []FieldDivergence // failed checks
}

// Report contains results for batch verification.
type Report struct {
	TotalLaunches     int      // launches verified
	MatchedLaunches   int      // launches with no divergences
	DivergentLaunches int      // launches with at least one divergence
	Results           []Result // individual results
}

// Verifier checks stored allocation outcomes against a fresh recomputation.
type Verifier interface {
	// VerifyLaunch verifies a single launch by ID.
	// It loads the stored rows, recomputes the allocation from the same
	// inputs, and compares field by field.
	VerifyLaunch(ctx context.Context, launchID string) (*Result, error)

	// VerifyAll verifies every launch that has reached tge_open.
	// Returns a report with individual results.
	VerifyAll(ctx context.Context) (*Report, error)
}

// CompareAllocation checks a launch's stored allocation against a
// recomputed result. Single values compare within Tolerance; the
// whole-launch identities scale it by the row count to absorb per-row
// rounding.
func CompareAllocation(launch *domain.Launch, stored []*domain.Participation, replayed *allocation.Result) []FieldDivergence {
	var divergences []FieldDivergence

	// The stored clearing price must match the recomputed one.
	if launch.ListingPrice == nil {
		divergences = append(divergences, FieldDivergence{
			Field:    "listing_price",
			Expected: replayed.ListingPrice,
			Actual:   "",
		})
	} else if d := diffDecimal("listing_price", *launch.ListingPrice, replayed.ListingPrice, Tolerance); d != nil {
		divergences = append(divergences, *d)
	}

	lines := make(map[string]allocation.Line, len(replayed.Lines))
	for _, line := range replayed.Lines {
		lines[line.ParticipationID] = line
	}

	for _, p := range stored {
		line, ok := lines[p.ParticipationID]
		if !ok {
			divergences = append(divergences, FieldDivergence{
				Field:    p.UserID + ".allocated_tokens",
				Expected: "",
				Actual:   stringValue(p.AllocatedTokens),
			})
			continue
		}

		if p.AllocatedTokens == nil {
			divergences = append(divergences, FieldDivergence{
				Field:    p.UserID + ".allocated_tokens",
				Expected: line.AllocatedTokens,
				Actual:   "",
			})
		} else if d := diffDecimal(p.UserID+".allocated_tokens", *p.AllocatedTokens, line.AllocatedTokens, Tolerance); d != nil {
			divergences = append(divergences, *d)
		}

		if p.EffectivePrice == nil {
			divergences = append(divergences, FieldDivergence{
				Field:    p.UserID + ".effective_price",
				Expected: line.EffectivePrice,
				Actual:   "",
			})
		} else if d := diffDecimal(p.UserID+".effective_price", *p.EffectivePrice, line.EffectivePrice, Tolerance); d != nil {
			divergences = append(divergences, *d)
		}

		// A commitment can never exceed the row's PiPower cap.
		committed, cErr := fixedpoint.Parse(p.CommittedPi)
		power, pErr := fixedpoint.Parse(p.PiPower)
		if cErr == nil && pErr == nil && committed.GreaterThan(power) {
			divergences = append(divergences, FieldDivergence{
				Field:    p.UserID + ".committed_over_power",
				Expected: p.PiPower,
				Actual:   p.CommittedPi,
			})
		}
	}

	return append(divergences, compareAggregates(stored, replayed)...)
}

// compareAggregates checks the two whole-launch identities: purchases
// reconstruct the committed total at the clearing price, and bonuses sum
// to one equal third of the 5% pool per tier with a positive score sum.
func compareAggregates(stored []*domain.Participation, replayed *allocation.Result) []FieldDivergence {
	price, err := fixedpoint.Parse(replayed.ListingPrice)
	if err != nil || !price.IsPositive() {
		// The listing price check has already flagged this.
		return nil
	}

	// Recomputed values come out of the fixed-point formatter, so parse
	// errors cannot occur here and zero contributions are harmless.
	purchasedSum := decimal.Zero
	bonusSum := decimal.Zero
	for _, line := range replayed.Lines {
		purchased, _ := fixedpoint.Parse(line.PurchasedTokens)
		bonus, _ := fixedpoint.Parse(line.BonusTokens)
		purchasedSum = purchasedSum.Add(purchased)
		bonusSum = bonusSum.Add(bonus)
	}

	// Each row rounds at the seventh digit, so the identities drift by at
	// most half a unit per row.
	rowTolerance := Tolerance.Mul(decimal.NewFromInt(int64(len(replayed.Lines)) + 1))

	var divergences []FieldDivergence

	total, _ := fixedpoint.Parse(replayed.TotalCommitted)
	reconstructed := purchasedSum.Mul(price)
	reconTolerance := rowTolerance
	if price.GreaterThan(decimal.NewFromInt(1)) {
		reconTolerance = reconTolerance.Mul(price)
	}
	if reconstructed.Sub(total).Abs().GreaterThan(reconTolerance) {
		divergences = append(divergences, FieldDivergence{
			Field:    "purchase_reconstruction",
			Expected: fixedpoint.Format(total),
			Actual:   fixedpoint.Format(reconstructed),
		})
	}

	// A tier pot only pays out when its score sum is positive.
	pool, _ := fixedpoint.Parse(replayed.EngagementPool)
	tierShare := fixedpoint.Div(pool, decimal.NewFromInt(3))

	tierScores := make(map[domain.Tier]decimal.Decimal)
	for _, p := range stored {
		if p.Tier == nil || p.EngagementScore == nil {
			continue
		}
		score, err := fixedpoint.Parse(*p.EngagementScore)
		if err != nil {
			continue
		}
		tierScores[*p.Tier] = tierScores[*p.Tier].Add(score)
	}

	expectedBonus := decimal.Zero
	for _, sum := range tierScores {
		if sum.IsPositive() {
			expectedBonus = expectedBonus.Add(tierShare)
		}
	}

	if bonusSum.Sub(expectedBonus).Abs().GreaterThan(rowTolerance) {
		divergences = append(divergences, FieldDivergence{
			Field:    "bonus_pool",
			Expected: fixedpoint.Format(expectedBonus),
			Actual:   fixedpoint.Format(bonusSum),
		})
	}

	return divergences
}

// diffDecimal reports a divergence when the stored value differs from the
// recomputed one by more than the tolerance. An unparsable value on
// either side always diverges.
func diffDecimal(field, stored, recomputed string, tolerance decimal.Decimal) *FieldDivergence {
	s, sErr := fixedpoint.Parse(stored)
	r, rErr := fixedpoint.Parse(recomputed)
	if sErr != nil || rErr != nil || s.Sub(r).Abs().GreaterThan(tolerance) {
		return &FieldDivergence{Field: field, Expected: recomputed, Actual: stored}
	}
	return nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
