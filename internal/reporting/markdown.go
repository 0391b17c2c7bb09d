package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a launch allocation report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Launch Allocation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Launch
	sb.WriteString("## Launch\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Launch ID | %s |\n", r.Launch.LaunchID))
	sb.WriteString(fmt.Sprintf("| Asset | %s / %s |\n", r.Launch.AssetCode, r.Launch.AssetIssuer))
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.Launch.Status))
	sb.WriteString(fmt.Sprintf("| Equity Style | %t |\n", r.Launch.IsEquityStyle))
	sb.WriteString(fmt.Sprintf("| Tokens Available | %s |\n", r.Launch.TokensAvailable))
	if r.Launch.ListingPrice != "" {
		sb.WriteString(fmt.Sprintf("| Listing Price | %s |\n", r.Launch.ListingPrice))
	} else {
		sb.WriteString("| Listing Price | (not allocated) |\n")
	}
	sb.WriteString(fmt.Sprintf("| Window Start (ms) | %d |\n", r.Launch.ParticipationStart))
	sb.WriteString(fmt.Sprintf("| Window End (ms) | %d |\n", r.Launch.ParticipationEnd))
	sb.WriteString("\n")

	// Allocation summary
	sb.WriteString("## Allocation\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Participants | %d |\n", r.Allocation.Participants))
	sb.WriteString(fmt.Sprintf("| Total Committed | %s |\n", r.Allocation.TotalCommitted))
	if r.Allocation.EngagementPool != "" {
		sb.WriteString(fmt.Sprintf("| Engagement Pool | %s |\n", r.Allocation.EngagementPool))
	}
	sb.WriteString(fmt.Sprintf("| Top Tier | %d |\n", r.Allocation.TierCounts.Top))
	sb.WriteString(fmt.Sprintf("| Mid Tier | %d |\n", r.Allocation.TierCounts.Mid))
	sb.WriteString(fmt.Sprintf("| Bottom Tier | %d |\n", r.Allocation.TierCounts.Bottom))
	sb.WriteString("\n")

	// Allocation lines
	sb.WriteString("## Allocation Lines\n\n")
	if len(r.Allocation.Lines) > 0 {
		sb.WriteString("| Rank | User | Tier | Score | Committed | Purchased | Bonus | Allocated |\n")
		sb.WriteString("|------|------|------|-------|-----------|-----------|-------|----------|\n")
		for _, line := range r.Allocation.Lines {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s | %s |\n",
				line.Rank, line.UserID, line.Tier, line.EngagementScore,
				line.CommittedPi, line.PurchasedTokens, line.BonusTokens, line.AllocatedTokens))
		}
	} else {
		sb.WriteString("No participations recorded.\n")
	}
	sb.WriteString("\n")

	// Verification
	sb.WriteString("## Verification\n\n")
	switch {
	case !r.Verification.Checked:
		sb.WriteString("Allocation has not run; nothing to verify.\n\n")
	case r.Verification.Match:
		sb.WriteString("**All checks passed.** Stored rows match the recomputed allocation.\n\n")
	default:
		sb.WriteString("**Divergences found:**\n\n")
		for _, d := range r.Verification.Divergences {
			sb.WriteString(fmt.Sprintf("- %s: expected %s, got %s\n", d.Field, d.Expected, d.Actual))
		}
		sb.WriteString("\n")
	}

	// Dividend rounds
	sb.WriteString("## Dividend Rounds\n\n")
	if len(r.DividendRounds) > 0 {
		sb.WriteString("| Round | Record At (ms) | Status | Payout | Holders | Claimed |\n")
		sb.WriteString("|-------|----------------|--------|--------|---------|--------|\n")
		for _, round := range r.DividendRounds {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %d | %d |\n",
				round.RoundID, round.RecordAt, round.Status,
				round.TotalPayoutAmount, round.EligibleHolders, round.ClaimedHolders))
		}
	} else {
		sb.WriteString("No dividend rounds recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderRoundMarkdown renders a dividend round report as a Markdown string.
func RenderRoundMarkdown(r *RoundReport) string {
	var sb strings.Builder

	sb.WriteString("# Dividend Round Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Round\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Round ID | %s |\n", r.Round.RoundID))
	sb.WriteString(fmt.Sprintf("| Launch ID | %s |\n", r.Round.LaunchID))
	sb.WriteString(fmt.Sprintf("| Asset | %s / %s |\n", r.Round.AssetCode, r.Round.AssetIssuer))
	sb.WriteString(fmt.Sprintf("| Record At (ms) | %d |\n", r.Round.RecordAt))
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.Round.Status))
	sb.WriteString(fmt.Sprintf("| Total Payout | %s |\n", r.Round.TotalPayoutAmount))
	if r.Round.TotalEligibleSupply != "" {
		sb.WriteString(fmt.Sprintf("| Eligible Supply | %s |\n", r.Round.TotalEligibleSupply))
	} else {
		sb.WriteString("| Eligible Supply | (snapshot pending) |\n")
	}
	sb.WriteString(fmt.Sprintf("| Eligible Holders | %d |\n", r.Round.EligibleHolders))
	sb.WriteString(fmt.Sprintf("| Claimed Holders | %d |\n", r.Round.ClaimedHolders))
	sb.WriteString("\n")

	sb.WriteString("## Holders\n\n")
	if len(r.Holders) > 0 {
		sb.WriteString("| Holder | Balance | Share | Payout | Claimed | Tx Hash |\n")
		sb.WriteString("|--------|---------|-------|--------|---------|--------|\n")
		for _, h := range r.Holders {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %t | %s |\n",
				h.PublicKey, h.TokenBalance, h.ShareOfSupply, h.PayoutAmount, h.Claimed, h.TxHash))
		}
	} else {
		sb.WriteString("No holder snapshot recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
