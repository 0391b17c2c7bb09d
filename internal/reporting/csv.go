package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders allocation lines as a CSV string.
func RenderCSV(lines []AllocationRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("rank,user_id,tier,engagement_score,committed_pi,")
	sb.WriteString("purchased_tokens,bonus_tokens,allocated_tokens\n")

	// Rows
	for _, line := range lines {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%s,%s,%s\n",
			line.Rank,
			line.UserID,
			line.Tier,
			line.EngagementScore,
			line.CommittedPi,
			line.PurchasedTokens,
			line.BonusTokens,
			line.AllocatedTokens,
		))
	}

	return sb.String()
}

// RenderRoundCSV renders a round's holder rows as a CSV string.
func RenderRoundCSV(holders []HolderRow) string {
	var sb strings.Builder

	sb.WriteString("public_key,token_balance,share_of_supply,payout_amount,claimed,tx_hash\n")

	for _, h := range holders {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%t,%s\n",
			h.PublicKey,
			h.TokenBalance,
			h.ShareOfSupply,
			h.PayoutAmount,
			h.Claimed,
			h.TxHash,
		))
	}

	return sb.String()
}
