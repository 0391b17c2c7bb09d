package reporting

import (
	"time"

	"pi-launchpad/internal/verification"
)

// Report represents one launch's allocation report.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Launch header
	Launch LaunchSummary

	// Allocation outcome (commitments only until allocation runs)
	Allocation AllocationSection

	// Replay verification of the stored rows
	Verification VerificationSection

	// Dividend rounds recorded for the launch
	DividendRounds []DividendRoundRow
}

// LaunchSummary describes the launch a report covers.
type LaunchSummary struct {
	LaunchID           string
	AssetCode          string
	AssetIssuer        string
	Status             string
	IsEquityStyle      bool
	TokensAvailable    string
	ListingPrice       string // empty until allocation runs
	ParticipationStart int64  // Unix ms
	ParticipationEnd   int64  // Unix ms
}

// AllocationSection summarizes the launch's participations.
type AllocationSection struct {
	Participants   int
	TotalCommitted string
	EngagementPool string // empty until allocation runs
	TierCounts     TierCounts
	Lines          []AllocationRow
}

// TierCounts holds the per-tier membership counts from the engagement
// snapshot.
type TierCounts struct {
	Top    int
	Mid    int
	Bottom int
}

// AllocationRow represents one participation in the allocation table,
// ordered by engagement rank. The purchase columns stay empty until the
// allocation has run.
type AllocationRow struct {
	Rank            int
	UserID          string
	Tier            string
	EngagementScore string
	CommittedPi     string
	PurchasedTokens string
	BonusTokens     string
	AllocatedTokens string
}

// VerificationSection carries the replay verification outcome.
type VerificationSection struct {
	Checked     bool // false until the launch reaches tge_open
	Match       bool
	Divergences []verification.FieldDivergence
}

// DividendRoundRow summarizes one dividend round in the launch report.
type DividendRoundRow struct {
	RoundID           string
	RecordAt          int64 // Unix ms
	Status            string
	TotalPayoutAmount string
	EligibleHolders   int
	ClaimedHolders    int
}

// RoundReport represents one dividend round's report.
type RoundReport struct {
	GeneratedAt time.Time
	Round       RoundSummary
	Holders     []HolderRow
}

// RoundSummary describes the round a report covers.
type RoundSummary struct {
	RoundID             string
	LaunchID            string
	AssetCode           string
	AssetIssuer         string
	RecordAt            int64 // Unix ms
	Status              string
	TotalPayoutAmount   string
	TotalEligibleSupply string // empty until the snapshot runs
	EligibleHolders     int
	ClaimedHolders      int
}

// HolderRow represents one holder's entitlement in the round table.
type HolderRow struct {
	PublicKey     string
	TokenBalance  string
	ShareOfSupply string
	PayoutAmount  string
	Claimed       bool
	TxHash        string
}
