package domain

// RoundStatus represents the lifecycle state of a dividend round.
type RoundStatus string

const (
	RoundStatusPending      RoundStatus = "pending"
	RoundStatusSnapshotDone RoundStatus = "snapshot_done"
)

// String returns the string representation of RoundStatus.
func (s RoundStatus) String() string {
	return string(s)
}

// IsValid checks if the round status is a valid value.
func (s RoundStatus) IsValid() bool {
	return s == RoundStatusPending || s == RoundStatusSnapshotDone
}

// DividendRound represents one payout cycle for an equity-style launch.
// Corresponds to dividend_rounds table in PostgreSQL.
type DividendRound struct {
	RoundID              string      // PRIMARY KEY, deterministic hash of launch_id|record_at
	LaunchID             string      // FK to launches
	RecordAt             int64       // snapshot instant, Unix milliseconds
	TotalPayoutAmount    string      // amount distributed this round (decimal string)
	PayoutAssetCode      string      // always the launch's own token
	PayoutAssetIssuer    string      // always the launch's token issuer
	TotalEligibleSupply  *string     // sum of eligible holder balances, set by snapshot (nullable)
	EligibleHoldersCount *int        // number of eligible holders, set by snapshot
	Status               RoundStatus // pending | snapshot_done; never regresses
	CreatedAt            int64       // record creation timestamp (ms)
	UpdatedAt            int64       // last update timestamp (ms)
}

// HolderSnapshot is one holder's entitlement within one dividend round.
// The set of rows for a round is replaced wholesale if the snapshot re-runs
// before the round is marked snapshot_done.
// Corresponds to dividend_holder_snapshots table in PostgreSQL.
type HolderSnapshot struct {
	RoundID       string  // composite PK with public_key
	PublicKey     string  // holder account address
	TokenBalance  string  // balance at snapshot time (decimal string)
	ShareOfSupply string  // token_balance / total_eligible_supply (decimal string)
	PayoutAmount  string  // net payout after the platform fee (decimal string)
	ClaimedAt     *int64  // set once by an external claim confirmation (nullable ms)
	TxHash        *string // on-chain payment hash recorded with the claim (nullable)
	CreatedAt     int64   // record creation timestamp (ms)
}

// Claimed reports whether the payout for this row has been confirmed.
func (h *HolderSnapshot) Claimed() bool {
	return h.ClaimedAt != nil
}
