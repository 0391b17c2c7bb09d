package domain

// Tier represents the engagement tier assigned at snapshot time.
type Tier string

const (
	TierTop    Tier = "top"
	TierMid    Tier = "mid"
	TierBottom Tier = "bottom"
)

// String returns the string representation of Tier.
func (t Tier) String() string {
	return string(t)
}

// IsValid checks if the tier is a valid value.
func (t Tier) IsValid() bool {
	return t == TierTop || t == TierMid || t == TierBottom
}

// Participation represents one user's position in one launch.
// Unique per (launch_id, user_id).
// Corresponds to participations table in PostgreSQL.
type Participation struct {
	ParticipationID string  // PRIMARY KEY, deterministic hash of launch_id|user_id
	LaunchID        string  // FK to launches
	UserID          string  // platform user id
	StakedPi        string  // user's staked amount at last commit (decimal string)
	CommittedPi     string  // total committed while the window was open (decimal string)
	PiPower         string  // commitment cap at last commit (decimal string)
	EngagementScore *string // written once by the engagement snapshot (nullable decimal string)
	EngagementRank  *int    // 1-based rank by score, written once by the snapshot
	Tier            *Tier   // top | mid | bottom, written once by the snapshot
	AllocatedTokens *string // written once by allocation (nullable decimal string)
	EffectivePrice  *string // clearing price, identical for the whole cohort (nullable)
	CreatedAt       int64   // record creation timestamp (ms)
	UpdatedAt       int64   // last update timestamp (ms)
}
