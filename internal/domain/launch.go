package domain

// LaunchStatus represents the lifecycle state of a launch.
type LaunchStatus string

const (
	StatusDraft               LaunchStatus = "draft"
	StatusParticipationOpen   LaunchStatus = "participation_open"
	StatusParticipationClosed LaunchStatus = "participation_closed"
	StatusAllocationRunning   LaunchStatus = "allocation_running"
	StatusTGEOpen             LaunchStatus = "tge_open"
)

// String returns the string representation of LaunchStatus.
func (s LaunchStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s LaunchStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusParticipationOpen, StatusParticipationClosed,
		StatusAllocationRunning, StatusTGEOpen:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal
// forward transition. The lifecycle is strictly monotonic:
// draft → participation_open → participation_closed → allocation_running → tge_open.
func (s LaunchStatus) CanTransitionTo(next LaunchStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusParticipationOpen
	case StatusParticipationOpen:
		return next == StatusParticipationClosed
	case StatusParticipationClosed:
		return next == StatusAllocationRunning
	case StatusAllocationRunning:
		return next == StatusTGEOpen
	}
	return false
}

// AllocationDesign1 is the single-clearing-price allocation design.
// It is the only design currently supported.
const AllocationDesign1 = 1

// Launch represents one token sale campaign.
// Corresponds to launches table in PostgreSQL.
type Launch struct {
	LaunchID             string       // PRIMARY KEY, deterministic hash
	AssetCode            string       // token asset code
	AssetIssuer          string       // token asset issuer account
	TokensAvailable      string       // total tokens reserved for the sale (decimal string, > 0)
	ParticipationStart   int64        // window start, Unix timestamp in milliseconds
	ParticipationEnd     int64        // window end (ms)
	StakeDurationDays    int          // required stake duration
	AllocationDesign     int          // allocation design, currently always 1
	Status               LaunchStatus // lifecycle state
	PiPowerBaseline      *string      // bonus power ratio for qualifying users (nullable decimal string)
	ListingPrice         *string      // clearing price, set once by allocation (nullable)
	IsEquityStyle        bool         // gates dividend eligibility
	EngagementSnapshotAt *int64       // when the engagement snapshot ran (nullable ms)
	CreatedAt            int64        // record creation timestamp (ms)
	UpdatedAt            int64        // last update timestamp (ms)
}

// SnapshotDone reports whether the engagement snapshot has run for this launch.
func (l *Launch) SnapshotDone() bool {
	return l.EngagementSnapshotAt != nil
}

// WindowClosedAt reports whether the participation window has ended at the
// given instant (ms). The window is [ParticipationStart, ParticipationEnd).
func (l *Launch) WindowClosedAt(nowMs int64) bool {
	return nowMs >= l.ParticipationEnd
}
