package domain

// EventType is the category key of a scored activity.
type EventType string

// Known event categories. Unknown categories are still accepted and scored
// with the default weight.
const (
	EventTypeRegistration EventType = "registration"
	EventTypeMilestone    EventType = "milestone"
	EventTypeReferral     EventType = "referral"
	EventTypeDailyActive  EventType = "daily_active"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// EngagementEvent is one scored activity by one user in one launch.
// Append-only: rows are never mutated or deleted; scores are derived by
// aggregating this log. Duplicates are allowed and count twice.
// Corresponds to engagement_events table in PostgreSQL (and ClickHouse).
type EngagementEvent struct {
	LaunchID  string    // FK to launches
	UserID    string    // platform user id
	EventType EventType // category key
	Payload   string    // free-form payload
	At        int64     // activity timestamp, Unix milliseconds
	CreatedAt int64     // record creation timestamp (ms)
}
