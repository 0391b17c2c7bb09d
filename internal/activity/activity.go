package activity

import "context"

// Feed defines the platform activity feed subscription interface.
type Feed interface {
	// SubscribeLaunch subscribes to activity events for one launch.
	SubscribeLaunch(ctx context.Context, launchID string) (<-chan Event, error)

	// Close closes the feed connection.
	Close() error
}

// Event is one activity frame from the platform feed.
type Event struct {
	LaunchID  string `json:"launch_id"`
	UserID    string `json:"user_id"`
	EventType string `json:"event_type"`
	Payload   string `json:"payload"`
	At        int64  `json:"at"` // Unix ms
}
