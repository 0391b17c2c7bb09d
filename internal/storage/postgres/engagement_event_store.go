package postgres

import (
	"context"
	"fmt"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// EngagementEventStore implements storage.EngagementEventStore using PostgreSQL.
type EngagementEventStore struct {
	pool *Pool
}

// NewEngagementEventStore creates a new EngagementEventStore.
func NewEngagementEventStore(pool *Pool) *EngagementEventStore {
	return &EngagementEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EngagementEventStore = (*EngagementEventStore)(nil)

const insertEngagementEventQuery = `
	INSERT INTO engagement_events (launch_id, user_id, event_type, payload, at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// Insert adds a single engagement event.
func (s *EngagementEventStore) Insert(ctx context.Context, e *domain.EngagementEvent) error {
	if e == nil || e.LaunchID == "" || e.UserID == "" || e.EventType == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertEngagementEventQuery,
		e.LaunchID,
		e.UserID,
		string(e.EventType),
		e.Payload,
		e.At,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert engagement event: %w", err)
	}
	return nil
}

// InsertBulk adds multiple engagement events atomically.
func (s *EngagementEventStore) InsertBulk(ctx context.Context, events []*domain.EngagementEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.LaunchID == "" || e.UserID == "" || e.EventType == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		_, err := tx.Exec(ctx, insertEngagementEventQuery,
			e.LaunchID,
			e.UserID,
			string(e.EventType),
			e.Payload,
			e.At,
			e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert engagement event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CountByUser returns per-event-type counts for one user within a launch.
func (s *EngagementEventStore) CountByUser(ctx context.Context, launchID, userID string) (map[domain.EventType]int64, error) {
	query := `
		SELECT event_type, COUNT(*)
		FROM engagement_events
		WHERE launch_id = $1 AND user_id = $2
		GROUP BY event_type
	`

	rows, err := s.pool.Query(ctx, query, launchID, userID)
	if err != nil {
		return nil, fmt.Errorf("count events by user: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event count row: %w", err)
		}
		counts[domain.EventType(eventType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event count rows: %w", err)
	}
	return counts, nil
}

// CountByLaunch returns per-event-type counts for every user within a launch.
func (s *EngagementEventStore) CountByLaunch(ctx context.Context, launchID string) (map[string]map[domain.EventType]int64, error) {
	query := `
		SELECT user_id, event_type, COUNT(*)
		FROM engagement_events
		WHERE launch_id = $1
		GROUP BY user_id, event_type
	`

	rows, err := s.pool.Query(ctx, query, launchID)
	if err != nil {
		return nil, fmt.Errorf("count events by launch: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[domain.EventType]int64)
	for rows.Next() {
		var userID, eventType string
		var count int64
		if err := rows.Scan(&userID, &eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event count row: %w", err)
		}
		byType, ok := counts[userID]
		if !ok {
			byType = make(map[domain.EventType]int64)
			counts[userID] = byType
		}
		byType[domain.EventType(eventType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event count rows: %w", err)
	}
	return counts, nil
}
