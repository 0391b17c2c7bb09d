package clickhouse

import (
	"context"
	"fmt"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// EngagementEventStore implements storage.EngagementEventStore using ClickHouse.
// MergeTree keeps the table append-only, which matches the event stream:
// events are never updated or deleted, only counted.
type EngagementEventStore struct {
	conn *Conn
}

// NewEngagementEventStore creates a new EngagementEventStore.
func NewEngagementEventStore(conn *Conn) *EngagementEventStore {
	return &EngagementEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EngagementEventStore = (*EngagementEventStore)(nil)

// Insert adds a single engagement event.
func (s *EngagementEventStore) Insert(ctx context.Context, e *domain.EngagementEvent) error {
	if e == nil {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.EngagementEvent{e})
}

// InsertBulk adds multiple engagement events in one native batch.
func (s *EngagementEventStore) InsertBulk(ctx context.Context, events []*domain.EngagementEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.LaunchID == "" || e.UserID == "" || e.EventType == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO engagement_events (
			launch_id, user_id, event_type, payload, at, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.LaunchID, e.UserID, string(e.EventType),
			e.Payload, e.At, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// CountByUser returns per-event-type counts for one user within a launch.
func (s *EngagementEventStore) CountByUser(ctx context.Context, launchID, userID string) (map[domain.EventType]int64, error) {
	query := `
		SELECT event_type, count(*)
		FROM engagement_events
		WHERE launch_id = ? AND user_id = ?
		GROUP BY event_type
	`

	rows, err := s.conn.Query(ctx, query, launchID, userID)
	if err != nil {
		return nil, fmt.Errorf("count events by user: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int64)
	for rows.Next() {
		var eventType string
		var count uint64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event count row: %w", err)
		}
		counts[domain.EventType(eventType)] = int64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event count rows: %w", err)
	}
	return counts, nil
}

// CountByLaunch returns per-event-type counts for every user within a launch.
func (s *EngagementEventStore) CountByLaunch(ctx context.Context, launchID string) (map[string]map[domain.EventType]int64, error) {
	query := `
		SELECT user_id, event_type, count(*)
		FROM engagement_events
		WHERE launch_id = ?
		GROUP BY user_id, event_type
	`

	rows, err := s.conn.Query(ctx, query, launchID)
	if err != nil {
		return nil, fmt.Errorf("count events by launch: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[domain.EventType]int64)
	for rows.Next() {
		var userID, eventType string
		var count uint64
		if err := rows.Scan(&userID, &eventType, &count); err != nil {
			return nil, fmt.Errorf("scan event count row: %w", err)
		}
		byType, ok := counts[userID]
		if !ok {
			byType = make(map[domain.EventType]int64)
			counts[userID] = byType
		}
		byType[domain.EventType(eventType)] = int64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event count rows: %w", err)
	}
	return counts, nil
}
