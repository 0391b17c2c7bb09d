package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// LaunchStore implements storage.LaunchStore using PostgreSQL.
type LaunchStore struct {
	pool *Pool
}

// NewLaunchStore creates a new LaunchStore.
func NewLaunchStore(pool *Pool) *LaunchStore {
	return &LaunchStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LaunchStore = (*LaunchStore)(nil)

const launchColumns = `
	launch_id, asset_code, asset_issuer, tokens_available::text,
	participation_start, participation_end, stake_duration_days, allocation_design,
	status, pi_power_baseline::text, listing_price::text, is_equity_style,
	engagement_snapshot_at, created_at, updated_at
`

// Insert adds a new launch. Returns ErrDuplicateKey if launch_id exists.
func (s *LaunchStore) Insert(ctx context.Context, l *domain.Launch) error {
	query := `
		INSERT INTO launches (
			launch_id, asset_code, asset_issuer, tokens_available,
			participation_start, participation_end, stake_duration_days, allocation_design,
			status, pi_power_baseline, listing_price, is_equity_style,
			engagement_snapshot_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.pool.Exec(ctx, query,
		l.LaunchID,
		l.AssetCode,
		l.AssetIssuer,
		l.TokensAvailable,
		l.ParticipationStart,
		l.ParticipationEnd,
		l.StakeDurationDays,
		l.AllocationDesign,
		l.Status.String(),
		l.PiPowerBaseline,
		l.ListingPrice,
		l.IsEquityStyle,
		l.EngagementSnapshotAt,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert launch: %w", err)
	}
	return nil
}

// GetByID retrieves a launch by its ID. Returns ErrNotFound if not exists.
func (s *LaunchStore) GetByID(ctx context.Context, launchID string) (*domain.Launch, error) {
	query := `SELECT ` + launchColumns + ` FROM launches WHERE launch_id = $1`

	row := s.pool.QueryRow(ctx, query, launchID)
	l, err := scanLaunch(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get launch by id: %w", err)
	}
	return l, nil
}

// List retrieves launches ordered by created_at ASC, launch_id ASC.
func (s *LaunchStore) List(ctx context.Context, status *domain.LaunchStatus, afterID string, limit int) ([]*domain.Launch, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	// Resolve the cursor row first so an unknown cursor is reported
	// instead of silently returning an empty page.
	var cursorCreatedAt int64
	if afterID != "" {
		err := s.pool.QueryRow(ctx, `SELECT created_at FROM launches WHERE launch_id = $1`, afterID).Scan(&cursorCreatedAt)
		if err != nil {
			if isNotFoundError(err) {
				return nil, storage.ErrNotFound
			}
			return nil, fmt.Errorf("resolve launch cursor: %w", err)
		}
	}

	statusStr := ""
	if status != nil {
		statusStr = status.String()
	}

	query := `
		SELECT ` + launchColumns + `
		FROM launches
		WHERE ($1 = '' OR (created_at, launch_id) > ($2, $1))
		  AND ($3 = '' OR status = $3)
		ORDER BY created_at ASC, launch_id ASC
		LIMIT $4
	`

	rows, err := s.pool.Query(ctx, query, afterID, cursorCreatedAt, statusStr, limit)
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	defer rows.Close()

	return scanLaunches(rows)
}

// UpdateStatus transitions a launch from one status to another.
func (s *LaunchStore) UpdateStatus(ctx context.Context, launchID string, from, to domain.LaunchStatus) error {
	query := `
		UPDATE launches
		SET status = $3, updated_at = $4
		WHERE launch_id = $1 AND status = $2
	`

	tag, err := s.pool.Exec(ctx, query, launchID, from.String(), to.String(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update launch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictReason(ctx, launchID)
	}
	return nil
}

// MarkEngagementSnapshot records the engagement snapshot time exactly once.
func (s *LaunchStore) MarkEngagementSnapshot(ctx context.Context, launchID string, at int64) error {
	query := `
		UPDATE launches
		SET engagement_snapshot_at = $2, updated_at = $3
		WHERE launch_id = $1 AND engagement_snapshot_at IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, launchID, at, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark engagement snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictReason(ctx, launchID)
	}
	return nil
}

// FinalizeAllocation sets the listing price and moves the launch from
// allocation_running to tge_open in one conditional update.
func (s *LaunchStore) FinalizeAllocation(ctx context.Context, launchID string, listingPrice string) error {
	if listingPrice == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE launches
		SET listing_price = $2, status = $3, updated_at = $4
		WHERE launch_id = $1 AND status = $5
	`

	tag, err := s.pool.Exec(ctx, query,
		launchID,
		listingPrice,
		domain.StatusTGEOpen.String(),
		time.Now().UnixMilli(),
		domain.StatusAllocationRunning.String(),
	)
	if err != nil {
		return fmt.Errorf("finalize allocation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictReason(ctx, launchID)
	}
	return nil
}

// conflictReason distinguishes a missing launch from a failed condition.
func (s *LaunchStore) conflictReason(ctx context.Context, launchID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM launches WHERE launch_id = $1)`, launchID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check launch exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrStatusConflict
}

// scanLaunch scans a single row into a Launch.
func scanLaunch(row pgx.Row) (*domain.Launch, error) {
	var l domain.Launch
	var statusStr string

	err := row.Scan(
		&l.LaunchID,
		&l.AssetCode,
		&l.AssetIssuer,
		&l.TokensAvailable,
		&l.ParticipationStart,
		&l.ParticipationEnd,
		&l.StakeDurationDays,
		&l.AllocationDesign,
		&statusStr,
		&l.PiPowerBaseline,
		&l.ListingPrice,
		&l.IsEquityStyle,
		&l.EngagementSnapshotAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Status = domain.LaunchStatus(statusStr)
	return &l, nil
}

// scanLaunches scans multiple rows into a slice of Launch.
func scanLaunches(rows pgx.Rows) ([]*domain.Launch, error) {
	var launches []*domain.Launch

	for rows.Next() {
		var l domain.Launch
		var statusStr string

		err := rows.Scan(
			&l.LaunchID,
			&l.AssetCode,
			&l.AssetIssuer,
			&l.TokensAvailable,
			&l.ParticipationStart,
			&l.ParticipationEnd,
			&l.StakeDurationDays,
			&l.AllocationDesign,
			&statusStr,
			&l.PiPowerBaseline,
			&l.ListingPrice,
			&l.IsEquityStyle,
			&l.EngagementSnapshotAt,
			&l.CreatedAt,
			&l.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan launch row: %w", err)
		}

		l.Status = domain.LaunchStatus(statusStr)
		launches = append(launches, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate launch rows: %w", err)
	}

	return launches, nil
}
