package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// ParticipationStore implements storage.ParticipationStore using PostgreSQL.
type ParticipationStore struct {
	pool *Pool
}

// NewParticipationStore creates a new ParticipationStore.
func NewParticipationStore(pool *Pool) *ParticipationStore {
	return &ParticipationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ParticipationStore = (*ParticipationStore)(nil)

const participationColumns = `
	participation_id, launch_id, user_id, staked_pi::text, committed_pi::text,
	pi_power::text, engagement_score::text, engagement_rank, tier,
	allocated_tokens::text, effective_price::text, created_at, updated_at
`

// Insert adds a new participation. Returns ErrDuplicateKey if participation_id
// or (launch_id, user_id) exists and ErrInvalidInput if the launch is unknown.
func (s *ParticipationStore) Insert(ctx context.Context, p *domain.Participation) error {
	query := `
		INSERT INTO participations (
			participation_id, launch_id, user_id, staked_pi, committed_pi,
			pi_power, engagement_score, engagement_rank, tier,
			allocated_tokens, effective_price, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var tierStr *string
	if p.Tier != nil {
		t := p.Tier.String()
		tierStr = &t
	}

	_, err := s.pool.Exec(ctx, query,
		p.ParticipationID,
		p.LaunchID,
		p.UserID,
		p.StakedPi,
		p.CommittedPi,
		p.PiPower,
		p.EngagementScore,
		p.EngagementRank,
		tierStr,
		p.AllocatedTokens,
		p.EffectivePrice,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("insert participation: %w", err)
	}
	return nil
}

// GetByID retrieves a participation by its ID. Returns ErrNotFound if not exists.
func (s *ParticipationStore) GetByID(ctx context.Context, participationID string) (*domain.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations WHERE participation_id = $1`

	row := s.pool.QueryRow(ctx, query, participationID)
	p, err := scanParticipation(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get participation by id: %w", err)
	}
	return p, nil
}

// GetAllByLaunch retrieves every participation for a launch, ordered by
// created_at ASC, user_id ASC.
func (s *ParticipationStore) GetAllByLaunch(ctx context.Context, launchID string) ([]*domain.Participation, error) {
	query := `
		SELECT ` + participationColumns + `
		FROM participations
		WHERE launch_id = $1
		ORDER BY created_at ASC, user_id ASC
	`

	rows, err := s.pool.Query(ctx, query, launchID)
	if err != nil {
		return nil, fmt.Errorf("get participations by launch: %w", err)
	}
	defer rows.Close()

	return scanParticipations(rows)
}

// ListByLaunch retrieves a page of participations for a launch, ordered by
// created_at ASC, participation_id ASC.
func (s *ParticipationStore) ListByLaunch(ctx context.Context, launchID string, afterID string, limit int) ([]*domain.Participation, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	var cursorCreatedAt int64
	if afterID != "" {
		err := s.pool.QueryRow(ctx, `SELECT created_at FROM participations WHERE participation_id = $1`, afterID).Scan(&cursorCreatedAt)
		if err != nil {
			if isNotFoundError(err) {
				return nil, storage.ErrNotFound
			}
			return nil, fmt.Errorf("resolve participation cursor: %w", err)
		}
	}

	query := `
		SELECT ` + participationColumns + `
		FROM participations
		WHERE launch_id = $1
		  AND ($2 = '' OR (created_at, participation_id) > ($3, $2))
		ORDER BY created_at ASC, participation_id ASC
		LIMIT $4
	`

	rows, err := s.pool.Query(ctx, query, launchID, afterID, cursorCreatedAt, limit)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	defer rows.Close()

	return scanParticipations(rows)
}

// ApplyCommit refreshes staked_pi and pi_power and adds amount to committed_pi
// in one conditional update. The cap check runs inside the UPDATE so racing
// commits cannot push committed_pi above pi_power.
func (s *ParticipationStore) ApplyCommit(ctx context.Context, participationID string, amount, power, stakedPi string) error {
	if amount == "" || power == "" || stakedPi == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE participations
		SET staked_pi = $4, pi_power = $3, committed_pi = committed_pi + $2, updated_at = $5
		WHERE participation_id = $1 AND committed_pi + $2 <= $3
	`

	tag, err := s.pool.Exec(ctx, query, participationID, amount, power, stakedPi, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("apply commit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM participations WHERE participation_id = $1)`, participationID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check participation exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrCapExceeded
	}
	return nil
}

// UpdateEngagementBatch writes snapshotted engagement results for a launch in
// a single transaction.
func (s *ParticipationStore) UpdateEngagementBatch(ctx context.Context, launchID string, updates []*storage.EngagementUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE participations
		SET engagement_score = $3, engagement_rank = $4, tier = $5, updated_at = $6
		WHERE participation_id = $1 AND launch_id = $2
	`

	now := time.Now().UnixMilli()
	for _, u := range updates {
		if u == nil || u.ParticipationID == "" {
			return storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query, u.ParticipationID, launchID, u.Score, u.Rank, u.Tier.String(), now)
		if err != nil {
			return fmt.Errorf("update engagement for %s: %w", u.ParticipationID, err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateAllocationBatch writes final allocation results for a launch in a
// single transaction.
func (s *ParticipationStore) UpdateAllocationBatch(ctx context.Context, launchID string, updates []*storage.AllocationUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE participations
		SET allocated_tokens = $3, effective_price = $4, updated_at = $5
		WHERE participation_id = $1 AND launch_id = $2
	`

	now := time.Now().UnixMilli()
	for _, u := range updates {
		if u == nil || u.ParticipationID == "" {
			return storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query, u.ParticipationID, launchID, u.AllocatedTokens, u.EffectivePrice, now)
		if err != nil {
			return fmt.Errorf("update allocation for %s: %w", u.ParticipationID, err)
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SumCommitted returns the total committed_pi across a launch.
func (s *ParticipationStore) SumCommitted(ctx context.Context, launchID string) (string, error) {
	query := `
		SELECT COALESCE(SUM(committed_pi), 0)::numeric(30,7)::text
		FROM participations
		WHERE launch_id = $1
	`

	var sum string
	if err := s.pool.QueryRow(ctx, query, launchID).Scan(&sum); err != nil {
		return "", fmt.Errorf("sum committed: %w", err)
	}
	return sum, nil
}

// scanParticipation scans a single row into a Participation.
func scanParticipation(row pgx.Row) (*domain.Participation, error) {
	var p domain.Participation
	var tierStr *string

	err := row.Scan(
		&p.ParticipationID,
		&p.LaunchID,
		&p.UserID,
		&p.StakedPi,
		&p.CommittedPi,
		&p.PiPower,
		&p.EngagementScore,
		&p.EngagementRank,
		&tierStr,
		&p.AllocatedTokens,
		&p.EffectivePrice,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tierStr != nil {
		tier := domain.Tier(*tierStr)
		p.Tier = &tier
	}
	return &p, nil
}

// scanParticipations scans multiple rows into a slice of Participation.
func scanParticipations(rows pgx.Rows) ([]*domain.Participation, error) {
	var participations []*domain.Participation

	for rows.Next() {
		var p domain.Participation
		var tierStr *string

		err := rows.Scan(
			&p.ParticipationID,
			&p.LaunchID,
			&p.UserID,
			&p.StakedPi,
			&p.CommittedPi,
			&p.PiPower,
			&p.EngagementScore,
			&p.EngagementRank,
			&tierStr,
			&p.AllocatedTokens,
			&p.EffectivePrice,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan participation row: %w", err)
		}

		if tierStr != nil {
			tier := domain.Tier(*tierStr)
			p.Tier = &tier
		}
		participations = append(participations, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participation rows: %w", err)
	}

	return participations, nil
}
