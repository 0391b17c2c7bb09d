package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// DividendRoundStore implements storage.DividendRoundStore using PostgreSQL.
type DividendRoundStore struct {
	pool *Pool
}

// NewDividendRoundStore creates a new DividendRoundStore.
func NewDividendRoundStore(pool *Pool) *DividendRoundStore {
	return &DividendRoundStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DividendRoundStore = (*DividendRoundStore)(nil)

const dividendRoundColumns = `
	round_id, launch_id, record_at, total_payout_amount::text,
	payout_asset_code, payout_asset_issuer, total_eligible_supply::text,
	eligible_holders_count, status, created_at, updated_at
`

// Insert adds a new round. Returns ErrDuplicateKey if round_id exists and
// ErrInvalidInput if the launch is unknown.
func (s *DividendRoundStore) Insert(ctx context.Context, r *domain.DividendRound) error {
	query := `
		INSERT INTO dividend_rounds (
			round_id, launch_id, record_at, total_payout_amount,
			payout_asset_code, payout_asset_issuer, total_eligible_supply,
			eligible_holders_count, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RoundID,
		r.LaunchID,
		r.RecordAt,
		r.TotalPayoutAmount,
		r.PayoutAssetCode,
		r.PayoutAssetIssuer,
		r.TotalEligibleSupply,
		r.EligibleHoldersCount,
		r.Status.String(),
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("insert dividend round: %w", err)
	}
	return nil
}

// GetByID retrieves a round by its ID. Returns ErrNotFound if not exists.
func (s *DividendRoundStore) GetByID(ctx context.Context, roundID string) (*domain.DividendRound, error) {
	query := `SELECT ` + dividendRoundColumns + ` FROM dividend_rounds WHERE round_id = $1`

	row := s.pool.QueryRow(ctx, query, roundID)
	r, err := scanDividendRound(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get dividend round by id: %w", err)
	}
	return r, nil
}

// ListByLaunch retrieves all rounds for a launch, ordered by record_at ASC.
func (s *DividendRoundStore) ListByLaunch(ctx context.Context, launchID string) ([]*domain.DividendRound, error) {
	query := `
		SELECT ` + dividendRoundColumns + `
		FROM dividend_rounds
		WHERE launch_id = $1
		ORDER BY record_at ASC, round_id ASC
	`

	rows, err := s.pool.Query(ctx, query, launchID)
	if err != nil {
		return nil, fmt.Errorf("list dividend rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*domain.DividendRound
	for rows.Next() {
		r, err := scanDividendRoundFromRows(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dividend round rows: %w", err)
	}
	return rounds, nil
}

// CompleteSnapshot stores the holder snapshot for a round and moves the round
// from pending to snapshot_done in a single transaction. The conditional
// status flip makes the whole operation one-shot under concurrency.
func (s *DividendRoundStore) CompleteSnapshot(ctx context.Context, roundID string, totalSupply string, holdersCount int, snaps []*domain.HolderSnapshot) error {
	if totalSupply == "" || holdersCount < 0 {
		return storage.ErrInvalidInput
	}
	for _, snap := range snaps {
		if snap == nil || snap.RoundID != roundID || snap.PublicKey == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updateQuery := `
		UPDATE dividend_rounds
		SET total_eligible_supply = $2, eligible_holders_count = $3, status = $4, updated_at = $5
		WHERE round_id = $1 AND status = $6
	`

	tag, err := tx.Exec(ctx, updateQuery,
		roundID,
		totalSupply,
		holdersCount,
		domain.RoundStatusSnapshotDone.String(),
		time.Now().UnixMilli(),
		domain.RoundStatusPending.String(),
	)
	if err != nil {
		return fmt.Errorf("complete snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM dividend_rounds WHERE round_id = $1)`, roundID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check round exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrStatusConflict
	}

	// Drop rows from an interrupted earlier run before installing the
	// final snapshot.
	if _, err := tx.Exec(ctx, `DELETE FROM holder_snapshots WHERE round_id = $1`, roundID); err != nil {
		return fmt.Errorf("clear old snapshot: %w", err)
	}

	insertQuery := `
		INSERT INTO holder_snapshots (
			round_id, public_key, token_balance, share_of_supply,
			payout_amount, claimed_at, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, snap := range snaps {
		_, err := tx.Exec(ctx, insertQuery,
			snap.RoundID,
			snap.PublicKey,
			snap.TokenBalance,
			snap.ShareOfSupply,
			snap.PayoutAmount,
			snap.ClaimedAt,
			snap.TxHash,
			snap.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert holder snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// scanDividendRound scans a single row into a DividendRound.
func scanDividendRound(row pgx.Row) (*domain.DividendRound, error) {
	var r domain.DividendRound
	var statusStr string

	err := row.Scan(
		&r.RoundID,
		&r.LaunchID,
		&r.RecordAt,
		&r.TotalPayoutAmount,
		&r.PayoutAssetCode,
		&r.PayoutAssetIssuer,
		&r.TotalEligibleSupply,
		&r.EligibleHoldersCount,
		&statusStr,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = domain.RoundStatus(statusStr)
	return &r, nil
}

// scanDividendRoundFromRows scans the current row of rows into a DividendRound.
func scanDividendRoundFromRows(rows pgx.Rows) (*domain.DividendRound, error) {
	r, err := scanDividendRound(rows)
	if err != nil {
		return nil, fmt.Errorf("scan dividend round row: %w", err)
	}
	return r, nil
}
