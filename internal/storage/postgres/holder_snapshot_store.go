package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// HolderSnapshotStore implements storage.HolderSnapshotStore using PostgreSQL.
type HolderSnapshotStore struct {
	pool *Pool
}

// NewHolderSnapshotStore creates a new HolderSnapshotStore.
func NewHolderSnapshotStore(pool *Pool) *HolderSnapshotStore {
	return &HolderSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HolderSnapshotStore = (*HolderSnapshotStore)(nil)

const holderSnapshotColumns = `
	round_id, public_key, token_balance::text, share_of_supply::text,
	payout_amount::text, claimed_at, tx_hash, created_at
`

// GetByRoundAndKey retrieves one holder's snapshot entry.
func (s *HolderSnapshotStore) GetByRoundAndKey(ctx context.Context, roundID, publicKey string) (*domain.HolderSnapshot, error) {
	query := `
		SELECT ` + holderSnapshotColumns + `
		FROM holder_snapshots
		WHERE round_id = $1 AND public_key = $2
	`

	row := s.pool.QueryRow(ctx, query, roundID, publicKey)
	snap, err := scanHolderSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder snapshot: %w", err)
	}
	return snap, nil
}

// ListByRound retrieves a page of snapshot entries for a round, ordered by
// public_key ASC.
func (s *HolderSnapshotStore) ListByRound(ctx context.Context, roundID string, afterKey string, limit int) ([]*domain.HolderSnapshot, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + holderSnapshotColumns + `
		FROM holder_snapshots
		WHERE round_id = $1 AND ($2 = '' OR public_key > $2)
		ORDER BY public_key ASC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, roundID, afterKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list holder snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.HolderSnapshot
	for rows.Next() {
		snap, err := scanHolderSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holder snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holder snapshot rows: %w", err)
	}
	return snaps, nil
}

// RecordClaim marks one holder's payout as claimed exactly once. The
// claimed_at IS NULL condition closes the double-claim race.
func (s *HolderSnapshotStore) RecordClaim(ctx context.Context, roundID, publicKey string, txHash string, claimedAt int64) error {
	if txHash == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE holder_snapshots
		SET claimed_at = $3, tx_hash = $4
		WHERE round_id = $1 AND public_key = $2 AND claimed_at IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, roundID, publicKey, claimedAt, txHash)
	if err != nil {
		return fmt.Errorf("record claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM holder_snapshots WHERE round_id = $1 AND public_key = $2)`,
			roundID, publicKey,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check holder snapshot exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrAlreadyClaimed
	}
	return nil
}

// scanHolderSnapshot scans a single row into a HolderSnapshot.
func scanHolderSnapshot(row pgx.Row) (*domain.HolderSnapshot, error) {
	var snap domain.HolderSnapshot

	err := row.Scan(
		&snap.RoundID,
		&snap.PublicKey,
		&snap.TokenBalance,
		&snap.ShareOfSupply,
		&snap.PayoutAmount,
		&snap.ClaimedAt,
		&snap.TxHash,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
