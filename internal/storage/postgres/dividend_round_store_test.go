package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

func newTestRound(id, launchID string, recordAt int64) *domain.DividendRound {
	return &domain.DividendRound{
		RoundID:           id,
		LaunchID:          launchID,
		RecordAt:          recordAt,
		TotalPayoutAmount: "1000.0000000",
		PayoutAssetCode:   "USDP",
		PayoutAssetIssuer: "GBXPAYOUTAAAA1111",
		Status:            domain.RoundStatusPending,
		CreatedAt:         recordAt,
		UpdatedAt:         recordAt,
	}
}

func newTestSnap(roundID, publicKey, balance, share, payout string) *domain.HolderSnapshot {
	return &domain.HolderSnapshot{
		RoundID:       roundID,
		PublicKey:     publicKey,
		TokenBalance:  balance,
		ShareOfSupply: share,
		PayoutAmount:  payout,
		CreatedAt:     1704067200000,
	}
}

func TestDividendRoundStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewDividendRoundStore(pool)
	ctx := context.Background()

	insertTestLaunch(t, ctx, pool, "launch-1")

	round := newTestRound("round-001", "launch-1", 1710000000000)
	require.NoError(t, store.Insert(ctx, round))

	retrieved, err := store.GetByID(ctx, "round-001")
	require.NoError(t, err)

	assert.Equal(t, round.RoundID, retrieved.RoundID)
	assert.Equal(t, round.LaunchID, retrieved.LaunchID)
	assert.Equal(t, round.RecordAt, retrieved.RecordAt)
	assert.Equal(t, "1000.0000000", retrieved.TotalPayoutAmount)
	assert.Equal(t, "USDP", retrieved.PayoutAssetCode)
	assert.Equal(t, domain.RoundStatusPending, retrieved.Status)
	assert.Nil(t, retrieved.TotalEligibleSupply)
	assert.Nil(t, retrieved.EligibleHoldersCount)
}

func TestDividendRoundStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewDividendRoundStore(pool)
	ctx := context.Background()

	insertTestLaunch(t, ctx, pool, "launch-1")

	round := newTestRound("round-dup", "launch-1", 1710000000000)
	require.NoError(t, store.Insert(ctx, round))

	err := store.Insert(ctx, round)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestDividendRoundStore_InsertUnknownLaunch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewDividendRoundStore(pool)
	ctx := context.Background()

	round := newTestRound("round-001", "no-such-launch", 1710000000000)
	err := store.Insert(ctx, round)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestDividendRoundStore_ListByLaunch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewDividendRoundStore(pool)
	ctx := context.Background()

	insertTestLaunch(t, ctx, pool, "launch-1")
	insertTestLaunch(t, ctx, pool, "launch-2")

	require.NoError(t, store.Insert(ctx, newTestRound("round-b", "launch-1", 2000)))
	require.NoError(t, store.Insert(ctx, newTestRound("round-a", "launch-1", 1000)))
	require.NoError(t, store.Insert(ctx, newTestRound("round-x", "launch-2", 3000)))

	result, err := store.ListByLaunch(ctx, "launch-1")
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "round-a", result[0].RoundID)
	assert.Equal(t, "round-b", result[1].RoundID)
}

func TestDividendRoundStore_CompleteSnapshot(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewDividendRoundStore(pool)
	snapshots := NewHolderSnapshotStore(pool)
	ctx := context.Background()

	insertTestLaunch(t, ctx, pool, "launch-1")
	require.NoError(t, store.Insert(ctx, newTestRound("round-001", "launch-1", 1710000000000)))

	snaps := []*domain.HolderSnapshot{
		newTestSnap("round-001", "GKEY1", "600.0000000", "0.6000000", "600.0000000"),
		newTestSnap("round-001", "GKEY2", "400.0000000", "0.4000000", "400.0000000"),
	}
	require.NoError(t, store.CompleteSnapshot(ctx, "round-001", "1000.0000000", 2, snaps))

	retrieved, err := store.GetByID(ctx, "round-001")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundStatusSnapshotDone, retrieved.Status)
	require.NotNil(t, retrieved.TotalEligibleSupply)
	assert.Equal(t, "1000.0000000", *retrieved.TotalEligibleSupply)
	require.NotNil(t, retrieved.EligibleHoldersCount)
	assert.Equal(t, 2, *retrieved.EligibleHoldersCount)

	snap, err := snapshots.GetByRoundAndKey(ctx, "round-001", "GKEY1")
	require.NoError(t, err)
	assert.Equal(t, "600.0000000", snap.TokenBalance)
	assert.Equal(t, "0.6000000", snap.ShareOfSupply)
	assert.Equal(t, "600.0000000", snap.PayoutAmount)
	assert.Nil(t, snap.ClaimedAt)

	// One-shot: re-running the snapshot must fail
	err = store.CompleteSnapshot(ctx, "round-001", "1000.0000000", 2, snaps)
	assert.ErrorIs(t, err, storage.ErrStatusConflict)

	// Unknown round
	err = store.CompleteSnapshot(ctx, "nonexistent", "1000.0000000", 0, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
