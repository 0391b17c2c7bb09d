package dividend

import (
	"context"
	"errors"
	"testing"
	"time"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/idhash"
	"pi-launchpad/internal/ledger"
	"pi-launchpad/internal/ledger/stub"
	"pi-launchpad/internal/storage"
	"pi-launchpad/internal/storage/memory"
)

// Holder addresses below are well-formed strkeys whose embedded keys are
// points on the ed25519 curve, so they pass address validation.
const (
	holderA = "GAAQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAHV4"
	holderB = "GABQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABEQO"
	holderC = "GACAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAYMQ"
	holderD = "GACQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAJ6J"

	// offCurveHolder decodes cleanly but its key is not a curve point.
	offCurveHolder = "GABAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABVCX"

	// badChecksumHolder fails strkey decoding outright.
	badChecksumHolder = "GBMGMZTGMZTGMZTGMZTGMZTGMZTGMZTGMZTGMZTGMZTGMZTGMU3A"
)

var demoAsset = ledger.Asset{Code: "DEMO", Issuer: "GISSUER"}

func testLaunch(id string) *domain.Launch {
	now := time.Now().UnixMilli()
	price := "1.0000000"
	return &domain.Launch{
		LaunchID:           id,
		AssetCode:          demoAsset.Code,
		AssetIssuer:        demoAsset.Issuer,
		TokensAvailable:    "1000.0000000",
		ParticipationStart: now - 4*time.Hour.Milliseconds(),
		ParticipationEnd:   now - 2*time.Hour.Milliseconds(),
		StakeDurationDays:  14,
		AllocationDesign:   domain.AllocationDesign1,
		Status:             domain.StatusTGEOpen,
		ListingPrice:       &price,
		IsEquityStyle:      true,
		CreatedAt:          now - 5*time.Hour.Milliseconds(),
		UpdatedAt:          now,
	}
}

type fixture struct {
	svc       *Service
	launches  *memory.LaunchStore
	rounds    *memory.DividendRoundStore
	snapshots *memory.HolderSnapshotStore
	chain     *stub.Client
}

func newFixture(t *testing.T, launch *domain.Launch, mutate ...func(*ServiceOptions)) *fixture {
	t.Helper()

	snapshots := memory.NewHolderSnapshotStore()
	f := &fixture{
		launches:  memory.NewLaunchStore(),
		rounds:    memory.NewDividendRoundStore(snapshots),
		snapshots: snapshots,
		chain:     stub.NewClient(),
	}

	if err := f.launches.Insert(context.Background(), launch); err != nil {
		t.Fatalf("insert launch: %v", err)
	}

	opts := ServiceOptions{
		LaunchStore:         f.launches,
		DividendRoundStore:  f.rounds,
		HolderSnapshotStore: f.snapshots,
		LedgerClient:        f.chain,
	}
	for _, m := range mutate {
		m(&opts)
	}

	svc, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc

	return f
}

func (f *fixture) createRound(t *testing.T, launchID string, recordAt int64, amount string) *domain.DividendRound {
	t.Helper()
	round, err := f.svc.CreateRound(context.Background(), launchID, recordAt, amount)
	if err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	return round
}

func (f *fixture) holderRow(t *testing.T, roundID, publicKey string) *domain.HolderSnapshot {
	t.Helper()
	snap, err := f.snapshots.GetByRoundAndKey(context.Background(), roundID, publicKey)
	if err != nil {
		t.Fatalf("GetByRoundAndKey %s: %v", publicKey, err)
	}
	return snap
}

func TestService_CreateRound(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))

	round := f.createRound(t, "launch1", 1700000000000, "250.5")

	if round.RoundID != idhash.ComputeRoundID("launch1", 1700000000000) {
		t.Errorf("unexpected round id %s", round.RoundID)
	}
	if round.TotalPayoutAmount != "250.5000000" {
		t.Errorf("expected normalized payout 250.5000000, got %s", round.TotalPayoutAmount)
	}
	if round.PayoutAssetCode != demoAsset.Code || round.PayoutAssetIssuer != demoAsset.Issuer {
		t.Errorf("payout asset must be the launch token, got %s:%s", round.PayoutAssetCode, round.PayoutAssetIssuer)
	}
	if round.Status != domain.RoundStatusPending {
		t.Errorf("expected pending status, got %s", round.Status)
	}

	stored, err := f.svc.GetRound(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if stored.RecordAt != 1700000000000 {
		t.Errorf("expected record_at 1700000000000, got %d", stored.RecordAt)
	}
}

func TestService_CreateRound_Duplicate(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	ctx := context.Background()

	f.createRound(t, "launch1", 1700000000000, "100")

	_, err := f.svc.CreateRound(ctx, "launch1", 1700000000000, "200")
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for same record instant, got %v", err)
	}

	// A different record instant opens a fresh round.
	if _, err := f.svc.CreateRound(ctx, "launch1", 1700000060000, "200"); err != nil {
		t.Errorf("second record instant: %v", err)
	}
}

func TestService_CreateRound_NotEquityStyle(t *testing.T) {
	launch := testLaunch("launch1")
	launch.IsEquityStyle = false
	f := newFixture(t, launch)

	_, err := f.svc.CreateRound(context.Background(), "launch1", 1700000000000, "100")
	if !errors.Is(err, ErrNotEquityStyle) {
		t.Errorf("expected ErrNotEquityStyle, got %v", err)
	}
}

func TestService_CreateRound_RequiresTGEOpen(t *testing.T) {
	statuses := []domain.LaunchStatus{
		domain.StatusDraft,
		domain.StatusParticipationOpen,
		domain.StatusParticipationClosed,
		domain.StatusAllocationRunning,
	}

	for _, status := range statuses {
		t.Run(status.String(), func(t *testing.T) {
			launch := testLaunch("launch1")
			launch.Status = status
			f := newFixture(t, launch)

			_, err := f.svc.CreateRound(context.Background(), "launch1", 1700000000000, "100")
			if !errors.Is(err, ErrNotOpen) {
				t.Errorf("expected ErrNotOpen for %s, got %v", status, err)
			}
		})
	}
}

func TestService_CreateRound_InvalidAmount(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "abc", "", "0.00000001"} {
		if _, err := f.svc.CreateRound(ctx, "launch1", 1700000000000, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %q: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestService_CreateRound_InvalidRecordAt(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))

	for _, recordAt := range []int64{0, -1} {
		if _, err := f.svc.CreateRound(context.Background(), "launch1", recordAt, "100"); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("record_at %d: expected ErrInvalidInput, got %v", recordAt, err)
		}
	}
}

func TestService_CreateRound_LaunchNotFound(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))

	_, err := f.svc.CreateRound(context.Background(), "missing", 1700000000000, "100")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_RunSnapshot(t *testing.T) {
	// Two holders own 600 and 400 of a 1000-token eligible supply, so a
	// 1000-coin payout splits 600/400.
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")
	f.chain.AddHolder(demoAsset, holderB, "400.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "1000")

	result, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	if result.TotalEligibleSupply != "1000.0000000" {
		t.Errorf("expected supply 1000.0000000, got %s", result.TotalEligibleSupply)
	}
	if result.EligibleHolders != 2 {
		t.Errorf("expected 2 eligible holders, got %d", result.EligibleHolders)
	}
	if result.TotalNetPayout != "1000.0000000" {
		t.Errorf("expected net payout 1000.0000000, got %s", result.TotalNetPayout)
	}
	if result.SkippedHolders != 0 {
		t.Errorf("expected no skipped holders, got %d", result.SkippedHolders)
	}

	rowA := f.holderRow(t, round.RoundID, holderA)
	if rowA.ShareOfSupply != "0.6000000" {
		t.Errorf("holder A share: expected 0.6000000, got %s", rowA.ShareOfSupply)
	}
	if rowA.PayoutAmount != "600.0000000" {
		t.Errorf("holder A payout: expected 600.0000000, got %s", rowA.PayoutAmount)
	}

	rowB := f.holderRow(t, round.RoundID, holderB)
	if rowB.ShareOfSupply != "0.4000000" {
		t.Errorf("holder B share: expected 0.4000000, got %s", rowB.ShareOfSupply)
	}
	if rowB.PayoutAmount != "400.0000000" {
		t.Errorf("holder B payout: expected 400.0000000, got %s", rowB.PayoutAmount)
	}

	stored, err := f.svc.GetRound(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if stored.Status != domain.RoundStatusSnapshotDone {
		t.Errorf("expected snapshot_done, got %s", stored.Status)
	}
	if stored.TotalEligibleSupply == nil || *stored.TotalEligibleSupply != "1000.0000000" {
		t.Errorf("round supply not recorded: %v", stored.TotalEligibleSupply)
	}
	if stored.EligibleHoldersCount == nil || *stored.EligibleHoldersCount != 2 {
		t.Errorf("round holder count not recorded: %v", stored.EligibleHoldersCount)
	}
}

func TestService_RunSnapshot_Fee(t *testing.T) {
	fee, err := NewRateFeePolicy("0.01")
	if err != nil {
		t.Fatalf("NewRateFeePolicy: %v", err)
	}

	f := newFixture(t, testLaunch("launch1"), func(opts *ServiceOptions) {
		opts.FeePolicy = fee
	})
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")
	f.chain.AddHolder(demoAsset, holderB, "400.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "1000")

	result, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	if result.TotalNetPayout != "990.0000000" {
		t.Errorf("expected net payout 990.0000000 after 1%% fee, got %s", result.TotalNetPayout)
	}
	if row := f.holderRow(t, round.RoundID, holderA); row.PayoutAmount != "594.0000000" {
		t.Errorf("holder A net: expected 594.0000000, got %s", row.PayoutAmount)
	}
	if row := f.holderRow(t, round.RoundID, holderB); row.PayoutAmount != "396.0000000" {
		t.Errorf("holder B net: expected 396.0000000, got %s", row.PayoutAmount)
	}
}

func TestService_RunSnapshot_Paginates(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"), func(opts *ServiceOptions) {
		opts.PageSize = 1
	})
	f.chain.AddHolder(demoAsset, holderA, "100.0000000")
	f.chain.AddHolder(demoAsset, holderB, "200.0000000")
	f.chain.AddHolder(demoAsset, holderC, "300.0000000")
	f.chain.AddHolder(demoAsset, holderD, "400.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "100")

	result, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	if result.EligibleHolders != 4 {
		t.Errorf("expected 4 holders across pages, got %d", result.EligibleHolders)
	}
	if result.TotalEligibleSupply != "1000.0000000" {
		t.Errorf("expected supply 1000.0000000, got %s", result.TotalEligibleSupply)
	}
}

func TestService_RunSnapshot_SkipsInvalidAddresses(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")
	f.chain.AddHolder(demoAsset, offCurveHolder, "250.0000000")
	f.chain.AddHolder(demoAsset, badChecksumHolder, "100.0000000")
	f.chain.AddHolder(demoAsset, holderB, "400.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "1000")

	result, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	if result.SkippedHolders != 2 {
		t.Errorf("expected 2 skipped holders, got %d", result.SkippedHolders)
	}
	if result.EligibleHolders != 2 {
		t.Errorf("expected 2 eligible holders, got %d", result.EligibleHolders)
	}

	// Invalid balances stay out of the eligible supply, so the valid
	// holders split the full payout.
	if result.TotalEligibleSupply != "1000.0000000" {
		t.Errorf("expected supply 1000.0000000, got %s", result.TotalEligibleSupply)
	}
	if row := f.holderRow(t, round.RoundID, holderA); row.PayoutAmount != "600.0000000" {
		t.Errorf("holder A payout: expected 600.0000000, got %s", row.PayoutAmount)
	}

	if _, err := f.snapshots.GetByRoundAndKey(context.Background(), round.RoundID, offCurveHolder); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("skipped holder must have no snapshot row, got %v", err)
	}
}

func TestService_RunSnapshot_EligibilityFloor(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"), func(opts *ServiceOptions) {
		opts.MinBalance = "10.0000000"
	})
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")
	f.chain.AddHolder(demoAsset, holderB, "10.0000000") // exactly at the floor
	f.chain.AddHolder(demoAsset, holderC, "9.9999999")

	round := f.createRound(t, "launch1", 1700000000000, "300")

	result, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	if result.EligibleHolders != 1 {
		t.Errorf("expected only the holder above the floor, got %d", result.EligibleHolders)
	}
	if result.TotalEligibleSupply != "600.0000000" {
		t.Errorf("expected supply 600.0000000, got %s", result.TotalEligibleSupply)
	}
	// Below-floor holders are ineligible, not malformed.
	if result.SkippedHolders != 0 {
		t.Errorf("expected no skipped holders, got %d", result.SkippedHolders)
	}
	if row := f.holderRow(t, round.RoundID, holderA); row.PayoutAmount != "300.0000000" {
		t.Errorf("sole eligible holder gets the full payout, got %s", row.PayoutAmount)
	}
}

func TestService_RunSnapshot_ZeroBalanceDropped(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")
	f.chain.AddHolder(demoAsset, holderB, "0.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "100")

	result, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	if result.EligibleHolders != 1 {
		t.Errorf("zero balances must be dropped, got %d holders", result.EligibleHolders)
	}
}

func TestService_RunSnapshot_RoundsFractionalShares(t *testing.T) {
	// Three equal holders of a 3-token supply: each share rounds to
	// 0.3333333, so each net payout is 33.3333300 and the round total
	// lands just under the 100-coin payout.
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "1.0000000")
	f.chain.AddHolder(demoAsset, holderB, "1.0000000")
	f.chain.AddHolder(demoAsset, holderC, "1.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "100")

	result, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	for _, key := range []string{holderA, holderB, holderC} {
		row := f.holderRow(t, round.RoundID, key)
		if row.ShareOfSupply != "0.3333333" {
			t.Errorf("holder %s share: expected 0.3333333, got %s", key, row.ShareOfSupply)
		}
		if row.PayoutAmount != "33.3333300" {
			t.Errorf("holder %s payout: expected 33.3333300, got %s", key, row.PayoutAmount)
		}
	}

	if result.TotalNetPayout != "99.9999900" {
		t.Errorf("expected total net 99.9999900, got %s", result.TotalNetPayout)
	}
}

func TestService_RunSnapshot_LedgerErrorLeavesPending(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "100")

	f.chain.Err = errors.New("ledger timeout")
	if _, err := f.svc.RunSnapshot(context.Background(), round.RoundID); err == nil {
		t.Fatal("expected error when the ledger walk fails")
	}

	stored, err := f.svc.GetRound(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if stored.Status != domain.RoundStatusPending {
		t.Errorf("a failed walk must leave the round pending, got %s", stored.Status)
	}
	if _, err := f.snapshots.GetByRoundAndKey(context.Background(), round.RoundID, holderA); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("a failed walk must write no rows, got %v", err)
	}

	// The ledger recovers and a re-run completes the round.
	f.chain.Err = nil
	if _, err := f.svc.RunSnapshot(context.Background(), round.RoundID); err != nil {
		t.Fatalf("RunSnapshot after recovery: %v", err)
	}
}

func TestService_RunSnapshot_AlreadyDone(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "100")

	if _, err := f.svc.RunSnapshot(context.Background(), round.RoundID); err != nil {
		t.Fatalf("first RunSnapshot: %v", err)
	}

	_, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if !errors.Is(err, ErrAlreadyDone) {
		t.Errorf("expected ErrAlreadyDone, got %v", err)
	}
}

func TestService_RunSnapshot_NoHolders(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))

	round := f.createRound(t, "launch1", 1700000000000, "100")

	result, err := f.svc.RunSnapshot(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	if result.EligibleHolders != 0 {
		t.Errorf("expected 0 holders, got %d", result.EligibleHolders)
	}
	if result.TotalEligibleSupply != "0.0000000" {
		t.Errorf("expected zero supply, got %s", result.TotalEligibleSupply)
	}
	if result.TotalNetPayout != "0.0000000" {
		t.Errorf("expected zero net payout, got %s", result.TotalNetPayout)
	}

	stored, err := f.svc.GetRound(context.Background(), round.RoundID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if stored.Status != domain.RoundStatusSnapshotDone {
		t.Errorf("an empty snapshot still completes the round, got %s", stored.Status)
	}
}

func TestService_RunSnapshot_RoundNotFound(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))

	_, err := f.svc.RunSnapshot(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_RecordClaim(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")
	f.chain.AddHolder(demoAsset, holderB, "400.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "1000")
	if _, err := f.svc.RunSnapshot(context.Background(), round.RoundID); err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	snap, err := f.svc.RecordClaim(context.Background(), round.RoundID, holderA, "txhash1")
	if err != nil {
		t.Fatalf("RecordClaim: %v", err)
	}

	if !snap.Claimed() {
		t.Error("expected the snapshot to be marked claimed")
	}
	if snap.TxHash == nil || *snap.TxHash != "txhash1" {
		t.Errorf("expected tx hash recorded, got %v", snap.TxHash)
	}

	// The other holder is untouched.
	if row := f.holderRow(t, round.RoundID, holderB); row.Claimed() {
		t.Error("unclaimed holder must stay unclaimed")
	}
}

func TestService_RecordClaim_Once(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "100")
	if _, err := f.svc.RunSnapshot(context.Background(), round.RoundID); err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}

	if _, err := f.svc.RecordClaim(context.Background(), round.RoundID, holderA, "txhash1"); err != nil {
		t.Fatalf("first RecordClaim: %v", err)
	}

	_, err := f.svc.RecordClaim(context.Background(), round.RoundID, holderA, "txhash2")
	if !errors.Is(err, storage.ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}

	// The original hash survives the rejected second claim.
	if row := f.holderRow(t, round.RoundID, holderA); row.TxHash == nil || *row.TxHash != "txhash1" {
		t.Errorf("expected txhash1 to remain, got %v", row.TxHash)
	}
}

func TestService_RecordClaim_Validation(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "600.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "100")
	if _, err := f.svc.RunSnapshot(context.Background(), round.RoundID); err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}
	ctx := context.Background()

	if _, err := f.svc.RecordClaim(ctx, round.RoundID, "", "txhash1"); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty public key: expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.RecordClaim(ctx, round.RoundID, holderA, ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty tx hash: expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.RecordClaim(ctx, round.RoundID, holderB, "txhash1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown holder: expected ErrNotFound, got %v", err)
	}
}

func TestService_ListRounds(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))

	f.createRound(t, "launch1", 1700000060000, "200")
	f.createRound(t, "launch1", 1700000000000, "100")

	rounds, err := f.svc.ListRounds(context.Background(), "launch1")
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}

	if len(rounds) != 2 {
		t.Fatalf("expected 2 rounds, got %d", len(rounds))
	}
	if rounds[0].RecordAt != 1700000000000 || rounds[1].RecordAt != 1700000060000 {
		t.Errorf("rounds must be ordered by record instant: %d, %d", rounds[0].RecordAt, rounds[1].RecordAt)
	}
}

func TestService_ListHolders(t *testing.T) {
	f := newFixture(t, testLaunch("launch1"))
	f.chain.AddHolder(demoAsset, holderA, "100.0000000")
	f.chain.AddHolder(demoAsset, holderB, "200.0000000")
	f.chain.AddHolder(demoAsset, holderC, "300.0000000")
	f.chain.AddHolder(demoAsset, holderD, "400.0000000")

	round := f.createRound(t, "launch1", 1700000000000, "100")
	if _, err := f.svc.RunSnapshot(context.Background(), round.RoundID); err != nil {
		t.Fatalf("RunSnapshot: %v", err)
	}
	ctx := context.Background()

	first, err := f.svc.ListHolders(ctx, round.RoundID, "", 3)
	if err != nil {
		t.Fatalf("ListHolders: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 holders on the first page, got %d", len(first))
	}

	second, err := f.svc.ListHolders(ctx, round.RoundID, first[len(first)-1].PublicKey, 3)
	if err != nil {
		t.Fatalf("ListHolders second page: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected 1 holder on the second page, got %d", len(second))
	}

	seen := map[string]bool{}
	for _, snap := range append(first, second...) {
		seen[snap.PublicKey] = true
	}
	for _, key := range []string{holderA, holderB, holderC, holderD} {
		if !seen[key] {
			t.Errorf("holder %s missing from the pages", key)
		}
	}
}
