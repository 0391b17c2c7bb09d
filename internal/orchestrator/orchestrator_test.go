package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/engagement"
	"pi-launchpad/internal/idhash"
	"pi-launchpad/internal/storage"
	"pi-launchpad/internal/storage/memory"
)

// testStores holds all memory stores for testing.
type testStores struct {
	launches       *memory.LaunchStore
	participations *memory.ParticipationStore
	events         *memory.EngagementEventStore
}

func createTestStores() *testStores {
	return &testStores{
		launches:       memory.NewLaunchStore(),
		participations: memory.NewParticipationStore(),
		events:         memory.NewEngagementEventStore(),
	}
}

func (s *testStores) orchestrator(opts Options) *Orchestrator {
	opts.LaunchStore = s.launches
	opts.ParticipationStore = s.participations
	opts.EngagementEventStore = s.events
	return New(opts)
}

// testLaunch builds a launch whose participation window already ended.
func testLaunch(id string, status domain.LaunchStatus) *domain.Launch {
	now := time.Now().UnixMilli()
	return &domain.Launch{
		LaunchID:           id,
		AssetCode:          "DEMO",
		AssetIssuer:        "GISSUER",
		TokensAvailable:    "1000.0000000",
		ParticipationStart: now - 3*time.Hour.Milliseconds(),
		ParticipationEnd:   now - time.Hour.Milliseconds(),
		StakeDurationDays:  14,
		AllocationDesign:   domain.AllocationDesign1,
		Status:             status,
		CreatedAt:          now - 4*time.Hour.Milliseconds(),
		UpdatedAt:          now,
	}
}

func committedParticipation(launchID, userID, committed string) *domain.Participation {
	now := time.Now().UnixMilli()
	return &domain.Participation{
		ParticipationID: idhash.ComputeParticipationID(launchID, userID),
		LaunchID:        launchID,
		UserID:          userID,
		StakedPi:        "100.0000000",
		CommittedPi:     committed,
		PiPower:         "1000.0000000",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func scoredParticipation(launchID, userID, committed, score string, rank int, tier domain.Tier) *domain.Participation {
	p := committedParticipation(launchID, userID, committed)
	p.EngagementScore = &score
	p.EngagementRank = &rank
	p.Tier = &tier
	return p
}

// seedPipelineLaunch inserts an ended launch with three commitments and
// enough activity that the engagement ranking is deterministic.
func seedPipelineLaunch(t *testing.T, stores *testStores, launchID string) {
	t.Helper()
	ctx := context.Background()

	if err := stores.launches.Insert(ctx, testLaunch(launchID, domain.StatusParticipationOpen)); err != nil {
		t.Fatalf("insert launch: %v", err)
	}

	svc := engagement.NewService(engagement.ServiceOptions{
		LaunchStore:          stores.launches,
		ParticipationStore:   stores.participations,
		EngagementEventStore: stores.events,
	})

	seeds := []struct {
		user      string
		committed string
		events    int
	}{
		{"user1", "500.0000000", 3},
		{"user2", "300.0000000", 2},
		{"user3", "200.0000000", 1},
	}
	for _, seed := range seeds {
		if err := stores.participations.Insert(ctx, committedParticipation(launchID, seed.user, seed.committed)); err != nil {
			t.Fatalf("insert participation %s: %v", seed.user, err)
		}
		for i := 0; i < seed.events; i++ {
			if _, err := svc.Ingest(ctx, launchID, seed.user, domain.EventTypeDailyActive, "{}", 0); err != nil {
				t.Fatalf("ingest for %s: %v", seed.user, err)
			}
		}
	}
}

func TestOrchestrator_Run_Empty(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()

	result, err := stores.orchestrator(Options{}).Run(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.LaunchesProcessed != 0 {
		t.Errorf("expected 0 launches, got %d", result.LaunchesProcessed)
	}
	if result.Closed != 0 || result.Snapshotted != 0 || result.Allocated != 0 || result.Verified != 0 {
		t.Errorf("expected all phase counts zero, got %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
}

func TestOrchestrator_Run_FullPipeline(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()
	seedPipelineLaunch(t, stores, "launch1")

	result, err := stores.orchestrator(Options{}).Run(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.LaunchesProcessed != 1 {
		t.Errorf("expected 1 launch, got %d", result.LaunchesProcessed)
	}
	if result.Closed != 1 {
		t.Errorf("expected 1 closed, got %d", result.Closed)
	}
	if result.Snapshotted != 1 {
		t.Errorf("expected 1 snapshotted, got %d", result.Snapshotted)
	}
	if result.Allocated != 1 {
		t.Errorf("expected 1 allocated, got %d", result.Allocated)
	}
	if result.Verified != 1 {
		t.Errorf("expected 1 verified, got %d", result.Verified)
	}
	if result.Divergent != 0 {
		t.Errorf("expected 0 divergent, got %d", result.Divergent)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}

	// Launch reached tge_open with the clearing price
	l, err := stores.launches.GetByID(ctx, "launch1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if l.Status != domain.StatusTGEOpen {
		t.Errorf("expected tge_open, got %s", l.Status)
	}
	if l.ListingPrice == nil || *l.ListingPrice != "1.0000000" {
		t.Errorf("expected listing price 1.0000000, got %v", l.ListingPrice)
	}

	// The most active user took rank 1, the top tier, and its bonus third
	p, err := stores.participations.GetByID(ctx, idhash.ComputeParticipationID("launch1", "user1"))
	if err != nil {
		t.Fatalf("GetByID participation: %v", err)
	}
	if p.EngagementRank == nil || *p.EngagementRank != 1 {
		t.Errorf("expected rank 1, got %v", p.EngagementRank)
	}
	if p.Tier == nil || *p.Tier != domain.TierTop {
		t.Errorf("expected top tier, got %v", p.Tier)
	}
	if p.AllocatedTokens == nil || *p.AllocatedTokens != "516.6666667" {
		t.Errorf("expected allocated 516.6666667, got %v", p.AllocatedTokens)
	}
}

func TestOrchestrator_Run_SkipsOpenWindows(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()

	l := testLaunch("launch1", domain.StatusParticipationOpen)
	l.ParticipationEnd = time.Now().UnixMilli() + time.Hour.Milliseconds()
	if err := stores.launches.Insert(ctx, l); err != nil {
		t.Fatalf("insert launch: %v", err)
	}

	result, err := stores.orchestrator(Options{}).Run(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.LaunchesProcessed != 0 || result.Closed != 0 {
		t.Errorf("expected running window to be left alone, got %+v", result)
	}

	got, err := stores.launches.GetByID(ctx, "launch1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusParticipationOpen {
		t.Errorf("expected participation_open, got %s", got.Status)
	}
}

func TestOrchestrator_Run_EmptyLaunch(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()

	if err := stores.launches.Insert(ctx, testLaunch("launch1", domain.StatusParticipationClosed)); err != nil {
		t.Fatalf("insert launch: %v", err)
	}

	result, err := stores.orchestrator(Options{}).Run(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// The snapshot runs even with nobody in; allocation has nothing to do
	if result.Snapshotted != 1 {
		t.Errorf("expected 1 snapshotted, got %d", result.Snapshotted)
	}
	if result.Allocated != 0 {
		t.Errorf("expected 0 allocated, got %d", result.Allocated)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
}

func TestOrchestrator_Run_SkipVerify(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()
	seedPipelineLaunch(t, stores, "launch1")

	result, err := stores.orchestrator(Options{SkipVerify: true}).Run(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.Allocated != 1 {
		t.Errorf("expected 1 allocated, got %d", result.Allocated)
	}
	if result.Verified != 0 {
		t.Errorf("expected 0 verified, got %d", result.Verified)
	}
}

func TestOrchestrator_Run_AlreadySnapshotted(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()

	l := testLaunch("launch1", domain.StatusParticipationClosed)
	snapshotAt := time.Now().UnixMilli() - time.Minute.Milliseconds()
	l.EngagementSnapshotAt = &snapshotAt
	if err := stores.launches.Insert(ctx, l); err != nil {
		t.Fatalf("insert launch: %v", err)
	}
	for _, p := range []*domain.Participation{
		scoredParticipation("launch1", "user1", "600.0000000", "2.0000000", 1, domain.TierTop),
		scoredParticipation("launch1", "user2", "400.0000000", "1.0000000", 2, domain.TierMid),
	} {
		if err := stores.participations.Insert(ctx, p); err != nil {
			t.Fatalf("insert participation: %v", err)
		}
	}

	result, err := stores.orchestrator(Options{}).Run(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if result.Snapshotted != 0 {
		t.Errorf("expected 0 snapshotted, got %d", result.Snapshotted)
	}
	if result.Allocated != 1 {
		t.Errorf("expected 1 allocated, got %d", result.Allocated)
	}
	if result.Verified != 1 || result.Divergent != 0 {
		t.Errorf("expected clean verification, got %+v", result)
	}
}

func TestOrchestrator_RunLaunch(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()
	seedPipelineLaunch(t, stores, "launch1")

	orch := stores.orchestrator(Options{})

	result, err := orch.RunLaunch(ctx, "launch1")
	if err != nil {
		t.Fatalf("RunLaunch: %v", err)
	}

	if !result.Closed || !result.Snapshotted || !result.Allocated {
		t.Errorf("expected all phases to run, got %+v", result)
	}
	if result.ListingPrice != "1.0000000" {
		t.Errorf("expected listing price 1.0000000, got %s", result.ListingPrice)
	}
	if result.Verification == nil {
		t.Fatal("expected verification result")
	}
	if !result.Verification.Match {
		t.Errorf("expected verification match, got divergences: %+v", result.Verification.Divergences)
	}

	// A second run finds nothing left to do but still verifies
	again, err := orch.RunLaunch(ctx, "launch1")
	if err != nil {
		t.Fatalf("RunLaunch again: %v", err)
	}
	if again.Closed || again.Snapshotted || again.Allocated {
		t.Errorf("expected no phase to rerun, got %+v", again)
	}
	if again.Verification == nil || !again.Verification.Match {
		t.Errorf("expected clean verification on rerun, got %+v", again.Verification)
	}
}

func TestOrchestrator_RunLaunch_NotDue(t *testing.T) {
	ctx := context.Background()

	t.Run("draft", func(t *testing.T) {
		stores := createTestStores()
		if err := stores.launches.Insert(ctx, testLaunch("launch1", domain.StatusDraft)); err != nil {
			t.Fatalf("insert launch: %v", err)
		}

		_, err := stores.orchestrator(Options{}).RunLaunch(ctx, "launch1")
		if !errors.Is(err, ErrNotDue) {
			t.Fatalf("expected ErrNotDue, got %v", err)
		}
	})

	t.Run("window still open", func(t *testing.T) {
		stores := createTestStores()
		l := testLaunch("launch1", domain.StatusParticipationOpen)
		l.ParticipationEnd = time.Now().UnixMilli() + time.Hour.Milliseconds()
		if err := stores.launches.Insert(ctx, l); err != nil {
			t.Fatalf("insert launch: %v", err)
		}

		_, err := stores.orchestrator(Options{}).RunLaunch(ctx, "launch1")
		if !errors.Is(err, ErrNotDue) {
			t.Fatalf("expected ErrNotDue, got %v", err)
		}
	})
}

func TestOrchestrator_RunLaunch_NotFound(t *testing.T) {
	stores := createTestStores()

	_, err := stores.orchestrator(Options{}).RunLaunch(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
