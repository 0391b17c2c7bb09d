package power

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
	"pi-launchpad/internal/idhash"
	"pi-launchpad/internal/staking"
	"pi-launchpad/internal/staking/stub"
	"pi-launchpad/internal/storage"
	"pi-launchpad/internal/storage/memory"
)

func openLaunch(id string) *domain.Launch {
	now := time.Now().UnixMilli()
	return &domain.Launch{
		LaunchID:           id,
		AssetCode:          "DEMO",
		AssetIssuer:        "GISSUER",
		TokensAvailable:    "1000.0000000",
		ParticipationStart: now - time.Hour.Milliseconds(),
		ParticipationEnd:   now + time.Hour.Milliseconds(),
		StakeDurationDays:  14,
		AllocationDesign:   domain.AllocationDesign1,
		Status:             domain.StatusParticipationOpen,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func newService(t *testing.T, launch *domain.Launch) (*Service, *stub.Provider, *memory.ParticipationStore) {
	t.Helper()

	launches := memory.NewLaunchStore()
	participations := memory.NewParticipationStore()
	provider := stub.NewProvider()

	if err := launches.Insert(context.Background(), launch); err != nil {
		t.Fatalf("insert launch: %v", err)
	}

	svc := NewService(ServiceOptions{
		LaunchStore:        launches,
		ParticipationStore: participations,
		StakingProvider:    provider,
	})

	return svc, provider, participations
}

func TestService_PowerOf(t *testing.T) {
	launch := openLaunch("launch1")
	svc, provider, _ := newService(t, launch)
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	power, err := svc.PowerOf(ctx, "launch1", "user1")
	if err != nil {
		t.Fatalf("PowerOf: %v", err)
	}

	// 1000 * (100/1000) = 100
	if power.PiPower != "100.0000000" {
		t.Errorf("expected pi power 100.0000000, got %s", power.PiPower)
	}

	if power.StakedPi != "100.0000000" {
		t.Errorf("expected staked 100.0000000, got %s", power.StakedPi)
	}

	if power.CommittedPi != "0.0000000" {
		t.Errorf("expected committed 0.0000000, got %s", power.CommittedPi)
	}

	if power.MaxCommitmentAllowed != "100.0000000" {
		t.Errorf("expected max 100.0000000, got %s", power.MaxCommitmentAllowed)
	}
}

func TestService_PowerOf_Baseline(t *testing.T) {
	launch := openLaunch("launch1")
	baseline := "0.0500000"
	launch.PiPowerBaseline = &baseline
	svc, provider, _ := newService(t, launch)
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:             "100.0000000",
		SumStakedPi:          "1000.0000000",
		QualifiesForBaseline: true,
	})

	power, err := svc.PowerOf(ctx, "launch1", "user1")
	if err != nil {
		t.Fatalf("PowerOf: %v", err)
	}

	// 1000 * (0.1 + 0.05) = 150
	if power.PiPower != "150.0000000" {
		t.Errorf("expected pi power 150.0000000, got %s", power.PiPower)
	}
}

func TestService_PowerOf_BaselineNotQualified(t *testing.T) {
	launch := openLaunch("launch1")
	baseline := "0.0500000"
	launch.PiPowerBaseline = &baseline
	svc, provider, _ := newService(t, launch)
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	power, err := svc.PowerOf(ctx, "launch1", "user1")
	if err != nil {
		t.Fatalf("PowerOf: %v", err)
	}

	if power.PiPower != "100.0000000" {
		t.Errorf("expected pi power 100.0000000, got %s", power.PiPower)
	}
}

func TestService_PowerOf_ZeroCohortTotal(t *testing.T) {
	svc, provider, _ := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	// A zero cohort total is treated as 1, not a division error.
	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "2.0000000",
		SumStakedPi: "0.0000000",
	})

	power, err := svc.PowerOf(ctx, "launch1", "user1")
	if err != nil {
		t.Fatalf("PowerOf: %v", err)
	}

	// 1000 * (2/1) = 2000
	if power.PiPower != "2000.0000000" {
		t.Errorf("expected pi power 2000.0000000, got %s", power.PiPower)
	}
}

func TestService_PowerOf_LinearInStake(t *testing.T) {
	svc, provider, _ := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "40.0000000",
		SumStakedPi: "1000.0000000",
	})
	provider.SetPosition("launch1", "user2", &staking.Data{
		StakedPi:    "80.0000000",
		SumStakedPi: "1000.0000000",
	})

	p1, err := svc.PowerOf(ctx, "launch1", "user1")
	if err != nil {
		t.Fatalf("PowerOf user1: %v", err)
	}
	p2, err := svc.PowerOf(ctx, "launch1", "user2")
	if err != nil {
		t.Fatalf("PowerOf user2: %v", err)
	}

	doubled := fixedpoint.MustParse(p1.PiPower).Mul(fixedpoint.MustParse("2"))
	if !fixedpoint.MustParse(p2.PiPower).Equal(doubled) {
		t.Errorf("doubling stake must double power: %s vs %s", p1.PiPower, p2.PiPower)
	}
}

func TestService_PowerOf_LaunchNotFound(t *testing.T) {
	svc, _, _ := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	if _, err := svc.PowerOf(ctx, "nosuch", "user1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Commit(t *testing.T) {
	svc, provider, participations := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	power, err := svc.Commit(ctx, "launch1", "user1", "50")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if power.CommittedPi != "50.0000000" {
		t.Errorf("expected committed 50.0000000, got %s", power.CommittedPi)
	}

	if power.MaxCommitmentAllowed != "50.0000000" {
		t.Errorf("expected max 50.0000000, got %s", power.MaxCommitmentAllowed)
	}

	// Commits accumulate on the same participation row.
	power, err = svc.Commit(ctx, "launch1", "user1", "25")
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	if power.CommittedPi != "75.0000000" {
		t.Errorf("expected committed 75.0000000, got %s", power.CommittedPi)
	}

	participationID := idhash.ComputeParticipationID("launch1", "user1")
	p, err := participations.GetByID(ctx, participationID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if p.CommittedPi != "75.0000000" {
		t.Errorf("expected stored committed 75.0000000, got %s", p.CommittedPi)
	}

	if p.PiPower != "100.0000000" {
		t.Errorf("expected stored pi power 100.0000000, got %s", p.PiPower)
	}

	if p.StakedPi != "100.0000000" {
		t.Errorf("expected stored staked 100.0000000, got %s", p.StakedPi)
	}
}

func TestService_Commit_ExactFill(t *testing.T) {
	svc, provider, _ := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	power, err := svc.Commit(ctx, "launch1", "user1", "100.0000000")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if power.MaxCommitmentAllowed != "0.0000000" {
		t.Errorf("expected max 0.0000000, got %s", power.MaxCommitmentAllowed)
	}
}

func TestService_Commit_WindowGates(t *testing.T) {
	statuses := []domain.LaunchStatus{
		domain.StatusDraft,
		domain.StatusParticipationClosed,
		domain.StatusAllocationRunning,
		domain.StatusTGEOpen,
	}

	for _, status := range statuses {
		t.Run(status.String(), func(t *testing.T) {
			launch := openLaunch("launch1")
			launch.Status = status
			svc, provider, _ := newService(t, launch)

			provider.SetPosition("launch1", "user1", &staking.Data{
				StakedPi:    "100.0000000",
				SumStakedPi: "1000.0000000",
			})

			if _, err := svc.Commit(context.Background(), "launch1", "user1", "10"); !errors.Is(err, ErrWindowClosed) {
				t.Errorf("expected ErrWindowClosed, got %v", err)
			}
		})
	}
}

func TestService_Commit_WindowEnded(t *testing.T) {
	launch := openLaunch("launch1")
	launches := memory.NewLaunchStore()
	participations := memory.NewParticipationStore()
	provider := stub.NewProvider()
	ctx := context.Background()

	if err := launches.Insert(ctx, launch); err != nil {
		t.Fatalf("insert launch: %v", err)
	}

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	// The status still says open, but the clock has passed the window end.
	svc := NewService(ServiceOptions{
		LaunchStore:        launches,
		ParticipationStore: participations,
		StakingProvider:    provider,
		Now:                func() int64 { return launch.ParticipationEnd },
	})

	if _, err := svc.Commit(ctx, "launch1", "user1", "10"); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("expected ErrWindowClosed, got %v", err)
	}
}

func TestService_Commit_InvalidAmount(t *testing.T) {
	svc, provider, _ := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	amounts := []string{"0", "-5", "abc", "", "0.00000001"}
	for _, amount := range amounts {
		if _, err := svc.Commit(ctx, "launch1", "user1", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %q: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestService_Commit_CapExceeded(t *testing.T) {
	svc, provider, participations := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	// A single amount above the cap fails before any row is written.
	if _, err := svc.Commit(ctx, "launch1", "user1", "150"); !errors.Is(err, storage.ErrCapExceeded) {
		t.Fatalf("expected ErrCapExceeded, got %v", err)
	}

	participationID := idhash.ComputeParticipationID("launch1", "user1")
	if _, err := participations.GetByID(ctx, participationID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rejected first commit must not create a row, got %v", err)
	}

	// Accumulated commits beyond the cap fail and leave the total unchanged.
	if _, err := svc.Commit(ctx, "launch1", "user1", "80"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := svc.Commit(ctx, "launch1", "user1", "30"); !errors.Is(err, storage.ErrCapExceeded) {
		t.Fatalf("expected ErrCapExceeded, got %v", err)
	}

	p, err := participations.GetByID(ctx, participationID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if p.CommittedPi != "80.0000000" {
		t.Errorf("expected committed unchanged at 80.0000000, got %s", p.CommittedPi)
	}
}

func TestService_Commit_CapFollowsCohort(t *testing.T) {
	svc, provider, _ := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	if _, err := svc.Commit(ctx, "launch1", "user1", "50"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// The cohort total doubles; the cap halves to 50 on the next recompute.
	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "2000.0000000",
	})

	if _, err := svc.Commit(ctx, "launch1", "user1", "10"); !errors.Is(err, storage.ErrCapExceeded) {
		t.Errorf("expected ErrCapExceeded under shrunk cap, got %v", err)
	}

	power, err := svc.PowerOf(ctx, "launch1", "user1")
	if err != nil {
		t.Fatalf("PowerOf: %v", err)
	}

	if power.PiPower != "50.0000000" {
		t.Errorf("expected pi power 50.0000000, got %s", power.PiPower)
	}

	if power.MaxCommitmentAllowed != "0.0000000" {
		t.Errorf("expected max 0.0000000, got %s", power.MaxCommitmentAllowed)
	}
}

func TestService_Commit_RandomSequenceKeepsInvariant(t *testing.T) {
	svc, provider, participations := newService(t, openLaunch("launch1"))
	ctx := context.Background()

	provider.SetPosition("launch1", "user1", &staking.Data{
		StakedPi:    "100.0000000",
		SumStakedPi: "1000.0000000",
	})

	powerCap := fixedpoint.MustParse("100")
	participationID := idhash.ComputeParticipationID("launch1", "user1")
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		amount := strconv.Itoa(r.Intn(41) - 5) // [-5, 35]
		_, commitErr := svc.Commit(ctx, "launch1", "user1", amount)

		p, err := participations.GetByID(ctx, participationID)
		if errors.Is(err, storage.ErrNotFound) {
			continue // nothing accepted yet
		}
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}

		committed := fixedpoint.MustParse(p.CommittedPi)
		if committed.GreaterThan(powerCap) {
			t.Fatalf("iteration %d: committed %s exceeds cap (last commit %q, err %v)",
				i, p.CommittedPi, amount, commitErr)
		}
	}
}
