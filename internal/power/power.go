package power

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
	"pi-launchpad/internal/idhash"
	"pi-launchpad/internal/staking"
	"pi-launchpad/internal/storage"
)

// Service errors
var (
	ErrWindowClosed  = errors.New("participation window is not open")
	ErrInvalidAmount = errors.New("commit amount must be a positive decimal")
)

// Power is a user's commitment capacity for one launch window.
// All quantities are 7-decimal strings.
type Power struct {
	LaunchID             string
	UserID               string
	PiPower              string
	StakedPi             string
	SumStakedPi          string
	CommittedPi          string
	MaxCommitmentAllowed string
}

// Service computes PiPower caps and records capped commitments.
type Service struct {
	launches       storage.LaunchStore
	participations storage.ParticipationStore
	staking        staking.Provider
	now            func() int64
}

// ServiceOptions contains configuration for creating a Service.
type ServiceOptions struct {
	LaunchStore        storage.LaunchStore
	ParticipationStore storage.ParticipationStore
	StakingProvider    staking.Provider

	// Now overrides the clock (Unix ms), for tests.
	Now func() int64
}

// NewService creates a power service.
func NewService(opts ServiceOptions) *Service {
	s := &Service{
		launches:       opts.LaunchStore,
		participations: opts.ParticipationStore,
		staking:        opts.StakingProvider,
		now:            opts.Now,
	}
	if s.now == nil {
		s.now = func() int64 { return time.Now().UnixMilli() }
	}
	return s
}

// PowerOf computes the user's current commitment capacity for a launch.
// PiPower is recomputed from live staking data on every call, so the cap
// follows cohort-wide staking changes instead of freezing at first commit.
func (s *Service) PowerOf(ctx context.Context, launchID, userID string) (*Power, error) {
	launch, err := s.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	data, err := s.staking.StakingData(ctx, launchID, userID)
	if err != nil {
		return nil, fmt.Errorf("staking data: %w", err)
	}

	piPower, staked, sum, err := computePower(launch, data)
	if err != nil {
		return nil, err
	}

	committed, err := s.committedOf(ctx, launchID, userID)
	if err != nil {
		return nil, err
	}

	return buildPower(launchID, userID, piPower, staked, sum, committed), nil
}

// Commit records a commitment of amount Pi against the user's current cap.
// Steps:
//  1. Load the launch; the participation window must be open
//  2. Validate the amount (positive at 7-digit precision)
//  3. Recompute PiPower fresh from current staking data
//  4. Fail fast when the amount alone exceeds the cap
//  5. Create the participation row on first commit
//  6. Apply the commit via the store's conditional update, which re-checks
//     committed+amount <= PiPower atomically
func (s *Service) Commit(ctx context.Context, launchID, userID, amount string) (*Power, error) {
	// 1. Load the launch and gate on the window
	launch, err := s.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err
	}
	if launch.Status != domain.StatusParticipationOpen {
		return nil, fmt.Errorf("%w: launch %s is %s", ErrWindowClosed, launchID, launch.Status)
	}
	if launch.WindowClosedAt(s.now()) {
		return nil, fmt.Errorf("%w: launch %s window ended", ErrWindowClosed, launchID)
	}

	// 2. Validate the amount
	amountDec, err := fixedpoint.Parse(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	amountDec = fixedpoint.Round(amountDec)
	if !amountDec.IsPositive() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	// 3. Recompute PiPower fresh
	data, err := s.staking.StakingData(ctx, launchID, userID)
	if err != nil {
		return nil, fmt.Errorf("staking data: %w", err)
	}
	piPower, staked, sum, err := computePower(launch, data)
	if err != nil {
		return nil, err
	}

	// 4. Fail fast before creating any row
	if amountDec.GreaterThan(piPower) {
		return nil, fmt.Errorf("%w: amount %s exceeds pi power %s",
			storage.ErrCapExceeded, fixedpoint.Format(amountDec), fixedpoint.Format(piPower))
	}

	// 5. Create the participation row on first commit
	participationID := idhash.ComputeParticipationID(launchID, userID)
	if _, err := s.participations.GetByID(ctx, participationID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		now := s.now()
		p := &domain.Participation{
			ParticipationID: participationID,
			LaunchID:        launchID,
			UserID:          userID,
			StakedPi:        fixedpoint.Format(staked),
			CommittedPi:     fixedpoint.Format(decimal.Zero),
			PiPower:         fixedpoint.Format(piPower),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		// A concurrent first commit may have won the insert.
		if err := s.participations.Insert(ctx, p); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, err
		}
	}

	// 6. Apply the commit; the store re-checks the cap atomically
	err = s.participations.ApplyCommit(ctx, participationID,
		fixedpoint.Format(amountDec), fixedpoint.Format(piPower), fixedpoint.Format(staked))
	if err != nil {
		return nil, err // propagates storage.ErrCapExceeded
	}

	committed, err := s.committedOf(ctx, launchID, userID)
	if err != nil {
		return nil, err
	}

	return buildPower(launchID, userID, piPower, staked, sum, committed), nil
}

// committedOf returns the user's committed total, zero when no
// participation row exists yet.
func (s *Service) committedOf(ctx context.Context, launchID, userID string) (decimal.Decimal, error) {
	participationID := idhash.ComputeParticipationID(launchID, userID)
	p, err := s.participations.GetByID(ctx, participationID)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return fixedpoint.Parse(p.CommittedPi)
}

// computePower derives the cap from live staking data:
//
//	ratio    = stakedPi / sumStakedPi   (a zero cohort total is treated as 1)
//	baseline = the launch's PiPowerBaseline when the provider reports qualification
//	piPower  = tokensAvailable * (ratio + baseline)
//
// The ratio keeps full precision; only the final power is rounded to 7 digits.
func computePower(launch *domain.Launch, data *staking.Data) (piPower, staked, sum decimal.Decimal, err error) {
	staked, err = fixedpoint.Parse(data.StakedPi)
	if err != nil {
		return piPower, staked, sum, fmt.Errorf("staked pi: %w", err)
	}
	sum, err = fixedpoint.Parse(data.SumStakedPi)
	if err != nil {
		return piPower, staked, sum, fmt.Errorf("sum staked pi: %w", err)
	}
	available, err := fixedpoint.Parse(launch.TokensAvailable)
	if err != nil {
		return piPower, staked, sum, fmt.Errorf("tokens available: %w", err)
	}

	divisor := sum
	if divisor.IsZero() {
		divisor = decimal.NewFromInt(1)
	}
	ratio := staked.DivRound(divisor, 16)

	baseline := decimal.Zero
	if data.QualifiesForBaseline && launch.PiPowerBaseline != nil {
		baseline, err = fixedpoint.Parse(*launch.PiPowerBaseline)
		if err != nil {
			return piPower, staked, sum, fmt.Errorf("pi power baseline: %w", err)
		}
	}

	piPower = fixedpoint.Round(available.Mul(ratio.Add(baseline)))
	return piPower, staked, sum, nil
}

func buildPower(launchID, userID string, piPower, staked, sum, committed decimal.Decimal) *Power {
	max := piPower.Sub(committed)
	if max.IsNegative() {
		max = decimal.Zero
	}
	return &Power{
		LaunchID:             launchID,
		UserID:               userID,
		PiPower:              fixedpoint.Format(piPower),
		StakedPi:             fixedpoint.Format(staked),
		SumStakedPi:          fixedpoint.Format(sum),
		CommittedPi:          fixedpoint.Format(committed),
		MaxCommitmentAllowed: fixedpoint.Format(max),
	}
}
