package launch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
	"pi-launchpad/internal/idhash"
	"pi-launchpad/internal/ledger"
	"pi-launchpad/internal/storage"
)

// Service errors
var (
	ErrInvalidIssuer     = errors.New("token issuer account not found on ledger")
	ErrInvalidSupply     = errors.New("tokens available must be a positive decimal")
	ErrInvalidWindow     = errors.New("participation window is invalid")
	ErrWindowEnded       = errors.New("participation window already ended")
	ErrUnsupportedDesign = errors.New("unsupported allocation design")
)

// List page limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// CreateParams describes a new launch. Amounts are decimal strings.
type CreateParams struct {
	AssetCode          string
	AssetIssuer        string
	TokensAvailable    string
	ParticipationStart int64 // Unix ms
	ParticipationEnd   int64 // Unix ms
	StakeDurationDays  int
	AllocationDesign   int // defaults to domain.AllocationDesign1

	// PiPowerBaseline is the extra power ratio granted to stakers the
	// staking provider reports as qualifying. Empty means no baseline.
	PiPowerBaseline string

	IsEquityStyle bool
}

// Service manages the launch lifecycle from draft to tge_open.
type Service struct {
	launches storage.LaunchStore
	ledger   ledger.Client
	now      func() int64
}

// ServiceOptions contains configuration for creating a Service.
type ServiceOptions struct {
	LaunchStore  storage.LaunchStore
	LedgerClient ledger.Client

	// Now overrides the clock (Unix ms), for tests.
	Now func() int64
}

// NewService creates a launch service.
func NewService(opts ServiceOptions) *Service {
	s := &Service{
		launches: opts.LaunchStore,
		ledger:   opts.LedgerClient,
		now:      opts.Now,
	}
	if s.now == nil {
		s.now = func() int64 { return time.Now().UnixMilli() }
	}
	return s
}

// Create registers a new launch in draft status.
//
// Steps:
//  1. Validate the asset code and the participation window.
//  2. Validate the issuer: well-formed address and an existing ledger account.
//  3. Validate tokens available, the allocation design, and the baseline.
//  4. Insert the launch with a deterministic id.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Launch, error) {
	// 1. Asset code and window.
	if params.AssetCode == "" || len(params.AssetCode) > 12 {
		return nil, fmt.Errorf("%w: asset code %q", storage.ErrInvalidInput, params.AssetCode)
	}
	if params.ParticipationStart <= 0 || params.ParticipationEnd <= params.ParticipationStart {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidWindow, params.ParticipationStart, params.ParticipationEnd)
	}
	if params.StakeDurationDays < 0 {
		return nil, fmt.Errorf("%w: stake duration %d days", storage.ErrInvalidInput, params.StakeDurationDays)
	}

	// 2. Issuer must be a real funded account, not just a well-formed key.
	if !ledger.ValidAddress(params.AssetIssuer) {
		return nil, fmt.Errorf("%w: malformed address %q", ErrInvalidIssuer, params.AssetIssuer)
	}
	account, err := s.ledger.GetAccount(ctx, params.AssetIssuer)
	if err != nil {
		return nil, fmt.Errorf("issuer lookup: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIssuer, params.AssetIssuer)
	}

	// 3. Supply, design, baseline.
	supply, err := fixedpoint.Parse(params.TokensAvailable)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSupply, params.TokensAvailable)
	}
	supply = fixedpoint.Round(supply)
	if !supply.IsPositive() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSupply, params.TokensAvailable)
	}

	design := params.AllocationDesign
	if design == 0 {
		design = domain.AllocationDesign1
	}
	if design != domain.AllocationDesign1 {
		return nil, fmt.Errorf("%w: design %d", ErrUnsupportedDesign, design)
	}

	var baseline *string
	if params.PiPowerBaseline != "" {
		ratio, err := fixedpoint.Parse(params.PiPowerBaseline)
		if err != nil || ratio.IsNegative() {
			return nil, fmt.Errorf("%w: pi power baseline %q", storage.ErrInvalidInput, params.PiPowerBaseline)
		}
		formatted := fixedpoint.Format(ratio)
		baseline = &formatted
	}

	// 4. Insert.
	now := s.now()
	l := &domain.Launch{
		LaunchID:           idhash.ComputeLaunchID(params.AssetCode, params.AssetIssuer, params.ParticipationStart),
		AssetCode:          params.AssetCode,
		AssetIssuer:        params.AssetIssuer,
		TokensAvailable:    fixedpoint.Format(supply),
		ParticipationStart: params.ParticipationStart,
		ParticipationEnd:   params.ParticipationEnd,
		StakeDurationDays:  params.StakeDurationDays,
		AllocationDesign:   design,
		Status:             domain.StatusDraft,
		PiPowerBaseline:    baseline,
		IsEquityStyle:      params.IsEquityStyle,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.launches.Insert(ctx, l); err != nil {
		return nil, err // propagates storage.ErrDuplicateKey
	}

	return l, nil
}

// OpenParticipation moves a draft launch to participation_open. A launch
// whose window has already ended cannot be opened.
func (s *Service) OpenParticipation(ctx context.Context, launchID string) (*domain.Launch, error) {
	l, err := s.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}
	if l.WindowClosedAt(s.now()) {
		return nil, fmt.Errorf("%w: launch %s", ErrWindowEnded, launchID)
	}

	err = s.launches.UpdateStatus(ctx, launchID, domain.StatusDraft, domain.StatusParticipationOpen)
	if err != nil {
		return nil, err // propagates storage.ErrStatusConflict
	}

	return s.launches.GetByID(ctx, launchID)
}

// CloseParticipation moves an open launch to participation_closed, freezing
// commitments and engagement scoring. Callers invoke it when the window end
// passes, or earlier for an admin close.
func (s *Service) CloseParticipation(ctx context.Context, launchID string) (*domain.Launch, error) {
	err := s.launches.UpdateStatus(ctx, launchID, domain.StatusParticipationOpen, domain.StatusParticipationClosed)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound / storage.ErrStatusConflict
	}

	return s.launches.GetByID(ctx, launchID)
}

// Get retrieves one launch.
func (s *Service) Get(ctx context.Context, launchID string) (*domain.Launch, error) {
	return s.launches.GetByID(ctx, launchID)
}

// List retrieves one page of launches ordered by creation time. status
// filters when non-nil; afterID is an exclusive cursor. The limit defaults
// to DefaultListLimit and caps at MaxListLimit.
func (s *Service) List(ctx context.Context, status *domain.LaunchStatus, afterID string, limit int) ([]*domain.Launch, error) {
	if status != nil && !status.IsValid() {
		return nil, fmt.Errorf("%w: status %q", storage.ErrInvalidInput, *status)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.launches.List(ctx, status, afterID, limit)
}
