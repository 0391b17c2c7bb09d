package dividend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/fixedpoint"
	"pi-launchpad/internal/idhash"
	"pi-launchpad/internal/ledger"
	"pi-launchpad/internal/storage"
)

// Service errors
var (
	ErrNotEquityStyle = errors.New("launch is not equity-style")
	ErrNotOpen        = errors.New("launch token is not trading yet")
	ErrAlreadyDone    = errors.New("holder snapshot already taken")
	ErrInvalidAmount  = errors.New("payout amount must be a positive decimal")
)

// DefaultPageSize is the ledger page size used while walking holders.
const DefaultPageSize = 200

// Service manages dividend rounds for equity-style launches: round
// creation, the on-chain holder snapshot, and claim confirmations.
type Service struct {
	launches   storage.LaunchStore
	rounds     storage.DividendRoundStore
	snapshots  storage.HolderSnapshotStore
	ledger     ledger.Client
	fee        FeePolicy
	pageSize   int
	minBalance decimal.Decimal
	now        func() int64
}

// ServiceOptions contains configuration for creating a Service.
type ServiceOptions struct {
	LaunchStore         storage.LaunchStore
	DividendRoundStore  storage.DividendRoundStore
	HolderSnapshotStore storage.HolderSnapshotStore
	LedgerClient        ledger.Client

	// FeePolicy deducts the platform cut from gross payouts.
	// Defaults to NoFee.
	FeePolicy FeePolicy

	// PageSize is the ledger page size. Defaults to DefaultPageSize.
	PageSize int

	// MinBalance is the eligibility floor: holders at or below it are
	// dropped. Defaults to 0, so any positive balance counts.
	MinBalance string

	// Now overrides the clock (Unix ms), for tests.
	Now func() int64
}

// NewService creates a dividend service.
func NewService(opts ServiceOptions) (*Service, error) {
	s := &Service{
		launches:  opts.LaunchStore,
		rounds:    opts.DividendRoundStore,
		snapshots: opts.HolderSnapshotStore,
		ledger:    opts.LedgerClient,
		fee:       opts.FeePolicy,
		pageSize:  opts.PageSize,
		now:       opts.Now,
	}
	if s.fee == nil {
		s.fee = NoFee{}
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	if s.now == nil {
		s.now = func() int64 { return time.Now().UnixMilli() }
	}
	if opts.MinBalance != "" {
		floor, err := fixedpoint.Parse(opts.MinBalance)
		if err != nil {
			return nil, fmt.Errorf("min balance: %w", err)
		}
		s.minBalance = floor
	}
	return s, nil
}

// CreateRound opens a payout round for an equity-style launch whose token
// has reached tge_open. The payout asset is always the launch's own token.
// A round already exists for the same (launch, record instant) pair when
// Insert reports a duplicate key.
func (s *Service) CreateRound(ctx context.Context, launchID string, recordAt int64, totalPayoutAmount string) (*domain.DividendRound, error) {
	launch, err := s.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}
	if !launch.IsEquityStyle {
		return nil, fmt.Errorf("%w: launch %s", ErrNotEquityStyle, launchID)
	}
	if launch.Status != domain.StatusTGEOpen {
		return nil, fmt.Errorf("%w: launch %s is %s", ErrNotOpen, launchID, launch.Status)
	}

	if recordAt <= 0 {
		return nil, fmt.Errorf("%w: record instant must be positive", storage.ErrInvalidInput)
	}

	amount, err := fixedpoint.Parse(totalPayoutAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, totalPayoutAmount)
	}
	amount = fixedpoint.Round(amount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, totalPayoutAmount)
	}

	now := s.now()
	round := &domain.DividendRound{
		RoundID:           idhash.ComputeRoundID(launchID, recordAt),
		LaunchID:          launchID,
		RecordAt:          recordAt,
		TotalPayoutAmount: fixedpoint.Format(amount),
		PayoutAssetCode:   launch.AssetCode,
		PayoutAssetIssuer: launch.AssetIssuer,
		Status:            domain.RoundStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.rounds.Insert(ctx, round); err != nil {
		return nil, err // propagates storage.ErrDuplicateKey
	}

	return round, nil
}

// SnapshotResult summarizes one holder snapshot run.
type SnapshotResult struct {
	RoundID             string
	LaunchID            string
	TotalEligibleSupply string
	EligibleHolders     int
	TotalNetPayout      string
	SkippedHolders      int
}

// RunSnapshot walks every on-chain holder of the round's payout asset and
// fixes their pro-rata entitlement. The round must still be pending.
//
// Holder pages are aggregated in memory and written in one conditional
// transaction together with the pending → snapshot_done flip, so a ledger
// failure or timeout mid-walk leaves the round pending with no rows
// written, and a re-run before completion replaces any prior rows.
func (s *Service) RunSnapshot(ctx context.Context, roundID string) (*SnapshotResult, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status != domain.RoundStatusPending {
		return nil, fmt.Errorf("%w: round %s is %s", ErrAlreadyDone, roundID, round.Status)
	}

	holders, totalSupply, skipped, err := s.collectHolders(ctx, ledger.Asset{
		Code:   round.PayoutAssetCode,
		Issuer: round.PayoutAssetIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("walk holders: %w", err)
	}

	totalPayout, err := fixedpoint.Parse(round.TotalPayoutAmount)
	if err != nil {
		return nil, fmt.Errorf("round payout amount: %w", err)
	}

	now := s.now()
	totalNet := decimal.Zero
	snaps := make([]*domain.HolderSnapshot, len(holders))
	for i, h := range holders {
		share := fixedpoint.Div(h.balance, totalSupply)
		gross := share.Mul(totalPayout)
		net := fixedpoint.Round(s.fee.Apply(gross))
		totalNet = totalNet.Add(net)

		snaps[i] = &domain.HolderSnapshot{
			RoundID:       roundID,
			PublicKey:     h.publicKey,
			TokenBalance:  fixedpoint.Format(h.balance),
			ShareOfSupply: fixedpoint.Format(share),
			PayoutAmount:  fixedpoint.Format(net),
			CreatedAt:     now,
		}
	}

	err = s.rounds.CompleteSnapshot(ctx, roundID, fixedpoint.Format(totalSupply), len(snaps), snaps)
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: round %s", ErrAlreadyDone, roundID)
		}
		return nil, err
	}

	return &SnapshotResult{
		RoundID:             roundID,
		LaunchID:            round.LaunchID,
		TotalEligibleSupply: fixedpoint.Format(totalSupply),
		EligibleHolders:     len(snaps),
		TotalNetPayout:      fixedpoint.Format(totalNet),
		SkippedHolders:      skipped,
	}, nil
}

type eligibleHolder struct {
	publicKey string
	balance   decimal.Decimal
}

// collectHolders pages through the asset's holders and returns the
// eligible ones with their balance total. Holders at or below the
// eligibility floor are dropped; holders whose address fails strkey or
// curve validation are counted as skipped, since they could never claim.
func (s *Service) collectHolders(ctx context.Context, asset ledger.Asset) ([]eligibleHolder, decimal.Decimal, int, error) {
	var holders []eligibleHolder
	total := decimal.Zero
	skipped := 0

	cursor := ""
	for {
		page, err := s.ledger.HoldersOfAsset(ctx, asset, cursor, s.pageSize)
		if err != nil {
			return nil, decimal.Zero, 0, err
		}

		for _, h := range page.Holders {
			balance, err := fixedpoint.Parse(h.Balance)
			if err != nil {
				return nil, decimal.Zero, 0, fmt.Errorf("holder %s balance: %w", h.PublicKey, err)
			}
			if !balance.GreaterThan(s.minBalance) {
				continue
			}
			if !ledger.ValidAddress(h.PublicKey) {
				skipped++
				continue
			}
			holders = append(holders, eligibleHolder{publicKey: h.PublicKey, balance: balance})
			total = total.Add(balance)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return holders, total, skipped, nil
}

// RecordClaim marks one holder's payout as confirmed with the on-chain
// payment hash. Funds move in an external treasury process; this call only
// records the confirmation, exactly once per holder and round.
func (s *Service) RecordClaim(ctx context.Context, roundID, publicKey, txHash string) (*domain.HolderSnapshot, error) {
	if publicKey == "" || txHash == "" {
		return nil, fmt.Errorf("%w: public key and tx hash are required", storage.ErrInvalidInput)
	}

	err := s.snapshots.RecordClaim(ctx, roundID, publicKey, txHash, s.now())
	if err != nil {
		return nil, err // propagates storage.ErrNotFound / storage.ErrAlreadyClaimed
	}

	return s.snapshots.GetByRoundAndKey(ctx, roundID, publicKey)
}

// GetRound retrieves one dividend round.
func (s *Service) GetRound(ctx context.Context, roundID string) (*domain.DividendRound, error) {
	return s.rounds.GetByID(ctx, roundID)
}

// ListRounds retrieves a launch's dividend rounds ordered by record instant.
func (s *Service) ListRounds(ctx context.Context, launchID string) ([]*domain.DividendRound, error) {
	return s.rounds.ListByLaunch(ctx, launchID)
}

// ListHolders retrieves one page of a round's holder snapshots ordered by
// public key. An empty afterKey starts from the first holder.
func (s *Service) ListHolders(ctx context.Context, roundID, afterKey string, limit int) ([]*domain.HolderSnapshot, error) {
	return s.snapshots.ListByRound(ctx, roundID, afterKey, limit)
}
