package verification

import (
	"context"
	"errors"
	"fmt"

	"pi-launchpad/internal/allocation"
	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/storage"
)

// ErrNotAllocated is returned when a launch has not completed allocation.
var ErrNotAllocated = errors.New("allocation has not completed")

// verifyPageSize is the launch page size used by VerifyAll.
const verifyPageSize = 100

// ReplayVerifier implements Verifier by recomputing allocations from the
// stored participations and launch row.
type ReplayVerifier struct {
	launches       storage.LaunchStore
	participations storage.ParticipationStore
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	LaunchStore        storage.LaunchStore
	ParticipationStore storage.ParticipationStore
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		launches:       opts.LaunchStore,
		participations: opts.ParticipationStore,
	}
}

// VerifyLaunch verifies a single launch by ID.
func (v *ReplayVerifier) VerifyLaunch(ctx context.Context, launchID string) (*Result, error) {
	// 1. Load the stored launch; allocation must have completed
	launch, err := v.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	if launch.Status != domain.StatusTGEOpen || launch.ListingPrice == nil {
		return nil, fmt.Errorf("%w: launch %s is %s", ErrNotAllocated, launchID, launch.Status)
	}

	// 2. Load the stored rows and recompute from the same inputs
	stored, err := v.participations.GetAllByLaunch(ctx, launchID)
	if err != nil {
		return nil, err
	}

	replayed, err := allocation.Replay(launch, stored)
	if err != nil {
		return nil, err
	}

	// 3. Compare stored against recomputed
	divergences := CompareAllocation(launch, stored, replayed)

	return &Result{
		LaunchID:     launchID,
		Match:        len(divergences) == 0,
		Participants: len(stored),
		Divergences:  divergences,
	}, nil
}

// VerifyAll verifies every launch in tge_open.
func (v *ReplayVerifier) VerifyAll(ctx context.Context) (*Report, error) {
	status := domain.StatusTGEOpen
	report := &Report{}

	afterID := ""
	for {
		launches, err := v.launches.List(ctx, &status, afterID, verifyPageSize)
		if err != nil {
			return nil, err
		}
		if len(launches) == 0 {
			return report, nil
		}

		for _, launch := range launches {
			report.TotalLaunches++

			result, err := v.VerifyLaunch(ctx, launch.LaunchID)
			if err != nil {
				// Record the failure and keep verifying the rest.
				report.Results = append(report.Results, Result{
					LaunchID: launch.LaunchID,
					Match:    false,
					Divergences: []FieldDivergence{
						{Field: "error", Actual: err.Error()},
					},
				})
				report.DivergentLaunches++
				continue
			}

			report.Results = append(report.Results, *result)
			if result.Match {
				report.MatchedLaunches++
			} else {
				report.DivergentLaunches++
			}
		}

		if len(launches) < verifyPageSize {
			return report, nil
		}
		afterID = launches[len(launches)-1].LaunchID
	}
}
