// Package orchestrator drives the launch finalization pipeline.
// It coordinates: window close → engagement snapshot → allocation →
// replay verification.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pi-launchpad/internal/allocation"
	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/engagement"
	"pi-launchpad/internal/storage"
	"pi-launchpad/internal/verification"
)

// Orchestrator errors
var ErrNotDue = errors.New("participation window has not ended")

// scanPageSize is the page size used when scanning launches by status.
const scanPageSize = 100

// Orchestrator coordinates the finalization pipeline execution.
// Flow: close ended windows → engagement snapshot → allocation →
// replay verification.
type Orchestrator struct {
	launches       storage.LaunchStore
	participations storage.ParticipationStore
	events         storage.EngagementEventStore

	skipVerify bool
	verbose    bool

	now func() int64
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	LaunchStore          storage.LaunchStore
	ParticipationStore   storage.ParticipationStore
	EngagementEventStore storage.EngagementEventStore

	// Options
	SkipVerify bool // Skip the replay verification phase
	Verbose    bool

	// Now overrides the clock (Unix ms), for tests.
	Now func() int64
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		launches:       opts.LaunchStore,
		participations: opts.ParticipationStore,
		events:         opts.EngagementEventStore,
		skipVerify:     opts.SkipVerify,
		verbose:        opts.Verbose,
		now:            opts.Now,
	}
	if o.now == nil {
		o.now = func() int64 { return time.Now().UnixMilli() }
	}
	return o
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	LaunchesProcessed int
	Closed            int
	Snapshotted       int
	Allocated         int
	Verified          int
	Divergent         int
	Errors            []string
}

// Run executes the full finalization pipeline over every due launch.
// Phases:
//  1. Scan launches in participation_open and participation_closed
//  2. Close every open launch whose window has ended
//  3. Take the engagement snapshot of every unsnapshotted closed launch
//  4. Run the allocation for every snapshotted launch
//  5. Verify the stored rows of every allocation this run produced
//
// Per-launch failures are collected in RunResult.Errors; the pipeline
// keeps going so one bad launch cannot block the rest.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{}

	// Phase 1: Scan for due launches
	o.log("Phase 1: Scanning launches...")
	open, err := o.listAll(ctx, domain.StatusParticipationOpen)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (scan launches) failed: %w", err)
	}
	closed, err := o.listAll(ctx, domain.StatusParticipationClosed)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (scan launches) failed: %w", err)
	}
	o.log("  Found %d open and %d closed launches", len(open), len(closed))

	// Phase 2: Close ended windows
	o.log("Phase 2: Closing ended windows...")
	newlyClosed, closeErrs := o.closeEnded(ctx, open)
	result.Closed = len(newlyClosed)
	result.Errors = append(result.Errors, closeErrs...)
	closed = append(closed, newlyClosed...)
	result.LaunchesProcessed = len(closed)
	o.log("  Closed %d windows (%d errors), %d launches to finalize",
		result.Closed, len(closeErrs), len(closed))

	if len(closed) == 0 {
		return result, nil
	}

	// Phase 3: Engagement snapshots
	o.log("Phase 3: Taking engagement snapshots...")
	ready, snapshotted, snapErrs := o.runSnapshots(ctx, closed)
	result.Snapshotted = snapshotted
	result.Errors = append(result.Errors, snapErrs...)
	o.log("  Snapshotted %d launches (%d errors)", snapshotted, len(snapErrs))

	// Phase 4: Allocation
	o.log("Phase 4: Running allocations...")
	allocated, allocErrs := o.runAllocations(ctx, ready)
	result.Allocated = len(allocated)
	result.Errors = append(result.Errors, allocErrs...)
	o.log("  Allocated %d launches (%d errors)", len(allocated), len(allocErrs))

	// Phase 5: Replay verification
	if !o.skipVerify {
		o.log("Phase 5: Verifying stored allocations...")
		verified, divergent, verifyErrs := o.runVerification(ctx, allocated)
		result.Verified = verified
		result.Divergent = divergent
		result.Errors = append(result.Errors, verifyErrs...)
		o.log("  Verified %d launches (%d divergent)", verified, divergent)
	} else {
		o.log("Phase 5: Skipping verification (skipVerify=true)")
	}

	o.log("Pipeline completed: %d closed, %d snapshotted, %d allocated, %d verified",
		result.Closed, result.Snapshotted, result.Allocated, result.Verified)

	return result, nil
}

// LaunchResult contains results from finalizing a single launch.
type LaunchResult struct {
	LaunchID     string
	Closed       bool
	Snapshotted  bool
	Allocated    bool
	ListingPrice string
	Verification *verification.Result
}

// RunLaunch executes the finalization pipeline for one launch. The launch
// must be past its participation window; a launch another runner already
// moved forward picks up at whatever phase remains. Unlike Run, phase
// failures abort and surface as the returned error.
func (o *Orchestrator) RunLaunch(ctx context.Context, launchID string) (*LaunchResult, error) {
	result := &LaunchResult{LaunchID: launchID}

	launch, err := o.launches.GetByID(ctx, launchID)
	if err != nil {
		return nil, err // propagates storage.ErrNotFound
	}

	// 1. Close the window when it has ended
	switch launch.Status {
	case domain.StatusDraft:
		return nil, fmt.Errorf("%w: launch %s is draft", ErrNotDue, launchID)
	case domain.StatusParticipationOpen:
		if launch.ParticipationEnd > o.now() {
			return nil, fmt.Errorf("%w: launch %s", ErrNotDue, launchID)
		}
		err := o.launches.UpdateStatus(ctx, launchID,
			domain.StatusParticipationOpen, domain.StatusParticipationClosed)
		if err != nil && !errors.Is(err, storage.ErrStatusConflict) {
			return nil, fmt.Errorf("close: %w", err)
		}
		result.Closed = err == nil
		if launch, err = o.launches.GetByID(ctx, launchID); err != nil {
			return nil, err
		}
	}

	// 2. Engagement snapshot
	if launch.Status == domain.StatusParticipationClosed && !launch.SnapshotDone() {
		if _, err := o.engagementService().Snapshot(ctx, launchID); err != nil {
			if !errors.Is(err, engagement.ErrAlreadyDone) {
				return nil, fmt.Errorf("snapshot: %w", err)
			}
		} else {
			result.Snapshotted = true
		}
	}

	// 3. Allocation
	if launch.Status == domain.StatusParticipationClosed {
		allocated, err := o.allocationEngine().Run(ctx, launchID)
		switch {
		case err == nil:
			result.Allocated = true
			result.ListingPrice = allocated.ListingPrice
		case errors.Is(err, allocation.ErrAlreadyDone):
			// another runner finished it; fall through to verification
		default:
			return nil, fmt.Errorf("allocate: %w", err)
		}
	}

	// 4. Replay verification
	if !o.skipVerify {
		verified, err := o.verifier().VerifyLaunch(ctx, launchID)
		if err != nil {
			if errors.Is(err, verification.ErrNotAllocated) {
				return result, nil
			}
			return nil, fmt.Errorf("verify: %w", err)
		}
		result.Verification = verified
	}

	return result, nil
}

// listAll walks every launch page of one status.
func (o *Orchestrator) listAll(ctx context.Context, status domain.LaunchStatus) ([]*domain.Launch, error) {
	var all []*domain.Launch
	afterID := ""
	for {
		page, err := o.launches.List(ctx, &status, afterID, scanPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < scanPageSize {
			return all, nil
		}
		afterID = page[len(page)-1].LaunchID
	}
}

// closeEnded closes every open launch whose window has ended and returns
// the launches it closed.
func (o *Orchestrator) closeEnded(ctx context.Context, open []*domain.Launch) ([]*domain.Launch, []string) {
	var closed []*domain.Launch
	var errs []string

	now := o.now()
	for _, l := range open {
		if l.ParticipationEnd > now {
			continue
		}
		err := o.launches.UpdateStatus(ctx, l.LaunchID,
			domain.StatusParticipationOpen, domain.StatusParticipationClosed)
		if err != nil {
			// Skip status conflicts (another runner moved it)
			if errors.Is(err, storage.ErrStatusConflict) {
				continue
			}
			errs = append(errs, fmt.Sprintf("close %s: %v", l.LaunchID, err))
			continue
		}
		l.Status = domain.StatusParticipationClosed
		closed = append(closed, l)
	}

	return closed, errs
}

// runSnapshots takes the engagement snapshot of every launch that still
// needs one and returns the launches ready for allocation.
func (o *Orchestrator) runSnapshots(ctx context.Context, closed []*domain.Launch) ([]*domain.Launch, int, []string) {
	svc := o.engagementService()

	ready := make([]*domain.Launch, 0, len(closed))
	var snapshotted int
	var errs []string

	for _, l := range closed {
		if l.SnapshotDone() {
			ready = append(ready, l)
			continue
		}
		if _, err := svc.Snapshot(ctx, l.LaunchID); err != nil {
			// Skip already-done (another runner snapshotted it)
			if errors.Is(err, engagement.ErrAlreadyDone) {
				ready = append(ready, l)
				continue
			}
			errs = append(errs, fmt.Sprintf("snapshot %s: %v", l.LaunchID, err))
			continue
		}
		snapshotted++
		ready = append(ready, l)
	}

	return ready, snapshotted, errs
}

// runAllocations runs the allocation for every snapshotted launch and
// returns the launch ids it allocated.
func (o *Orchestrator) runAllocations(ctx context.Context, ready []*domain.Launch) ([]string, []string) {
	engine := o.allocationEngine()

	var allocated []string
	var errs []string

	for _, l := range ready {
		_, err := engine.Run(ctx, l.LaunchID)
		if err != nil {
			// Skip already-done (another runner allocated it)
			if errors.Is(err, allocation.ErrAlreadyDone) {
				continue
			}
			// Skip launches with nothing to allocate (expected for empty launches)
			if errors.Is(err, allocation.ErrNoCommitments) {
				continue
			}
			errs = append(errs, fmt.Sprintf("allocate %s: %v", l.LaunchID, err))
			continue
		}
		allocated = append(allocated, l.LaunchID)
	}

	return allocated, errs
}

// runVerification replays every allocation this run produced and checks
// the stored rows against the recomputation.
func (o *Orchestrator) runVerification(ctx context.Context, allocated []string) (int, int, []string) {
	verifier := o.verifier()

	var verified, divergent int
	var errs []string

	for _, launchID := range allocated {
		res, err := verifier.VerifyLaunch(ctx, launchID)
		if err != nil {
			errs = append(errs, fmt.Sprintf("verify %s: %v", launchID, err))
			continue
		}
		verified++
		if !res.Match {
			divergent++
			errs = append(errs, fmt.Sprintf("verify %s: %d divergences", launchID, len(res.Divergences)))
		}
	}

	return verified, divergent, errs
}

func (o *Orchestrator) engagementService() *engagement.Service {
	return engagement.NewService(engagement.ServiceOptions{
		LaunchStore:          o.launches,
		ParticipationStore:   o.participations,
		EngagementEventStore: o.events,
		Now:                  o.now,
	})
}

func (o *Orchestrator) allocationEngine() *allocation.Engine {
	return allocation.NewEngine(allocation.EngineOptions{
		LaunchStore:        o.launches,
		ParticipationStore: o.participations,
	})
}

func (o *Orchestrator) verifier() *verification.ReplayVerifier {
	return verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		LaunchStore:        o.launches,
		ParticipationStore: o.participations,
	})
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
