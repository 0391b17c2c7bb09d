// Package main provides the one-shot launch finalizer.
// Executes: window close → engagement snapshot → allocation → replay verification
// for every due launch, or for a single launch with -launch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pi-launchpad/internal/observability"
	"pi-launchpad/internal/orchestrator"
	"pi-launchpad/internal/storage"
	chstore "pi-launchpad/internal/storage/clickhouse"
	pgstore "pi-launchpad/internal/storage/postgres"
)

func main() {
	// Parse flags
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for the engagement event store (optional)")
	launchID := flag.String("launch", "", "finalize a single launch instead of sweeping all due launches")
	skipVerify := flag.Bool("skip-verify", false, "skip the replay verification phase")
	verbose := flag.Bool("verbose", false, "verbose output")
	flag.Parse()

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: -postgres-dsn is required (the finalizer operates on persisted launches)")
		flag.Usage()
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling...\n", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	var events storage.EngagementEventStore = pgstore.NewEngagementEventStore(pool)
	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		events = chstore.NewEngagementEventStore(conn)
	}

	orch := orchestrator.New(orchestrator.Options{
		LaunchStore:          pgstore.NewLaunchStore(pool),
		ParticipationStore:   pgstore.NewParticipationStore(pool),
		EngagementEventStore: events,
		SkipVerify:           *skipVerify,
		Verbose:              *verbose,
	})

	start := time.Now()
	if *launchID != "" {
		runSingle(ctx, orch, *launchID, start)
		return
	}
	runSweep(ctx, orch, start)
}

// runSingle drives one launch end to end and fails loudly on divergences.
func runSingle(ctx context.Context, orch *orchestrator.Orchestrator, launchID string, start time.Time) {
	result, err := orch.RunLaunch(ctx, launchID)
	if err != nil {
		observability.RecordPipelineRun("allocate", "error", time.Since(start).Seconds())
		fmt.Fprintf(os.Stderr, "Error finalizing launch %s: %v\n", launchID, err)
		os.Exit(1)
	}
	observability.RecordPipelineRun("allocate", "success", time.Since(start).Seconds())

	fmt.Printf("Launch %s finalized:\n", result.LaunchID)
	fmt.Printf("  Closed:      %v\n", result.Closed)
	fmt.Printf("  Snapshotted: %v\n", result.Snapshotted)
	fmt.Printf("  Allocated:   %v\n", result.Allocated)
	if result.ListingPrice != "" {
		fmt.Printf("  Listing price: %s\n", result.ListingPrice)
	}
	if v := result.Verification; v != nil {
		if v.Match {
			fmt.Printf("  Verification: clean (%d participants)\n", v.Participants)
			return
		}
		fmt.Printf("  Verification: %d divergence(s) across %d participants\n",
			len(v.Divergences), v.Participants)
		for _, d := range v.Divergences {
			fmt.Printf("    - %s: expected %s, got %s\n", d.Field, d.Expected, d.Actual)
		}
		os.Exit(1)
	}
}

// runSweep finalizes every launch whose participation window has ended.
func runSweep(ctx context.Context, orch *orchestrator.Orchestrator, start time.Time) {
	result, err := orch.Run(ctx)
	if err != nil {
		observability.RecordPipelineRun("allocate", "error", time.Since(start).Seconds())
		fmt.Fprintf(os.Stderr, "Error running finalization sweep: %v\n", err)
		os.Exit(1)
	}
	observability.RecordPipelineRun("allocate", "success", time.Since(start).Seconds())

	fmt.Println("Finalization sweep completed:")
	fmt.Printf("  Launches processed: %d\n", result.LaunchesProcessed)
	fmt.Printf("  Closed:             %d\n", result.Closed)
	fmt.Printf("  Snapshotted:        %d\n", result.Snapshotted)
	fmt.Printf("  Allocated:          %d\n", result.Allocated)
	fmt.Printf("  Verified:           %d\n", result.Verified)
	fmt.Printf("  Divergent:          %d\n", result.Divergent)
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
}
