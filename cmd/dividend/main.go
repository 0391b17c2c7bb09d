// Package main provides the one-shot dividend round tool. It creates payout
// rounds, runs holder snapshots against the ledger, records claim
// confirmations, and prints round state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pi-launchpad/internal/dividend"
	"pi-launchpad/internal/ledger"
	ledgerstub "pi-launchpad/internal/ledger/stub"
	"pi-launchpad/internal/observability"
	pgstore "pi-launchpad/internal/storage/postgres"
)

func main() {
	// Parse flags
	action := flag.String("action", "", "Action: create, snapshot, claim, show (required)")
	launchID := flag.String("launch", "", "Launch ID (required for create)")
	roundID := flag.String("round", "", "Round ID (required for snapshot, claim, show)")
	recordAt := flag.Int64("record-at", 0, "Snapshot instant in Unix ms for create (0 = now)")
	amount := flag.String("amount", "", "Total payout amount for create (decimal string)")
	publicKey := flag.String("public-key", "", "Holder account for claim")
	txHash := flag.String("tx-hash", "", "On-chain payment hash for claim")

	// Ledger and fee policy (snapshot only)
	ledgerURL := flag.String("ledger-url", os.Getenv("LEDGER_URL"), "ledger API base URL (required for snapshot)")
	feeRate := flag.String("fee-rate", "", "platform fee rate on payouts, e.g. 0.02 (empty = no fee)")
	minBalance := flag.String("min-balance", "0", "minimum token balance for eligibility")

	// Storage
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[dividend] ", log.LstdFlags)

	// Validate required flags
	*action = strings.ToLower(*action)
	switch *action {
	case "create":
		if *launchID == "" {
			logger.Fatal("--launch is required for create")
		}
		if *amount == "" {
			logger.Fatal("--amount is required for create")
		}
	case "snapshot":
		if *roundID == "" {
			logger.Fatal("--round is required for snapshot")
		}
		if *ledgerURL == "" {
			logger.Fatal("--ledger-url is required for snapshot (the holder walk reads live balances)")
		}
	case "claim":
		if *roundID == "" {
			logger.Fatal("--round is required for claim")
		}
		if *publicKey == "" {
			logger.Fatal("--public-key is required for claim")
		}
		if *txHash == "" {
			logger.Fatal("--tx-hash is required for claim")
		}
	case "show":
		if *roundID == "" {
			logger.Fatal("--round is required for show")
		}
	default:
		logger.Fatalf("Invalid action: %q. Must be create, snapshot, claim, or show", *action)
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	// Create context with cancellation
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
		logger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pool.Close()

	var ledgerClient ledger.Client
	if *ledgerURL != "" {
		ledgerClient = ledger.NewHTTPClient(*ledgerURL)
	} else {
		ledgerClient = ledgerstub.NewClient()
	}

	var fee dividend.FeePolicy
	if *feeRate != "" {
		policy, err := dividend.NewRateFeePolicy(*feeRate)
		if err != nil {
			logger.Fatalf("Invalid --fee-rate: %v", err)
		}
		fee = policy
	}

	svc, err := dividend.NewService(dividend.ServiceOptions{
		LaunchStore:         pgstore.NewLaunchStore(pool),
		DividendRoundStore:  pgstore.NewDividendRoundStore(pool),
		HolderSnapshotStore: pgstore.NewHolderSnapshotStore(pool),
		LedgerClient:        ledgerClient,
		FeePolicy:           fee,
		MinBalance:          *minBalance,
	})
	if err != nil {
		logger.Fatalf("Failed to build dividend service: %v", err)
	}

	switch *action {
	case "create":
		at := *recordAt
		if at <= 0 {
			at = time.Now().UnixMilli()
		}
		round, err := svc.CreateRound(ctx, *launchID, at, *amount)
		if err != nil {
			logger.Fatalf("Failed to create round: %v", err)
		}
		observability.RecordRoundCreated()
		if *outputJSON {
			printJSON(round)
			return
		}
		fmt.Printf("Round created:\n")
		fmt.Printf("  Round ID:  %s\n", round.RoundID)
		fmt.Printf("  Launch:    %s\n", round.LaunchID)
		fmt.Printf("  Record at: %d\n", round.RecordAt)
		fmt.Printf("  Payout:    %s %s\n", round.TotalPayoutAmount, round.PayoutAssetCode)
		fmt.Printf("  Status:    %s\n", round.Status)

	case "snapshot":
		start := time.Now()
		result, err := svc.RunSnapshot(ctx, *roundID)
		if err != nil {
			observability.RecordPipelineRun("dividend_snapshot", "error", time.Since(start).Seconds())
			logger.Fatalf("Failed to run snapshot: %v", err)
		}
		observability.RecordPipelineRun("dividend_snapshot", "success", time.Since(start).Seconds())
		observability.RecordSnapshotCompleted()
		if *outputJSON {
			printJSON(result)
			return
		}
		fmt.Printf("Holder snapshot completed:\n")
		fmt.Printf("  Round ID:        %s\n", result.RoundID)
		fmt.Printf("  Launch:          %s\n", result.LaunchID)
		fmt.Printf("  Eligible supply: %s\n", result.TotalEligibleSupply)
		fmt.Printf("  Eligible count:  %d\n", result.EligibleHolders)
		fmt.Printf("  Net payout:      %s\n", result.TotalNetPayout)
		fmt.Printf("  Skipped:         %d\n", result.SkippedHolders)

	case "claim":
		snap, err := svc.RecordClaim(ctx, *roundID, *publicKey, *txHash)
		if err != nil {
			logger.Fatalf("Failed to record claim: %v", err)
		}
		observability.RecordClaim()
		if *outputJSON {
			printJSON(snap)
			return
		}
		fmt.Printf("Claim recorded:\n")
		fmt.Printf("  Round ID:   %s\n", snap.RoundID)
		fmt.Printf("  Holder:     %s\n", snap.PublicKey)
		fmt.Printf("  Payout:     %s\n", snap.PayoutAmount)
		fmt.Printf("  Tx hash:    %s\n", *txHash)

	case "show":
		round, err := svc.GetRound(ctx, *roundID)
		if err != nil {
			logger.Fatalf("Failed to load round: %v", err)
		}
		if *outputJSON {
			printJSON(round)
			return
		}
		fmt.Printf("Round %s:\n", round.RoundID)
		fmt.Printf("  Launch:    %s\n", round.LaunchID)
		fmt.Printf("  Record at: %d\n", round.RecordAt)
		fmt.Printf("  Payout:    %s %s\n", round.TotalPayoutAmount, round.PayoutAssetCode)
		fmt.Printf("  Status:    %s\n", round.Status)
		if round.TotalEligibleSupply != nil {
			fmt.Printf("  Eligible supply: %s\n", *round.TotalEligibleSupply)
		}
		if round.EligibleHoldersCount != nil {
			fmt.Printf("  Eligible count:  %d\n", *round.EligibleHoldersCount)
		}
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
