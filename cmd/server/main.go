// Package main provides the unified launchpad server. Every lifecycle
// transition is an explicit HTTP call over the underlying services:
// - Launch admin: create, open, close
// - Participation: power lookup, capped commits
// - Engagement: event ingest (HTTP plus optional WebSocket intake), snapshot
// - Allocation: run, replay verification
// - Dividends: round create, holder snapshot, claim recording
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"pi-launchpad/internal/activity"
	"pi-launchpad/internal/allocation"
	"pi-launchpad/internal/dividend"
	"pi-launchpad/internal/domain"
	"pi-launchpad/internal/engagement"
	"pi-launchpad/internal/launch"
	"pi-launchpad/internal/ledger"
	ledgerstub "pi-launchpad/internal/ledger/stub"
	"pi-launchpad/internal/observability"
	"pi-launchpad/internal/power"
	"pi-launchpad/internal/staking"
	stakingstub "pi-launchpad/internal/staking/stub"
	"pi-launchpad/internal/storage"
	chstore "pi-launchpad/internal/storage/clickhouse"
	"pi-launchpad/internal/storage/memory"
	pgstore "pi-launchpad/internal/storage/postgres"
	"pi-launchpad/internal/verification"
)

const (
	defaultHolderPageLimit = 50
	maxHolderPageLimit     = 100
	defaultLaunchPageLimit = 50
	shutdownTimeout        = 30 * time.Second
)

// Server holds all components of the unified service.
type Server struct {
	// Configuration
	addr           string
	postgresDSN    string
	clickhouseDSN  string
	useMemory      bool
	ledgerURL      string
	stakingURL     string
	activityWS     string
	intakeLaunches []string

	// Stores
	stores *allStores

	// Services
	launches   *launch.Service
	power      *power.Service
	engagement *engagement.Service
	allocator  *allocation.Engine
	verifier   *verification.ReplayVerifier
	dividends  *dividend.Service

	// Activity intake (optional, background)
	feed       activity.Feed
	intake     *activity.Intake
	intakeDone chan struct{}

	// HTTP
	httpServer *http.Server

	logger *log.Logger

	// Run state
	mu             sync.Mutex
	startedAt      time.Time
	allocationRuns int
	lastAllocation time.Time
	intakeStats    *activity.IntakeStats
}

// allStores bundles every store the services need.
type allStores struct {
	launches       storage.LaunchStore
	participations storage.ParticipationStore
	events         storage.EngagementEventStore
	rounds         storage.DividendRoundStore
	holders        storage.HolderSnapshotStore
}

func main() {
	// Load .env file if present (before flag parsing so env vars are available)
	loadEnvFile()

	var (
		addr           = flag.String("addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
		postgresDSN    = flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
		clickhouseDSN  = flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for the engagement event store (optional)")
		useMemory      = flag.Bool("use-memory", false, "use in-memory stores instead of databases")
		ledgerURL      = flag.String("ledger-url", os.Getenv("LEDGER_URL"), "ledger API base URL (empty = stub client)")
		stakingURL     = flag.String("staking-url", os.Getenv("STAKING_URL"), "staking platform API base URL (empty = stub provider)")
		activityWS     = flag.String("activity-ws", os.Getenv("ACTIVITY_WS_ENDPOINT"), "activity feed WebSocket endpoint (empty = intake disabled)")
		intakeLaunches = flag.String("intake-launches", os.Getenv("INTAKE_LAUNCHES"), "comma-separated launch IDs the activity intake subscribes to")
		feeRate        = flag.String("dividend-fee-rate", envOr("DIVIDEND_FEE_RATE", ""), "platform fee rate on dividend payouts, e.g. 0.02 (empty = no fee)")
		minBalance     = flag.String("dividend-min-balance", envOr("DIVIDEND_MIN_BALANCE", "0"), "minimum token balance for dividend eligibility")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("either -use-memory or -postgres-dsn is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling: first signal shuts down gracefully, second forces exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
		sig = <-sigCh
		logger.Printf("Received second signal %v, forcing exit", sig)
		os.Exit(1)
	}()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	srv := &Server{
		addr:           *addr,
		postgresDSN:    *postgresDSN,
		clickhouseDSN:  *clickhouseDSN,
		useMemory:      *useMemory,
		ledgerURL:      *ledgerURL,
		stakingURL:     *stakingURL,
		activityWS:     *activityWS,
		intakeLaunches: splitList(*intakeLaunches),
		stores:         stores,
		logger:         logger,
		startedAt:      time.Now(),
	}

	if err := srv.buildServices(*feeRate, *minBalance); err != nil {
		logger.Fatalf("Failed to build services: %v", err)
	}

	if err := srv.startIntake(ctx); err != nil {
		logger.Fatalf("Failed to start activity intake: %v", err)
	}

	srv.startHTTP()
	logger.Printf("Launchpad server ready on %s", srv.addr)

	<-ctx.Done()
	srv.shutdown()
	logger.Println("Server stopped")
}

// createStores initializes either in-memory or database-backed stores.
// The returned cleanup function closes any opened connections.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*allStores, func(), error) {
	if useMemory {
		logger.Println("Using in-memory stores")
		holders := memory.NewHolderSnapshotStore()
		return &allStores{
			launches:       memory.NewLaunchStore(),
			participations: memory.NewParticipationStore(),
			events:         memory.NewEngagementEventStore(),
			rounds:         memory.NewDividendRoundStore(holders),
			holders:        holders,
		}, func() {}, nil
	}

	logger.Println("Connecting to PostgreSQL...")
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	stores := &allStores{
		launches:       pgstore.NewLaunchStore(pool),
		participations: pgstore.NewParticipationStore(pool),
		events:         pgstore.NewEngagementEventStore(pool),
		rounds:         pgstore.NewDividendRoundStore(pool),
		holders:        pgstore.NewHolderSnapshotStore(pool),
	}
	cleanup := func() { pool.Close() }

	// ClickHouse keeps the high-volume event append path off PostgreSQL.
	if clickhouseDSN != "" {
		logger.Println("Connecting to ClickHouse...")
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		stores.events = chstore.NewEngagementEventStore(conn)
		cleanup = func() {
			if err := conn.Close(); err != nil {
				logger.Printf("Failed to close ClickHouse connection: %v", err)
			}
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

// buildServices wires every service over the shared stores. Ledger and
// staking fall back to stubs when no URL is configured, which keeps
// -use-memory runs self-contained.
func (s *Server) buildServices(feeRate, minBalance string) error {
	var ledgerClient ledger.Client
	if s.ledgerURL != "" {
		ledgerClient = ledger.NewHTTPClient(s.ledgerURL)
	} else {
		s.logger.Println("No -ledger-url provided; using stub ledger client")
		ledgerClient = ledgerstub.NewClient()
	}

	var stakingProvider staking.Provider
	if s.stakingURL != "" {
		stakingProvider = staking.NewHTTPProvider(s.stakingURL)
	} else {
		s.logger.Println("No -staking-url provided; using stub staking provider")
		stakingProvider = stakingstub.NewProvider()
	}

	s.launches = launch.NewService(launch.ServiceOptions{
		LaunchStore:  s.stores.launches,
		LedgerClient: ledgerClient,
	})
	s.power = power.NewService(power.ServiceOptions{
		LaunchStore:        s.stores.launches,
		ParticipationStore: s.stores.participations,
		StakingProvider:    stakingProvider,
	})
	s.engagement = engagement.NewService(engagement.ServiceOptions{
		LaunchStore:          s.stores.launches,
		ParticipationStore:   s.stores.participations,
		EngagementEventStore: s.stores.events,
	})
	s.allocator = allocation.NewEngine(allocation.EngineOptions{
		LaunchStore:        s.stores.launches,
		ParticipationStore: s.stores.participations,
	})
	s.verifier = verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		LaunchStore:        s.stores.launches,
		ParticipationStore: s.stores.participations,
	})

	var fee dividend.FeePolicy
	if feeRate != "" {
		policy, err := dividend.NewRateFeePolicy(feeRate)
		if err != nil {
			return fmt.Errorf("invalid -dividend-fee-rate: %w", err)
		}
		fee = policy
	}
	dividends, err := dividend.NewService(dividend.ServiceOptions{
		LaunchStore:         s.stores.launches,
		DividendRoundStore:  s.stores.rounds,
		HolderSnapshotStore: s.stores.holders,
		LedgerClient:        ledgerClient,
		FeePolicy:           fee,
		MinBalance:          minBalance,
	})
	if err != nil {
		return fmt.Errorf("dividend service: %w", err)
	}
	s.dividends = dividends

	return nil
}

// startIntake connects the WebSocket activity feed and forwards its events
// into the engagement service until the context is cancelled. Disabled when
// no endpoint or no launch IDs are configured.
func (s *Server) startIntake(ctx context.Context) error {
	if s.activityWS == "" {
		return nil
	}
	if len(s.intakeLaunches) == 0 {
		s.logger.Println("Activity feed configured but -intake-launches is empty; intake disabled")
		return nil
	}

	feed, err := activity.NewWSFeed(ctx, s.activityWS, nil)
	if err != nil {
		return fmt.Errorf("connect activity feed: %w", err)
	}
	s.feed = feed
	s.intake = activity.NewIntake(feed, s.engagement)
	s.intakeDone = make(chan struct{})

	go func() {
		defer close(s.intakeDone)
		stats, err := s.intake.Run(ctx, s.intakeLaunches)
		if err != nil && ctx.Err() == nil {
			s.logger.Printf("Activity intake stopped: %v", err)
		}
		if stats != nil {
			s.mu.Lock()
			s.intakeStats = stats
			s.mu.Unlock()
			s.logger.Printf("Activity intake finished: forwarded=%d dropped=%d failed=%d",
				stats.Forwarded, stats.Dropped, stats.Failed)
		}
	}()

	s.logger.Printf("Activity intake subscribed to %d launch(es) via %s",
		len(s.intakeLaunches), s.activityWS)
	return nil
}

// startHTTP registers the handler routes and starts listening.
func (s *Server) startHTTP() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /v1/launches", s.handleCreateLaunch)
	mux.HandleFunc("GET /v1/launches", s.handleListLaunches)
	mux.HandleFunc("GET /v1/launches/{id}", s.handleGetLaunch)
	mux.HandleFunc("POST /v1/launches/{id}/open", s.handleOpenParticipation)
	mux.HandleFunc("POST /v1/launches/{id}/close", s.handleCloseParticipation)

	mux.HandleFunc("GET /v1/launches/{id}/power/{userID}", s.handlePower)
	mux.HandleFunc("POST /v1/launches/{id}/commitments", s.handleCommit)

	mux.HandleFunc("POST /v1/launches/{id}/events", s.handleIngestEvent)
	mux.HandleFunc("POST /v1/launches/{id}/engagement-snapshot", s.handleEngagementSnapshot)

	mux.HandleFunc("POST /v1/launches/{id}/allocation", s.handleRunAllocation)
	mux.HandleFunc("GET /v1/launches/{id}/verification", s.handleVerifyAllocation)

	mux.HandleFunc("POST /v1/launches/{id}/dividend-rounds", s.handleCreateRound)
	mux.HandleFunc("GET /v1/launches/{id}/dividend-rounds", s.handleListRounds)
	mux.HandleFunc("GET /v1/dividend-rounds/{roundID}", s.handleGetRound)
	mux.HandleFunc("POST /v1/dividend-rounds/{roundID}/snapshot", s.handleRoundSnapshot)
	mux.HandleFunc("POST /v1/dividend-rounds/{roundID}/claims", s.handleRecordClaim)
	mux.HandleFunc("GET /v1/dividend-rounds/{roundID}/holders", s.handleListHolders)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go func() {
		s.logger.Printf("HTTP server listening on %s", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("HTTP server error: %v", err)
		}
	}()
}

// shutdown stops the HTTP server and waits for the intake to drain.
func (s *Server) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("HTTP shutdown error: %v", err)
		}
	}
	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			s.logger.Printf("Feed close error: %v", err)
		}
	}
	if s.intakeDone != nil {
		select {
		case <-s.intakeDone:
		case <-shutdownCtx.Done():
			s.logger.Println("Timed out waiting for activity intake to stop")
		}
	}
}

// --- Health and status ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the JSON structure for the /status endpoint.
type StatusResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	Stores          string `json:"stores"`
	IntakeRunning   bool   `json:"intake_running"`
	IntakeForwarded int    `json:"intake_forwarded"`
	IntakeDropped   int    `json:"intake_dropped"`
	IntakeFailed    int    `json:"intake_failed"`
	AllocationRuns  int    `json:"allocation_runs"`
	LastAllocation  string `json:"last_allocation,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:         "running",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Stores:         storesLabel(s.useMemory, s.clickhouseDSN),
		IntakeRunning:  s.intake != nil && s.intakeStats == nil,
		AllocationRuns: s.allocationRuns,
	}
	if stats := s.intakeStats; stats != nil {
		resp.IntakeForwarded = stats.Forwarded
		resp.IntakeDropped = stats.Dropped
		resp.IntakeFailed = stats.Failed
	}
	if !s.lastAllocation.IsZero() {
		resp.LastAllocation = s.lastAllocation.UTC().Format(time.RFC3339)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func storesLabel(useMemory bool, clickhouseDSN string) string {
	if useMemory {
		return "memory"
	}
	if clickhouseDSN != "" {
		return "postgres+clickhouse"
	}
	return "postgres"
}

// --- Launch admin ---

type createLaunchRequest struct {
	AssetCode          string `json:"asset_code"`
	AssetIssuer        string `json:"asset_issuer"`
	TokensAvailable    string `json:"tokens_available"`
	ParticipationStart int64  `json:"participation_start"`
	ParticipationEnd   int64  `json:"participation_end"`
	StakeDurationDays  int    `json:"stake_duration_days"`
	AllocationDesign   int    `json:"allocation_design"`
	PiPowerBaseline    string `json:"pi_power_baseline"`
	IsEquityStyle      bool   `json:"is_equity_style"`
}

func (s *Server) handleCreateLaunch(w http.ResponseWriter, r *http.Request) {
	var req createLaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.launches.Create(r.Context(), launch.CreateParams{
		AssetCode:          req.AssetCode,
		AssetIssuer:        req.AssetIssuer,
		TokensAvailable:    req.TokensAvailable,
		ParticipationStart: req.ParticipationStart,
		ParticipationEnd:   req.ParticipationEnd,
		StakeDurationDays:  req.StakeDurationDays,
		AllocationDesign:   req.AllocationDesign,
		PiPowerBaseline:    req.PiPowerBaseline,
		IsEquityStyle:      req.IsEquityStyle,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	observability.RecordLaunchCreated()
	writeJSON(w, http.StatusCreated, toLaunchJSON(created))
}

func (s *Server) handleListLaunches(w http.ResponseWriter, r *http.Request) {
	var status *domain.LaunchStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed := domain.LaunchStatus(raw)
		if !parsed.IsValid() {
			writeBadRequest(w, "unknown status "+strconv.Quote(raw))
			return
		}
		status = &parsed
	}
	afterID := r.URL.Query().Get("after")
	limit := parseLimit(r, defaultLaunchPageLimit, maxHolderPageLimit)

	launches, err := s.launches.List(r.Context(), status, afterID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]launchJSON, 0, len(launches))
	for _, l := range launches {
		items = append(items, toLaunchJSON(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"launches": items})
}

func (s *Server) handleGetLaunch(w http.ResponseWriter, r *http.Request) {
	found, err := s.launches.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLaunchJSON(found))
}

func (s *Server) handleOpenParticipation(w http.ResponseWriter, r *http.Request) {
	updated, err := s.launches.OpenParticipation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	observability.RecordLaunchTransition(domain.StatusParticipationOpen.String())
	writeJSON(w, http.StatusOK, toLaunchJSON(updated))
}

func (s *Server) handleCloseParticipation(w http.ResponseWriter, r *http.Request) {
	updated, err := s.launches.CloseParticipation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	observability.RecordLaunchTransition(domain.StatusParticipationClosed.String())
	writeJSON(w, http.StatusOK, toLaunchJSON(updated))
}

// --- Participation ---

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	current, err := s.power.PowerOf(r.Context(), r.PathValue("id"), r.PathValue("userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPowerJSON(current))
}

type commitRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "user_id is required")
		return
	}

	updated, err := s.power.Commit(r.Context(), r.PathValue("id"), req.UserID, req.Amount)
	if err != nil {
		observability.RecordCommitRejected(commitRejectReason(err))
		writeError(w, err)
		return
	}

	observability.RecordCommitAccepted()
	writeJSON(w, http.StatusOK, toPowerJSON(updated))
}

func commitRejectReason(err error) string {
	switch {
	case errors.Is(err, storage.ErrCapExceeded):
		return "cap_exceeded"
	case errors.Is(err, power.ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, power.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "error"
	}
}

// --- Engagement ---

type ingestEventRequest struct {
	UserID    string `json:"user_id"`
	EventType string `json:"event_type"`
	Payload   string `json:"payload"`
	At        int64  `json:"at"`
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.EventType == "" {
		writeBadRequest(w, "user_id and event_type are required")
		return
	}

	event, err := s.engagement.Ingest(r.Context(), r.PathValue("id"), req.UserID,
		domain.EventType(req.EventType), req.Payload, req.At)
	if err != nil {
		if errors.Is(err, engagement.ErrWindowClosed) {
			observability.RecordActivityDropped()
		}
		writeError(w, err)
		return
	}

	observability.RecordActivityIngested(req.EventType)
	writeJSON(w, http.StatusCreated, map[string]any{
		"launch_id":  event.LaunchID,
		"user_id":    event.UserID,
		"event_type": event.EventType.String(),
		"at":         event.At,
		"created_at": event.CreatedAt,
	})
}

func (s *Server) handleEngagementSnapshot(w http.ResponseWriter, r *http.Request) {
	result, err := s.engagement.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		observability.RecordSnapshotRun("error", 0)
		writeError(w, err)
		return
	}

	observability.RecordSnapshotRun("success", result.Participants)
	writeJSON(w, http.StatusOK, map[string]any{
		"launch_id":    result.LaunchID,
		"participants": result.Participants,
		"top_count":    result.TopCount,
		"mid_count":    result.MidCount,
		"bottom_count": result.BottomCount,
		"snapshot_at":  result.SnapshotAt,
	})
}

// --- Allocation ---

func (s *Server) handleRunAllocation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := s.allocator.Run(r.Context(), r.PathValue("id"))
	elapsed := time.Since(start).Seconds()
	if err != nil {
		observability.RecordAllocationRun("error", 0, elapsed)
		writeError(w, err)
		return
	}

	observability.RecordAllocationRun("success", len(result.Lines), elapsed)
	observability.RecordLaunchTransition(domain.StatusTGEOpen.String())
	s.mu.Lock()
	s.allocationRuns++
	s.lastAllocation = time.Now()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, toAllocationJSON(result))
}

func (s *Server) handleVerifyAllocation(w http.ResponseWriter, r *http.Request) {
	result, err := s.verifier.VerifyLaunch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	observability.RecordVerification(len(result.Divergences))
	divergences := make([]map[string]string, 0, len(result.Divergences))
	for _, d := range result.Divergences {
		divergences = append(divergences, map[string]string{
			"field":    d.Field,
			"expected": d.Expected,
			"actual":   d.Actual,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"launch_id":    result.LaunchID,
		"match":        result.Match,
		"participants": result.Participants,
		"divergences":  divergences,
	})
}

// --- Dividends ---

type createRoundRequest struct {
	RecordAt          int64  `json:"record_at"`
	TotalPayoutAmount string `json:"total_payout_amount"`
}

func (s *Server) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	var req createRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	round, err := s.dividends.CreateRound(r.Context(), r.PathValue("id"), req.RecordAt, req.TotalPayoutAmount)
	if err != nil {
		writeError(w, err)
		return
	}

	observability.RecordRoundCreated()
	writeJSON(w, http.StatusCreated, toRoundJSON(round))
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := s.dividends.ListRounds(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]roundJSON, 0, len(rounds))
	for _, round := range rounds {
		items = append(items, toRoundJSON(round))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": items})
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.dividends.GetRound(r.Context(), r.PathValue("roundID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoundJSON(round))
}

func (s *Server) handleRoundSnapshot(w http.ResponseWriter, r *http.Request) {
	result, err := s.dividends.RunSnapshot(r.Context(), r.PathValue("roundID"))
	if err != nil {
		writeError(w, err)
		return
	}

	observability.RecordSnapshotCompleted()
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id":              result.RoundID,
		"launch_id":             result.LaunchID,
		"total_eligible_supply": result.TotalEligibleSupply,
		"eligible_holders":      result.EligibleHolders,
		"total_net_payout":      result.TotalNetPayout,
		"skipped_holders":       result.SkippedHolders,
	})
}

type claimRequest struct {
	PublicKey string `json:"public_key"`
	TxHash    string `json:"tx_hash"`
}

func (s *Server) handleRecordClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.PublicKey == "" {
		writeBadRequest(w, "public_key is required")
		return
	}

	snap, err := s.dividends.RecordClaim(r.Context(), r.PathValue("roundID"), req.PublicKey, req.TxHash)
	if err != nil {
		writeError(w, err)
		return
	}

	observability.RecordClaim()
	writeJSON(w, http.StatusOK, toHolderJSON(snap))
}

func (s *Server) handleListHolders(w http.ResponseWriter, r *http.Request) {
	afterKey := r.URL.Query().Get("after")
	limit := parseLimit(r, defaultHolderPageLimit, maxHolderPageLimit)

	holders, err := s.dividends.ListHolders(r.Context(), r.PathValue("roundID"), afterKey, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]holderJSON, 0, len(holders))
	for _, h := range holders {
		items = append(items, toHolderJSON(h))
	}
	next := ""
	if len(holders) == limit {
		next = holders[len(holders)-1].PublicKey
	}
	writeJSON(w, http.StatusOK, map[string]any{"holders": items, "next_after": next})
}

// --- JSON views ---

type launchJSON struct {
	LaunchID             string  `json:"launch_id"`
	AssetCode            string  `json:"asset_code"`
	AssetIssuer          string  `json:"asset_issuer"`
	TokensAvailable      string  `json:"tokens_available"`
	ParticipationStart   int64   `json:"participation_start"`
	ParticipationEnd     int64   `json:"participation_end"`
	StakeDurationDays    int     `json:"stake_duration_days"`
	AllocationDesign     int     `json:"allocation_design"`
	Status               string  `json:"status"`
	PiPowerBaseline      *string `json:"pi_power_baseline,omitempty"`
	ListingPrice         *string `json:"listing_price,omitempty"`
	IsEquityStyle        bool    `json:"is_equity_style"`
	EngagementSnapshotAt *int64  `json:"engagement_snapshot_at,omitempty"`
	CreatedAt            int64   `json:"created_at"`
	UpdatedAt            int64   `json:"updated_at"`
}

func toLaunchJSON(l *domain.Launch) launchJSON {
	return launchJSON{
		LaunchID:             l.LaunchID,
		AssetCode:            l.AssetCode,
		AssetIssuer:          l.AssetIssuer,
		TokensAvailable:      l.TokensAvailable,
		ParticipationStart:   l.ParticipationStart,
		ParticipationEnd:     l.ParticipationEnd,
		StakeDurationDays:    l.StakeDurationDays,
		AllocationDesign:     l.AllocationDesign,
		Status:               l.Status.String(),
		PiPowerBaseline:      l.PiPowerBaseline,
		ListingPrice:         l.ListingPrice,
		IsEquityStyle:        l.IsEquityStyle,
		EngagementSnapshotAt: l.EngagementSnapshotAt,
		CreatedAt:            l.CreatedAt,
		UpdatedAt:            l.UpdatedAt,
	}
}

type powerJSON struct {
	LaunchID             string `json:"launch_id"`
	UserID               string `json:"user_id"`
	PiPower              string `json:"pi_power"`
	StakedPi             string `json:"staked_pi"`
	SumStakedPi          string `json:"sum_staked_pi"`
	CommittedPi          string `json:"committed_pi"`
	MaxCommitmentAllowed string `json:"max_commitment_allowed"`
}

func toPowerJSON(p *power.Power) powerJSON {
	return powerJSON{
		LaunchID:             p.LaunchID,
		UserID:               p.UserID,
		PiPower:              p.PiPower,
		StakedPi:             p.StakedPi,
		SumStakedPi:          p.SumStakedPi,
		CommittedPi:          p.CommittedPi,
		MaxCommitmentAllowed: p.MaxCommitmentAllowed,
	}
}

type allocationLineJSON struct {
	ParticipationID string `json:"participation_id"`
	UserID          string `json:"user_id"`
	Rank            int    `json:"rank"`
	Tier            string `json:"tier"`
	EngagementScore string `json:"engagement_score"`
	CommittedPi     string `json:"committed_pi"`
	PurchasedTokens string `json:"purchased_tokens"`
	BonusTokens     string `json:"bonus_tokens"`
	AllocatedTokens string `json:"allocated_tokens"`
	EffectivePrice  string `json:"effective_price"`
}

type allocationResultJSON struct {
	LaunchID       string               `json:"launch_id"`
	TotalCommitted string               `json:"total_committed"`
	ListingPrice   string               `json:"listing_price"`
	EngagementPool string               `json:"engagement_pool"`
	Lines          []allocationLineJSON `json:"lines"`
}

func toAllocationJSON(result *allocation.Result) allocationResultJSON {
	out := allocationResultJSON{
		LaunchID:       result.LaunchID,
		TotalCommitted: result.TotalCommitted,
		ListingPrice:   result.ListingPrice,
		EngagementPool: result.EngagementPool,
		Lines:          make([]allocationLineJSON, 0, len(result.Lines)),
	}
	for _, line := range result.Lines {
		out.Lines = append(out.Lines, allocationLineJSON{
			ParticipationID: line.ParticipationID,
			UserID:          line.UserID,
			Rank:            line.Rank,
			Tier:            line.Tier.String(),
			EngagementScore: line.EngagementScore,
			CommittedPi:     line.CommittedPi,
			PurchasedTokens: line.PurchasedTokens,
			BonusTokens:     line.BonusTokens,
			AllocatedTokens: line.AllocatedTokens,
			EffectivePrice:  line.EffectivePrice,
		})
	}
	return out
}

type roundJSON struct {
	RoundID              string  `json:"round_id"`
	LaunchID             string  `json:"launch_id"`
	RecordAt             int64   `json:"record_at"`
	TotalPayoutAmount    string  `json:"total_payout_amount"`
	PayoutAssetCode      string  `json:"payout_asset_code"`
	PayoutAssetIssuer    string  `json:"payout_asset_issuer"`
	TotalEligibleSupply  *string `json:"total_eligible_supply,omitempty"`
	EligibleHoldersCount *int    `json:"eligible_holders_count,omitempty"`
	Status               string  `json:"status"`
	CreatedAt            int64   `json:"created_at"`
	UpdatedAt            int64   `json:"updated_at"`
}

func toRoundJSON(round *domain.DividendRound) roundJSON {
	return roundJSON{
		RoundID:              round.RoundID,
		LaunchID:             round.LaunchID,
		RecordAt:             round.RecordAt,
		TotalPayoutAmount:    round.TotalPayoutAmount,
		PayoutAssetCode:      round.PayoutAssetCode,
		PayoutAssetIssuer:    round.PayoutAssetIssuer,
		TotalEligibleSupply:  round.TotalEligibleSupply,
		EligibleHoldersCount: round.EligibleHoldersCount,
		Status:               round.Status.String(),
		CreatedAt:            round.CreatedAt,
		UpdatedAt:            round.UpdatedAt,
	}
}

type holderJSON struct {
	RoundID       string  `json:"round_id"`
	PublicKey     string  `json:"public_key"`
	TokenBalance  string  `json:"token_balance"`
	ShareOfSupply string  `json:"share_of_supply"`
	PayoutAmount  string  `json:"payout_amount"`
	ClaimedAt     *int64  `json:"claimed_at,omitempty"`
	TxHash        *string `json:"tx_hash,omitempty"`
}

func toHolderJSON(h *domain.HolderSnapshot) holderJSON {
	return holderJSON{
		RoundID:       h.RoundID,
		PublicKey:     h.PublicKey,
		TokenBalance:  h.TokenBalance,
		ShareOfSupply: h.ShareOfSupply,
		PayoutAmount:  h.PayoutAmount,
		ClaimedAt:     h.ClaimedAt,
		TxHash:        h.TxHash,
	}
}

// --- HTTP helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatusFor(err), map[string]string{"error": err.Error()})
}

// httpStatusFor maps service and storage sentinels onto HTTP statuses.
// Validation failures are 400, missing records 404, and state-machine
// refusals (wrong status, already done, cap hit) are 409.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, launch.ErrInvalidIssuer),
		errors.Is(err, launch.ErrInvalidSupply),
		errors.Is(err, launch.ErrInvalidWindow),
		errors.Is(err, launch.ErrUnsupportedDesign),
		errors.Is(err, power.ErrInvalidAmount),
		errors.Is(err, dividend.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, storage.ErrCapExceeded),
		errors.Is(err, storage.ErrStatusConflict),
		errors.Is(err, storage.ErrAlreadyClaimed),
		errors.Is(err, launch.ErrWindowEnded),
		errors.Is(err, power.ErrWindowClosed),
		errors.Is(err, engagement.ErrWindowClosed),
		errors.Is(err, engagement.ErrNotClosed),
		errors.Is(err, engagement.ErrAlreadyDone),
		errors.Is(err, allocation.ErrNotClosed),
		errors.Is(err, allocation.ErrAlreadyDone),
		errors.Is(err, allocation.ErrSnapshotMissing),
		errors.Is(err, allocation.ErrNoSupply),
		errors.Is(err, allocation.ErrNoCommitments),
		errors.Is(err, dividend.ErrNotEquityStyle),
		errors.Is(err, dividend.ErrNotOpen),
		errors.Is(err, dividend.ErrAlreadyDone),
		errors.Is(err, verification.ErrNotAllocated):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// --- Environment helpers ---

// loadEnvFile loads a .env file from the current directory if present.
// Variables already set in the environment take precedence.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
