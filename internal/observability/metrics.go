// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Launch metrics
	LaunchesCreated   prometheus.Counter
	LaunchTransitions *prometheus.CounterVec

	// Participation metrics
	CommitsAccepted prometheus.Counter
	CommitsRejected *prometheus.CounterVec
	PiCommitted     prometheus.Counter

	// Engagement metrics
	ActivityEventsIngested *prometheus.CounterVec
	ActivityEventsDropped  prometheus.Counter
	SnapshotRuns           *prometheus.CounterVec
	ParticipationsScored   prometheus.Counter

	// Intake metrics
	IntakeBufferSize   prometheus.Gauge
	FeedReconnects     prometheus.Counter
	FeedMessageLatency prometheus.Histogram

	// Allocation metrics
	AllocationRuns     *prometheus.CounterVec
	AllocationDuration prometheus.Histogram
	AllocationLines    prometheus.Counter

	// Dividend metrics
	RoundsCreated      prometheus.Counter
	SnapshotsCompleted prometheus.Counter
	ClaimsRecorded     prometheus.Counter

	// Verification metrics
	VerificationRuns        prometheus.Counter
	VerificationDivergences prometheus.Counter

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	ReportsGenerated  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	DBConnections   *prometheus.GaugeVec

	// Health metrics
	LastSuccessfulSnapshot   prometheus.Gauge
	LastSuccessfulAllocation prometheus.Gauge
	UptimeSeconds            prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pi_launchpad"
	}

	return &Metrics{
		// Launch metrics
		LaunchesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "created_total",
			Help:      "Total number of launches created",
		}),
		LaunchTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "status_transitions_total",
			Help:      "Total number of launch status transitions by target status",
		}, []string{"to"}),

		// Participation metrics
		CommitsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "participation",
			Name:      "commits_accepted_total",
			Help:      "Total number of accepted commitments",
		}),
		CommitsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "participation",
			Name:      "commits_rejected_total",
			Help:      "Total number of rejected commitments by reason",
		}, []string{"reason"}),
		PiCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "participation",
			Name:      "pi_committed_total",
			Help:      "Total Pi committed across accepted commitments",
		}),

		// Engagement metrics
		ActivityEventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engagement",
			Name:      "activity_events_ingested_total",
			Help:      "Total number of activity events ingested by action",
		}, []string{"action"}),
		ActivityEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engagement",
			Name:      "activity_events_dropped_total",
			Help:      "Total number of activity events dropped as invalid or out of window",
		}),
		SnapshotRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engagement",
			Name:      "snapshot_runs_total",
			Help:      "Total number of engagement snapshot runs by status",
		}, []string{"status"}),
		ParticipationsScored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engagement",
			Name:      "participations_scored_total",
			Help:      "Total number of participations scored and tiered",
		}),

		// Intake metrics
		IntakeBufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "buffer_size",
			Help:      "Current number of activity events in the intake buffer",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "feed_reconnects_total",
			Help:      "Total number of activity feed reconnects",
		}),
		FeedMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "feed_message_latency_seconds",
			Help:      "Activity feed message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Allocation metrics
		AllocationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "runs_total",
			Help:      "Total number of allocation runs by status",
		}, []string{"status"}),
		AllocationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "duration_seconds",
			Help:      "Allocation run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		AllocationLines: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "lines_written_total",
			Help:      "Total number of allocation lines persisted",
		}),

		// Dividend metrics
		RoundsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dividend",
			Name:      "rounds_created_total",
			Help:      "Total number of dividend rounds created",
		}),
		SnapshotsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dividend",
			Name:      "snapshots_completed_total",
			Help:      "Total number of holder snapshots completed",
		}),
		ClaimsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dividend",
			Name:      "claims_recorded_total",
			Help:      "Total number of dividend claims recorded",
		}),

		// Verification metrics
		VerificationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "runs_total",
			Help:      "Total number of allocation verification runs",
		}),
		VerificationDivergences: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "divergences_total",
			Help:      "Total number of divergences found by verification",
		}),

		// Pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		DBConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connections",
			Help:      "Number of database connections by state",
		}, []string{"database", "state"}),

		// Health metrics
		LastSuccessfulSnapshot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_snapshot_timestamp",
			Help:      "Unix timestamp of last successful engagement snapshot",
		}),
		LastSuccessfulAllocation: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_allocation_timestamp",
			Help:      "Unix timestamp of last successful allocation run",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordLaunchCreated increments the launches created counter.
func RecordLaunchCreated() {
	DefaultMetrics.LaunchesCreated.Inc()
	DefaultMetrics.LaunchTransitions.WithLabelValues("draft").Inc()
}

// RecordLaunchTransition records a launch status transition.
func RecordLaunchTransition(to string) {
	DefaultMetrics.LaunchTransitions.WithLabelValues(to).Inc()
}

// RecordCommitAccepted increments the accepted commitments counter.
func RecordCommitAccepted() {
	DefaultMetrics.CommitsAccepted.Inc()
}

// RecordCommitRejected records a rejected commitment.
func RecordCommitRejected(reason string) {
	DefaultMetrics.CommitsRejected.WithLabelValues(reason).Inc()
}

// RecordActivityIngested increments the ingested activity events counter.
func RecordActivityIngested(action string) {
	DefaultMetrics.ActivityEventsIngested.WithLabelValues(action).Inc()
}

// RecordActivityDropped increments the dropped activity events counter.
func RecordActivityDropped() {
	DefaultMetrics.ActivityEventsDropped.Inc()
}

// RecordSnapshotRun records an engagement snapshot run.
func RecordSnapshotRun(status string, scored int) {
	DefaultMetrics.SnapshotRuns.WithLabelValues(status).Inc()
	if scored > 0 {
		DefaultMetrics.ParticipationsScored.Add(float64(scored))
	}
}

// UpdateIntakeBuffer updates the intake buffer size gauge.
func UpdateIntakeBuffer(size int) {
	DefaultMetrics.IntakeBufferSize.Set(float64(size))
}

// RecordFeedReconnect increments the feed reconnects counter.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// RecordFeedLatency records activity feed message latency.
func RecordFeedLatency(seconds float64) {
	DefaultMetrics.FeedMessageLatency.Observe(seconds)
}

// RecordAllocationRun records an allocation run.
func RecordAllocationRun(status string, lines int, durationSeconds float64) {
	DefaultMetrics.AllocationRuns.WithLabelValues(status).Inc()
	DefaultMetrics.AllocationDuration.Observe(durationSeconds)
	if lines > 0 {
		DefaultMetrics.AllocationLines.Add(float64(lines))
	}
}

// RecordRoundCreated increments the dividend rounds created counter.
func RecordRoundCreated() {
	DefaultMetrics.RoundsCreated.Inc()
}

// RecordSnapshotCompleted increments the holder snapshots completed counter.
func RecordSnapshotCompleted() {
	DefaultMetrics.SnapshotsCompleted.Inc()
}

// RecordClaim increments the dividend claims counter.
func RecordClaim() {
	DefaultMetrics.ClaimsRecorded.Inc()
}

// RecordVerification records a verification run and its divergence count.
func RecordVerification(divergences int) {
	DefaultMetrics.VerificationRuns.Inc()
	if divergences > 0 {
		DefaultMetrics.VerificationDivergences.Add(float64(divergences))
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordReportGenerated increments the reports generated counter.
func RecordReportGenerated() {
	DefaultMetrics.ReportsGenerated.Inc()
}
