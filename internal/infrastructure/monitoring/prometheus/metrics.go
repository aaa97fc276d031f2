package prometheus

import (
	"fmt"
	"time"

	"github.com/turtacn/PriorityCraft/pkg/errors"
	"github.com/turtacn/PriorityCraft/pkg/types/decision"
)

// Histogram buckets tuned to the engine's workloads.
var (
	httpDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	runDurationBuckets  = []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600}
	tierLatencyBuckets  = []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 30}
	crBuckets           = []float64{.01, .02, .05, .08, .10, .12, .15, .20, .30, .50}
)

// DecisionMetrics holds every instrument the engine emits.  It satisfies
// both the enhancement chain's Observer and the orchestrator's RunObserver.
type DecisionMetrics struct {
	// HTTP surface
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Weight solver
	SubmissionsTotal CounterVec // verdict
	ConsistencyRatio HistogramVec
	ApprovalsTotal   CounterVec // outcome: "recorded" | "quorum"
	ActiveVersion    GaugeVec

	// Calculation runs
	RunsStarted     CounterVec // trigger
	RunsFinished    CounterVec // state
	RunDuration     HistogramVec
	ItemsScored     CounterVec // method
	CacheHitsTotal  CounterVec
	CacheMissTotal  CounterVec

	// Enhancement chain
	TierAttempts CounterVec // tier
	TierSuccesses CounterVec // tier
	TierFailures  CounterVec // tier, code
	TierLatency   HistogramVec
	BreakerState  GaugeVec // tier; 0 closed, 1 open, 2 half_open
}

// NewDecisionMetrics registers every instrument on collector.
func NewDecisionMetrics(collector MetricsCollector) *DecisionMetrics {
	m := &DecisionMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total",
		"HTTP requests by method, path and status", "method", "path", "status")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds",
		"HTTP request duration", httpDurationBuckets, "method", "path")

	m.SubmissionsTotal = collector.RegisterCounter("weight_submissions_total",
		"Comparison submissions by consistency verdict", "verdict")
	m.ConsistencyRatio = collector.RegisterHistogram("consistency_ratio",
		"Consistency ratio of submitted comparison matrices", crBuckets)
	m.ApprovalsTotal = collector.RegisterCounter("weight_approvals_total",
		"Approval sign-offs by outcome", "outcome")
	m.ActiveVersion = collector.RegisterGauge("active_weight_version",
		"Version number of the latest approved weight vector")

	m.RunsStarted = collector.RegisterCounter("runs_started_total",
		"Calculation runs by trigger", "trigger")
	m.RunsFinished = collector.RegisterCounter("runs_finished_total",
		"Finished calculation runs by terminal state", "state")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds",
		"Calculation run duration", runDurationBuckets, "state")
	m.ItemsScored = collector.RegisterCounter("items_scored_total",
		"Scored items by method", "method")
	m.CacheHitsTotal = collector.RegisterCounter("score_cache_hits_total",
		"Score cache hits")
	m.CacheMissTotal = collector.RegisterCounter("score_cache_misses_total",
		"Score cache misses")

	m.TierAttempts = collector.RegisterCounter("enhancement_tier_attempts_total",
		"Enhancement tier invocations", "tier")
	m.TierSuccesses = collector.RegisterCounter("enhancement_tier_successes_total",
		"Enhancement tier successes", "tier")
	m.TierFailures = collector.RegisterCounter("enhancement_tier_failures_total",
		"Enhancement tier failures by error code", "tier", "code")
	m.TierLatency = collector.RegisterHistogram("enhancement_tier_latency_seconds",
		"Enhancement tier call latency", tierLatencyBuckets, "tier")
	m.BreakerState = collector.RegisterGauge("enhancement_breaker_state",
		"Circuit breaker state per tier (0 closed, 1 open, 2 half_open)", "tier")

	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// enhancement.Observer
// ─────────────────────────────────────────────────────────────────────────────

// TierAttempt counts one tier invocation.
func (m *DecisionMetrics) TierAttempt(tier string) {
	m.TierAttempts.WithLabelValues(tier).Inc()
}

// TierSuccess counts one success and observes its latency.
func (m *DecisionMetrics) TierSuccess(tier string, latency time.Duration) {
	m.TierSuccesses.WithLabelValues(tier).Inc()
	m.TierLatency.WithLabelValues(tier).Observe(latency.Seconds())
}

// TierFailure counts one failure under its error code.
func (m *DecisionMetrics) TierFailure(tier string, code errors.ErrorCode) {
	m.TierFailures.WithLabelValues(tier, code.String()).Inc()
}

// BreakerStateChange moves the tier's breaker gauge.
func (m *DecisionMetrics) BreakerStateChange(tier, _, to string) {
	var v float64
	switch to {
	case "open":
		v = 1
	case "half_open":
		v = 2
	}
	m.BreakerState.WithLabelValues(tier).Set(v)
}

// ─────────────────────────────────────────────────────────────────────────────
// prioritization.RunObserver
// ─────────────────────────────────────────────────────────────────────────────

// RunStarted counts a run start under its trigger.
func (m *DecisionMetrics) RunStarted(trigger decision.RunTrigger) {
	m.RunsStarted.WithLabelValues(string(trigger)).Inc()
}

// RunFinished counts a terminal state and observes the run duration.
func (m *DecisionMetrics) RunFinished(state decision.RunState, d time.Duration) {
	m.RunsFinished.WithLabelValues(string(state)).Inc()
	m.RunDuration.WithLabelValues(string(state)).Observe(d.Seconds())
}

// ItemScored counts one scored item under its method.
func (m *DecisionMetrics) ItemScored(method decision.MethodUsed) {
	m.ItemsScored.WithLabelValues(string(method)).Inc()
}

// CacheHit counts one score-cache hit.
func (m *DecisionMetrics) CacheHit() { m.CacheHitsTotal.WithLabelValues().Inc() }

// CacheMiss counts one score-cache miss.
func (m *DecisionMetrics) CacheMiss() { m.CacheMissTotal.WithLabelValues().Inc() }

// ─────────────────────────────────────────────────────────────────────────────
// weight-solver helpers
// ─────────────────────────────────────────────────────────────────────────────

// SubmissionObserved records a comparison submission's verdict and CR.
func (m *DecisionMetrics) SubmissionObserved(verdict decision.ConsistencyVerdict, cr float64) {
	m.SubmissionsTotal.WithLabelValues(string(verdict)).Inc()
	m.ConsistencyRatio.WithLabelValues().Observe(cr)
}

// ApprovalObserved records a sign-off; quorum marks the vector active.
func (m *DecisionMetrics) ApprovalObserved(version int, quorum bool) {
	if quorum {
		m.ApprovalsTotal.WithLabelValues("quorum").Inc()
		m.ActiveVersion.WithLabelValues().Set(float64(version))
		return
	}
	m.ApprovalsTotal.WithLabelValues("recorded").Inc()
}

// HTTPRequestObserved records one HTTP request.
func (m *DecisionMetrics) HTTPRequestObserved(method, path string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
