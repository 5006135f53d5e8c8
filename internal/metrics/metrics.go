package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the validation pipeline.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	// Final claim verdicts by tenant, status and error type
	ClaimOutcomes *prometheus.CounterVec

	// Batch runs by tenant and result (completed, aborted)
	Batches *prometheus.CounterVec

	// Per-stage latency
	StageLatency *prometheus.HistogramVec

	// Advisory evaluations by outcome (ok, failed)
	AdvisoryCalls *prometheus.CounterVec

	// Advisory call latency
	AdvisoryLatency prometheus.Histogram

	// Rule store lookups by result (hit, reload, fallback)
	RuleCacheLookups *prometheus.CounterVec

	// Identity resolver actions (generated, batch_suffix, history_suffix, collision)
	IdentityActions *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates a Metrics instance registered on reg. A nil reg uses a fresh
// private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ClaimOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimcheck_claim_outcomes_total",
			Help: "Final claim verdicts by tenant, status and error type",
		}, []string{"tenant", "status", "error_type"}),

		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimcheck_batches_total",
			Help: "Batch runs by tenant and result",
		}, []string{"tenant", "result"}),

		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claimcheck_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"stage"}),

		AdvisoryCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimcheck_advisory_calls_total",
			Help: "Advisory evaluations by outcome",
		}, []string{"outcome"}),

		AdvisoryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimcheck_advisory_duration_seconds",
			Help:    "Duration of single advisory evaluations",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		RuleCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimcheck_rule_cache_lookups_total",
			Help: "Rule configuration lookups by result",
		}, []string{"result"}),

		IdentityActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claimcheck_identity_actions_total",
			Help: "Claim identity resolver actions",
		}, []string{"action"}),

		gatherer: reg,
	}
}

// IncrementOutcome records a final claim verdict.
func (m *Metrics) IncrementOutcome(tenant, status, errorType string) {
	if m != nil {
		m.ClaimOutcomes.WithLabelValues(tenant, status, errorType).Inc()
	}
}

// IncrementBatch records a finished or aborted batch.
func (m *Metrics) IncrementBatch(tenant, result string) {
	if m != nil {
		m.Batches.WithLabelValues(tenant, result).Inc()
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// ObserveAdvisory records one advisory evaluation.
func (m *Metrics) ObserveAdvisory(outcome string, d time.Duration) {
	if m != nil {
		m.AdvisoryCalls.WithLabelValues(outcome).Inc()
		m.AdvisoryLatency.Observe(d.Seconds())
	}
}

// IncrementRuleLookup records a rule store lookup result.
func (m *Metrics) IncrementRuleLookup(result string) {
	if m != nil {
		m.RuleCacheLookups.WithLabelValues(result).Inc()
	}
}

// IncrementIdentity records an identity resolver action.
func (m *Metrics) IncrementIdentity(action string) {
	if m != nil {
		m.IdentityActions.WithLabelValues(action).Inc()
	}
}

// WriteTextfile writes all metrics in the Prometheus text format for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.gatherer)
}
