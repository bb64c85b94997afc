package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salesdesk"

// IntakeMetrics instruments the sale-intake workflow and its reconciliation log.
type IntakeMetrics struct {
	outcomes      *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	reconRecorded *prometheus.CounterVec
	reconResolved *prometheus.CounterVec
	holdsReleased *prometheus.CounterVec
}

// NewIntakeMetrics registers the intake metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	if reg == nil {
		return &IntakeMetrics{}
	}
	m := &IntakeMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_intake_outcomes_total",
			Help:      "Sale intake results by flow and outcome.",
		}, []string{"flow", "outcome"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_conflicts_total",
			Help:      "Optimistic concurrency conflicts on stock entries.",
		}, []string{"operation"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_intake_step_duration_seconds",
			Help:      "Latency of each sale intake step.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"step"}),
		reconRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_entries_recorded_total",
			Help:      "Sales whose stock change was deferred to reconciliation.",
		}, []string{"reason"}),
		reconResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_entries_resolved_total",
			Help:      "Reconciliation entries closed, by how they were closed.",
		}, []string{"via"}),
		holdsReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_holds_released_total",
			Help:      "Stock holds returned to the pool without a sale settling them.",
		}, []string{"via"}),
	}
	reg.MustRegister(m.outcomes, m.conflicts, m.stepDuration, m.reconRecorded, m.reconResolved, m.holdsReleased)
	return m
}

func (m *IntakeMetrics) IncOutcome(flow, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(flow), normalizeLabel(outcome)).Inc()
}

func (m *IntakeMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *IntakeMetrics) ObserveStep(step string, d time.Duration) {
	if m == nil || m.stepDuration == nil {
		return
	}
	m.stepDuration.WithLabelValues(normalizeLabel(step)).Observe(d.Seconds())
}

func (m *IntakeMetrics) IncReconciliationRecorded(reason string) {
	if m == nil || m.reconRecorded == nil {
		return
	}
	m.reconRecorded.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *IntakeMetrics) IncReconciliationResolved(via string) {
	if m == nil || m.reconResolved == nil {
		return
	}
	m.reconResolved.WithLabelValues(normalizeLabel(via)).Inc()
}

func (m *IntakeMetrics) IncHoldReleased(via string) {
	if m == nil || m.holdsReleased == nil {
		return
	}
	m.holdsReleased.WithLabelValues(normalizeLabel(via)).Inc()
}
