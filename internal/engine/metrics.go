package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	stepExecutions *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	stepReruns     *prometheus.CounterVec
	currentIndex   prometheus.Gauge
}

// Execution outcomes recorded on the step executions counter.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
	outcomeGate    = "gate_rejected"
	outcomeBlocked = "blocked"
	outcomeUnknown = "unknown_step"
)

// NewMetrics registers the engine instruments on reg. Pass a fresh registry
// in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stepExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_step_executions_total",
			Help: "Step executions by step kind and outcome.",
		}, []string{"step", "outcome"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diligence_step_duration_seconds",
			Help:    "Step execution duration in seconds by step kind.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
		stepReruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diligence_step_reruns_total",
			Help: "Operator-initiated step reruns by step kind.",
		}, []string{"step"}),
		currentIndex: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diligence_pipeline_current_index",
			Help: "Index of the step the pipeline is currently positioned at.",
		}),
	}
}

func (m *Metrics) observeExecution(step string, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.stepExecutions.WithLabelValues(step, outcome).Inc()
	m.stepDuration.WithLabelValues(step).Observe(seconds)
}

func (m *Metrics) observeRerun(step string) {
	if m == nil {
		return
	}
	m.stepReruns.WithLabelValues(step).Inc()
}

func (m *Metrics) setCurrentIndex(index int) {
	if m == nil {
		return
	}
	m.currentIndex.Set(float64(index))
}
