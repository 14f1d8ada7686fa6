package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder for Prometheus.
type PrometheusRecorder struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	deltas        *prometheus.CounterVec
	compensations *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec
	circuitOpens  *prometheus.CounterVec
}

// NewPrometheusRecorder creates the ledger collectors under namespace.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	return &PrometheusRecorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of ledger operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Ledger operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"operation"},
		),
		deltas: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "balance_deltas_total",
				Help:      "Total number of committed balance deltas",
			},
			[]string{"direction"},
		),
		compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Total number of compensations after partial failures",
			},
			[]string{"result"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_circuit_state",
				Help:      "Current circuit breaker state per store (0=closed, 1=open, 2=half-open)",
			},
			[]string{"store"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_circuit_opens_total",
				Help:      "Total number of circuit breaker opens per store",
			},
			[]string{"store"},
		),
	}
}

// Register registers all collectors with registry.
func (p *PrometheusRecorder) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		p.operations,
		p.latency,
		p.deltas,
		p.compensations,
		p.circuitState,
		p.circuitOpens,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordOperation records one engine operation.
func (p *PrometheusRecorder) RecordOperation(operation, outcome string, duration time.Duration) {
	p.operations.WithLabelValues(operation, outcome).Inc()
	p.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDelta records one committed balance delta.
func (p *PrometheusRecorder) RecordDelta(direction string) {
	p.deltas.WithLabelValues(direction).Inc()
}

// RecordCompensation records a compensation attempt.
func (p *PrometheusRecorder) RecordCompensation(result string) {
	p.compensations.WithLabelValues(result).Inc()
}

// RecordCircuitState records the circuit breaker state of a store.
func (p *PrometheusRecorder) RecordCircuitState(store string, state CircuitState) {
	p.circuitState.WithLabelValues(store).Set(float64(state))
	if state == CircuitOpen {
		p.circuitOpens.WithLabelValues(store).Inc()
	}
}
