package invoker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports downstream call latency per endpoint and outcome.
type Metrics struct {
	mu         sync.Mutex
	registered bool
	registerer prometheus.Registerer

	callDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors. A nil registerer means the Prometheus
// default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "routeflow",
				Subsystem: "endpoint",
				Name:      "call_duration_seconds",
				Help:      "Duration of downstream endpoint calls.",
				Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "outcome"},
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	if err := m.registerer.Register(m.callDuration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		m.callDuration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	m.registered = true
	return nil
}

// ObserveCall records one call.
func (m *Metrics) ObserveCall(endpoint, outcome string, d time.Duration) {
	m.callDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}
