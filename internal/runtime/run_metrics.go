package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/routeflow/internal/runtime/pipeline"
)

// RunMetrics counts finished runs per flow. It implements pipeline.Observer.
type RunMetrics struct {
	mu sync.RWMutex

	flowCounts map[pipeline.Flow]*FlowRunCounts

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	publishFailures *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// FlowRunCounts holds the outcome counters of one flow.
type FlowRunCounts struct {
	Runs            uint64    `json:"runs"`
	Done            uint64    `json:"done"`
	CallFailed      uint64    `json:"call_failed"`
	ParseFailed     uint64    `json:"parse_failed"`
	PublishFailures uint64    `json:"publish_failures"`
	LastRunAt       time.Time `json:"last_run_at,omitempty"`
}

// RunMetricsSnapshot is a point-in-time copy of every flow's counters.
type RunMetricsSnapshot struct {
	TotalRuns   uint64                           `json:"total_runs"`
	Flows       map[pipeline.Flow]*FlowRunCounts `json:"flows"`
	CollectedAt time.Time                        `json:"collected_at"`
}

// NewRunMetrics creates the collectors. A nil registerer means the default one.
func NewRunMetrics(registerer prometheus.Registerer) *RunMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &RunMetrics{
		flowCounts: make(map[pipeline.Flow]*FlowRunCounts),
		registerer: registerer,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routeflow",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Finished pipeline runs by flow and final state.",
		}, []string{"flow", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "routeflow",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"flow"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "routeflow",
			Subsystem: "pipeline",
			Name:      "publish_failures_total",
			Help:      "Run results that could not be published.",
		}, []string{"flow"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *RunMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	for _, c := range []prometheus.Collector{m.runsTotal, m.runDuration, m.publishFailures} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// ObserveRun records report.
func (m *RunMetrics) ObserveRun(report pipeline.RunReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.getOrCreateFlowCounts(report.Flow)
	counts.Runs++
	switch report.Final {
	case pipeline.StateDone:
		counts.Done++
	case pipeline.StateCallFailed:
		counts.CallFailed++
	case pipeline.StateParseFailed:
		counts.ParseFailed++
	}
	if report.PublishErr != nil {
		counts.PublishFailures++
		m.publishFailures.WithLabelValues(string(report.Flow)).Inc()
	}
	counts.LastRunAt = report.StartedAt.Add(report.Duration)

	m.runsTotal.WithLabelValues(string(report.Flow), string(report.Final)).Inc()
	m.runDuration.WithLabelValues(string(report.Flow)).Observe(report.Duration.Seconds())
}

// FlowCounts returns a copy of one flow's counters, or nil before its first run.
func (m *RunMetrics) FlowCounts(flow pipeline.Flow) *FlowRunCounts {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if counts, ok := m.flowCounts[flow]; ok {
		c := *counts
		return &c
	}
	return nil
}

// Snapshot returns a copy of every flow's counters.
func (m *RunMetrics) Snapshot() RunMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := RunMetricsSnapshot{
		Flows:       make(map[pipeline.Flow]*FlowRunCounts, len(m.flowCounts)),
		CollectedAt: time.Now(),
	}
	for flow, counts := range m.flowCounts {
		c := *counts
		snapshot.Flows[flow] = &c
		snapshot.TotalRuns += counts.Runs
	}
	return snapshot
}

func (m *RunMetrics) getOrCreateFlowCounts(flow pipeline.Flow) *FlowRunCounts {
	if counts, ok := m.flowCounts[flow]; ok {
		return counts
	}
	counts := &FlowRunCounts{}
	m.flowCounts[flow] = counts
	return counts
}

// Reset clears all counters.
func (m *RunMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flowCounts = make(map[pipeline.Flow]*FlowRunCounts)
	m.runsTotal.Reset()
	m.runDuration.Reset()
	m.publishFailures.Reset()
}
