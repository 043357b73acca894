package runtime

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/drblury/routeflow/internal/runtime/broker"
	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
	"github.com/drblury/routeflow/internal/runtime/extract"
	"github.com/drblury/routeflow/internal/runtime/invoker"
	"github.com/drblury/routeflow/internal/runtime/jsoncodec"
	"github.com/drblury/routeflow/internal/runtime/pipeline"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// FlowStats aggregates the finished runs of one flow.
type FlowStats struct {
	mu sync.Mutex

	RunsTotal           uint64    `json:"runs_total"`
	RunsFailed          uint64    `json:"runs_failed"`
	PublishFailures     uint64    `json:"publish_failures"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastRunAt           time.Time `json:"last_run_at"`
	LastFinalState      string    `json:"last_final_state,omitempty"`

	Latency      LatencyMetrics     `json:"latency"`
	Throughput   ThroughputMetrics  `json:"throughput"`
	Errors       ErrorBreakdown     `json:"errors"`
	Resource     ResourceUsage      `json:"resource"`
	Dependencies []DependencyHealth `json:"dependencies"`

	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
	resourceSampler  *resourceTracker
	dependencyIndex  map[string]int
}

// FlowInfo describes one flow and what it talks to.
type FlowInfo struct {
	Name         pipeline.Flow `json:"name"`
	Trigger      string        `json:"trigger"`
	ConsumeTopic string        `json:"consume_topic,omitempty"`
	PublishTopic string        `json:"publish_topic,omitempty"`
	Stats        *FlowStats    `json:"stats"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS    float64 `json:"current_rps"`
	WindowSeconds float64 `json:"window_seconds"`
	RunsInWindow  uint64  `json:"runs_in_window"`
	TotalRuns     uint64  `json:"total_runs"`
}

type ErrorBreakdown struct {
	Validation uint64 `json:"validation"`
	Transport  uint64 `json:"transport"`
	Downstream uint64 `json:"downstream"`
	Other      uint64 `json:"other"`
	LastError  string `json:"last_error,omitempty"`
}

type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

type DependencyHealth struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Details     string    `json:"details,omitempty"`
}

const (
	DependencyStatusUnknown  = "unknown"
	DependencyStatusHealthy  = "healthy"
	DependencyStatusDegraded = "degraded"
)

type ErrorCategory string

const (
	ErrorCategoryNone       ErrorCategory = "none"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryTransport  ErrorCategory = "transport"
	ErrorCategoryDownstream ErrorCategory = "downstream"
	ErrorCategoryOther      ErrorCategory = "other"
)

// ErrorClassifier maps a run error onto a stats bucket.
type ErrorClassifier func(error) ErrorCategory

// DefaultErrorClassifier puts payload problems under validation, failed
// endpoint calls under downstream and broker failures under transport.
func DefaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var parseErr *extract.ParseError
	if errors.As(err, &parseErr) {
		return ErrorCategoryValidation
	}
	var callErr *invoker.CallFailure
	if errors.As(err, &callErr) {
		return ErrorCategoryDownstream
	}
	var publishErr *broker.PublishFailure
	if errors.As(err, &publishErr) || errors.Is(err, errspkg.ErrPublisherRequired) {
		return ErrorCategoryTransport
	}
	return ErrorCategoryOther
}

// Dependency names used in FlowStats.
const (
	dependencyUsers      = "endpoint:users"
	dependencyPosts      = "endpoint:posts"
	dependencyPublisher  = "publisher"
	dependencySubscriber = "subscriber"
)

func newFlowStats(flow pipeline.Flow, sampler *resourceTracker) *FlowStats {
	stats := &FlowStats{
		resourceSampler:  sampler,
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
		dependencyIndex:  make(map[string]int),
	}
	if flow == pipeline.FlowResume {
		stats.addDependency(dependencySubscriber)
	}
	stats.addDependency(dependencyUsers)
	stats.addDependency(dependencyPosts)
	if flow == pipeline.FlowAPIKafka {
		stats.addDependency(dependencyPublisher)
	}
	return stats
}

func (h *FlowStats) addDependency(name string) {
	h.Dependencies = append(h.Dependencies, DependencyHealth{
		Name:   name,
		Status: DependencyStatusUnknown,
	})
	h.dependencyIndex[name] = len(h.Dependencies) - 1
}

func (h *FlowStats) record(report pipeline.RunReport, classifier ErrorClassifier) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.RunsTotal++
	if !report.Succeeded() {
		h.RunsFailed++
	}
	if report.PublishErr != nil {
		h.PublishFailures++
	}
	h.TotalProcessingTime += int64(report.Duration)
	h.LastRunAt = time.Now().UTC()
	h.LastFinalState = string(report.Final)

	if h.latencyWindow != nil {
		h.latencyWindow.Add(report.Duration)
		snapshot := h.latencyWindow.Snapshot()
		snapshot.AverageNs = h.TotalProcessingTime / int64(h.RunsTotal)
		h.Latency = snapshot
	}

	if h.throughputWindow != nil {
		snapshot := h.throughputWindow.AddAndSnapshot(time.Now())
		h.Throughput.CurrentRPS = snapshot.CurrentRPS
		h.Throughput.WindowSeconds = snapshot.WindowSeconds
		h.Throughput.RunsInWindow = uint64(snapshot.Count)
	}
	h.Throughput.TotalRuns = h.RunsTotal

	if classifier == nil {
		classifier = DefaultErrorClassifier
	}
	h.Errors.Record(classifier(report.Err), report.Err)
	if report.PublishErr != nil {
		h.Errors.Record(classifier(report.PublishErr), report.PublishErr)
	}

	if h.resourceSampler != nil {
		h.Resource = h.resourceSampler.Snapshot()
	}

	h.updateDependenciesLocked(report)
}

// updateDependenciesLocked marks every dependency the run reached. The state
// trail tells which endpoint a CALL_FAILED run stopped at.
func (h *FlowStats) updateDependenciesLocked(report pipeline.RunReport) {
	details := ""
	if report.Err != nil {
		details = report.Err.Error()
	}
	failed := report.Final == pipeline.StateCallFailed

	for i, state := range report.States {
		lastBeforeFailure := failed && i == len(report.States)-2
		switch state {
		case pipeline.StateExtract:
			h.setDependencyStatusLocked(dependencySubscriber, DependencyStatusHealthy, "")
		case pipeline.StateCallA:
			if lastBeforeFailure {
				h.setDependencyStatusLocked(dependencyUsers, DependencyStatusDegraded, details)
			} else {
				h.setDependencyStatusLocked(dependencyUsers, DependencyStatusHealthy, "")
			}
		case pipeline.StateCallB:
			if lastBeforeFailure {
				h.setDependencyStatusLocked(dependencyPosts, DependencyStatusDegraded, details)
			} else {
				h.setDependencyStatusLocked(dependencyPosts, DependencyStatusHealthy, "")
			}
		case pipeline.StatePublish:
			if report.PublishErr != nil {
				h.setDependencyStatusLocked(dependencyPublisher, DependencyStatusDegraded, report.PublishErr.Error())
			} else {
				h.setDependencyStatusLocked(dependencyPublisher, DependencyStatusHealthy, "")
			}
		}
	}
}

func (h *FlowStats) setDependencyStatusLocked(name, status, details string) {
	idx, ok := h.dependencyIndex[name]
	if !ok {
		h.Dependencies = append(h.Dependencies, DependencyHealth{Name: name})
		idx = len(h.Dependencies) - 1
		h.dependencyIndex[name] = idx
	}
	dep := h.Dependencies[idx]
	dep.Status = status
	dep.Details = details
	dep.LastChecked = time.Now().UTC()
	h.Dependencies[idx] = dep
}

func (h *FlowStats) MarshalJSON() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	type alias struct {
		RunsTotal           uint64             `json:"runs_total"`
		RunsFailed          uint64             `json:"runs_failed"`
		PublishFailures     uint64             `json:"publish_failures"`
		TotalProcessingTime int64              `json:"total_processing_time_ns"`
		LastRunAt           time.Time          `json:"last_run_at"`
		LastFinalState      string             `json:"last_final_state,omitempty"`
		Latency             LatencyMetrics     `json:"latency"`
		Throughput          ThroughputMetrics  `json:"throughput"`
		Errors              ErrorBreakdown     `json:"errors"`
		Resource            ResourceUsage      `json:"resource"`
		Dependencies        []DependencyHealth `json:"dependencies"`
	}
	return jsoncodec.Marshal(alias{
		RunsTotal:           h.RunsTotal,
		RunsFailed:          h.RunsFailed,
		PublishFailures:     h.PublishFailures,
		TotalProcessingTime: h.TotalProcessingTime,
		LastRunAt:           h.LastRunAt,
		LastFinalState:      h.LastFinalState,
		Latency:             h.Latency,
		Throughput:          h.Throughput,
		Errors:              h.Errors,
		Resource:            h.Resource,
		Dependencies:        append([]DependencyHealth(nil), h.Dependencies...),
	})
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		if err == nil {
			return
		}
		e.Other++
	case ErrorCategoryValidation:
		e.Validation++
	case ErrorCategoryTransport:
		e.Transport++
	case ErrorCategoryDownstream:
		e.Downstream++
	default:
		e.Other++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

// FlowStatsRegistry keeps FlowStats for every flow. It implements
// pipeline.Observer.
type FlowStatsRegistry struct {
	flows      []*FlowInfo
	byName     map[pipeline.Flow]*FlowInfo
	classifier ErrorClassifier
}

// NewFlowStatsRegistry creates stats for every pipeline flow. publishTopic and
// consumeTopic are reported as is; pass "" for an unused side.
func NewFlowStatsRegistry(publishTopic, consumeTopic string, classifier ErrorClassifier) *FlowStatsRegistry {
	if classifier == nil {
		classifier = DefaultErrorClassifier
	}
	sampler := newResourceTracker()
	r := &FlowStatsRegistry{
		byName:     make(map[pipeline.Flow]*FlowInfo, len(pipeline.Flows)),
		classifier: classifier,
	}
	for _, flow := range pipeline.Flows {
		info := &FlowInfo{Name: flow, Stats: newFlowStats(flow, sampler)}
		switch flow {
		case pipeline.FlowCombinedAPI:
			info.Trigger = routeCombined
		case pipeline.FlowAPIKafka:
			info.Trigger = routeAPIKafka
			info.PublishTopic = publishTopic
		case pipeline.FlowResume:
			info.Trigger = "consume"
			info.ConsumeTopic = consumeTopic
		}
		r.flows = append(r.flows, info)
		r.byName[flow] = info
	}
	return r
}

// ObserveRun records report under its flow.
func (r *FlowStatsRegistry) ObserveRun(report pipeline.RunReport) {
	info, ok := r.byName[report.Flow]
	if !ok {
		return
	}
	info.Stats.record(report, r.classifier)
}

// Flows returns the flows in a stable order.
func (r *FlowStatsRegistry) Flows() []*FlowInfo {
	return r.flows
}

// Stats returns the stats of flow, or nil for an unknown flow.
func (r *FlowStatsRegistry) Stats(flow pipeline.Flow) *FlowStats {
	if info, ok := r.byName[flow]; ok {
		return info.Stats
	}
	return nil
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return metrics
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.SampleSize = lw.filled
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	return metrics
}

func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]time.Time, 0, 64),
	}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	tw.samples = append(tw.samples, now)

	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		tw.samples = append(tw.samples[:0], tw.samples[idx:]...)
	}

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	return throughputSnapshot{
		Count:         len(tw.samples),
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(len(tw.samples)) / span.Seconds(),
	}
}
