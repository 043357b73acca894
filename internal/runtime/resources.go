package runtime

import (
	goruntime "runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const (
	metricCPUSeconds = "/sched/cpu:seconds"
	metricHeapBytes  = "/memory/classes/heap/objects:bytes"
	metricGoroutines = "/sched/goroutines:goroutines"
)

// resourceTracker samples process CPU, heap and goroutines for flow stats.
// CPU is reported as the share of all cores used since the previous sample.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{
			{Name: metricCPUSeconds},
			{Name: metricHeapBytes},
			{Name: metricGoroutines},
		}
	}
	metrics.Read(r.samples)

	var usage ResourceUsage
	now := time.Now()

	if cpu := r.samples[0].Value; cpu.Kind() == metrics.KindFloat64 {
		cpuSeconds := cpu.Float64()
		if !r.lastSample.IsZero() {
			wall := now.Sub(r.lastSample).Seconds()
			if wall > 0 {
				usage.CPUPercent = (cpuSeconds - r.lastCPUSeconds) / wall / float64(goruntime.NumCPU()) * 100
			}
		}
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	if heap := r.samples[1].Value; heap.Kind() == metrics.KindUint64 {
		usage.MemoryBytes = heap.Uint64()
	}
	if g := r.samples[2].Value; g.Kind() == metrics.KindUint64 {
		usage.Goroutines = int(g.Uint64())
	} else {
		usage.Goroutines = goruntime.NumGoroutine()
	}
	return usage
}
