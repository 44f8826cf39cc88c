package monitor

import (
	"runtime"
	"time"
)

const (
	maxSuggestedConcurrency = 20
	minSuggestedChunkSize   = 100
	maxSuggestedChunkSize   = 2000
	pauseSystemMemPercent   = 95
	pauseProcessMemMB       = 2048
)

// Optimizer turns monitor readings into concrete tuning suggestions.
// Suggestions are advisory; callers apply them to chunks not yet
// dispatched rather than revoking work in flight.
type Optimizer struct {
	monitor *Monitor
}

func NewOptimizer(m *Monitor) *Optimizer {
	return &Optimizer{monitor: m}
}

// SuggestConcurrency recommends a worker count given the current one.
// Error rate weighs heaviest, then latency, then host memory pressure.
func (o *Optimizer) SuggestConcurrency(current int) int {
	report := o.monitor.Report()
	sysMem, sysErr := o.monitor.SystemMemory()

	switch {
	case report.ErrorRatePercent > 10:
		return max(1, current/2)
	case report.AvgAPITime > 10*time.Second:
		return max(1, current-2)
	case sysErr == nil && sysMem.UsedPercent > 85:
		return max(1, current-1)
	case report.AvgAPITime > 0 && report.AvgAPITime < 2*time.Second &&
		report.ErrorRatePercent < 2 && report.AvgThroughput > 2:
		ceiling := min(2*runtime.NumCPU(), maxSuggestedConcurrency)
		return min(ceiling, current+2)
	default:
		return current
	}
}

// SuggestChunkSize recommends a chunk size in lines given the current one.
func (o *Optimizer) SuggestChunkSize(current int) int {
	report := o.monitor.Report()

	switch {
	case report.PeakMemoryMB > highMemoryThresholdMB:
		return max(minSuggestedChunkSize, current/2)
	case report.AvgChunkTime > 30*time.Second:
		return max(minSuggestedChunkSize, current-100)
	case report.AvgChunkTime > 0 && report.AvgChunkTime < 5*time.Second &&
		report.PeakMemoryMB < 512:
		return min(maxSuggestedChunkSize, current+200)
	default:
		return current
	}
}

// ShouldPause reports whether processing should back off because the
// host or the process is critically short on memory.
func (o *Optimizer) ShouldPause() bool {
	if sysMem, err := o.monitor.SystemMemory(); err == nil && sysMem.UsedPercent > pauseSystemMemPercent {
		return true
	}
	return o.monitor.ProcessMemoryMB() > pauseProcessMemMB
}
