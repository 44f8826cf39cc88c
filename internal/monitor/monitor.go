// Package monitor tracks translation run performance and suggests
// tuning adjustments based on observed behavior.
package monitor

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	DefaultWindowSize     = 1000
	DefaultSampleInterval = time.Second

	slowAPIThreshold      = 5 * time.Second
	highMemoryThresholdMB = 1024
	highErrorRatePercent  = 5.0
	lowThroughputPerSec   = 1.0
)

// Monitor accumulates windowed performance samples for one run. All
// recorders are safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	window     int
	start      time.Time
	apiTimes   []time.Duration
	apiErrors  int
	chunkTimes []time.Duration
	memSamples []float64
	concurrent []int
	throughput []float64

	stop chan struct{}
	done chan struct{}

	sysMemFn  func() (SystemMemory, error)
	procMemFn func() float64
}

// SystemMemory describes host memory at a point in time.
type SystemMemory struct {
	TotalMB     float64
	AvailableMB float64
	UsedMB      float64
	UsedPercent float64
}

// Report is a summary of everything recorded so far.
type Report struct {
	AvgAPITime       time.Duration
	MedianAPITime    time.Duration
	MaxAPITime       time.Duration
	AvgChunkTime     time.Duration
	MedianChunkTime  time.Duration
	PeakMemoryMB     float64
	AvgMemoryMB      float64
	ErrorRatePercent float64
	AvgConcurrent    float64
	AvgThroughput    float64
	Recommendations  []string
	TotalSamples     int
}

// New creates a monitor keeping at most windowSize samples per metric.
// Pass 0 for the default window.
func New(windowSize int) *Monitor {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Monitor{
		window:    windowSize,
		start:     time.Now(),
		sysMemFn:  readSystemMemory,
		procMemFn: readProcessMemoryMB,
	}
}

// Start launches the background memory sampler. Calling Start on a
// running monitor is a no-op.
func (m *Monitor) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.sample(interval, m.stop, m.done)
}

// Stop halts the background sampler and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stop == nil {
		m.mu.Unlock()
		return
	}
	stop, done := m.stop, m.done
	m.stop = nil
	m.done = nil
	m.mu.Unlock()

	close(stop)
	<-done
}

func (m *Monitor) sample(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if mb := m.procMemFn(); mb > 0 {
				m.RecordMemorySample(mb)
			}
		}
	}
}

// RecordAPICall notes one translation request round trip.
func (m *Monitor) RecordAPICall(d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiTimes = appendWindowed(m.apiTimes, d, m.window)
	if !success {
		m.apiErrors++
	}
}

// RecordChunk notes end-to-end processing time for one chunk.
func (m *Monitor) RecordChunk(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkTimes = appendWindowed(m.chunkTimes, d, m.window)
}

// RecordMemorySample notes process memory in MB.
func (m *Monitor) RecordMemorySample(mb float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memSamples = appendWindowed(m.memSamples, mb, m.window)
}

// RecordConcurrent notes the number of in-flight operations.
func (m *Monitor) RecordConcurrent(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concurrent = appendWindowed(m.concurrent, n, m.window)
}

// RecordThroughput notes chunks completed over a time window.
func (m *Monitor) RecordThroughput(chunks int, window time.Duration) {
	if window <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throughput = appendWindowed(m.throughput, float64(chunks)/window.Seconds(), m.window)
}

// ProcessMemoryMB reads the current process RSS in MB.
func (m *Monitor) ProcessMemoryMB() float64 {
	return m.procMemFn()
}

// SystemMemory reads host memory statistics.
func (m *Monitor) SystemMemory() (SystemMemory, error) {
	return m.sysMemFn()
}

// Report computes summary statistics and advice from the samples
// collected so far.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		AvgAPITime:      meanDuration(m.apiTimes),
		MedianAPITime:   medianDuration(m.apiTimes),
		MaxAPITime:      maxDuration(m.apiTimes),
		AvgChunkTime:    meanDuration(m.chunkTimes),
		MedianChunkTime: medianDuration(m.chunkTimes),
		PeakMemoryMB:    maxFloat(m.memSamples),
		AvgMemoryMB:     meanFloat(m.memSamples),
		AvgConcurrent:   meanInt(m.concurrent),
		AvgThroughput:   meanFloat(m.throughput),
		TotalSamples:    len(m.apiTimes) + len(m.chunkTimes) + len(m.memSamples),
	}
	if len(m.apiTimes) > 0 {
		r.ErrorRatePercent = float64(m.apiErrors) / float64(len(m.apiTimes)) * 100
	}
	r.Recommendations = m.recommendations(r)
	return r
}

// recommendations is called with m.mu held.
func (m *Monitor) recommendations(r Report) []string {
	var recs []string

	if r.AvgAPITime > slowAPIThreshold {
		recs = append(recs, fmt.Sprintf(
			"API response time is slow (%.2fs). Consider reducing concurrency or checking network connectivity.",
			r.AvgAPITime.Seconds()))
	}
	if r.PeakMemoryMB > highMemoryThresholdMB {
		recs = append(recs, fmt.Sprintf(
			"High memory usage detected (%.1fMB). Consider reducing chunk size or concurrency.",
			r.PeakMemoryMB))
	}
	if r.ErrorRatePercent > highErrorRatePercent {
		recs = append(recs, fmt.Sprintf(
			"High error rate detected (%.1f%%). Check API configuration and network stability.",
			r.ErrorRatePercent))
	}
	if len(m.throughput) > 0 && r.AvgThroughput < lowThroughputPerSec {
		recs = append(recs, fmt.Sprintf(
			"Low throughput detected (%.2f chunks/s). Consider increasing concurrency if system resources allow.",
			r.AvgThroughput))
	}
	if len(m.concurrent) > 0 {
		if r.AvgConcurrent < 2 {
			recs = append(recs, "Low concurrency detected. Consider increasing concurrency for better performance.")
		} else if r.AvgConcurrent > 20 {
			recs = append(recs, "Very high concurrency detected. This may cause API rate limiting or system overload.")
		}
	}
	if sysMem, err := m.sysMemFn(); err == nil && sysMem.UsedPercent > 80 {
		recs = append(recs, "System memory usage is high. Consider reducing processing load.")
	}

	if len(recs) == 0 {
		recs = append(recs, "Performance looks good. No specific optimizations needed.")
	}
	return recs
}

// RuntimeStats is a point-in-time picture of the Go runtime, shown in
// verbose summaries.
type RuntimeStats struct {
	HeapAllocMB float64
	Goroutines  int
}

func ReadRuntimeStats() RuntimeStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeStats{
		HeapAllocMB: float64(ms.HeapAlloc) / 1024 / 1024,
		Goroutines:  runtime.NumGoroutine(),
	}
}

func readSystemMemory() (SystemMemory, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return SystemMemory{}, err
	}
	return SystemMemory{
		TotalMB:     float64(vm.Total) / 1024 / 1024,
		AvailableMB: float64(vm.Available) / 1024 / 1024,
		UsedMB:      float64(vm.Used) / 1024 / 1024,
		UsedPercent: vm.UsedPercent,
	}, nil
}

func readProcessMemoryMB() float64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / 1024 / 1024
}

func appendWindowed[T any](s []T, v T, max int) []T {
	s = append(s, v)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

func meanDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

func medianDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func maxDuration(ds []time.Duration) time.Duration {
	var m time.Duration
	for _, d := range ds {
		if d > m {
			m = d
		}
	}
	return m
}

func meanFloat(fs []float64) float64 {
	if len(fs) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fs {
		sum += f
	}
	return sum / float64(len(fs))
}

func maxFloat(fs []float64) float64 {
	var m float64
	for _, f := range fs {
		if f > m {
			m = f
		}
	}
	return m
}

func meanInt(ns []int) float64 {
	if len(ns) == 0 {
		return 0
	}
	sum := 0
	for _, n := range ns {
		sum += n
	}
	return float64(sum) / float64(len(ns))
}
