package merger

import (
	"time"

	"github.com/valpere/mdtran/internal/engine"
)

// AggregateStats summarizes a translation run across all chunk outcomes.
type AggregateStats struct {
	TotalChunks      int
	Succeeded        int
	Failed           int
	CacheHits        int
	SuccessRate      float64
	TotalElapsed     time.Duration
	AverageElapsed   time.Duration
	TotalRetries     int
	TotalSourceLines int
	APICallEstimate  int
}

// Stats aggregates counts, timings and retry totals. APICallEstimate
// counts one call per success plus every retry across the batch.
func Stats(outcomes []engine.Outcome) AggregateStats {
	stats := AggregateStats{TotalChunks: len(outcomes)}
	for _, o := range outcomes {
		if o.Succeeded() {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		if o.FromCache {
			stats.CacheHits++
		}
		stats.TotalRetries += o.RetryCount
		stats.TotalElapsed += o.Duration
		stats.TotalSourceLines += countLines(o.OriginalContent)
	}
	if stats.TotalChunks > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.TotalChunks)
		stats.AverageElapsed = stats.TotalElapsed / time.Duration(stats.TotalChunks)
	}
	stats.APICallEstimate = stats.Succeeded + stats.TotalRetries
	return stats
}
