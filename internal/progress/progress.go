// Package progress renders a live status line for long translation runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker counts resolved chunks and keeps a single console status
// line up to date. In verbose mode it prints one line per chunk
// instead of rewriting the status line.
type Tracker struct {
	total   int
	start   time.Time
	verbose bool

	completed atomic.Int64
	failed    atomic.Int64
	cached    atomic.Int64

	mu      sync.Mutex
	out     io.Writer
	prevLen int
}

// New creates a tracker for total chunks writing to out. Pass nil to
// write to stdout.
func New(total int, out io.Writer, verbose bool) *Tracker {
	if out == nil {
		out = os.Stdout
	}
	return &Tracker{total: total, start: time.Now(), out: out, verbose: verbose}
}

// Completed records one successfully translated chunk.
func (t *Tracker) Completed(chunkID string, d time.Duration, fromCache bool) {
	t.completed.Add(1)
	if fromCache {
		t.cached.Add(1)
	}

	if t.verbose {
		t.mu.Lock()
		defer t.mu.Unlock()
		suffix := ""
		if fromCache {
			suffix = " (cached)"
		}
		fmt.Fprintf(t.out, "[%d/%d] %s done in %s%s\n",
			t.done(), t.total, chunkID, d.Round(10*time.Millisecond), suffix)
		return
	}
	t.render()
}

// Failed records one chunk that exhausted its attempts.
func (t *Tracker) Failed(chunkID, reason string) {
	t.failed.Add(1)

	if t.verbose {
		t.mu.Lock()
		defer t.mu.Unlock()
		fmt.Fprintf(t.out, "[%d/%d] %s failed: %s\n", t.done(), t.total, chunkID, reason)
		return
	}
	t.render()
}

// Finish terminates the status line so later output starts on a fresh
// line. No-op in verbose mode.
func (t *Tracker) Finish() {
	if t.verbose {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.prevLen > 0 {
		fmt.Fprintln(t.out)
	}
}

// ETA estimates time remaining assuming chunks keep resolving at the
// average pace observed so far.
func (t *Tracker) ETA() time.Duration {
	done := t.done()
	if done == 0 || done >= int64(t.total) {
		return 0
	}
	perChunk := time.Since(t.start) / time.Duration(done)
	return perChunk * time.Duration(int64(t.total)-done)
}

// Percent is the share of chunks resolved, successful or not.
func (t *Tracker) Percent() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.done()) / float64(t.total) * 100
}

func (t *Tracker) CompletedCount() int { return int(t.completed.Load()) }
func (t *Tracker) FailedCount() int    { return int(t.failed.Load()) }
func (t *Tracker) CachedCount() int    { return int(t.cached.Load()) }

// Elapsed is the wall-clock time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t *Tracker) done() int64 {
	return t.completed.Load() + t.failed.Load()
}

func (t *Tracker) render() {
	t.mu.Lock()
	defer t.mu.Unlock()

	done := t.done()
	line := fmt.Sprintf("Translating: %3.0f%% (%d/%d chunks", t.Percent(), done, t.total)
	if f := t.failed.Load(); f > 0 {
		line += fmt.Sprintf(", %d failed", f)
	}
	if eta := t.ETA(); eta > 0 {
		line += fmt.Sprintf(", ETA %s", eta.Round(time.Second))
	}
	line += ")"

	// Pad over leftovers from a longer previous line.
	pad := t.prevLen - len(line)
	if pad < 0 {
		pad = 0
	}
	t.prevLen = len(line)
	fmt.Fprintf(t.out, "\r%s%s", line, strings.Repeat(" ", pad))
}
