// Package engine dispatches chunk translations across a bounded worker
// pool. Each chunk holds its worker slot through its own retries, every
// response passes integrity verification before it counts, and a rate
// limited backend pauses the whole pool, not just the worker that hit
// the limit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/mdtran/internal/splitter"
	"github.com/valpere/mdtran/internal/translator"
	"github.com/valpere/mdtran/internal/validator"
)

// DefaultConcurrency is the worker pool size used when none is configured.
const DefaultConcurrency = 5

// checkpointInterval is the number of finished chunks between periodic
// checkpoint snapshots.
const checkpointInterval = 10

// ErrConcurrency is returned when the configured worker count is below one.
var ErrConcurrency = errors.New("concurrency must be at least 1")

// Status is the lifecycle state of a chunk translation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Outcome is the terminal record for one chunk. Failed outcomes keep
// OriginalContent so the merger can fall back to the untranslated text.
// ErrorKind is set only when a transport failure was classified; other
// failure modes (validation, cancellation, crash) leave it empty and
// explain themselves in Error.
type Outcome struct {
	ChunkID           string
	SequenceNumber    int
	OriginalContent   string
	TranslatedContent string
	Status            Status
	Error             string
	ErrorKind         translator.Kind
	RetryCount        int
	Duration          time.Duration
	FromCache         bool
}

// Succeeded reports whether the chunk ended with usable translated content.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusCompleted
}

// Cache is consulted before any network attempt when configured. A hit
// completes the chunk without touching the backend.
type Cache interface {
	GetCachedChunk(ctx context.Context, content, sourceLang, targetLang, model string) (string, bool, error)
	SaveChunk(ctx context.Context, content, sourceLang, targetLang, model, translated string) error
}

// Config tunes one translation run.
type Config struct {
	Concurrency   int
	SourceLang    string
	TargetLang    string
	Model         string
	GlossaryTerms map[string]string
	Instructions  string
	Strategy      translator.Strategy
	LineTolerance float64

	// CheckpointDir receives snapshot files during the run and on
	// cancellation. Empty disables checkpointing.
	CheckpointDir string

	// Cache short-circuits repeat content when non-nil.
	Cache Cache

	// OnOutcome observes each terminal outcome as it lands. Called from
	// the collector goroutine only, never concurrently.
	OnOutcome func(Outcome)
}

// Engine runs chunk translations against a single backend service.
type Engine struct {
	service  translator.Service
	verifier *validator.Validator
	cooldown *cooldown
	cfg      Config
}

func New(service translator.Service, cfg Config) (*Engine, error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrConcurrency, cfg.Concurrency)
	}
	if cfg.Strategy == (translator.Strategy{}) {
		cfg.Strategy = translator.DefaultStrategy()
	}
	return &Engine{
		service:  service,
		verifier: validator.New(cfg.LineTolerance),
		cooldown: &cooldown{},
		cfg:      cfg,
	}, nil
}

// TranslateChunks runs every chunk through the pool and returns one
// outcome per chunk in completion order. It never drops a chunk: on
// cancellation, chunks not yet dispatched come back failed with a
// cancellation message and completed outcomes are preserved.
func (e *Engine) TranslateChunks(ctx context.Context, chunks []splitter.Chunk) []Outcome {
	if len(chunks) == 0 {
		return nil
	}

	started := time.Now()
	results := make(chan Outcome, len(chunks))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	dispatched := 0
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results <- e.translateChunk(ctx, chunk)
			return nil
		})
		dispatched++
	}

	for _, chunk := range chunks[dispatched:] {
		results <- cancelled(Outcome{
			ChunkID:         chunk.ID,
			SequenceNumber:  chunk.SequenceNumber,
			OriginalContent: chunk.Content,
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	outcomes := make([]Outcome, 0, len(chunks))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
		if e.cfg.OnOutcome != nil {
			e.cfg.OnOutcome(outcome)
		}
		if e.cfg.CheckpointDir != "" && len(outcomes) < len(chunks) &&
			len(outcomes)%checkpointInterval == 0 {
			e.snapshot(outcomes, len(chunks), started)
		}
	}

	if ctx.Err() != nil && e.cfg.CheckpointDir != "" {
		e.snapshot(outcomes, len(chunks), started)
	}

	return outcomes
}

// translateChunk drives one chunk to a terminal outcome: cooldown wait,
// cache lookup, wrap, translate, verify, with backoff between attempts.
// A panic inside the attempt turns into a failed outcome instead of
// taking down the pool.
func (e *Engine) translateChunk(ctx context.Context, chunk splitter.Chunk) (outcome Outcome) {
	outcome = Outcome{
		ChunkID:         chunk.ID,
		SequenceNumber:  chunk.SequenceNumber,
		OriginalContent: chunk.Content,
		Status:          StatusPending,
	}
	start := time.Now()
	defer func() {
		outcome.Duration = time.Since(start)
		if r := recover(); r != nil {
			outcome.Status = StatusFailed
			outcome.Error = fmt.Sprintf("chunk task crashed: %v", r)
		}
	}()

	outcome.Status = StatusInProgress

	if e.cfg.Cache != nil {
		cached, ok, err := e.cfg.Cache.GetCachedChunk(ctx, chunk.Content, e.cfg.SourceLang, e.cfg.TargetLang, e.cfg.Model)
		if err == nil && ok {
			outcome.Status = StatusCompleted
			outcome.TranslatedContent = cached
			outcome.FromCache = true
			return outcome
		}
	}

	req := translator.Request{
		Text:          validator.Wrap(chunk.Content),
		SourceLang:    e.cfg.SourceLang,
		TargetLang:    e.cfg.TargetLang,
		GlossaryTerms: e.cfg.GlossaryTerms,
		Instructions:  e.cfg.Instructions,
	}

	for attempt := 0; ; attempt++ {
		outcome.RetryCount = attempt

		if err := e.cooldown.Wait(ctx); err != nil {
			return cancelled(outcome)
		}

		res, err := e.service.Translate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(outcome)
			}
			kind := translator.Classify(err)
			if kind == translator.KindRateLimit {
				e.cooldown.Set(retryAfterHint(err))
			}
			if !kind.Retriable() || attempt >= e.cfg.Strategy.MaxRetries {
				outcome.Status = StatusFailed
				outcome.Error = err.Error()
				outcome.ErrorKind = kind
				return outcome
			}
			if err := e.backoff(ctx, attempt); err != nil {
				return cancelled(outcome)
			}
			continue
		}

		verdict := e.verifier.Verify(chunk.Content, res.Text)
		if verdict.Passed {
			outcome.Status = StatusCompleted
			outcome.TranslatedContent = validator.Unwrap(res.Text)
			if e.cfg.Cache != nil {
				e.cfg.Cache.SaveChunk(ctx, chunk.Content, e.cfg.SourceLang, e.cfg.TargetLang, e.cfg.Model, outcome.TranslatedContent)
			}
			return outcome
		}

		// A failed verification consumes a retry like a transport error.
		if attempt >= e.cfg.Strategy.MaxRetries {
			outcome.Status = StatusFailed
			outcome.Error = fmt.Sprintf("integrity validation failed: %s", strings.Join(verdict.Issues, "; "))
			return outcome
		}
		if err := e.backoff(ctx, attempt); err != nil {
			return cancelled(outcome)
		}
	}
}

func (e *Engine) backoff(ctx context.Context, attempt int) error {
	return sleepContext(ctx, e.cfg.Strategy.Delay(attempt))
}

// snapshot writes a best-effort checkpoint; a failed write never
// interrupts the run.
func (e *Engine) snapshot(outcomes []Outcome, total int, started time.Time) {
	completed := 0
	lastChunkID := ""
	var errs []string
	for _, o := range outcomes {
		if o.Succeeded() {
			completed++
		} else if o.Error != "" {
			errs = append(errs, fmt.Sprintf("chunk %s: %s", o.ChunkID, o.Error))
		}
		lastChunkID = o.ChunkID
	}

	cp := Checkpoint{
		CompletedCount:    completed,
		TotalCount:        total,
		LastChunkID:       lastChunkID,
		StartTimestamp:    started,
		Errors:            errs,
		SnapshotTimestamp: time.Now(),
	}
	if completed > 0 && completed < total {
		elapsed := time.Since(started)
		remaining := time.Duration(float64(elapsed) / float64(completed) * float64(total-completed))
		cp.EstimatedCompletion = time.Now().Add(remaining)
	}

	WriteCheckpoint(e.cfg.CheckpointDir, cp)
}

func cancelled(outcome Outcome) Outcome {
	outcome.Status = StatusFailed
	outcome.Error = "translation cancelled"
	return outcome
}

// retryAfterHint extracts the server's Retry-After suggestion when the
// error carries one.
func retryAfterHint(err error) time.Duration {
	var apiErr *translator.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
