package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/mdtran/internal/splitter"
	"github.com/valpere/mdtran/internal/translator"
)

type mockService struct {
	calls       int32
	translateFn func(ctx context.Context, req translator.Request) (*translator.Result, error)
}

func (m *mockService) Name() string                          { return "mock" }
func (m *mockService) IsAvailable(ctx context.Context) error { return nil }

func (m *mockService) Translate(ctx context.Context, req translator.Request) (*translator.Result, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.translateFn(ctx, req)
}

// echoService returns the request text untouched, which always passes
// verification.
func echoService() *mockService {
	return &mockService{
		translateFn: func(_ context.Context, req translator.Request) (*translator.Result, error) {
			return &translator.Result{Text: req.Text, Model: "mock-model"}, nil
		},
	}
}

func fastStrategy(maxRetries int) translator.Strategy {
	return translator.Strategy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func testChunks(n int) []splitter.Chunk {
	chunks := make([]splitter.Chunk, n)
	for i := range chunks {
		chunks[i] = splitter.Chunk{
			ID:             fmt.Sprintf("chunk_%03d_ab12cd34", i),
			SequenceNumber: i,
			Content:        fmt.Sprintf("# Section %d\n\nProse for chunk %d.", i, i),
			StartLine:      i*3 + 1,
			EndLine:        i*3 + 4,
		}
	}
	return chunks
}

func mustEngine(t *testing.T, svc translator.Service, cfg Config) *Engine {
	t.Helper()
	eng, err := New(svc, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return eng
}

func TestNew_RejectsZeroConcurrency(t *testing.T) {
	_, err := New(echoService(), Config{Concurrency: 0})
	if !errors.Is(err, ErrConcurrency) {
		t.Errorf("expected ErrConcurrency, got %v", err)
	}
}

func TestNew_DefaultsStrategy(t *testing.T) {
	eng := mustEngine(t, echoService(), Config{Concurrency: 1})

	if eng.cfg.Strategy.MaxRetries != 5 {
		t.Errorf("expected default strategy, got %+v", eng.cfg.Strategy)
	}
}

func TestTranslateChunks_EmptyInput(t *testing.T) {
	eng := mustEngine(t, echoService(), Config{Concurrency: 2, Strategy: fastStrategy(3)})

	outcomes := eng.TranslateChunks(context.Background(), nil)
	if outcomes != nil {
		t.Errorf("expected nil outcomes, got %v", outcomes)
	}
}

func TestTranslateChunks_AllChunksSucceed(t *testing.T) {
	svc := echoService()
	eng := mustEngine(t, svc, Config{Concurrency: 3, Strategy: fastStrategy(3)})
	chunks := testChunks(8)

	outcomes := eng.TranslateChunks(context.Background(), chunks)

	if len(outcomes) != 8 {
		t.Fatalf("expected 8 outcomes, got %d", len(outcomes))
	}
	byContent := make(map[int]string, len(chunks))
	for _, c := range chunks {
		byContent[c.SequenceNumber] = c.Content
	}
	seen := make(map[int]bool)
	for _, o := range outcomes {
		if !o.Succeeded() {
			t.Errorf("chunk %s failed: %s", o.ChunkID, o.Error)
		}
		if o.TranslatedContent != byContent[o.SequenceNumber] {
			t.Errorf("chunk %d: translated content does not round-trip", o.SequenceNumber)
		}
		if o.RetryCount != 0 {
			t.Errorf("chunk %d: expected 0 retries, got %d", o.SequenceNumber, o.RetryCount)
		}
		if seen[o.SequenceNumber] {
			t.Errorf("sequence %d reported twice", o.SequenceNumber)
		}
		seen[o.SequenceNumber] = true
	}
	if int(atomic.LoadInt32(&svc.calls)) != 8 {
		t.Errorf("expected 8 API calls, got %d", svc.calls)
	}
}

func TestTranslateChunks_AuthErrorFailsWithoutRetry(t *testing.T) {
	svc := &mockService{
		translateFn: func(_ context.Context, _ translator.Request) (*translator.Result, error) {
			return nil, &translator.APIError{Kind: translator.KindAuthError, StatusCode: 401, Message: "invalid key"}
		},
	}
	eng := mustEngine(t, svc, Config{Concurrency: 1, Strategy: fastStrategy(3)})

	outcomes := eng.TranslateChunks(context.Background(), testChunks(1))

	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Status != StatusFailed {
		t.Errorf("expected failed status, got %s", o.Status)
	}
	if o.RetryCount != 0 {
		t.Errorf("expected 0 retries, got %d", o.RetryCount)
	}
	if !strings.Contains(o.Error, "auth_error") {
		t.Errorf("expected auth_error in message, got %q", o.Error)
	}
	if o.ErrorKind != translator.KindAuthError {
		t.Errorf("expected auth_error kind, got %q", o.ErrorKind)
	}
	if atomic.LoadInt32(&svc.calls) != 1 {
		t.Errorf("expected exactly 1 API call, got %d", svc.calls)
	}
}

func TestTranslateChunks_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	svc := &mockService{
		translateFn: func(_ context.Context, req translator.Request) (*translator.Result, error) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return nil, &translator.APIError{Kind: translator.KindServerError, StatusCode: 500, Message: "overloaded"}
			}
			return &translator.Result{Text: req.Text}, nil
		},
	}
	eng := mustEngine(t, svc, Config{Concurrency: 1, Strategy: fastStrategy(3)})

	outcomes := eng.TranslateChunks(context.Background(), testChunks(1))

	o := outcomes[0]
	if !o.Succeeded() {
		t.Fatalf("expected success after retries, got %s: %s", o.Status, o.Error)
	}
	if o.RetryCount != 2 {
		t.Errorf("expected 2 retries, got %d", o.RetryCount)
	}
	if atomic.LoadInt32(&svc.calls) != 3 {
		t.Errorf("expected 3 API calls, got %d", svc.calls)
	}
}

func TestTranslateChunks_ExhaustsRetries(t *testing.T) {
	svc := &mockService{
		translateFn: func(_ context.Context, _ translator.Request) (*translator.Result, error) {
			return nil, &translator.APIError{Kind: translator.KindServerError, StatusCode: 503, Message: "unavailable"}
		},
	}
	eng := mustEngine(t, svc, Config{Concurrency: 1, Strategy: fastStrategy(2)})

	outcomes := eng.TranslateChunks(context.Background(), testChunks(1))

	o := outcomes[0]
	if o.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", o.Status)
	}
	if o.RetryCount != 2 {
		t.Errorf("expected 2 retries, got %d", o.RetryCount)
	}
	if atomic.LoadInt32(&svc.calls) != 3 {
		t.Errorf("expected 3 API calls (initial + 2 retries), got %d", svc.calls)
	}
	if !strings.Contains(o.Error, "server_error") {
		t.Errorf("expected classified error in message, got %q", o.Error)
	}
	if o.ErrorKind != translator.KindServerError {
		t.Errorf("expected server_error kind, got %q", o.ErrorKind)
	}
}

func TestTranslateChunks_ValidationFailureConsumesRetries(t *testing.T) {
	svc := &mockService{
		translateFn: func(_ context.Context, _ translator.Request) (*translator.Result, error) {
			return &translator.Result{Text: "Sure! Here is the translation."}, nil
		},
	}
	eng := mustEngine(t, svc, Config{Concurrency: 1, Strategy: fastStrategy(1)})

	chunk := splitter.Chunk{
		ID:             "chunk_000_ab12cd34",
		SequenceNumber: 0,
		Content: "# One\n\ntext\n\n# Two\n\ntext\n\n# Three\n\ntext\n" +
			"more\nmore\nmore\nmore",
	}

	outcomes := eng.TranslateChunks(context.Background(), []splitter.Chunk{chunk})

	o := outcomes[0]
	if o.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", o.Status)
	}
	if !strings.Contains(o.Error, "integrity validation failed") {
		t.Errorf("expected validation detail, got %q", o.Error)
	}
	if !strings.Contains(o.Error, "header count mismatch") {
		t.Errorf("expected issue list in message, got %q", o.Error)
	}
	if o.RetryCount != 1 {
		t.Errorf("expected 1 retry, got %d", o.RetryCount)
	}
	if atomic.LoadInt32(&svc.calls) != 2 {
		t.Errorf("expected 2 API calls, got %d", svc.calls)
	}
	if o.TranslatedContent != "" {
		t.Errorf("failed outcome must not carry translated content, got %q", o.TranslatedContent)
	}
	if o.ErrorKind != "" {
		t.Errorf("validation failures carry no transport kind, got %q", o.ErrorKind)
	}
}

func TestTranslateChunks_PanicBecomesFailedOutcome(t *testing.T) {
	svc := &mockService{
		translateFn: func(_ context.Context, req translator.Request) (*translator.Result, error) {
			if strings.Contains(req.Text, "Section 0") {
				panic("boom")
			}
			return &translator.Result{Text: req.Text}, nil
		},
	}
	eng := mustEngine(t, svc, Config{Concurrency: 2, Strategy: fastStrategy(1)})

	outcomes := eng.TranslateChunks(context.Background(), testChunks(2))

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		switch o.SequenceNumber {
		case 0:
			if o.Status != StatusFailed {
				t.Errorf("expected crashed chunk to fail, got %s", o.Status)
			}
			if !strings.Contains(o.Error, "chunk task crashed") {
				t.Errorf("expected crash message, got %q", o.Error)
			}
		case 1:
			if !o.Succeeded() {
				t.Errorf("expected healthy chunk to succeed, got %s: %s", o.Status, o.Error)
			}
		}
	}
}

func TestTranslateChunks_HonorsConcurrencyBound(t *testing.T) {
	var inFlight, maxInFlight int32
	svc := &mockService{
		translateFn: func(_ context.Context, req translator.Request) (*translator.Result, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				seen := atomic.LoadInt32(&maxInFlight)
				if cur <= seen || atomic.CompareAndSwapInt32(&maxInFlight, seen, cur) {
					break
				}
			}
			time.Sleep(3 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return &translator.Result{Text: req.Text}, nil
		},
	}
	eng := mustEngine(t, svc, Config{Concurrency: 3, Strategy: fastStrategy(1)})

	outcomes := eng.TranslateChunks(context.Background(), testChunks(12))

	if len(outcomes) != 12 {
		t.Fatalf("expected 12 outcomes, got %d", len(outcomes))
	}
	if got := atomic.LoadInt32(&maxInFlight); got > 3 {
		t.Errorf("concurrency bound exceeded: %d workers in flight", got)
	}
	for _, o := range outcomes {
		if !o.Succeeded() {
			t.Errorf("chunk %d failed: %s", o.SequenceNumber, o.Error)
		}
	}
}

func TestTranslateChunks_RateLimitAppliesCooldown(t *testing.T) {
	var calls int32
	svc := &mockService{
		translateFn: func(_ context.Context, req translator.Request) (*translator.Result, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, &translator.APIError{
					Kind:       translator.KindRateLimit,
					StatusCode: 429,
					Message:    "slow down",
					RetryAfter: 60 * time.Millisecond,
				}
			}
			return &translator.Result{Text: req.Text}, nil
		},
	}
	eng := mustEngine(t, svc, Config{Concurrency: 1, Strategy: fastStrategy(3)})

	start := time.Now()
	outcomes := eng.TranslateChunks(context.Background(), testChunks(1))
	elapsed := time.Since(start)

	o := outcomes[0]
	if !o.Succeeded() {
		t.Fatalf("expected success after cooldown, got %s: %s", o.Status, o.Error)
	}
	if o.RetryCount != 1 {
		t.Errorf("expected 1 retry, got %d", o.RetryCount)
	}
	if elapsed < 55*time.Millisecond {
		t.Errorf("expected retry to wait out the 60ms hint, elapsed %v", elapsed)
	}
}

func TestTranslateChunks_CooldownGatesAllWorkers(t *testing.T) {
	var rateLimited int32
	var trippedAt, lateStartAt atomic.Value
	tripped := make(chan struct{})
	svc := &mockService{
		translateFn: func(_ context.Context, req translator.Request) (*translator.Result, error) {
			if strings.Contains(req.Text, "Section 0") && atomic.CompareAndSwapInt32(&rateLimited, 0, 1) {
				trippedAt.Store(time.Now())
				close(tripped)
				return nil, &translator.APIError{
					Kind:       translator.KindRateLimit,
					StatusCode: 429,
					RetryAfter: 80 * time.Millisecond,
				}
			}
			if strings.Contains(req.Text, "Section 1") {
				// Hold this worker's slot until the gate is armed so the
				// third chunk dispatches strictly after the rate limit.
				<-tripped
			}
			if strings.Contains(req.Text, "Section 2") {
				lateStartAt.Store(time.Now())
			}
			return &translator.Result{Text: req.Text}, nil
		},
	}
	eng := mustEngine(t, svc, Config{Concurrency: 2, Strategy: fastStrategy(3)})

	outcomes := eng.TranslateChunks(context.Background(), testChunks(3))

	for _, o := range outcomes {
		if !o.Succeeded() {
			t.Fatalf("chunk %d failed: %s", o.SequenceNumber, o.Error)
		}
	}
	trip, ok1 := trippedAt.Load().(time.Time)
	start, ok2 := lateStartAt.Load().(time.Time)
	if !ok1 || !ok2 {
		t.Fatal("expected both the rate limit and the third chunk to be observed")
	}
	// The third chunk never hit a rate limit itself, yet its first
	// attempt must wait out the shared cooldown.
	if gap := start.Sub(trip); gap < 60*time.Millisecond {
		t.Errorf("expected third chunk gated by shared cooldown, started after %v", gap)
	}
}

func TestTranslateChunks_CancellationPreservesCompleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	svc := &mockService{
		translateFn: func(_ context.Context, req translator.Request) (*translator.Result, error) {
			if atomic.AddInt32(&calls, 1) == 2 {
				cancel()
			}
			return &translator.Result{Text: req.Text}, nil
		},
	}
	checkpointDir := filepath.Join(t.TempDir(), CheckpointDirName)
	eng := mustEngine(t, svc, Config{
		Concurrency:   1,
		Strategy:      fastStrategy(1),
		CheckpointDir: checkpointDir,
	})

	outcomes := eng.TranslateChunks(ctx, testChunks(6))

	if len(outcomes) != 6 {
		t.Fatalf("expected all 6 chunks accounted for, got %d", len(outcomes))
	}
	completed, failed := 0, 0
	for _, o := range outcomes {
		if o.Succeeded() {
			completed++
		} else {
			failed++
			if !strings.Contains(o.Error, "cancelled") {
				t.Errorf("chunk %d: expected cancellation message, got %q", o.SequenceNumber, o.Error)
			}
		}
	}
	if completed != 2 {
		t.Errorf("expected 2 completed chunks preserved, got %d", completed)
	}
	if failed != 4 {
		t.Errorf("expected 4 cancelled chunks, got %d", failed)
	}

	files, err := filepath.Glob(filepath.Join(checkpointDir, "checkpoint_*.json"))
	if err != nil || len(files) == 0 {
		t.Fatalf("expected a checkpoint file, got %v (err %v)", files, err)
	}
	data, err := os.ReadFile(files[len(files)-1])
	if err != nil {
		t.Fatalf("failed to read checkpoint: %v", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		t.Fatalf("failed to decode checkpoint: %v", err)
	}
	if cp.CompletedCount != 2 || cp.TotalCount != 6 {
		t.Errorf("expected checkpoint 2/6, got %d/%d", cp.CompletedCount, cp.TotalCount)
	}
	if len(cp.Errors) != 4 {
		t.Errorf("expected 4 recorded errors, got %d", len(cp.Errors))
	}
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]string
	saves   int
}

func cacheKey(content, sourceLang, targetLang, model string) string {
	return content + "|" + sourceLang + "|" + targetLang + "|" + model
}

func (m *mockCache) GetCachedChunk(_ context.Context, content, sourceLang, targetLang, model string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.entries[cacheKey(content, sourceLang, targetLang, model)]
	return text, ok, nil
}

func (m *mockCache) SaveChunk(_ context.Context, content, sourceLang, targetLang, model, translated string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.entries[cacheKey(content, sourceLang, targetLang, model)] = translated
	m.saves++
	return nil
}

func TestTranslateChunks_CacheHitSkipsNetwork(t *testing.T) {
	chunks := testChunks(3)
	cache := &mockCache{entries: make(map[string]string)}
	for _, c := range chunks {
		cache.entries[cacheKey(c.Content, "en", "uk", "mock-model")] = "cached " + c.ID
	}
	svc := echoService()
	eng := mustEngine(t, svc, Config{
		Concurrency: 2,
		Strategy:    fastStrategy(1),
		SourceLang:  "en",
		TargetLang:  "uk",
		Model:       "mock-model",
		Cache:       cache,
	})

	outcomes := eng.TranslateChunks(context.Background(), chunks)

	for _, o := range outcomes {
		if !o.Succeeded() {
			t.Errorf("chunk %d failed: %s", o.SequenceNumber, o.Error)
		}
		if !o.FromCache {
			t.Errorf("chunk %d: expected cache hit", o.SequenceNumber)
		}
		if !strings.HasPrefix(o.TranslatedContent, "cached ") {
			t.Errorf("chunk %d: expected cached content, got %q", o.SequenceNumber, o.TranslatedContent)
		}
		if o.RetryCount != 0 {
			t.Errorf("chunk %d: cache hits must report 0 retries", o.SequenceNumber)
		}
	}
	if atomic.LoadInt32(&svc.calls) != 0 {
		t.Errorf("expected no API calls on cache hits, got %d", svc.calls)
	}
}

func TestTranslateChunks_SavesSuccessesToCache(t *testing.T) {
	cache := &mockCache{}
	eng := mustEngine(t, echoService(), Config{
		Concurrency: 2,
		Strategy:    fastStrategy(1),
		SourceLang:  "en",
		TargetLang:  "uk",
		Model:       "mock-model",
		Cache:       cache,
	})
	chunks := testChunks(4)

	eng.TranslateChunks(context.Background(), chunks)

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.saves != 4 {
		t.Errorf("expected 4 cache saves, got %d", cache.saves)
	}
	for _, c := range chunks {
		if got := cache.entries[cacheKey(c.Content, "en", "uk", "mock-model")]; got != c.Content {
			t.Errorf("chunk %d: cached %q, expected original round-trip", c.SequenceNumber, got)
		}
	}
}

func TestTranslateChunks_ReportsEveryOutcome(t *testing.T) {
	var reported []Outcome
	eng := mustEngine(t, echoService(), Config{
		Concurrency: 2,
		Strategy:    fastStrategy(1),
		OnOutcome:   func(o Outcome) { reported = append(reported, o) },
	})

	outcomes := eng.TranslateChunks(context.Background(), testChunks(5))

	if len(reported) != len(outcomes) {
		t.Errorf("expected %d reported outcomes, got %d", len(outcomes), len(reported))
	}
	for i := range reported {
		if reported[i].ChunkID != outcomes[i].ChunkID {
			t.Errorf("outcome %d: callback order diverges from returned order", i)
		}
	}
}

// --- cooldown tests ---

func TestCooldown_UnarmedReturnsImmediately(t *testing.T) {
	c := &cooldown{}

	start := time.Now()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Error("expected immediate return from unarmed cooldown")
	}
}

func TestCooldown_GatesConcurrentWaiters(t *testing.T) {
	c := &cooldown{}
	c.Set(60 * time.Millisecond)

	var wg sync.WaitGroup
	elapsed := make([]time.Duration, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			c.Wait(context.Background())
			elapsed[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	for i, d := range elapsed {
		if d < 50*time.Millisecond {
			t.Errorf("waiter %d released after %v, expected the full gate", i, d)
		}
	}
}

func TestCooldown_DefaultsWhenNoHint(t *testing.T) {
	c := &cooldown{}
	c.Set(0)

	if remaining := time.Until(c.until); remaining < 59*time.Second {
		t.Errorf("expected ~60s default gate, got %v", remaining)
	}
}

func TestCooldown_KeepsLaterDeadline(t *testing.T) {
	c := &cooldown{}
	c.Set(100 * time.Millisecond)
	first := c.until

	c.Set(time.Millisecond)

	if c.until.Before(first) {
		t.Error("shorter hint must not pull the deadline closer")
	}
}

func TestCooldown_WaitHonorsCancellation(t *testing.T) {
	c := &cooldown{}
	c.Set(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Wait(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("expected prompt return on cancellation")
	}
}
