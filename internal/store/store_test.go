package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/valpere/mdtran/internal/engine"
)

var _ engine.Cache = (*Store)(nil)

func TestStore_New(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_GetCachedChunk_Miss(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	text, found, err := s.GetCachedChunk(context.Background(), "# Hello", "en", "uk", "test-model")
	if err != nil {
		t.Errorf("GetCachedChunk failed: %v", err)
	}
	if found {
		t.Error("expected not found for uncached chunk")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestStore_GetCachedChunk_Hit(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	err = s.SaveChunk(context.Background(), "# Hello\n\nWorld.", "en", "uk", "test-model", "# Привіт\n\nСвіт.")
	if err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}

	text, found, err := s.GetCachedChunk(context.Background(), "# Hello\n\nWorld.", "en", "uk", "test-model")
	if err != nil {
		t.Errorf("GetCachedChunk failed: %v", err)
	}
	if !found {
		t.Error("expected to find cached chunk")
	}
	if text != "# Привіт\n\nСвіт." {
		t.Errorf("expected translated chunk, got %q", text)
	}
}

func TestStore_GetCachedChunk_NormalizesWhitespace(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	err = s.SaveChunk(context.Background(), "  # Hello  \n", "en", "uk", "test-model", "# Привіт")
	if err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}

	// Same content modulo surrounding whitespace hits the same key.
	text, found, err := s.GetCachedChunk(context.Background(), "# Hello", "en", "uk", "test-model")
	if err != nil {
		t.Errorf("GetCachedChunk failed: %v", err)
	}
	if !found || text != "# Привіт" {
		t.Errorf("expected normalized hit, got found=%v text=%q", found, text)
	}
}

func TestStore_GetCachedChunk_ModelScoped(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	err = s.SaveChunk(context.Background(), "# Hello", "en", "uk", "model-a", "# Привіт")
	if err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}

	_, found, err := s.GetCachedChunk(context.Background(), "# Hello", "en", "uk", "model-b")
	if err != nil {
		t.Errorf("GetCachedChunk failed: %v", err)
	}
	if found {
		t.Error("expected miss for a different model")
	}
}

func TestStore_GetCachedChunk_Invalidated(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	err = s.SaveChunk(context.Background(), "# Hello", "en", "uk", "test-model", "# Привіт")
	if err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}

	// Get the key
	entries, err := s.ListCache(context.Background())
	if err != nil {
		t.Fatalf("ListCache failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	// Invalidate it
	err = s.InvalidateEntry(context.Background(), entries[0].Key)
	if err != nil {
		t.Fatalf("InvalidateEntry failed: %v", err)
	}

	// Should not be found now
	text, found, err := s.GetCachedChunk(context.Background(), "# Hello", "en", "uk", "test-model")
	if err != nil {
		t.Errorf("GetCachedChunk failed: %v", err)
	}
	if found {
		t.Error("expected not found for invalidated chunk")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestStore_SaveChunk_ReplacesExisting(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	s.SaveChunk(context.Background(), "# Hello", "en", "uk", "test-model", "first attempt")
	s.SaveChunk(context.Background(), "# Hello", "en", "uk", "test-model", "second attempt")

	text, found, err := s.GetCachedChunk(context.Background(), "# Hello", "en", "uk", "test-model")
	if err != nil {
		t.Errorf("GetCachedChunk failed: %v", err)
	}
	if !found || text != "second attempt" {
		t.Errorf("expected latest translation, got found=%v text=%q", found, text)
	}

	entries, err := s.ListCache(context.Background())
	if err != nil {
		t.Fatalf("ListCache failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry after replace, got %d", len(entries))
	}
}

func TestStore_UsageCountIncrements(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	s.SaveChunk(context.Background(), "# Hello", "en", "uk", "test-model", "# Привіт")
	s.GetCachedChunk(context.Background(), "# Hello", "en", "uk", "test-model")
	s.GetCachedChunk(context.Background(), "# Hello", "en", "uk", "test-model")

	entries, err := s.ListCache(context.Background())
	if err != nil {
		t.Fatalf("ListCache failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].UsageCount != 3 {
		t.Errorf("expected usage count 3, got %d", entries[0].UsageCount)
	}
}

func TestStore_DeleteEntry(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	s.SaveChunk(context.Background(), "# Hello", "en", "uk", "test-model", "# Привіт")

	entries, err := s.ListCache(context.Background())
	if err != nil {
		t.Fatalf("ListCache failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	err = s.DeleteEntry(context.Background(), entries[0].Key)
	if err != nil {
		t.Errorf("DeleteEntry failed: %v", err)
	}

	entries, err = s.ListCache(context.Background())
	if err != nil {
		t.Fatalf("ListCache failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries after delete, got %d", len(entries))
	}
}

func TestStore_ClearCache(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	s.SaveChunk(context.Background(), "# Hello", "en", "uk", "test-model", "# Привіт")
	s.SaveChunk(context.Background(), "# World", "en", "uk", "test-model", "# Світ")

	count, err := s.ClearCache(context.Background())
	if err != nil {
		t.Errorf("ClearCache failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 cleared, got %d", count)
	}

	entries, err := s.ListCache(context.Background())
	if err != nil {
		t.Fatalf("ListCache failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries after clear, got %d", len(entries))
	}
}

func TestStore_Stats(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	// Empty stats
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Errorf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 0 {
		t.Errorf("expected 0 total entries, got %d", stats.TotalEntries)
	}

	// Add entries, invalidate one
	s.SaveChunk(context.Background(), "# Hello", "en", "uk", "test-model", "# Привіт")
	s.SaveChunk(context.Background(), "# World", "en", "uk", "test-model", "# Світ")

	entries, err := s.ListCache(context.Background())
	if err != nil {
		t.Fatalf("ListCache failed: %v", err)
	}
	if err := s.InvalidateEntry(context.Background(), entries[0].Key); err != nil {
		t.Fatalf("InvalidateEntry failed: %v", err)
	}

	stats, err = s.Stats(context.Background())
	if err != nil {
		t.Errorf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 2 {
		t.Errorf("expected 2 total entries, got %d", stats.TotalEntries)
	}
	if stats.ActiveEntries != 1 {
		t.Errorf("expected 1 active entry, got %d", stats.ActiveEntries)
	}
	if stats.InvalidEntries != 1 {
		t.Errorf("expected 1 invalid entry, got %d", stats.InvalidEntries)
	}
}

func TestStore_Glossary_AddAndGet(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if err := s.AddGlossaryTerm(context.Background(), "en", "uk", "pull request", "запит на злиття"); err != nil {
		t.Fatalf("AddGlossaryTerm failed: %v", err)
	}
	if err := s.AddGlossaryTerm(context.Background(), "en", "uk", "branch", "гілка"); err != nil {
		t.Fatalf("AddGlossaryTerm failed: %v", err)
	}

	terms, err := s.GetGlossaryTerms(context.Background(), "en", "uk")
	if err != nil {
		t.Fatalf("GetGlossaryTerms failed: %v", err)
	}
	if len(terms) != 2 {
		t.Fatalf("expected 2 terms, got %d", len(terms))
	}
	if terms["pull request"] != "запит на злиття" {
		t.Errorf("unexpected translation for 'pull request': %q", terms["pull request"])
	}
	if terms["branch"] != "гілка" {
		t.Errorf("unexpected translation for 'branch': %q", terms["branch"])
	}
}

func TestStore_Glossary_ReplaceOnSameTerm(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	s.AddGlossaryTerm(context.Background(), "en", "uk", "commit", "фіксація")
	s.AddGlossaryTerm(context.Background(), "en", "uk", "commit", "коміт")

	terms, err := s.GetGlossaryTerms(context.Background(), "en", "uk")
	if err != nil {
		t.Fatalf("GetGlossaryTerms failed: %v", err)
	}
	if len(terms) != 1 {
		t.Fatalf("expected 1 term after replace, got %d", len(terms))
	}
	if terms["commit"] != "коміт" {
		t.Errorf("expected latest translation, got %q", terms["commit"])
	}
}

func TestStore_Glossary_ListFiltered(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	s.AddGlossaryTerm(context.Background(), "en", "uk", "branch", "гілка")
	s.AddGlossaryTerm(context.Background(), "en", "uk", "merge", "злиття")
	s.AddGlossaryTerm(context.Background(), "en", "de", "branch", "Zweig")

	all, err := s.ListGlossaryTerms(context.Background(), "", "")
	if err != nil {
		t.Fatalf("ListGlossaryTerms failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 entries, got %d", len(all))
	}

	uk, err := s.ListGlossaryTerms(context.Background(), "en", "uk")
	if err != nil {
		t.Fatalf("ListGlossaryTerms failed: %v", err)
	}
	if len(uk) != 2 {
		t.Errorf("expected 2 en->uk entries, got %d", len(uk))
	}

	de, err := s.ListGlossaryTerms(context.Background(), "", "de")
	if err != nil {
		t.Fatalf("ListGlossaryTerms failed: %v", err)
	}
	if len(de) != 1 {
		t.Errorf("expected 1 *->de entry, got %d", len(de))
	}
}

func TestStore_Glossary_Delete(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	s.AddGlossaryTerm(context.Background(), "en", "uk", "branch", "гілка")

	entries, err := s.ListGlossaryTerms(context.Background(), "en", "uk")
	if err != nil {
		t.Fatalf("ListGlossaryTerms failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	if err := s.DeleteGlossaryTerm(context.Background(), entries[0].ID); err != nil {
		t.Errorf("DeleteGlossaryTerm failed: %v", err)
	}

	entries, err = s.ListGlossaryTerms(context.Background(), "en", "uk")
	if err != nil {
		t.Fatalf("ListGlossaryTerms failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries after delete, got %d", len(entries))
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Hello  ", "Hello"},
		{"Café", "Café"}, // NFC composes the combining accent
		{"\t\nHello\t\n", "Hello"},
		{"", ""},
	}

	for _, tt := range tests {
		result := normalizeText(tt.input)
		if result != tt.expected {
			t.Errorf("normalizeText(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestCacheKey_DistinguishesInputs(t *testing.T) {
	base := cacheKey("# Hello", "en", "uk", "test-model")

	if cacheKey("# Hello", "en", "uk", "test-model") != base {
		t.Error("expected identical inputs to produce identical keys")
	}

	variants := []string{
		cacheKey("# Goodbye", "en", "uk", "test-model"),
		cacheKey("# Hello", "de", "uk", "test-model"),
		cacheKey("# Hello", "en", "fr", "test-model"),
		cacheKey("# Hello", "en", "uk", "other-model"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base key", i)
		}
	}
}
