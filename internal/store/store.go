package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// Store persists translated chunks and glossary terms in a local
// SQLite database. It satisfies the engine's cache interface.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunk_cache (
		cache_key TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		model TEXT NOT NULL,
		source_preview TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- glossary stores user-defined terminology for consistent translation of specific terms
	CREATE TABLE IF NOT EXISTS glossary (
		id TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		source_term TEXT NOT NULL,
		target_term TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_lang, target_lang, source_term)
	);

	CREATE INDEX IF NOT EXISTS idx_cache_langs ON chunk_cache(source_lang, target_lang);
	CREATE INDEX IF NOT EXISTS idx_glossary_lookup ON glossary(source_lang, target_lang);
	`

	_, err := s.db.Exec(schema)
	return err
}

// cacheKey hashes the normalized chunk content together with the
// language pair and model, so the same content translated with a
// different model or target never collides.
func cacheKey(content, sourceLang, targetLang, model string) string {
	h := sha256.New()
	h.Write([]byte(normalizeText(content)))
	h.Write([]byte{0})
	h.Write([]byte(sourceLang))
	h.Write([]byte{0})
	h.Write([]byte(targetLang))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// GetCachedChunk returns a previously translated chunk for the exact
// same content, language pair and model. A hit bumps usage stats.
func (s *Store) GetCachedChunk(ctx context.Context, content, sourceLang, targetLang, model string) (string, bool, error) {
	key := cacheKey(content, sourceLang, targetLang, model)

	var translated string
	var invalidated bool
	err := s.db.QueryRowContext(ctx,
		`SELECT translated_text, invalidated FROM chunk_cache WHERE cache_key = ?`,
		key).Scan(&translated, &invalidated)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE chunk_cache SET usage_count = usage_count + 1, last_used = ? WHERE cache_key = ?`,
		time.Now(), key)

	return translated, true, err
}

// SaveChunk stores a successful chunk translation, replacing any
// previous entry for the same key.
func (s *Store) SaveChunk(ctx context.Context, content, sourceLang, targetLang, model, translated string) error {
	key := cacheKey(content, sourceLang, targetLang, model)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunk_cache (cache_key, source_lang, target_lang, model, source_preview, translated_text, usage_count, invalidated, created_at, last_used)
		 VALUES (?, ?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		key, sourceLang, targetLang, model, preview(content), translated, time.Now(), time.Now())
	return err
}

// CacheEntry is a row from the chunk_cache table.
type CacheEntry struct {
	Key            string
	SourceLang     string
	TargetLang     string
	Model          string
	SourcePreview  string
	TranslatedText string
	UsageCount     int
	Invalidated    bool
	LastUsed       time.Time
}

// CacheStats summarises chunk cache usage.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

// ListCache returns all cache entries ordered by most recently used.
func (s *Store) ListCache(ctx context.Context) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, source_lang, target_lang, model, source_preview, translated_text, usage_count, invalidated, last_used FROM chunk_cache ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var e CacheEntry
		if err := rows.Scan(&e.Key, &e.SourceLang, &e.TargetLang, &e.Model, &e.SourcePreview, &e.TranslatedText, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// InvalidateEntry marks a cache entry as stale without removing it.
func (s *Store) InvalidateEntry(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chunk_cache SET invalidated = TRUE WHERE cache_key = ?`, key)
	return err
}

// DeleteEntry permanently removes a cache entry by key.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunk_cache WHERE cache_key = ?`, key)
	return err
}

// ClearCache removes all cache entries and reports how many were dropped.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunk_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats returns summary statistics for the chunk cache.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM chunk_cache`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GlossaryEntry represents a row in the glossary table.
type GlossaryEntry struct {
	ID         string
	SourceLang string
	TargetLang string
	SourceTerm string
	TargetTerm string
	CreatedAt  time.Time
}

// AddGlossaryTerm inserts or replaces a glossary entry.
func (s *Store) AddGlossaryTerm(ctx context.Context, sourceLang, targetLang, sourceTerm, targetTerm string) error {
	id := fmt.Sprintf("gl_%d", time.Now().UnixNano())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO glossary (id, source_lang, target_lang, source_term, target_term)
		 VALUES (?, ?, ?, ?, ?)`,
		id, sourceLang, targetLang, sourceTerm, targetTerm)
	return err
}

// GetGlossaryTerms returns all glossary terms for a language pair as a
// source-term → target-term map, ready to embed in a translation prompt.
func (s *Store) GetGlossaryTerms(ctx context.Context, sourceLang, targetLang string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_term, target_term FROM glossary WHERE source_lang = ? AND target_lang = ?`,
		sourceLang, targetLang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terms := make(map[string]string)
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, err
		}
		terms[src] = tgt
	}
	return terms, rows.Err()
}

// ListGlossaryTerms returns all glossary entries, optionally filtered by language
// pair (pass empty strings to return everything).
func (s *Store) ListGlossaryTerms(ctx context.Context, sourceLang, targetLang string) ([]GlossaryEntry, error) {
	query := `SELECT id, source_lang, target_lang, source_term, target_term, created_at FROM glossary`
	var args []interface{}

	switch {
	case sourceLang != "" && targetLang != "":
		query += ` WHERE source_lang = ? AND target_lang = ?`
		args = append(args, sourceLang, targetLang)
	case sourceLang != "":
		query += ` WHERE source_lang = ?`
		args = append(args, sourceLang)
	case targetLang != "":
		query += ` WHERE target_lang = ?`
		args = append(args, targetLang)
	}
	query += ` ORDER BY source_lang, target_lang, source_term`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		if err := rows.Scan(&e.ID, &e.SourceLang, &e.TargetLang, &e.SourceTerm, &e.TargetTerm, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteGlossaryTerm removes a glossary entry by ID.
func (s *Store) DeleteGlossaryTerm(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM glossary WHERE id = ?`, id)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// preview keeps the first few lines of a chunk for cache listings.
func preview(content string) string {
	const maxRunes = 200
	content = normalizeText(content)
	runes := []rune(content)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes]) + "…"
	}
	return content
}
