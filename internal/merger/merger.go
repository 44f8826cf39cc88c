// Package merger reassembles per-chunk translation outcomes into the
// final document and computes aggregate run statistics.
package merger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/valpere/mdtran/internal/engine"
	"github.com/valpere/mdtran/internal/postprocess"
)

// Result describes a single merge run.
type Result struct {
	Success        bool
	MergedCount    int
	TotalCount     int
	Issues         []string
	FinalLineCount int
	OutputPath     string
}

// Merge restores sequence order, substitutes original content for
// failed chunks, and writes the assembled document to outputPath.
// The file is written atomically: content goes to a temp file in the
// destination directory which is then renamed over the target.
func Merge(outcomes []engine.Outcome, outputPath string) (*Result, error) {
	result := &Result{TotalCount: len(outcomes), OutputPath: outputPath}
	if len(outcomes) == 0 {
		result.Issues = append(result.Issues, "no outcomes to merge")
		return result, nil
	}

	ordered := make([]engine.Outcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return sortKey(ordered[i]) < sortKey(ordered[j])
	})

	var failed []engine.Outcome
	for _, o := range ordered {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	if len(failed) > 0 {
		result.Issues = append(result.Issues, fmt.Sprintf("found %d failed chunks", len(failed)))
		for _, o := range failed {
			result.Issues = append(result.Issues, fmt.Sprintf("chunk %s: %s", o.ChunkID, o.Error))
		}
	}

	parts := make([]string, 0, len(ordered))
	for _, o := range ordered {
		switch {
		case o.Succeeded() && o.TranslatedContent != "":
			parts = append(parts, postprocess.StripMarkers(o.TranslatedContent))
		case o.OriginalContent != "":
			parts = append(parts, o.OriginalContent)
		default:
			result.Issues = append(result.Issues, fmt.Sprintf("chunk %s has no content", o.ChunkID))
		}
	}

	merged := strings.Join(parts, "\n")
	if err := writeAtomic(outputPath, merged); err != nil {
		return nil, err
	}

	result.MergedCount = len(parts)
	result.FinalLineCount = countLines(merged)
	result.Success = len(result.Issues) == 0
	return result, nil
}

// sortKey orders outcomes by sequence number. Outcomes assembled
// outside the splitter may carry a negative sequence, in which case
// the numeric segment of the chunk id is used instead.
func sortKey(o engine.Outcome) int {
	if o.SequenceNumber >= 0 {
		return o.SequenceNumber
	}
	parts := strings.Split(o.ChunkID, "_")
	if len(parts) >= 2 {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			return n
		}
	}
	return 0
}

func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	os.Chmod(tmpPath, 0o644)

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace output file: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Best effort,
// some platforms do not support fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
