// Package splitter cuts Markdown documents into line-based chunks for
// independent translation. Cut points are chosen near a configurable
// target size but only where the boundary classifier judges the split
// safe, so fenced code blocks, tables, lists, blockquotes and multi-line
// paragraphs are never torn apart mid-structure.
package splitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// MinChunkSize is the smallest accepted chunk size in lines.
	MinChunkSize = 10
	// MaxChunkSize is the largest accepted chunk size in lines.
	MaxChunkSize = 10000
	// DefaultChunkSize is the chunk size used when none is configured.
	DefaultChunkSize = 500
)

// ErrChunkSize indicates a chunk size outside the accepted range.
var ErrChunkSize = errors.New("chunk size out of range")

// Chunk is one contiguous line range of a source document. Content holds
// the raw lines joined by "\n" with no trailing newline; joining all
// chunk contents of a document with "\n" reconstructs it exactly.
type Chunk struct {
	// ID is unique per chunk, of the form "chunk_007_1a2b3c4d". The
	// numeric part mirrors SequenceNumber for readability only;
	// SequenceNumber is the authoritative ordering key.
	ID string

	// SequenceNumber runs 0..N-1 in document order with no gaps.
	SequenceNumber int

	Content string

	// StartLine is the 1-based number of the chunk's first line.
	// EndLine is exclusive: the line where the next chunk starts, so
	// EndLine-StartLine is the chunk's line count and a chunk's EndLine
	// equals the following chunk's StartLine.
	StartLine int
	EndLine   int

	// SourceDocument is the path of the file the chunk was cut from.
	SourceDocument string
}

// LineCount returns the number of lines in the chunk.
func (c Chunk) LineCount() int {
	return c.EndLine - c.StartLine
}

// Splitter cuts documents into chunks of roughly chunkSize lines.
type Splitter struct {
	chunkSize int
}

// New returns a Splitter targeting chunkSize lines per chunk. Sizes
// outside [MinChunkSize, MaxChunkSize] are rejected with ErrChunkSize.
func New(chunkSize int) (*Splitter, error) {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: must be between %d and %d lines, got %d",
			ErrChunkSize, MinChunkSize, MaxChunkSize, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize}, nil
}

// ChunkSize returns the configured target chunk size in lines.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Split cuts content into ordered chunks. sourcePath is recorded on each
// chunk for traceability and is not read from disk. An empty document
// yields no chunks.
func (s *Splitter) Split(content, sourcePath string) []Chunk {
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	b := newBoundary(lines)

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := s.findSplitPoint(b, start)
		seq := len(chunks)
		chunks = append(chunks, Chunk{
			ID:             fmt.Sprintf("chunk_%03d_%s", seq, uuid.New().String()[:8]),
			SequenceNumber: seq,
			Content:        strings.Join(lines[start:end], "\n"),
			StartLine:      start + 1,
			EndLine:        end + 1,
			SourceDocument: sourcePath,
		})
		start = end
	}
	return chunks
}

// findSplitPoint returns the line index (exclusive) at which to end the
// chunk beginning at start. It searches backwards from the target offset
// for a safe boundary, limiting the search to a quarter of the chunk
// capped at 50 lines, and never shrinking a chunk below 10 lines.
// If no safe point is found in that window the target offset is used
// as-is: an oversized structure should not stall splitting forever.
func (s *Splitter) findSplitPoint(b *boundary, start int) int {
	targetEnd := start + s.chunkSize
	if targetEnd >= len(b.lines) {
		return len(b.lines)
	}
	if targetEnd-start < 10 {
		return targetEnd
	}

	searchRange := (targetEnd - start) / 4
	if searchRange > 50 {
		searchRange = 50
	}
	limit := start + 10
	if l := targetEnd - searchRange; l > limit {
		limit = l
	}

	for i := targetEnd; i > limit; i-- {
		if b.safeAt(i) {
			return i
		}
	}
	return targetEnd
}
