package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CheckpointDirName is the directory created next to the source
// document for run snapshots.
const CheckpointDirName = ".translation_checkpoints"

// ErrResumeNotImplemented is returned by Resume. Snapshots are written
// so an interrupted run leaves an inspectable record; restarting a run
// from one is not supported.
var ErrResumeNotImplemented = errors.New("resume from checkpoint is not implemented")

// Checkpoint is a snapshot of a translation run's progress.
type Checkpoint struct {
	CompletedCount      int       `json:"completed_count"`
	TotalCount          int       `json:"total_count"`
	LastChunkID         string    `json:"last_chunk_id"`
	StartTimestamp      time.Time `json:"start_timestamp"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	Errors              []string  `json:"errors"`
	SnapshotTimestamp   time.Time `json:"snapshot_timestamp"`
}

// WriteCheckpoint writes cp as indented JSON under dir, creating the
// directory when needed. The file name carries the snapshot time, so a
// run leaves a sequence of snapshots rather than one moving file.
func WriteCheckpoint(dir string, cp Checkpoint) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	name := fmt.Sprintf("checkpoint_%s.json", cp.SnapshotTimestamp.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return path, nil
}

// Resume would rebuild outcomes from the newest snapshot under dir.
func Resume(dir string) ([]Outcome, error) {
	return nil, ErrResumeNotImplemented
}
