package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sensor_gateway/internal/models"
)

// SnapshotFile keeps the aggregates as a pretty-printed JSON array on disk.
type SnapshotFile struct {
	path string
}

func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

var _ SnapshotRepo = (*SnapshotFile)(nil)

// Path returns the snapshot location.
func (r *SnapshotFile) Path() string { return r.path }

// Save writes the whole snapshot to a sibling temp file and renames it over
// the target, so readers see either the old or the new snapshot.
func (r *SnapshotFile) Save(_ context.Context, stats []models.DailyStat) error {
	if stats == nil {
		stats = []models.DailyStat{}
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace snapshot %q: %w", r.path, err)
	}
	return nil
}

// Load reads the snapshot. A missing file is an empty snapshot.
func (r *SnapshotFile) Load(_ context.Context) ([]models.DailyStat, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot %q: %w", r.path, err)
	}

	var stats []models.DailyStat
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("parse snapshot %q: %w", r.path, err)
	}
	return stats, nil
}
