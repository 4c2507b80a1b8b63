package service

import (
	"context"
	"fmt"

	"sensor_gateway/internal/logger"
	"sensor_gateway/internal/repository"
	"sensor_gateway/internal/store"
)

// DefaultRetentionDays bounds how long daily aggregates are kept.
const DefaultRetentionDays = 30

// PersistenceService moves daily aggregates between the store and a snapshot repository.
type PersistenceService struct {
	repo          repository.SnapshotRepo
	store         *store.Store
	retentionDays int
	log           *logger.Logger
}

func NewPersistenceService(repo repository.SnapshotRepo, st *store.Store, retentionDays int, log *logger.Logger) *PersistenceService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &PersistenceService{repo: repo, store: st, retentionDays: retentionDays, log: log}
}

var _ Persistence = (*PersistenceService)(nil)

// Load replaces the in-memory aggregates with the stored snapshot.
// On error the store is left untouched.
func (s *PersistenceService) Load(ctx context.Context) error {
	stats, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	s.store.ReplaceDailyStats(stats)
	if s.log != nil {
		s.log.Infow("snapshot_loaded", "daily_stats", len(stats))
	}
	return nil
}

// Save writes a point-in-time copy of every aggregate, replacing the previous snapshot.
func (s *PersistenceService) Save(ctx context.Context) error {
	stats := s.store.DailyStats(nil)
	if err := s.repo.Save(ctx, stats); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if s.log != nil {
		s.log.Debugw("snapshot_saved", "daily_stats", len(stats))
	}
	return nil
}

// Cleanup drops aggregates older than the retention window and saves
// immediately when anything was removed. It returns the number removed.
func (s *PersistenceService) Cleanup(ctx context.Context) (int, error) {
	cutoff := s.store.DateOf(s.store.Now().AddDate(0, 0, -s.retentionDays))
	removed := s.store.PruneBefore(cutoff)
	if removed == 0 {
		return 0, nil
	}
	if s.log != nil {
		s.log.Infow("daily_stats_pruned", "removed", removed, "cutoff", cutoff)
	}
	if err := s.Save(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}
