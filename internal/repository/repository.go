package repository

import (
	"context"
	"database/sql"

	"sensor_gateway/internal/models"
)

// Operators stores dashboard accounts.
type Operators interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.Operator, error)
}

// SnapshotRepo persists the full set of daily aggregates. Save replaces
// whatever was stored before; Load of a never-written snapshot returns no stats.
type SnapshotRepo interface {
	Save(ctx context.Context, stats []models.DailyStat) error
	Load(ctx context.Context) ([]models.DailyStat, error)
}

type Repository struct {
	Snapshot  SnapshotRepo
	Operators Operators
}

// NewRepository picks the snapshot backend. db may be nil when neither the
// sqlite driver nor operator auth is in use.
func NewRepository(db *sql.DB, driver, snapshotPath string) *Repository {
	repos := &Repository{}
	if driver == DriverSQLite && db != nil {
		repos.Snapshot = NewSnapshotSQLite(db)
	} else {
		repos.Snapshot = NewSnapshotFile(snapshotPath)
	}
	if db != nil {
		repos.Operators = NewOperatorRepository(db)
	}
	return repos
}

// Snapshot drivers accepted by NewRepository.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)
