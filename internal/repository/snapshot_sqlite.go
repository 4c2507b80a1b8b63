package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sensor_gateway/internal/models"
)

type SnapshotSQLite struct {
	db *sql.DB
}

func NewSnapshotSQLite(db *sql.DB) *SnapshotSQLite {
	return &SnapshotSQLite{db: db}
}

var _ SnapshotRepo = (*SnapshotSQLite)(nil)

const (
	deleteDailyStatsSQL = `DELETE FROM daily_stats`

	insertDailyStatSQL = `
		INSERT INTO daily_stats (
			node_id, date, temp_max, temp_min, hum_max, hum_min,
			temp_max_at, temp_min_at, hum_max_at, hum_min_at,
			count, first_record, last_record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectDailyStatsSQL = `
		SELECT node_id, date, temp_max, temp_min, hum_max, hum_min,
		       temp_max_at, temp_min_at, hum_max_at, hum_min_at,
		       count, first_record, last_record
		FROM daily_stats ORDER BY node_id, date
	`
)

// Save replaces the table contents with stats in one transaction.
func (r *SnapshotSQLite) Save(ctx context.Context, stats []models.DailyStat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteDailyStatsSQL); err != nil {
		return fmt.Errorf("clear daily_stats: %w", err)
	}
	for _, st := range stats {
		if _, err := tx.ExecContext(ctx, insertDailyStatSQL,
			st.NodeID,
			st.Date,
			st.TempMax,
			st.TempMin,
			st.HumMax,
			st.HumMin,
			st.TempMaxTime.UTC(),
			st.TempMinTime.UTC(),
			st.HumMaxTime.UTC(),
			st.HumMinTime.UTC(),
			st.Count,
			st.FirstRecord.UTC(),
			st.LastRecord.UTC(),
		); err != nil {
			return fmt.Errorf("insert daily stat %s/%s: %w", st.NodeID, st.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot transaction: %w", err)
	}
	return nil
}

// Load returns every stored aggregate ordered by node and date.
func (r *SnapshotSQLite) Load(ctx context.Context) ([]models.DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, selectDailyStatsSQL)
	if err != nil {
		return nil, fmt.Errorf("select daily_stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.DailyStat
	for rows.Next() {
		var st models.DailyStat
		if err := rows.Scan(
			&st.NodeID,
			&st.Date,
			&st.TempMax,
			&st.TempMin,
			&st.HumMax,
			&st.HumMin,
			&st.TempMaxTime,
			&st.TempMinTime,
			&st.HumMaxTime,
			&st.HumMinTime,
			&st.Count,
			&st.FirstRecord,
			&st.LastRecord,
		); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily_stats: %w", err)
	}
	return out, nil
}
