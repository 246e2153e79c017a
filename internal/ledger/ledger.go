// Package ledger records each segment sync in a SQLite table so operators can
// see what every run requested and stored.
package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sync outcomes.
const (
	StatusOK       = "ok"
	StatusNoData   = "no_data"
	StatusUpToDate = "up_to_date"
	StatusFailed   = "failed"
)

// SyncRun is one segment's sync within a pipeline run.
type SyncRun struct {
	ID          uint      `gorm:"primaryKey"`
	RunID       string    `gorm:"column:run_id;index;not null"`
	SegmentID   string    `gorm:"column:segment_id;not null"`
	WindowStart time.Time `gorm:"column:window_start"`
	WindowEnd   time.Time `gorm:"column:window_end"`
	RowsAdded   int       `gorm:"column:rows_added"`
	Status      string    `gorm:"column:status;not null"`
	Error       string    `gorm:"column:error"`
	FinishedAt  time.Time `gorm:"column:finished_at;index"`
}

// TableName specifies the table name for SyncRun.
func (SyncRun) TableName() string {
	return "sync_runs"
}

// Ledger stores sync runs.
type Ledger struct {
	db *gorm.DB
}

// Open connects to the SQLite database at path, creating the table if needed.
// ":memory:" gives a private in-process database.
func Open(path string) (*Ledger, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// SQLite allows one writer; an in-memory database exists per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&SyncRun{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record stores runs in one transaction.
func (l *Ledger) Record(ctx context.Context, runs []SyncRun) error {
	if len(runs) == 0 {
		return nil
	}
	if err := l.db.WithContext(ctx).Create(&runs).Error; err != nil {
		return fmt.Errorf("record sync runs: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]SyncRun, error) {
	var runs []SyncRun
	err := l.db.WithContext(ctx).
		Order("finished_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("query sync runs: %w", err)
	}
	return runs, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
