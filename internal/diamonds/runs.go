package diamonds

import (
	"context"

	"gorm.io/gorm"
)

const defaultRecentRuns = 10

// RunRecorder keeps the sync audit trail.
type RunRecorder interface {
	Record(ctx context.Context, run SyncRun) error
	Recent(ctx context.Context, limit int) ([]SyncRun, error)
}

// GormRunRecorder stores sync runs in the diamond_sync_runs table.
type GormRunRecorder struct {
	db *gorm.DB
}

// NewGormRunRecorder wraps the provided database handle.
func NewGormRunRecorder(db *gorm.DB) (*GormRunRecorder, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormRunRecorder{db: db}, nil
}

func (r *GormRunRecorder) Record(ctx context.Context, run SyncRun) error {
	return r.db.WithContext(ctx).Create(&run).Error
}

// Recent returns the newest runs first.
func (r *GormRunRecorder) Recent(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = defaultRecentRuns
	}
	runs := make([]SyncRun, 0, limit)
	err := r.db.WithContext(ctx).
		Order("started_at_s DESC").
		Order("run_id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
