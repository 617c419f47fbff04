package repository

import (
	"context"

	"tasktrack/internal/core/ports"
	"tasktrack/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new instance of RunRepository
func NewRunRepository(db *gorm.DB) ports.RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(ctx context.Context, run *domain.Run) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *runRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	var run domain.Run
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepository) SaveSnapshot(ctx context.Context, runID uuid.UUID, snapshot datatypes.JSON, attempts int) error {
	return r.db.WithContext(ctx).
		Model(&domain.Run{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"snapshot": snapshot,
			"attempts": attempts,
		}).Error
}

// UpdateStatus moves the run to a new status. The guard in the WHERE clause
// keeps a terminal status from being overwritten when two attempts of the
// same run race their final writes: the first terminal write wins and later
// ones are no-ops.
func (r *runRepository) UpdateStatus(ctx context.Context, runID uuid.UUID, status domain.RunStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.Run{}).
		Where("id = ? AND status = ?", runID, domain.RunRunning).
		Update("status", status).Error
}

func (r *runRepository) ListUnfinished(ctx context.Context) ([]domain.Run, error) {
	var runs []domain.Run
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.RunRunning).
		Order("created_at asc").
		Find(&runs).Error
	return runs, err
}
