package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tnqbao/gau-site-director/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrOperationExists means the site already has an operation row.
	ErrOperationExists = errors.New("site already has an operation")
	// ErrOperationNotPending means the operation was started elsewhere or
	// no longer exists.
	ErrOperationNotPending = errors.New("operation is not pending")
)

type OperationRepository struct {
	db *gorm.DB
}

func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

func orderedActions(db *gorm.DB) *gorm.DB {
	return db.Order("actions.id ASC")
}

// Create inserts the operation alone; the unique site_id index turns a
// concurrent second insert into ErrOperationExists.
func (r *OperationRepository) Create(ctx context.Context, op *entity.Operation) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(op).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrOperationExists
	}
	return err
}

func (r *OperationRepository) FindByID(ctx context.Context, id uint) (*entity.Operation, error) {
	var op entity.Operation
	err := r.db.WithContext(ctx).
		Preload("Actions", orderedActions).
		Preload("Site.DockerImage").
		Preload("Site.Database.Host").
		Preload("Site.Users").
		Where("id = ?", id).
		First(&op).Error
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *OperationRepository) FindBySiteID(ctx context.Context, siteID uint) (*entity.Operation, error) {
	var op entity.Operation
	err := r.db.WithContext(ctx).
		Preload("Actions", orderedActions).
		Where("site_id = ?", siteID).
		First(&op).Error
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *OperationRepository) ExistsBySiteID(ctx context.Context, siteID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Operation{}).Where("site_id = ?", siteID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns every operation, oldest first, with site and actions.
func (r *OperationRepository) List(ctx context.Context) ([]entity.Operation, error) {
	var ops []entity.Operation
	err := r.db.WithContext(ctx).
		Preload("Actions", orderedActions).
		Preload("Site").
		Order("created_time ASC").
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// MarkStarted claims a pending operation. Only one caller can win the
// claim; the rest get ErrOperationNotPending.
func (r *OperationRepository) MarkStarted(ctx context.Context, op *entity.Operation) error {
	result := r.db.WithContext(ctx).Model(&entity.Operation{}).
		Where("id = ? AND started_time IS NULL", op.ID).
		Update("started_time", op.StartedTime)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOperationNotPending
	}
	return nil
}

func (r *OperationRepository) ListStartedIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&entity.Operation{}).
		Where("started_time IS NOT NULL").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *OperationRepository) ListUnstartedBefore(ctx context.Context, cutoff time.Time) ([]entity.Operation, error) {
	var ops []entity.Operation
	err := r.db.WithContext(ctx).
		Where("started_time IS NULL AND created_time < ?", cutoff).
		Find(&ops).Error
	return ops, err
}

// Delete removes the operation; actions go with it through the cascade.
func (r *OperationRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&entity.Operation{}, id).Error
}

// DeleteIfUnstarted removes the operation only while no worker has claimed
// it, reporting whether a row was deleted.
func (r *OperationRepository) DeleteIfUnstarted(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("started_time IS NULL").
		Delete(&entity.Operation{}, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
