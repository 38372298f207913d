package repository

import (
	"context"

	"github.com/tnqbao/gau-site-director/entity"
	"gorm.io/gorm"
)

// Columns an action run may change after the row is registered.
var actionProgressColumns = []string{"started_time", "before_state", "after_state", "result", "message"}

type ActionRepository struct {
	db *gorm.DB
}

func NewActionRepository(db *gorm.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

func (r *ActionRepository) Create(ctx context.Context, action *entity.Action) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *ActionRepository) SaveProgress(ctx context.Context, action *entity.Action) error {
	return r.db.WithContext(ctx).Model(action).Select(actionProgressColumns).Updates(action).Error
}

// DeleteByOperationID drops actions left from an earlier build of the
// same operation that never started.
func (r *ActionRepository) DeleteByOperationID(ctx context.Context, operationID uint) error {
	return r.db.WithContext(ctx).Where("operation_id = ?", operationID).Delete(&entity.Action{}).Error
}

// FailInterrupted marks started, unfinished actions of the given operations
// as failed and returns how many rows changed.
func (r *ActionRepository) FailInterrupted(ctx context.Context, operationIDs []uint, message string) (int64, error) {
	if len(operationIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&entity.Action{}).
		Where("operation_id IN ? AND started_time IS NOT NULL AND result IS NULL", operationIDs).
		Updates(map[string]any{
			"result":  false,
			"message": gorm.Expr("CASE WHEN message = '' THEN ? ELSE message || chr(10) || ? END", message, message),
		})
	return res.RowsAffected, res.Error
}
