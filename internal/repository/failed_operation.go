package repository

import (
	"context"
	"time"

	"commerce-core/internal/model"

	"gorm.io/gorm"
)

type FailedOperationRepository interface {
	// Create takes an optional transaction so callers can commit ledger
	// rows atomically with the state change that requires them.
	Create(ctx context.Context, tx *gorm.DB, op *model.FailedOperation) error
	// Due returns operations ready for retry: pending, not exhausted, and
	// past their next-retry timestamp.
	Due(ctx context.Context, now time.Time, limit int) ([]*model.FailedOperation, error)
	// ClaimForRetry flips PENDING to RETRYING guarded on the current status,
	// so two pollers never pick up the same row.
	ClaimForRetry(ctx context.Context, opID string) (bool, error)
	MarkSucceeded(ctx context.Context, opID string) error
	// Reschedule records the failed attempt and either schedules the next
	// retry or marks the operation terminally failed.
	Reschedule(ctx context.Context, op *model.FailedOperation) error
	FindByID(ctx context.Context, opID string) (*model.FailedOperation, error)
}

type failedOperationRepoImpl struct {
	db *gorm.DB
}

func NewFailedOperationRepository(db *gorm.DB) FailedOperationRepository {
	return &failedOperationRepoImpl{db: db}
}

func (r *failedOperationRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *failedOperationRepoImpl) Create(ctx context.Context, tx *gorm.DB, op *model.FailedOperation) error {
	return r.conn(tx).WithContext(ctx).Create(op).Error
}

func (r *failedOperationRepoImpl) Due(ctx context.Context, now time.Time, limit int) ([]*model.FailedOperation, error) {
	var ops []*model.FailedOperation
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ? AND attempts < max_attempts",
			model.FailedOpStatusPending, now).
		Order("next_retry_at").
		Limit(limit).
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (r *failedOperationRepoImpl) ClaimForRetry(ctx context.Context, opID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.FailedOperation{}).
		Where("id = ? AND status = ?", opID, model.FailedOpStatusPending).
		Updates(map[string]interface{}{
			"status":     model.FailedOpStatusRetrying,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *failedOperationRepoImpl) MarkSucceeded(ctx context.Context, opID string) error {
	return r.db.WithContext(ctx).Model(&model.FailedOperation{}).
		Where("id = ?", opID).
		Updates(map[string]interface{}{
			"status":     model.FailedOpStatusSucceeded,
			"updated_at": time.Now(),
		}).Error
}

func (r *failedOperationRepoImpl) Reschedule(ctx context.Context, op *model.FailedOperation) error {
	return r.db.WithContext(ctx).Model(&model.FailedOperation{}).
		Where("id = ?", op.ID).
		Updates(map[string]interface{}{
			"status":        op.Status,
			"attempts":      op.Attempts,
			"next_retry_at": op.NextRetryAt,
			"last_error":    op.LastError,
			"updated_at":    time.Now(),
		}).Error
}

func (r *failedOperationRepoImpl) FindByID(ctx context.Context, opID string) (*model.FailedOperation, error) {
	var op model.FailedOperation
	err := r.db.WithContext(ctx).Where("id = ?", opID).First(&op).Error
	if err != nil {
		return nil, err
	}
	return &op, nil
}
