package repository

import (
	"context"
	"errors"
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CouponRepository interface {
	FindByCode(ctx context.Context, tx *gorm.DB, tenantID, code string) (*model.Coupon, error)
	// FindByCodeForUpdate serializes concurrent redemption checks on one code.
	FindByCodeForUpdate(ctx context.Context, tx *gorm.DB, tenantID, code string) (*model.Coupon, error)
	CustomerUsageCount(ctx context.Context, tx *gorm.DB, couponID uint, customerID string) (int64, error)
	// RecordUsage creates the usage row and bumps the counter exactly once
	// per (coupon, order); a replay reports inserted=false.
	RecordUsage(ctx context.Context, tx *gorm.DB, usage *model.CouponUsage) (inserted bool, err error)
}

type couponRepoImpl struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) CouponRepository {
	return &couponRepoImpl{db: db}
}

func (r *couponRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *couponRepoImpl) FindByCode(ctx context.Context, tx *gorm.DB, tenantID, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := r.conn(tx).WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("coupon %s: %w", code, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepoImpl) FindByCodeForUpdate(ctx context.Context, tx *gorm.DB, tenantID, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("coupon %s: %w", code, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *couponRepoImpl) CustomerUsageCount(ctx context.Context, tx *gorm.DB, couponID uint, customerID string) (int64, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).Model(&model.CouponUsage{}).
		Where("coupon_id = ? AND customer_id = ?", couponID, customerID).
		Count(&count).Error
	return count, err
}

func (r *couponRepoImpl) RecordUsage(ctx context.Context, tx *gorm.DB, usage *model.CouponUsage) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "coupon_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(usage)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	err := r.conn(tx).WithContext(ctx).Model(&model.Coupon{}).
		Where("id = ?", usage.CouponID).
		Update("used_count", gorm.Expr("used_count + 1")).Error
	return true, err
}
