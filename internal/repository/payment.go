package repository

import (
	"context"

	"commerce-core/internal/model"

	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error
	ListByOrder(ctx context.Context, orderID string) ([]*model.Payment, error)
	// RefundedTotal is the sum already refunded against an order, full and
	// partial rows combined.
	RefundedTotal(ctx context.Context, tx *gorm.DB, orderID string) (int64, error)
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{db: db}
}

func (r *paymentRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *paymentRepoImpl) Create(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return r.conn(tx).WithContext(ctx).Create(payment).Error
}

func (r *paymentRepoImpl) ListByOrder(ctx context.Context, orderID string) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepoImpl) RefundedTotal(ctx context.Context, tx *gorm.DB, orderID string) (int64, error) {
	var total int64
	err := r.conn(tx).WithContext(ctx).Model(&model.Payment{}).
		Where("order_id = ? AND status IN ?", orderID,
			[]string{model.PaymentStatusRefunded, model.PaymentStatusPartiallyRefunded}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}
