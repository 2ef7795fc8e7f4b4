package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	CreateItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error
	FindByID(ctx context.Context, tx *gorm.DB, tenantID, orderID string) (*model.Order, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, orderID string) (*model.Order, error)
	FindByIntentID(ctx context.Context, tx *gorm.DB, intentID string) (*model.Order, error)
	ListByCustomer(ctx context.Context, tenantID, customerID string, limit, offset int) ([]*model.Order, error)
	Items(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error)
	Save(ctx context.Context, tx *gorm.DB, order *model.Order) error
	// UpdateStatus transitions from one expected status to another; the
	// affected-rows check catches concurrent movers.
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID, from, to string) error
	AttachIntent(ctx context.Context, orderID, intentID string) error
	// PendingExposure sums grand totals of unpaid orders for a billing entity.
	PendingExposure(ctx context.Context, tx *gorm.DB, tenantID, billingEntityID string) (int64, error)

	Reservations(ctx context.Context, tx *gorm.DB, orderID string, status string) ([]*model.Reservation, error)
	CreateReservations(ctx context.Context, tx *gorm.DB, reservations []*model.Reservation) error
	UpdateReservationStatus(ctx context.Context, tx *gorm.DB, reservationID uint, from, to string) (bool, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{db: db}
}

func (r *orderRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return r.conn(tx).WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) CreateItems(ctx context.Context, tx *gorm.DB, items []*model.OrderItem) error {
	return r.conn(tx).WithContext(ctx).Create(&items).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, tenantID, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.conn(tx).WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepoImpl) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, orderID string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepoImpl) FindByIntentID(ctx context.Context, tx *gorm.DB, intentID string) (*model.Order, error) {
	var order model.Order
	err := r.conn(tx).WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order for intent %s: %w", intentID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepoImpl) ListByCustomer(ctx context.Context, tenantID, customerID string, limit, offset int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepoImpl) Items(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.OrderItem, error) {
	var items []*model.OrderItem
	err := r.conn(tx).WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *orderRepoImpl) Save(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return r.conn(tx).WithContext(ctx).Save(order).Error
}

func (r *orderRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID, from, to string) error {
	result := r.conn(tx).WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %s is no longer %s: %w", orderID, from, apperr.ErrConflict)
	}
	return nil
}

func (r *orderRepoImpl) AttachIntent(ctx context.Context, orderID, intentID string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payment_intent_id IS NULL", orderID).
		Update("payment_intent_id", intentID).Error
}

func (r *orderRepoImpl) PendingExposure(ctx context.Context, tx *gorm.DB, tenantID, billingEntityID string) (int64, error) {
	var total int64
	err := r.conn(tx).WithContext(ctx).Model(&model.Order{}).
		Where("tenant_id = ? AND billing_entity_id = ? AND status = ?",
			tenantID, billingEntityID, model.OrderStatusPending).
		Select("COALESCE(SUM(grand_total_cents), 0)").
		Scan(&total).Error
	return total, err
}

func (r *orderRepoImpl) Reservations(ctx context.Context, tx *gorm.DB, orderID string, status string) ([]*model.Reservation, error) {
	var reservations []*model.Reservation
	err := r.conn(tx).WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, status).
		Order("id").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *orderRepoImpl) CreateReservations(ctx context.Context, tx *gorm.DB, reservations []*model.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(&reservations).Error
}

func (r *orderRepoImpl) UpdateReservationStatus(ctx context.Context, tx *gorm.DB, reservationID uint, from, to string) (bool, error) {
	result := r.conn(tx).WithContext(ctx).Model(&model.Reservation{}).
		Where("id = ? AND status = ?", reservationID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
