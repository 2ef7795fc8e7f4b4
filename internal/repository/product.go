package repository

import (
	"context"
	"errors"
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/model"

	"gorm.io/gorm"
)

type ProductRepository interface {
	FindByID(ctx context.Context, tx *gorm.DB, tenantID, productID string) (*model.Product, error)
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{db: db}
}

func (r *productRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, tenantID, productID string) (*model.Product, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}

	var product model.Product
	err := conn.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, productID).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &product, nil
}
