package repository

import (
	"context"
	"errors"
	"time"

	"commerce-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartRepository interface {
	Create(ctx context.Context, tx *gorm.DB, cart *model.Cart) error
	FindByID(ctx context.Context, tx *gorm.DB, tenantID, cartID string) (*model.Cart, error)
	// FindByIDForUpdate row-locks the cart; this is what serializes two
	// concurrent checkouts of the same cart.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, cartID string) (*model.Cart, error)
	FindActiveByCustomer(ctx context.Context, tx *gorm.DB, tenantID, customerID string, now time.Time) (*model.Cart, error)
	FindActiveBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionToken string, now time.Time) (*model.Cart, error)
	Save(ctx context.Context, tx *gorm.DB, cart *model.Cart) error
	Delete(ctx context.Context, tx *gorm.DB, cartID string) error

	Items(ctx context.Context, tx *gorm.DB, cartID string) ([]*model.CartItem, error)
	FindItem(ctx context.Context, tx *gorm.DB, cartID, productID, variantID string) (*model.CartItem, error)
	SaveItem(ctx context.Context, tx *gorm.DB, item *model.CartItem) error
	DeleteItem(ctx context.Context, tx *gorm.DB, itemID uint) error
	DeleteItems(ctx context.Context, tx *gorm.DB, cartID string) error

	// ExpiredActive returns active carts whose expiry has passed, for the reaper.
	ExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Cart, error)
	// PurgeAbandoned hard-deletes abandoned carts untouched since the cutoff.
	PurgeAbandoned(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{db: db}
}

func (r *cartRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *cartRepoImpl) Create(ctx context.Context, tx *gorm.DB, cart *model.Cart) error {
	return r.conn(tx).WithContext(ctx).Create(cart).Error
}

func (r *cartRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, tenantID, cartID string) (*model.Cart, error) {
	var cart model.Cart
	err := r.conn(tx).WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, cartID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepoImpl) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, cartID string) (*model.Cart, error) {
	var cart model.Cart
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, cartID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepoImpl) FindActiveByCustomer(ctx context.Context, tx *gorm.DB, tenantID, customerID string, now time.Time) (*model.Cart, error) {
	var cart model.Cart
	err := r.conn(tx).WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ? AND status = ? AND expires_at > ?",
			tenantID, customerID, model.CartStatusActive, now).
		Order("created_at DESC").
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepoImpl) FindActiveBySession(ctx context.Context, tx *gorm.DB, tenantID, sessionToken string, now time.Time) (*model.Cart, error) {
	var cart model.Cart
	err := r.conn(tx).WithContext(ctx).
		Where("tenant_id = ? AND session_token = ? AND status = ? AND expires_at > ?",
			tenantID, sessionToken, model.CartStatusActive, now).
		Order("created_at DESC").
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepoImpl) Save(ctx context.Context, tx *gorm.DB, cart *model.Cart) error {
	return r.conn(tx).WithContext(ctx).Save(cart).Error
}

func (r *cartRepoImpl) Delete(ctx context.Context, tx *gorm.DB, cartID string) error {
	return r.conn(tx).WithContext(ctx).Delete(&model.Cart{}, "id = ?", cartID).Error
}

func (r *cartRepoImpl) Items(ctx context.Context, tx *gorm.DB, cartID string) ([]*model.CartItem, error) {
	var items []*model.CartItem
	err := r.conn(tx).WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepoImpl) FindItem(ctx context.Context, tx *gorm.DB, cartID, productID, variantID string) (*model.CartItem, error) {
	var item model.CartItem
	err := r.conn(tx).WithContext(ctx).
		Where("cart_id = ? AND product_id = ? AND variant_id = ?", cartID, productID, variantID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *cartRepoImpl) SaveItem(ctx context.Context, tx *gorm.DB, item *model.CartItem) error {
	return r.conn(tx).WithContext(ctx).Save(item).Error
}

func (r *cartRepoImpl) DeleteItem(ctx context.Context, tx *gorm.DB, itemID uint) error {
	return r.conn(tx).WithContext(ctx).Delete(&model.CartItem{}, itemID).Error
}

func (r *cartRepoImpl) DeleteItems(ctx context.Context, tx *gorm.DB, cartID string) error {
	return r.conn(tx).WithContext(ctx).Delete(&model.CartItem{}, "cart_id = ?", cartID).Error
}

func (r *cartRepoImpl) ExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Cart, error) {
	var carts []*model.Cart
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", model.CartStatusActive, now).
		Limit(limit).
		Find(&carts).Error
	if err != nil {
		return nil, err
	}
	return carts, nil
}

func (r *cartRepoImpl) PurgeAbandoned(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	var carts []*model.Cart
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", model.CartStatusAbandoned, cutoff).
		Limit(limit).
		Find(&carts).Error
	if err != nil {
		return 0, err
	}

	var purged int64
	for _, cart := range carts {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&model.CartItem{}, "cart_id = ?", cart.ID).Error; err != nil {
				return err
			}
			return tx.Delete(&model.Cart{}, "id = ?", cart.ID).Error
		})
		if err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}
