package repository

import (
	"context"
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Allocation records how much of a reservation landed on which warehouse.
type Allocation struct {
	WarehouseID string
	Quantity    int
}

type StockRepository interface {
	// Reserve allocates qty across the item's warehouse balances, FIFO by
	// balance creation time, under row locks. The caller must run it inside
	// a transaction; on ErrInsufficientStock nothing is committed.
	Reserve(ctx context.Context, tx *gorm.DB, tenantID, productID string, qty int) ([]Allocation, error)
	// Release decrements reserved quantity FIFO, clamped at zero. Idempotent.
	Release(ctx context.Context, tx *gorm.DB, tenantID, productID string, qty int) error
	// ReleaseAllocation releases reserved stock on one specific warehouse row,
	// amount-symmetric with a prior Reserve.
	ReleaseAllocation(ctx context.Context, tx *gorm.DB, tenantID, productID, warehouseID string, qty int) error
	// Deduct converts a reservation into a confirmed sale on one warehouse:
	// actual and reserved both go down. Post-capture only.
	Deduct(ctx context.Context, tx *gorm.DB, tenantID, productID, warehouseID string, qty int) error
	Available(ctx context.Context, tx *gorm.DB, tenantID, productID string) (int, error)
}

type stockRepoImpl struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepoImpl{db: db}
}

// balancesForUpdate locks the item's balance rows in FIFO creation order.
func (r *stockRepoImpl) balancesForUpdate(ctx context.Context, tx *gorm.DB, tenantID, productID string) ([]*model.WarehouseBalance, error) {
	var balances []*model.WarehouseBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("created_at, id").
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *stockRepoImpl) Reserve(ctx context.Context, tx *gorm.DB, tenantID, productID string, qty int) ([]Allocation, error) {
	balances, err := r.balancesForUpdate(ctx, tx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	remaining := qty
	var allocations []Allocation
	for _, b := range balances {
		if remaining == 0 {
			break
		}
		take := b.Available()
		if take <= 0 {
			continue
		}
		if take > remaining {
			take = remaining
		}

		b.ReservedQty += take
		if err := tx.WithContext(ctx).Model(b).Update("reserved_qty", b.ReservedQty).Error; err != nil {
			return nil, err
		}
		allocations = append(allocations, Allocation{WarehouseID: b.WarehouseID, Quantity: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, fmt.Errorf("product %s: requested %d, short %d: %w",
			productID, qty, remaining, apperr.ErrInsufficientStock)
	}
	return allocations, nil
}

func (r *stockRepoImpl) Release(ctx context.Context, tx *gorm.DB, tenantID, productID string, qty int) error {
	balances, err := r.balancesForUpdate(ctx, tx, tenantID, productID)
	if err != nil {
		return err
	}

	remaining := qty
	for _, b := range balances {
		if remaining == 0 {
			break
		}
		give := b.ReservedQty
		if give <= 0 {
			continue
		}
		if give > remaining {
			give = remaining
		}

		b.ReservedQty -= give
		if err := tx.WithContext(ctx).Model(b).Update("reserved_qty", b.ReservedQty).Error; err != nil {
			return err
		}
		remaining -= give
	}

	// remaining > 0 means the reservation was already (partially) released;
	// release clamps rather than failing.
	return nil
}

func (r *stockRepoImpl) lockBalance(ctx context.Context, tx *gorm.DB, tenantID, productID, warehouseID string) (*model.WarehouseBalance, error) {
	var balance model.WarehouseBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND product_id = ? AND warehouse_id = ?", tenantID, productID, warehouseID).
		First(&balance).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("balance %s/%s: %w", productID, warehouseID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &balance, nil
}

func (r *stockRepoImpl) ReleaseAllocation(ctx context.Context, tx *gorm.DB, tenantID, productID, warehouseID string, qty int) error {
	balance, err := r.lockBalance(ctx, tx, tenantID, productID, warehouseID)
	if err != nil {
		return err
	}

	release := qty
	if release > balance.ReservedQty {
		release = balance.ReservedQty
	}
	balance.ReservedQty -= release
	return tx.WithContext(ctx).Model(balance).Update("reserved_qty", balance.ReservedQty).Error
}

func (r *stockRepoImpl) Deduct(ctx context.Context, tx *gorm.DB, tenantID, productID, warehouseID string, qty int) error {
	balance, err := r.lockBalance(ctx, tx, tenantID, productID, warehouseID)
	if err != nil {
		return err
	}

	if balance.ActualQty < qty {
		return fmt.Errorf("deduct %d from %s/%s with actual %d: %w",
			qty, productID, warehouseID, balance.ActualQty, apperr.ErrConflict)
	}

	balance.ActualQty -= qty
	released := qty
	if released > balance.ReservedQty {
		released = balance.ReservedQty
	}
	balance.ReservedQty -= released

	return tx.WithContext(ctx).Model(balance).Updates(map[string]interface{}{
		"actual_qty":   balance.ActualQty,
		"reserved_qty": balance.ReservedQty,
	}).Error
}

func (r *stockRepoImpl) Available(ctx context.Context, tx *gorm.DB, tenantID, productID string) (int, error) {
	balances, err := r.balancesForUpdate(ctx, tx, tenantID, productID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, b := range balances {
		if avail := b.Available(); avail > 0 {
			total += avail
		}
	}
	return total, nil
}
