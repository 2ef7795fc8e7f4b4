package model

import "time"

// WarehouseBalance is the authoritative stock row for one (tenant, product,
// warehouse). Invariant outside a lock: 0 <= ReservedQty <= ActualQty.
type WarehouseBalance struct {
	ID          uint   `gorm:"primaryKey"`
	TenantID    string `gorm:"size:64;uniqueIndex:idx_balance,priority:1;not null"`
	ProductID   string `gorm:"size:64;uniqueIndex:idx_balance,priority:2;not null"`
	WarehouseID string `gorm:"size:64;uniqueIndex:idx_balance,priority:3;not null"`
	ActualQty   int    `gorm:"not null"`
	ReservedQty int    `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b *WarehouseBalance) Available() int {
	return b.ActualQty - b.ReservedQty
}

const (
	ReservationStatusReserved = "RESERVED"
	ReservationStatusReleased = "RELEASED"
	ReservationStatusDeducted = "DEDUCTED"
)

// Reservation records which warehouse an order line was reserved against, so
// the post-capture deduction hits the same rows the checkout reserved.
type Reservation struct {
	ID          uint   `gorm:"primaryKey"`
	TenantID    string `gorm:"size:64;not null"`
	OrderID     string `gorm:"size:36;uniqueIndex:idx_reservation,priority:1;not null"`
	ProductID   string `gorm:"size:64;uniqueIndex:idx_reservation,priority:2;not null"`
	WarehouseID string `gorm:"size:64;uniqueIndex:idx_reservation,priority:3;not null"`
	Quantity    int    `gorm:"not null"`
	Status      string `gorm:"size:16;index;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is the minimal read-only catalog slice this core needs for price
// snapshots; catalog management lives elsewhere.
type Product struct {
	ID         string `gorm:"primaryKey;size:64"`
	TenantID   string `gorm:"size:64;index;not null"`
	Sku        string `gorm:"size:64;index;not null"`
	Name       string `gorm:"size:255;not null"`
	PriceCents int64  `gorm:"not null"`
	Currency   string `gorm:"size:8;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
