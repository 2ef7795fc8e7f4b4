package model

import "time"

const (
	OrderStatusPending    = "PENDING"
	OrderStatusConfirmed  = "CONFIRMED"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)

type Order struct {
	ID       string `gorm:"primaryKey;size:36"`
	TenantID string `gorm:"size:64;uniqueIndex:idx_order_number,priority:1;not null"`
	// human-facing number, unique and strictly increasing per tenant
	OrderNumber string `gorm:"size:32;uniqueIndex:idx_order_number,priority:2;not null"`
	// a cart can carry several orders over time when checkouts are
	// cancelled; only one can be non-cancelled, guarded by the cart row
	// lock and the converted-status check at checkout
	CartID          string  `gorm:"size:36;index;not null"`
	CustomerID      string  `gorm:"size:64;index;not null"`
	BillingEntityID string  `gorm:"size:64;index"`
	Status          string  `gorm:"size:16;index;not null"`
	CouponCode      *string `gorm:"size:64"`

	SubtotalCents   int64  `gorm:"not null"`
	DiscountCents   int64  `gorm:"not null"`
	ShippingCents   int64  `gorm:"not null"`
	TaxCents        int64  `gorm:"not null"`
	GrandTotalCents int64  `gorm:"not null"`
	Currency        string `gorm:"size:8;not null"`

	Email           string `gorm:"size:255"`
	ShippingAddress string `gorm:"type:text"`
	BillingAddress  string `gorm:"type:text"`

	// payment intent at the gateway; nil until intent creation succeeds
	PaymentIntentID *string `gorm:"size:128;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is the immutable snapshot of a cart line at checkout time.
type OrderItem struct {
	ID             uint   `gorm:"primaryKey"`
	OrderID        string `gorm:"size:36;index;not null"`
	ProductID      string `gorm:"size:64;not null"`
	VariantID      string `gorm:"size:64"`
	Sku            string `gorm:"size:64;not null"`
	Name           string `gorm:"size:255;not null"`
	Quantity       int    `gorm:"not null"`
	UnitPriceCents int64  `gorm:"not null"`
	CreatedAt      time.Time
}

// OrderCounter backs the per-tenant monotonic order number sequence.
type OrderCounter struct {
	TenantID  string `gorm:"primaryKey;size:64"`
	Period    string `gorm:"primaryKey;size:8"` // YYYYMM
	Value     int64  `gorm:"not null"`
	UpdatedAt time.Time
}
