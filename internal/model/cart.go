package model

import "time"

const (
	CartStatusActive    = "active"
	CartStatusConverted = "converted"
	CartStatusAbandoned = "abandoned"
)

type Cart struct {
	ID           string  `gorm:"primaryKey;size:36"`
	TenantID     string  `gorm:"size:64;index:idx_cart_owner,priority:1;not null"`
	CustomerID   *string `gorm:"size:64;index:idx_cart_owner,priority:2"`
	SessionToken *string `gorm:"size:128;index"`
	Status       string  `gorm:"size:16;index;not null"` // active, converted, abandoned
	CouponCode   *string `gorm:"size:64"`

	// monetary totals in integer minor units
	SubtotalCents   int64 `gorm:"not null"`
	DiscountCents   int64 `gorm:"not null"`
	ShippingCents   int64 `gorm:"not null"`
	TaxCents        int64 `gorm:"not null"`
	GrandTotalCents int64 `gorm:"not null"`

	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartItem struct {
	ID        uint   `gorm:"primaryKey"`
	CartID    string `gorm:"size:36;uniqueIndex:idx_cart_line,priority:1;not null"`
	ProductID string `gorm:"size:64;uniqueIndex:idx_cart_line,priority:2;not null"`
	VariantID string `gorm:"size:64;uniqueIndex:idx_cart_line,priority:3"`
	Sku       string `gorm:"size:64;not null"`
	Name      string `gorm:"size:255;not null"`
	Quantity  int    `gorm:"not null"`
	// price snapshot taken when the line was added
	UnitPriceCents int64 `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
