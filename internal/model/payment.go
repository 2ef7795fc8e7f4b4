package model

import "time"

const (
	PaymentStatusCaptured          = "CAPTURED"
	PaymentStatusFailed            = "FAILED"
	PaymentStatusRefunded          = "REFUNDED"
	PaymentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Payment records one gateway event outcome tied to an order.
type Payment struct {
	ID          string `gorm:"primaryKey;size:36"`
	TenantID    string `gorm:"size:64;index;not null"`
	OrderID     string `gorm:"size:36;index;not null"`
	IntentID    string `gorm:"size:128;index"`
	Status      string `gorm:"size:24;index;not null"`
	AmountCents int64  `gorm:"not null"`
	Currency    string `gorm:"size:8;not null"`
	// provider event that produced this row
	ProviderEventID string `gorm:"size:128"`
	FailureReason   string `gorm:"size:255"`
	CreatedAt       time.Time
}

// ProcessedWebhookEvent is the append-only idempotence set for inbound
// provider events.
type ProcessedWebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128"`
	TenantID    string `gorm:"size:64;index"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}

type Coupon struct {
	ID       uint   `gorm:"primaryKey"`
	TenantID string `gorm:"size:64;uniqueIndex:idx_coupon_code,priority:1;not null"`
	Code     string `gorm:"size:64;uniqueIndex:idx_coupon_code,priority:2;not null"`
	// percent or fixed
	DiscountType  string `gorm:"size:16;not null"`
	DiscountValue int64  `gorm:"not null"` // percent points or cents
	// 0 means no cap
	MaxDiscountCents int64 `gorm:"not null"`
	MinOrderCents    int64 `gorm:"not null"`
	UsageLimit       int   `gorm:"not null"` // global cap, 0 = unlimited
	PerCustomerLimit int   `gorm:"not null"` // 0 = unlimited
	UsedCount        int   `gorm:"not null"`
	ValidFrom        time.Time
	ValidTo          time.Time
	Active           bool `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CouponUsage is written exactly once per qualifying order; the unique index
// is what makes the usage handler safe to retry.
type CouponUsage struct {
	ID            uint   `gorm:"primaryKey"`
	CouponID      uint   `gorm:"uniqueIndex:idx_coupon_usage,priority:1;not null"`
	OrderID       string `gorm:"size:36;uniqueIndex:idx_coupon_usage,priority:2;not null"`
	TenantID      string `gorm:"size:64;index;not null"`
	CustomerID    string `gorm:"size:64;index;not null"`
	DiscountCents int64  `gorm:"not null"`
	CreatedAt     time.Time
}
