package model

import "time"

const (
	FailedOpStatusPending   = "PENDING"
	FailedOpStatusRetrying  = "RETRYING"
	FailedOpStatusSucceeded = "SUCCEEDED"
	FailedOpStatusFailed    = "FAILED"
)

const (
	OpTypeStockDeduction  = "stock_deduction"
	OpTypeCouponUsage     = "coupon_usage"
	OpTypeNotification    = "notification_send"
	OpTypeWebhookDelivery = "webhook_delivery"
)

// FailedOperation is the durable retry ledger for critical post-payment side
// effects.
type FailedOperation struct {
	ID       string `gorm:"primaryKey;size:36"`
	TenantID string `gorm:"size:64;index;not null"`
	Type     string `gorm:"size:32;index;not null"`
	Payload  string `gorm:"type:text;not null"` // JSON, minimal retry payload
	Status   string `gorm:"size:16;index:idx_failed_op_due,priority:1;not null"`

	Attempts    int       `gorm:"not null"`
	MaxAttempts int       `gorm:"not null"`
	NextRetryAt time.Time `gorm:"index:idx_failed_op_due,priority:2;not null"`
	LastError   string    `gorm:"size:1024"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
