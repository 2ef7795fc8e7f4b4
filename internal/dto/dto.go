package dto

type AddItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

type ApplyCouponRequest struct {
	Code string `json:"code"`
}

type CartResponse struct {
	CartID          string             `json:"cart_id"`
	Status          string             `json:"status"`
	Items           []CartItemResponse `json:"items"`
	CouponCode      string             `json:"coupon_code,omitempty"`
	SubtotalCents   int64              `json:"subtotal_cents"`
	DiscountCents   int64              `json:"discount_cents"`
	ShippingCents   int64              `json:"shipping_cents"`
	TaxCents        int64              `json:"tax_cents"`
	GrandTotalCents int64              `json:"grand_total_cents"`
}

type CartItemResponse struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id,omitempty"`
	Sku            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type CheckoutRequest struct {
	CartID          string  `json:"cart_id"`
	Email           string  `json:"email"`
	BillingEntityID string  `json:"billing_entity_id,omitempty"`
	ShippingAddress Address `json:"shipping_address"`
	BillingAddress  Address `json:"billing_address"`
}

type CheckoutResponse struct {
	OrderID         string `json:"order_id"`
	OrderNumber     string `json:"order_number"`
	Status          string `json:"status"`
	GrandTotalCents int64  `json:"grand_total_cents"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	// true when intent creation failed and will be repaired on next read
	PaymentPending bool `json:"payment_pending"`
}

type RefundRequest struct {
	AmountCents int64 `json:"amount_cents"` // 0 means full refund
}

// WebhookEvent is the minimal provider event shape this core consumes. The
// provider's full wire schema is its own business; only these fields are read.
type WebhookEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	IntentID    string `json:"intent_id"`
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}
