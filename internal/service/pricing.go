package service

import (
	"fmt"

	"commerce-core/internal/config"
	"commerce-core/internal/model"

	"github.com/shopspring/decimal"
)

const (
	DiscountTypePercent = "percent"
	DiscountTypeFixed   = "fixed"
)

// PricingCalculator turns line items and a coupon into cart totals, all in
// integer minor units. The tax rate is the only non-integer input and is kept
// as a decimal.
type PricingCalculator struct {
	taxRate               decimal.Decimal
	currency              string
	freeShippingThreshold int64
	flatShippingRate      int64
}

func NewPricingCalculator(cfg *config.Pricing) (*PricingCalculator, error) {
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("parse tax rate %q: %w", cfg.TaxRate, err)
	}
	return &PricingCalculator{
		taxRate:               rate,
		currency:              cfg.Currency,
		freeShippingThreshold: cfg.FreeShippingThresholdCents,
		flatShippingRate:      cfg.FlatShippingRateCents,
	}, nil
}

func (p *PricingCalculator) Currency() string {
	return p.currency
}

type Totals struct {
	SubtotalCents   int64
	DiscountCents   int64
	ShippingCents   int64
	TaxCents        int64
	GrandTotalCents int64
}

// Compute derives all totals from the items and an optional coupon.
// tax = round((subtotal - discount) * rate); grand = subtotal - discount +
// shipping + tax.
func (p *PricingCalculator) Compute(items []*model.CartItem, coupon *model.Coupon) Totals {
	var t Totals
	for _, item := range items {
		t.SubtotalCents += item.UnitPriceCents * int64(item.Quantity)
	}

	if coupon != nil {
		t.DiscountCents = p.CouponDiscount(coupon, t.SubtotalCents)
	}

	if t.SubtotalCents > 0 && t.SubtotalCents < p.freeShippingThreshold {
		t.ShippingCents = p.flatShippingRate
	}

	taxable := t.SubtotalCents - t.DiscountCents
	t.TaxCents = decimal.NewFromInt(taxable).Mul(p.taxRate).Round(0).IntPart()

	t.GrandTotalCents = t.SubtotalCents - t.DiscountCents + t.ShippingCents + t.TaxCents
	return t
}

// CouponDiscount computes the discount a coupon yields on a subtotal, capped
// at the subtotal and at the coupon's configured maximum.
func (p *PricingCalculator) CouponDiscount(coupon *model.Coupon, subtotalCents int64) int64 {
	var discount int64
	switch coupon.DiscountType {
	case DiscountTypePercent:
		discount = decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromInt(coupon.DiscountValue)).
			Div(decimal.NewFromInt(100)).
			Round(0).IntPart()
	case DiscountTypeFixed:
		discount = coupon.DiscountValue
	}

	if coupon.MaxDiscountCents > 0 && discount > coupon.MaxDiscountCents {
		discount = coupon.MaxDiscountCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	return discount
}
