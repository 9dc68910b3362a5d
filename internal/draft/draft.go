// Package draft holds the serialisable order draft edited by the back office.
// Every mutation goes through a reducer that returns a new Draft; totals are
// always derived with Totals and never stored on the draft.
package draft

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/loyalty"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

var (
	// ErrNoItems is returned when a draft is submitted without lines.
	ErrNoItems = errors.New("order must contain at least one item")
	// ErrItemIndex is returned for a line index outside the item list.
	ErrItemIndex = errors.New("item index out of range")
	// ErrNegativeAmount is returned for a negative tax rate or shipping amount.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// Draft is an order being composed or edited.
type Draft struct {
	SchemaVersion  int                `json:"schemaVersion"`
	CustomerID     string             `json:"customerId,omitempty"`
	Items          []pricing.LineItem `json:"items"`
	Discount       pricing.Discount   `json:"discount"`
	CouponCode     string             `json:"couponCode,omitempty"`
	CouponDiscount decimal.Decimal    `json:"couponDiscountAmount"`
	PointsToRedeem int64              `json:"pointsToRedeem"`
	PointsDiscount decimal.Decimal    `json:"pointsDiscountAmount"`
	TaxRatePercent decimal.Decimal    `json:"taxRatePercent"`
	Shipping       decimal.Decimal    `json:"shippingAmount"`
	Notes          string             `json:"notes,omitempty"`
	// LegacyDiscountMirror marks drafts migrated from schema v1, whose manual
	// discount may be a copy of the points discount.
	LegacyDiscountMirror bool `json:"legacyDiscountMirror,omitempty"`
}

// New returns an empty draft at the current schema version.
func New(customerID string, taxRatePercent decimal.Decimal) Draft {
	return Draft{
		SchemaVersion:  CurrentSchemaVersion,
		CustomerID:     customerID,
		Items:          []pricing.LineItem{},
		TaxRatePercent: taxRatePercent,
	}
}

// clone copies the draft deeply enough that reducers never share line
// slices or maps with their input.
func (d Draft) clone() Draft {
	out := d
	out.Items = make([]pricing.LineItem, len(d.Items))
	for i, it := range d.Items {
		out.Items[i] = cloneItem(it)
	}
	return out
}

func cloneItem(it pricing.LineItem) pricing.LineItem {
	out := it
	out.Addons = slices.Clone(it.Addons)
	out.Attributes = maps.Clone(it.Attributes)
	if it.Weight != nil {
		w := *it.Weight
		out.Weight = &w
	}
	return out
}

// AddItem appends a validated line.
func (d Draft) AddItem(item pricing.LineItem) (Draft, error) {
	if err := item.Validate(); err != nil {
		return d, err
	}
	out := d.clone()
	out.Items = append(out.Items, cloneItem(item))
	return out, nil
}

// RemoveItem drops the line at index.
func (d Draft) RemoveItem(index int) (Draft, error) {
	if index < 0 || index >= len(d.Items) {
		return d, fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	out := d.clone()
	out.Items = slices.Delete(out.Items, index, index+1)
	return out, nil
}

// SetQuantity changes the quantity of the line at index. Weight-based lines
// only accept a quantity of 1.
func (d Draft) SetQuantity(index int, qty int64) (Draft, error) {
	if index < 0 || index >= len(d.Items) {
		return d, fmt.Errorf("%w: %d", ErrItemIndex, index)
	}
	out := d.clone()
	out.Items[index].Quantity = qty
	if err := out.Items[index].Validate(); err != nil {
		return d, err
	}
	return out, nil
}

// SetDiscount replaces the manual discount.
func (d Draft) SetDiscount(discount pricing.Discount) (Draft, error) {
	if err := discount.Validate(); err != nil {
		return d, err
	}
	out := d.clone()
	if discount.Type == "" {
		discount.Type = pricing.DiscountFlat
	}
	out.Discount = discount
	return out, nil
}

// ApplyCoupon records a coupon code and the discount it resolved to.
func (d Draft) ApplyCoupon(code string, amount decimal.Decimal) Draft {
	out := d.clone()
	out.CouponCode = strings.ToUpper(strings.TrimSpace(code))
	out.CouponDiscount = decimal.Max(amount, decimal.Zero)
	return out
}

// ClearCoupon removes the coupon and its discount.
func (d Draft) ClearCoupon() Draft {
	out := d.clone()
	out.CouponCode = ""
	out.CouponDiscount = decimal.Zero
	return out
}

// ApplyPoints stores a points redemption snapshot.
func (d Draft) ApplyPoints(r loyalty.Redemption) Draft {
	out := d.clone()
	out.PointsToRedeem = r.Points
	out.PointsDiscount = r.Discount
	return out
}

// SetTaxRate replaces the tax rate percentage.
func (d Draft) SetTaxRate(rate decimal.Decimal) (Draft, error) {
	if rate.IsNegative() {
		return d, fmt.Errorf("tax rate: %w", ErrNegativeAmount)
	}
	out := d.clone()
	out.TaxRatePercent = rate
	return out, nil
}

// SetShipping replaces the shipping amount.
func (d Draft) SetShipping(amount decimal.Decimal) (Draft, error) {
	if amount.IsNegative() {
		return d, fmt.Errorf("shipping: %w", ErrNegativeAmount)
	}
	out := d.clone()
	out.Shipping = amount
	return out, nil
}

// SetNotes replaces the free-form notes.
func (d Draft) SetNotes(notes string) Draft {
	out := d.clone()
	out.Notes = strings.TrimSpace(notes)
	return out
}

// Validate checks that the draft can be submitted.
func (d Draft) Validate() error {
	if len(d.Items) == 0 {
		return ErrNoItems
	}
	for i, it := range d.Items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	if err := d.Discount.Validate(); err != nil {
		return err
	}
	if d.TaxRatePercent.IsNegative() {
		return fmt.Errorf("tax rate: %w", ErrNegativeAmount)
	}
	if d.Shipping.IsNegative() {
		return fmt.Errorf("shipping: %w", ErrNegativeAmount)
	}
	return nil
}

// PricingInput maps the draft onto the calculator input.
func (d Draft) PricingInput() pricing.Input {
	return pricing.Input{
		Items:              d.Items,
		Discount:           d.Discount,
		CouponDiscount:     d.CouponDiscount,
		PointsDiscount:     d.PointsDiscount,
		TaxRatePercent:     d.TaxRatePercent,
		Shipping:           d.Shipping,
		DedupePointsMirror: d.LegacyDiscountMirror,
	}
}

// Totals derives the order totals from the draft.
func (d Draft) Totals() pricing.Totals {
	return pricing.Compute(d.PricingInput())
}

// DiscountableBase is the amount points may be redeemed against: the
// subtotal after coupon and manual discounts, never below zero.
func (d Draft) DiscountableBase() decimal.Decimal {
	subtotal := pricing.Subtotal(d.Items)
	manual := pricing.DiscountAmount(d.Discount, subtotal)
	if d.LegacyDiscountMirror && pricing.IsPointsMirror(manual, d.PointsDiscount) {
		manual = decimal.Zero
	}
	return decimal.Max(subtotal.Sub(d.CouponDiscount).Sub(manual), decimal.Zero)
}
