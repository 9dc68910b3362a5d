package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a currency amount kept at full precision until display.
type Money = decimal.Decimal

var (
	// ErrInvalidQuantity is returned when a quantity-based line has no positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrWeightQuantity indicates a weight-based line that does not carry quantity 1.
	ErrWeightQuantity = errors.New("weight-based items must have quantity 1")
	// ErrInvalidAddon is returned for addon selections with a missing id or non-positive quantity.
	ErrInvalidAddon = errors.New("addon selection is invalid")
	// ErrNegativePrice is returned when a unit or addon price is below zero.
	ErrNegativePrice = errors.New("price must not be negative")
	// ErrInvalidDiscount is returned for an unknown discount type or out-of-range value.
	ErrInvalidDiscount = errors.New("discount is invalid")
)

// DiscountType selects how Discount.Value is interpreted.
type DiscountType string

const (
	DiscountFlat       DiscountType = "amount"
	DiscountPercentage DiscountType = "percentage"
)

var (
	hundred  = decimal.NewFromInt(100)
	oneCent  = decimal.New(1, -2)
	zeroCash = decimal.Zero
)

// AddonSelection is an addon attached to a line item. Title and price are
// snapshotted when the order is created and never re-read from the catalog.
type AddonSelection struct {
	AddonID  string `json:"addonId"`
	Title    string `json:"title"`
	Price    Money  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// LineItem describes one order line used for pricing.
type LineItem struct {
	ProductID   string            `json:"productId"`
	VariantID   string            `json:"variantId,omitempty"`
	ProductName string            `json:"productName"`
	UnitPrice   Money             `json:"unitPrice"`
	Quantity    int64             `json:"quantity"`
	Weight      *WeightSelection  `json:"weight,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Addons      []AddonSelection  `json:"addons,omitempty"`
}

// WeightBased reports whether the line is priced by mass.
func (it LineItem) WeightBased() bool {
	return it.Weight != nil
}

// TotalPrice is the line's contribution to the order subtotal.
func (it LineItem) TotalPrice() Money {
	return ItemSubtotal(it)
}

// Validate checks the line invariants.
func (it LineItem) Validate() error {
	if it.UnitPrice.IsNegative() {
		return ErrNegativePrice
	}
	if it.WeightBased() {
		if it.Quantity != 1 {
			return ErrWeightQuantity
		}
		if err := ValidateWeight(it.Weight.Grams); err != nil {
			return err
		}
	} else if it.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i, addon := range it.Addons {
		if addon.AddonID == "" || addon.Quantity <= 0 {
			return fmt.Errorf("addons[%d]: %w", i, ErrInvalidAddon)
		}
		if addon.Price.IsNegative() {
			return fmt.Errorf("addons[%d]: %w", i, ErrNegativePrice)
		}
	}
	return nil
}

// Discount is a manual discount, either a flat amount or a percentage of the subtotal.
type Discount struct {
	Type  DiscountType `json:"type"`
	Value Money        `json:"value"`
}

// Validate checks the discount type and value range.
func (d Discount) Validate() error {
	switch d.Type {
	case "", DiscountFlat:
		if d.Value.IsNegative() {
			return fmt.Errorf("%w: amount must not be negative", ErrInvalidDiscount)
		}
	case DiscountPercentage:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidDiscount)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDiscount, d.Type)
	}
	return nil
}

// Input carries everything Compute needs.
type Input struct {
	Items          []LineItem
	Discount       Discount
	CouponDiscount Money
	PointsDiscount Money
	TaxRatePercent Money
	// Shipping is never negative; draft.SetShipping rejects negative amounts.
	Shipping Money
	// DedupePointsMirror zeroes a manual discount that mirrors the points
	// discount to within one cent. Only orders migrated from the legacy
	// draft format set it.
	DedupePointsMirror bool
}

// Totals aggregates computed pricing components.
type Totals struct {
	Subtotal       Money `json:"subtotal"`
	CouponDiscount Money `json:"couponDiscountAmount"`
	DiscountAmount Money `json:"discountAmount"`
	PointsDiscount Money `json:"pointsDiscountAmount"`
	TaxAmount      Money `json:"taxAmount"`
	Shipping       Money `json:"shippingAmount"`
	Total          Money `json:"totalAmount"`
}

// ItemSubtotal prices a single line. Addon costs are charged per unit of the line.
func ItemSubtotal(it LineItem) Money {
	base := it.UnitPrice
	if !it.WeightBased() {
		base = it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity))
	}
	if len(it.Addons) == 0 {
		return base
	}
	addons := zeroCash
	for _, addon := range it.Addons {
		addons = addons.Add(addon.Price.Mul(decimal.NewFromInt(addon.Quantity)))
	}
	return base.Add(addons.Mul(decimal.NewFromInt(it.Quantity)))
}

// Subtotal sums ItemSubtotal over items.
func Subtotal(items []LineItem) Money {
	total := zeroCash
	for _, it := range items {
		total = total.Add(ItemSubtotal(it))
	}
	return total
}

// DiscountAmount resolves a manual discount against the subtotal.
func DiscountAmount(d Discount, subtotal Money) Money {
	if d.Type == DiscountPercentage {
		return subtotal.Mul(d.Value).Div(hundred)
	}
	return d.Value
}

// IsPointsMirror reports whether a manual discount looks like a copy of the
// points discount: both positive and less than one cent apart.
func IsPointsMirror(discount, points Money) bool {
	if !discount.IsPositive() || !points.IsPositive() {
		return false
	}
	return discount.Sub(points).Abs().LessThan(oneCent)
}

// Compute calculates order totals given the provided inputs.
func Compute(in Input) Totals {
	subtotal := Subtotal(in.Items)
	discount := DiscountAmount(in.Discount, subtotal)
	if in.DedupePointsMirror && IsPointsMirror(discount, in.PointsDiscount) {
		discount = zeroCash
	}
	discounted := subtotal.Sub(in.CouponDiscount).Sub(discount.Add(in.PointsDiscount))
	taxable := decimal.Max(discounted, zeroCash)
	tax := taxable.Mul(in.TaxRatePercent).Div(hundred)
	total := taxable.Add(tax).Add(in.Shipping)
	return Totals{
		Subtotal:       subtotal,
		CouponDiscount: in.CouponDiscount,
		DiscountAmount: discount,
		PointsDiscount: in.PointsDiscount,
		TaxAmount:      tax,
		Shipping:       in.Shipping,
		Total:          total,
	}
}

// Summary is the display form of Totals: every amount rounded to 2 places.
type Summary struct {
	Subtotal       string `json:"subtotal"`
	CouponDiscount string `json:"couponDiscountAmount"`
	DiscountAmount string `json:"discountAmount"`
	PointsDiscount string `json:"pointsDiscountAmount"`
	TaxAmount      string `json:"taxAmount"`
	Shipping       string `json:"shippingAmount"`
	Total          string `json:"totalAmount"`
}

// Display formats totals for presentation.
func (t Totals) Display() Summary {
	return Summary{
		Subtotal:       t.Subtotal.StringFixed(2),
		CouponDiscount: t.CouponDiscount.StringFixed(2),
		DiscountAmount: t.DiscountAmount.StringFixed(2),
		PointsDiscount: t.PointsDiscount.StringFixed(2),
		TaxAmount:      t.TaxAmount.StringFixed(2),
		Shipping:       t.Shipping.StringFixed(2),
		Total:          t.Total.StringFixed(2),
	}
}
