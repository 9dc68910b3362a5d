// Package coupon evaluates coupon codes into the coupon discount of an order.
package coupon

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

var (
	// ErrNotEligible is returned when the coupon cannot be applied to the order.
	ErrNotEligible = errors.New("coupon not eligible")
	// ErrNotFound is returned for unknown codes.
	ErrNotFound = errors.New("coupon not found")
	// ErrUsageLimitReached indicates the coupon has exhausted its usage quota.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrInactive is returned when the coupon is disabled or not yet valid.
	ErrInactive = errors.New("coupon not active")
	// ErrExpired is returned when the coupon has already expired.
	ErrExpired = errors.New("coupon expired")
	// ErrMinimumSpendUnmet indicates the subtotal did not meet the coupon requirement.
	ErrMinimumSpendUnmet = errors.New("coupon minimum spend not met")
)

// Kind selects how Rule.Value is interpreted.
type Kind string

const (
	KindPercent Kind = "percent"
	KindFixed   Kind = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	Code       string          `json:"code"`
	Kind       Kind            `json:"kind"`
	Value      decimal.Decimal `json:"value"`
	MinSpend   decimal.Decimal `json:"minSpend"`
	UsageLimit *int32          `json:"usageLimit,omitempty"`
	UsedCount  int32           `json:"usedCount"`
	ValidFrom  *time.Time      `json:"validFrom,omitempty"`
	ValidTo    *time.Time      `json:"validTo,omitempty"`
	ProductIDs []string        `json:"productIds"`
	Active     bool            `json:"active"`
}

// NormalizeCode upper-cases and trims a code the way it is stored.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate ensures the rule can be applied at the provided instant and subtotal.
func (r Rule) Validate(now time.Time, subtotal decimal.Decimal) error {
	if !r.Active {
		return ErrInactive
	}
	if subtotal.LessThan(r.MinSpend) {
		return ErrMinimumSpendUnmet
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrExpired
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	return nil
}

// EligibleSubtotal sums the lines the rule applies to. Unscoped rules apply
// to every line.
func EligibleSubtotal(items []pricing.LineItem, r Rule) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if len(r.ProductIDs) > 0 && !slices.Contains(r.ProductIDs, it.ProductID) {
			continue
		}
		sub := pricing.ItemSubtotal(it)
		if sub.IsPositive() {
			total = total.Add(sub)
		}
	}
	return total
}

// Compute determines the discount from the eligible subtotal, never more
// than the eligible amount.
func Compute(eligible decimal.Decimal, r Rule) decimal.Decimal {
	if !eligible.IsPositive() {
		return decimal.Zero
	}
	discount := r.Value
	if r.Kind == KindPercent {
		discount = eligible.Mul(r.Value).Div(hundred)
	}
	if discount.GreaterThan(eligible) {
		discount = eligible
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}
