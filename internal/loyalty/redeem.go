// Package loyalty converts customer points into order discounts and keeps
// the points ledger.
package loyalty

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrRedemptionDisabled is returned when points are requested while the programme is off.
	ErrRedemptionDisabled = errors.New("loyalty redemption is disabled")
	// ErrInsufficientPoints is returned when the customer holds fewer points than requested.
	ErrInsufficientPoints = errors.New("insufficient available points")
	// ErrBelowMinimum is returned when a redemption is under the configured minimum.
	ErrBelowMinimum = errors.New("redemption below minimum points")
	// ErrNegativePoints is returned for negative point requests.
	ErrNegativePoints = errors.New("points must not be negative")
)

var hundred = decimal.NewFromInt(100)

// Settings configures the loyalty programme.
type Settings struct {
	Enabled              bool            `json:"enabled"`
	RedemptionValue      decimal.Decimal `json:"redemptionValue"`
	MaxRedemptionPercent decimal.Decimal `json:"maxRedemptionPercent"`
	MinRedeemPoints      int64           `json:"minRedeemPoints"`
	EarnRate             decimal.Decimal `json:"earnRate"`
}

// DefaultSettings is used when no settings row exists: redemption off.
func DefaultSettings() Settings {
	return Settings{
		Enabled:              false,
		RedemptionValue:      decimal.New(1, -2),
		MaxRedemptionPercent: hundred,
	}
}

// Redemption is the outcome of Select.
type Redemption struct {
	Points   int64           `json:"points"`
	Discount decimal.Decimal `json:"discount"`
	// Clamped is set when Points differs from the requested amount.
	Clamped bool `json:"clamped"`
}

// Check validates a request before selection.
func Check(requested, available int64, s Settings) error {
	if requested < 0 {
		return ErrNegativePoints
	}
	if requested == 0 {
		return nil
	}
	if !s.Enabled || !s.RedemptionValue.IsPositive() {
		return ErrRedemptionDisabled
	}
	if requested > available {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientPoints, requested, available)
	}
	if requested < s.MinRedeemPoints {
		return fmt.Errorf("%w: minimum is %d", ErrBelowMinimum, s.MinRedeemPoints)
	}
	return nil
}

// Select turns requested points into a discount. Points are clamped to the
// available balance, the discount to MaxRedemptionPercent of the discountable
// base, and the final point count is recomputed from the clamped discount.
// The returned discount is always Points x RedemptionValue, so what the
// ledger debits is exactly what the order is discounted.
func Select(requested, available int64, s Settings, discountableBase decimal.Decimal) Redemption {
	if requested <= 0 || !s.Enabled || !s.RedemptionValue.IsPositive() {
		return Redemption{Discount: decimal.Zero, Clamped: requested > 0}
	}
	points := requested
	if available < points {
		points = available
	}
	if points < 0 {
		points = 0
	}
	discount := decimal.NewFromInt(points).Mul(s.RedemptionValue)
	limit := decimal.Max(discountableBase, decimal.Zero).Mul(s.MaxRedemptionPercent).Div(hundred)
	if discount.GreaterThan(limit) {
		discount = limit
	}
	final := discount.Div(s.RedemptionValue).Floor().IntPart()
	return Redemption{
		Points:   final,
		Discount: decimal.NewFromInt(final).Mul(s.RedemptionValue),
		Clamped:  final != requested,
	}
}

// Earned is the number of points awarded for a paid amount.
func Earned(total decimal.Decimal, s Settings) int64 {
	if !s.Enabled || !s.EarnRate.IsPositive() || !total.IsPositive() {
		return 0
	}
	return total.Mul(s.EarnRate).Floor().IntPart()
}
