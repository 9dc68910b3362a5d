package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

// Store captures the reads required by the coupon service.
type Store interface {
	GetByCode(ctx context.Context, code string) (Rule, error)
}

// PreviewResult describes the outcome of evaluating a coupon without mutating state.
type PreviewResult struct {
	Code           string          `json:"code"`
	Discount       decimal.Decimal `json:"discount"`
	EligibleAmount decimal.Decimal `json:"eligibleAmount"`
}

// Service evaluates coupons against order lines.
type Service struct {
	Store Store
	Now   func() time.Time
}

// Preview resolves code against items. alreadyApplied is set when editing an
// order that already consumed a use of the same code, so an exhausted quota
// does not reject it again.
func (s *Service) Preview(ctx context.Context, code string, items []pricing.LineItem, alreadyApplied bool) (PreviewResult, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return PreviewResult{}, ErrNotEligible
	}
	rule, err := s.Store.GetByCode(ctx, normalized)
	if err != nil {
		return PreviewResult{}, err
	}
	if err := rule.Validate(s.now(), pricing.Subtotal(items)); err != nil {
		if !(alreadyApplied && errors.Is(err, ErrUsageLimitReached)) {
			return PreviewResult{}, err
		}
	}
	eligible := EligibleSubtotal(items, rule)
	if !eligible.IsPositive() {
		return PreviewResult{}, ErrNotEligible
	}
	discount := Compute(eligible, rule)
	if !discount.IsPositive() {
		return PreviewResult{}, ErrNotEligible
	}
	return PreviewResult{Code: rule.Code, Discount: discount, EligibleAmount: eligible}, nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
