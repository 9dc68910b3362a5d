// Package order quotes, creates and edits back-office orders. Totals are
// always derived from the stored draft; the numeric columns on the orders
// table are a denormalised copy for listing.
package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/catalog"
	"github.com/noah-isme/backoffice-toko/internal/coupon"
	"github.com/noah-isme/backoffice-toko/internal/draft"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

// StatusPlaced is the status of every submitted order.
const StatusPlaced = "placed"

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrRevisionConflict is returned when an edit was based on a stale revision.
	ErrRevisionConflict = errors.New("order was modified by another request")
	// ErrCustomerChanged is returned when an edit tries to move an order to another customer.
	ErrCustomerChanged = errors.New("order customer cannot be changed")
)

// Order is a persisted order.
type Order struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customerId,omitempty"`
	Status        string          `json:"status"`
	SchemaVersion int             `json:"schemaVersion"`
	Draft         draft.Draft     `json:"draft"`
	Totals        pricing.Totals  `json:"totals"`
	Display       pricing.Summary `json:"display"`
	Currency      string          `json:"currency"`
	Revision      int             `json:"revision"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Summary is the list view of an order, read from the denormalised columns.
type Summary struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customerId,omitempty"`
	Status         string          `json:"status"`
	SchemaVersion  int             `json:"schemaVersion"`
	CouponCode     string          `json:"couponCode,omitempty"`
	PointsRedeemed int64           `json:"pointsRedeemed"`
	Totals         pricing.Totals  `json:"totals"`
	Display        pricing.Summary `json:"display"`
	Currency       string          `json:"currency"`
	Revision       int             `json:"revision"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ListParams filters the order list.
type ListParams struct {
	Status     string
	CustomerID string
	Limit      int
	Offset     int
}

// Request is the body of quote, create and update calls.
type Request struct {
	// OrderID is only read by Quote, to price an edit of an existing order.
	OrderID        string                `json:"orderId,omitempty"`
	CustomerID     string                `json:"customerId" validate:"omitempty,max=64"`
	Items          []catalog.LineRequest `json:"items" validate:"omitempty,dive"`
	Discount       *pricing.Discount     `json:"discount"`
	CouponCode     string                `json:"couponCode" validate:"omitempty,max=64"`
	PointsToRedeem int64                 `json:"pointsToRedeem" validate:"gte=0"`
	TaxRatePercent *decimal.Decimal      `json:"taxRatePercent"`
	Shipping       decimal.Decimal       `json:"shippingAmount"`
	Notes          string                `json:"notes" validate:"max=2000"`
	// Revision is the revision the edit was based on. Zero skips the check.
	Revision int `json:"revision" validate:"gte=0"`
}

// PointsQuote explains how a points request was applied.
type PointsQuote struct {
	Requested int64           `json:"requested"`
	Applied   int64           `json:"applied"`
	Available int64           `json:"available"`
	Discount  decimal.Decimal `json:"discount"`
	Clamped   bool            `json:"clamped"`
}

// Quote is a priced draft that has not been persisted.
type Quote struct {
	Draft    draft.Draft           `json:"draft"`
	Totals   pricing.Totals        `json:"totals"`
	Display  pricing.Summary       `json:"display"`
	Points   PointsQuote           `json:"points"`
	Coupon   *coupon.PreviewResult `json:"coupon,omitempty"`
	Currency string                `json:"currency"`
}
