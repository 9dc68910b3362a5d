package events

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Topic constants for domain events emitted by the order service. Each topic is
// also the asynq task type the worker registers for it.
const (
	TopicOrderCreated = "order.created"
	TopicOrderUpdated = "order.updated"
	TaskLoyaltySettle = "loyalty:settle"
)

// DefaultTopics returns the topics the worker subscribes to.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderUpdated,
		TaskLoyaltySettle,
	}
}

// OrderChanged is the payload of order.created and order.updated.
type OrderChanged struct {
	OrderID        string          `json:"orderId"`
	CustomerID     string          `json:"customerId,omitempty"`
	Revision       int             `json:"revision"`
	SchemaVersion  int             `json:"schemaVersion"`
	Total          decimal.Decimal `json:"total"`
	CouponCode     string          `json:"couponCode,omitempty"`
	PointsRedeemed int64           `json:"pointsRedeemed"`
}

// LoyaltySettle asks the worker to award earned points for an order revision.
type LoyaltySettle struct {
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	Revision   int             `json:"revision"`
	Total      decimal.Decimal `json:"total"`
}

// SettleTaskID dedupes settlement tasks for one order revision.
func SettleTaskID(orderID string, revision int) string {
	return fmt.Sprintf("settle:%s:%d", orderID, revision)
}
