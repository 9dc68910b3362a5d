// Package worker handles asynq tasks produced by the order service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/events"
	"github.com/noah-isme/backoffice-toko/internal/obs"
)

// Settler awards earned points for an order revision.
type Settler interface {
	Settle(ctx context.Context, customerID, orderID string, revision int, total decimal.Decimal) (int64, error)
}

// Processor routes tasks to their handlers.
type Processor struct {
	Loyalty Settler
	Logger  *zerolog.Logger
}

// Register mounts every handled task type on mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(events.TaskLoyaltySettle, p.HandleLoyaltySettle)
	mux.HandleFunc(events.TopicOrderCreated, p.HandleOrderEvent)
	mux.HandleFunc(events.TopicOrderUpdated, p.HandleOrderEvent)
}

// HandleLoyaltySettle applies the earned-points delta for one order revision.
// Malformed payloads are not retried.
func (p *Processor) HandleLoyaltySettle(ctx context.Context, t *asynq.Task) error {
	var payload events.LoyaltySettle
	if _, err := events.Decode(t.Payload(), &payload); err != nil {
		obs.IncTaskProcessed(t.Type(), "invalid")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		obs.IncTaskProcessed(t.Type(), "invalid")
		return fmt.Errorf("%w: order id missing", asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.CustomerID) == "" {
		obs.IncTaskProcessed(t.Type(), "skipped")
		return nil
	}
	if p.Loyalty == nil {
		return errors.New("worker: loyalty settler not configured")
	}
	delta, err := p.Loyalty.Settle(ctx, payload.CustomerID, payload.OrderID, payload.Revision, payload.Total)
	if err != nil {
		obs.IncTaskProcessed(t.Type(), "error")
		return fmt.Errorf("worker: settle order %s: %w", payload.OrderID, err)
	}
	obs.IncTaskProcessed(t.Type(), "ok")
	p.logger().Info().
		Str("order_id", payload.OrderID).
		Str("customer_id", payload.CustomerID).
		Int("revision", payload.Revision).
		Int64("points_delta", delta).
		Msg("loyalty settled")
	return nil
}

// HandleOrderEvent records order lifecycle events.
func (p *Processor) HandleOrderEvent(_ context.Context, t *asynq.Task) error {
	var payload events.OrderChanged
	env, err := events.Decode(t.Payload(), &payload)
	if err != nil {
		obs.IncTaskProcessed(t.Type(), "invalid")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	obs.IncTaskProcessed(t.Type(), "ok")
	p.logger().Info().
		Str("event_id", env.ID).
		Str("topic", env.Topic).
		Str("order_id", payload.OrderID).
		Int("revision", payload.Revision).
		Str("total", payload.Total.StringFixed(2)).
		Time("occurred_at", env.OccurredAt).
		Msg("order event")
	return nil
}

func (p *Processor) logger() *zerolog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
