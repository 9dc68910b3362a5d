package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/catalog"
	"github.com/noah-isme/backoffice-toko/internal/coupon"
	"github.com/noah-isme/backoffice-toko/internal/db"
	"github.com/noah-isme/backoffice-toko/internal/draft"
	"github.com/noah-isme/backoffice-toko/internal/events"
	"github.com/noah-isme/backoffice-toko/internal/loyalty"
	"github.com/noah-isme/backoffice-toko/internal/obs"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

// Store is the persistence used by the service.
type Store interface {
	Create(ctx context.Context, o Order, hooks ...db.TxFunc) (Order, error)
	Update(ctx context.Context, o Order, expectedRevision int, hooks ...db.TxFunc) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, params ListParams) ([]Summary, int64, error)
}

// LineResolver prices line requests against the catalog. ReviseLine reprices
// a line the order already carries from its stored snapshot.
type LineResolver interface {
	ResolveLine(ctx context.Context, req catalog.LineRequest) (pricing.LineItem, error)
	ReviseLine(ctx context.Context, req catalog.LineRequest, prior pricing.LineItem) (pricing.LineItem, error)
}

// CouponPreviewer evaluates a coupon code against order lines.
type CouponPreviewer interface {
	Preview(ctx context.Context, code string, items []pricing.LineItem, alreadyApplied bool) (coupon.PreviewResult, error)
}

// CouponLedger counts coupon uses inside the order transaction.
type CouponLedger interface {
	RedeemInTx(code string, now time.Time) db.TxFunc
	ReleaseInTx(code string) db.TxFunc
}

// LoyaltyStore reads settings and balances and debits redeemed points.
type LoyaltyStore interface {
	Settings(ctx context.Context) (loyalty.Settings, error)
	Balance(ctx context.Context, customerID string) (int64, error)
	RedeemInTx(customerID, orderID string, revision int, delta int64) db.TxFunc
}

// Publisher emits domain events.
type Publisher interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any, opts ...asynq.Option) (events.Envelope, error)
}

// Locker serialises edits of one order.
type Locker interface {
	Key(resource, id string) string
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service implements quoting, submission and editing of orders.
type Service struct {
	Store          Store
	Catalog        LineResolver
	Coupons        CouponPreviewer
	CouponLedger   CouponLedger
	Loyalty        LoyaltyStore
	Events         Publisher
	Locker         Locker
	LockTTL        time.Duration
	DefaultTaxRate decimal.Decimal
	Currency       string
	Now            func() time.Time
	NewID          func() string
	Logger         *zerolog.Logger
}

// Quote prices a request without persisting anything. Points above the
// available balance are clamped rather than rejected so the editor can show
// the applied amount. When req.OrderID is set the quote is for an edit and
// the points already held by that order count as available.
func (s *Service) Quote(ctx context.Context, req Request) (Quote, error) {
	var prior *Order
	if id := strings.TrimSpace(req.OrderID); id != "" {
		o, err := s.Get(ctx, id)
		if err != nil {
			obs.IncQuote("error")
			return Quote{}, err
		}
		if err := checkCustomer(&req, o); err != nil {
			obs.IncQuote("rejected")
			return Quote{}, err
		}
		prior = &o
	}
	q, err := s.price(ctx, req, prior, false)
	if err != nil {
		obs.IncQuote("rejected")
		return Quote{}, err
	}
	obs.IncQuote("ok")
	return q, nil
}

// Create validates and prices a request, persists it, counts the coupon use
// and debits redeemed points in one transaction, then emits order.created.
func (s *Service) Create(ctx context.Context, req Request) (Order, error) {
	q, err := s.price(ctx, req, nil, true)
	if err != nil {
		obs.IncOrderWrite("create", "rejected")
		return Order{}, err
	}
	d := q.Draft
	o := Order{
		ID:         s.newID(),
		CustomerID: d.CustomerID,
		Status:     StatusPlaced,
		Draft:      d,
		Totals:     q.Totals,
		Display:    q.Display,
		Currency:   s.Currency,
		Revision:   1,
	}

	var hooks []db.TxFunc
	if d.CouponCode != "" && s.CouponLedger != nil {
		hooks = append(hooks, s.CouponLedger.RedeemInTx(d.CouponCode, s.now()))
	}
	if d.PointsToRedeem > 0 {
		hooks = append(hooks, s.Loyalty.RedeemInTx(o.CustomerID, o.ID, o.Revision, d.PointsToRedeem))
	}

	saved, err := s.Store.Create(ctx, o, hooks...)
	if err != nil {
		obs.IncOrderWrite("create", "error")
		return Order{}, err
	}
	obs.IncOrderWrite("create", "ok")
	obs.AddPointsRedeemed(d.PointsToRedeem)
	s.logger().Info().Str("order_id", saved.ID).Str("total", saved.Totals.Total.StringFixed(2)).Msg("order created")
	s.publish(ctx, events.TopicOrderCreated, saved)
	return saved, nil
}

// Update edits an existing order. Edits of one order are serialised with a
// distributed lock and guarded by the order revision. Coupon uses and points
// are adjusted by the difference to the previous revision.
func (s *Service) Update(ctx context.Context, id string, req Request) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	var saved Order
	run := func(ctx context.Context) error {
		prior, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Revision != 0 && req.Revision != prior.Revision {
			return ErrRevisionConflict
		}
		if err := checkCustomer(&req, prior); err != nil {
			return err
		}
		q, err := s.price(ctx, req, &prior, true)
		if err != nil {
			return err
		}
		d := q.Draft
		next := prior
		next.Draft = d
		next.Totals = q.Totals
		next.Display = q.Display
		nextRevision := prior.Revision + 1

		var hooks []db.TxFunc
		oldCode, newCode := coupon.NormalizeCode(prior.Draft.CouponCode), coupon.NormalizeCode(d.CouponCode)
		if oldCode != newCode && s.CouponLedger != nil {
			if oldCode != "" {
				hooks = append(hooks, s.CouponLedger.ReleaseInTx(oldCode))
			}
			if newCode != "" {
				hooks = append(hooks, s.CouponLedger.RedeemInTx(newCode, s.now()))
			}
		}
		delta := d.PointsToRedeem - prior.Draft.PointsToRedeem
		if delta != 0 {
			hooks = append(hooks, s.Loyalty.RedeemInTx(prior.CustomerID, prior.ID, nextRevision, delta))
		}

		saved, err = s.Store.Update(ctx, next, prior.Revision, hooks...)
		if err != nil {
			return err
		}
		obs.AddPointsRedeemed(delta)
		return nil
	}

	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, s.Locker.Key("order", id), s.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		obs.IncOrderWrite("update", "rejected")
		return Order{}, err
	}
	obs.IncOrderWrite("update", "ok")
	s.logger().Info().Str("order_id", saved.ID).Int("revision", saved.Revision).Msg("order updated")
	s.publish(ctx, events.TopicOrderUpdated, saved)
	return saved, nil
}

// Get loads an order.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	return s.Store.Get(ctx, id)
}

// List returns a page of order summaries.
func (s *Service) List(ctx context.Context, params ListParams) ([]Summary, int64, error) {
	return s.Store.List(ctx, params)
}

// price turns a request into a priced draft. Lines of the order being edited
// keep their stored price snapshot. strict is set for submissions: the draft
// must validate, points must pass loyalty.Check and the points that actually
// apply after clamping must still reach the minimum.
func (s *Service) price(ctx context.Context, req Request, prior *Order, strict bool) (Quote, error) {
	taxRate := s.DefaultTaxRate
	if req.TaxRatePercent != nil {
		taxRate = *req.TaxRatePercent
	}
	d := draft.New(strings.TrimSpace(req.CustomerID), decimal.Zero)
	if prior != nil {
		d.CustomerID = prior.CustomerID
		d.LegacyDiscountMirror = prior.Draft.LegacyDiscountMirror
	}

	var (
		err    error
		stored storedLines
	)
	if prior != nil {
		stored = newStoredLines(prior.Draft.Items)
	}
	for i, line := range req.Items {
		var item pricing.LineItem
		if was, ok := stored.take(line); ok {
			item, err = s.Catalog.ReviseLine(ctx, line, was)
		} else {
			item, err = s.Catalog.ResolveLine(ctx, line)
		}
		if err != nil {
			return Quote{}, fmt.Errorf("items[%d]: %w", i, err)
		}
		if d, err = d.AddItem(item); err != nil {
			return Quote{}, fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	if req.Discount != nil {
		if d, err = d.SetDiscount(*req.Discount); err != nil {
			return Quote{}, err
		}
	}
	if d, err = d.SetTaxRate(taxRate); err != nil {
		return Quote{}, err
	}
	if d, err = d.SetShipping(req.Shipping); err != nil {
		return Quote{}, err
	}
	d = d.SetNotes(req.Notes)

	quote := Quote{Currency: s.Currency}
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		alreadyApplied := prior != nil && coupon.NormalizeCode(prior.Draft.CouponCode) == code
		res, err := s.Coupons.Preview(ctx, code, d.Items, alreadyApplied)
		if err != nil {
			return Quote{}, err
		}
		d = d.ApplyCoupon(res.Code, res.Discount)
		quote.Coupon = &res
	}

	points, err := s.redeem(ctx, req.PointsToRedeem, d, prior, strict)
	if err != nil {
		return Quote{}, err
	}
	d = d.ApplyPoints(loyalty.Redemption{Points: points.Applied, Discount: points.Discount, Clamped: points.Clamped})
	quote.Points = points

	if strict {
		if err := d.Validate(); err != nil {
			return Quote{}, err
		}
	}
	quote.Draft = d
	quote.Totals = d.Totals()
	quote.Display = quote.Totals.Display()
	return quote, nil
}

func (s *Service) redeem(ctx context.Context, requested int64, d draft.Draft, prior *Order, strict bool) (PointsQuote, error) {
	out := PointsQuote{Requested: requested, Discount: decimal.Zero}
	if requested < 0 {
		return out, loyalty.ErrNegativePoints
	}
	if requested == 0 {
		return out, nil
	}
	if d.CustomerID == "" {
		return out, fmt.Errorf("%w: order has no customer", loyalty.ErrInsufficientPoints)
	}
	settings, err := s.Loyalty.Settings(ctx)
	if err != nil {
		return out, err
	}
	balance, err := s.Loyalty.Balance(ctx, d.CustomerID)
	if err != nil {
		return out, err
	}
	available := balance
	if prior != nil {
		available += prior.Draft.PointsToRedeem
	}
	out.Available = available

	if err := loyalty.Check(requested, available, settings); err != nil {
		if strict || !errors.Is(err, loyalty.ErrInsufficientPoints) {
			return out, err
		}
	}
	r := loyalty.Select(requested, available, settings, d.DiscountableBase())
	if strict && r.Points < settings.MinRedeemPoints {
		return out, fmt.Errorf("%w: only %d points apply to this order, minimum is %d",
			loyalty.ErrBelowMinimum, r.Points, settings.MinRedeemPoints)
	}
	out.Applied = r.Points
	out.Discount = r.Discount
	out.Clamped = r.Clamped
	return out, nil
}

// storedLines pairs requested lines with the lines of the order being
// edited, by product and variant. Each stored line is used at most once.
type storedLines struct {
	items []pricing.LineItem
	used  []bool
}

func newStoredLines(items []pricing.LineItem) storedLines {
	return storedLines{items: items, used: make([]bool, len(items))}
}

func (s storedLines) take(req catalog.LineRequest) (pricing.LineItem, bool) {
	for i, it := range s.items {
		if s.used[i] || it.ProductID != strings.TrimSpace(req.ProductID) || it.VariantID != strings.TrimSpace(req.VariantID) {
			continue
		}
		s.used[i] = true
		return it, true
	}
	return pricing.LineItem{}, false
}

func checkCustomer(req *Request, o Order) error {
	if c := strings.TrimSpace(req.CustomerID); c != "" && c != o.CustomerID {
		return ErrCustomerChanged
	}
	req.CustomerID = o.CustomerID
	return nil
}

// publish emits the order event and queues loyalty settlement. The order is
// already committed, so failures are logged and not returned.
func (s *Service) publish(ctx context.Context, topic string, o Order) {
	if s.Events == nil {
		return
	}
	changed := events.OrderChanged{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		Revision:       o.Revision,
		SchemaVersion:  o.SchemaVersion,
		Total:          o.Totals.Total,
		CouponCode:     o.Draft.CouponCode,
		PointsRedeemed: o.Draft.PointsToRedeem,
	}
	if _, err := s.Events.Emit(ctx, topic, o.ID, changed); err != nil {
		s.logger().Error().Err(err).Str("order_id", o.ID).Str("topic", topic).Msg("emit order event")
	}
	if o.CustomerID == "" {
		return
	}
	settle := events.LoyaltySettle{OrderID: o.ID, CustomerID: o.CustomerID, Revision: o.Revision, Total: o.Totals.Total}
	if _, err := s.Events.Emit(ctx, events.TaskLoyaltySettle, o.ID, settle,
		asynq.TaskID(events.SettleTaskID(o.ID, o.Revision))); err != nil {
		s.logger().Error().Err(err).Str("order_id", o.ID).Msg("enqueue loyalty settlement")
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 10 * time.Second
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
