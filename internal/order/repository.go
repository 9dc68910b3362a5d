package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backoffice-toko/internal/db"
	"github.com/noah-isme/backoffice-toko/internal/draft"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

// Repository persists orders in Postgres.
type Repository struct {
	pool db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(pool db.DBTX) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the order and its lines, then runs hooks in the same
// transaction.
func (r *Repository) Create(ctx context.Context, o Order, hooks ...db.TxFunc) (Order, error) {
	payload, err := draft.Encode(o.Draft)
	if err != nil {
		return Order{}, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t := o.Totals
	err = tx.QueryRow(ctx, `INSERT INTO orders (id, customer_id, status, schema_version, draft, coupon_code, points_redeemed,
			subtotal, coupon_discount, discount_amount, points_discount, tax_amount, shipping_amount, total_amount, currency, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`,
		o.ID, o.CustomerID, o.Status, draft.CurrentSchemaVersion, payload, o.Draft.CouponCode, o.Draft.PointsToRedeem,
		t.Subtotal.String(), t.CouponDiscount.String(), t.DiscountAmount.String(), t.PointsDiscount.String(),
		t.TaxAmount.String(), t.Shipping.String(), t.Total.String(), o.Currency, o.Revision,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	if err := insertItems(ctx, tx, o.ID, o.Draft.Items); err != nil {
		return Order{}, err
	}
	if err := db.RunHooks(ctx, tx, hooks); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit create order: %w", err)
	}
	o.SchemaVersion = draft.CurrentSchemaVersion
	return o, nil
}

// Update replaces the draft and lines of an order whose revision is still
// expectedRevision, bumping the revision. Hooks run in the same transaction.
func (r *Repository) Update(ctx context.Context, o Order, expectedRevision int, hooks ...db.TxFunc) (Order, error) {
	payload, err := draft.Encode(o.Draft)
	if err != nil {
		return Order{}, err
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("begin update order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t := o.Totals
	err = tx.QueryRow(ctx, `UPDATE orders SET schema_version = $2, draft = $3, coupon_code = $4, points_redeemed = $5,
			subtotal = $6, coupon_discount = $7, discount_amount = $8, points_discount = $9, tax_amount = $10,
			shipping_amount = $11, total_amount = $12, revision = revision + 1, updated_at = now()
		WHERE id = $1 AND revision = $13
		RETURNING revision, created_at, updated_at`,
		o.ID, draft.CurrentSchemaVersion, payload, o.Draft.CouponCode, o.Draft.PointsToRedeem,
		t.Subtotal.String(), t.CouponDiscount.String(), t.DiscountAmount.String(), t.PointsDiscount.String(),
		t.TaxAmount.String(), t.Shipping.String(), t.Total.String(), expectedRevision,
	).Scan(&o.Revision, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrRevisionConflict
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
		return Order{}, fmt.Errorf("clear order items: %w", err)
	}
	if err := insertItems(ctx, tx, o.ID, o.Draft.Items); err != nil {
		return Order{}, err
	}
	if err := db.RunHooks(ctx, tx, hooks); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("commit update order: %w", err)
	}
	o.SchemaVersion = draft.CurrentSchemaVersion
	return o, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID string, items []pricing.LineItem) error {
	for i, it := range items {
		addons, err := json.Marshal(it.Addons)
		if err != nil {
			return fmt.Errorf("encode addons: %w", err)
		}
		if it.Addons == nil {
			addons = []byte("[]")
		}
		var grams *string
		if it.Weight != nil {
			g := it.Weight.Grams.String()
			grams = &g
		}
		if _, err := tx.Exec(ctx, `INSERT INTO order_items (order_id, position, product_id, variant_id, product_name, quantity,
				weight_grams, unit_price, total_price, addons)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			orderID, i, it.ProductID, it.VariantID, it.ProductName, it.Quantity,
			grams, it.UnitPrice.String(), pricing.ItemSubtotal(it).String(), addons); err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return nil
}

// Get loads an order and decodes its draft, migrating legacy payloads.
func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	var (
		o       Order
		payload []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT id::text, customer_id, status, schema_version, draft, currency, revision, created_at, updated_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.CustomerID, &o.Status, &o.SchemaVersion, &payload, &o.Currency, &o.Revision, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	d, err := draft.Decode(payload)
	if err != nil {
		return Order{}, fmt.Errorf("order %s: %w", id, err)
	}
	o.Draft = d
	o.Totals = d.Totals()
	o.Display = o.Totals.Display()
	return o, nil
}

// List returns order summaries newest first with the total row count.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Summary, int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, customer_id, status, schema_version, coupon_code, points_redeemed,
			subtotal::text, coupon_discount::text, discount_amount::text, points_discount::text, tax_amount::text,
			shipping_amount::text, total_amount::text, currency, revision, created_at, updated_at, count(*) OVER ()
		FROM orders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR customer_id = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`, params.Status, params.CustomerID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		out   = make([]Summary, 0)
		total int64
	)
	for rows.Next() {
		var (
			s       Summary
			amounts [7]string
		)
		if err := rows.Scan(&s.ID, &s.CustomerID, &s.Status, &s.SchemaVersion, &s.CouponCode, &s.PointsRedeemed,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5], &amounts[6],
			&s.Currency, &s.Revision, &s.CreatedAt, &s.UpdatedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		if s.Totals, err = parseTotals(amounts); err != nil {
			return nil, 0, err
		}
		s.Display = s.Totals.Display()
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func parseTotals(raw [7]string) (pricing.Totals, error) {
	var (
		vals [7]pricing.Money
		err  error
	)
	for i, v := range raw {
		if vals[i], err = db.Money(v); err != nil {
			return pricing.Totals{}, err
		}
	}
	return pricing.Totals{
		Subtotal:       vals[0],
		CouponDiscount: vals[1],
		DiscountAmount: vals[2],
		PointsDiscount: vals[3],
		TaxAmount:      vals[4],
		Shipping:       vals[5],
		Total:          vals[6],
	}, nil
}
