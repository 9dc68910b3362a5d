// Package catalog serves products, variants and addons to the order editor
// and resolves requested lines into priced order items.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/db"
)

// PricingMode tells how a product is priced.
type PricingMode string

const (
	ModeUnit   PricingMode = "unit"
	ModeWeight PricingMode = "weight"
)

// Product is a sellable catalog entry.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	PricingMode    PricingMode     `json:"pricingMode"`
	PricePerUnit   decimal.Decimal `json:"pricePerUnit"`
	BaseWeightUnit string          `json:"baseWeightUnit"`
	IsGroup        bool            `json:"isGroup"`
	HasVariants    bool            `json:"hasVariants"`
	Active         bool            `json:"active"`
	Variants       []Variant       `json:"variants,omitempty"`
}

// Variant is a priced option of a product.
type Variant struct {
	ID         string            `json:"id"`
	ProductID  string            `json:"productId"`
	Name       string            `json:"name"`
	Price      decimal.Decimal   `json:"price"`
	Attributes map[string]string `json:"attributes"`
	Active     bool              `json:"active"`
}

// Addon is an extra that group products can carry.
type Addon struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

// ListParams filters the product list.
type ListParams struct {
	Query  string
	Limit  int
	Offset int
}

// Repository reads the catalog tables.
type Repository struct {
	pool db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(pool db.DBTX) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, name, price::text, pricing_mode, price_per_unit::text, base_weight_unit, is_group, has_variants, active`

func scanProduct(row pgx.Row, extra ...any) (Product, error) {
	var (
		p                   Product
		mode                string
		price, pricePerUnit string
	)
	dest := append([]any{&p.ID, &p.Name, &price, &mode, &pricePerUnit, &p.BaseWeightUnit, &p.IsGroup, &p.HasVariants, &p.Active}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Product{}, err
	}
	p.PricingMode = PricingMode(mode)
	var err error
	if p.Price, err = db.Money(price); err != nil {
		return Product{}, err
	}
	if p.PricePerUnit, err = db.Money(pricePerUnit); err != nil {
		return Product{}, err
	}
	return p, nil
}

// GetProduct loads a product with its variants.
func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	if !p.HasVariants {
		return p, nil
	}
	variants, err := r.listVariants(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p.Variants = variants
	return p, nil
}

func (r *Repository) listVariants(ctx context.Context, productID string) ([]Variant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, name, price::text, attributes, active
		FROM product_variants WHERE product_id = $1 ORDER BY name`, productID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	out := make([]Variant, 0)
	for rows.Next() {
		var (
			v     Variant
			price string
			attrs []byte
		)
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &price, &attrs, &v.Active); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		if v.Price, err = db.Money(price); err != nil {
			return nil, err
		}
		v.Attributes = map[string]string{}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &v.Attributes); err != nil {
				return nil, fmt.Errorf("decode variant attributes: %w", err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListProducts returns active products matching the filter and the total count.
func (r *Repository) ListProducts(ctx context.Context, params ListParams) ([]Product, int64, error) {
	var query any
	if params.Query != "" {
		query = "%" + params.Query + "%"
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+`, count(*) OVER () AS total
		FROM products
		WHERE active AND ($1::text IS NULL OR name ILIKE $1)
		ORDER BY name
		LIMIT $2 OFFSET $3`, query, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var total int64
	out := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// ListAddons returns every addon, active or not.
func (r *Repository) ListAddons(ctx context.Context) ([]Addon, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title, price::text, active FROM addons ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list addons: %w", err)
	}
	defer rows.Close()

	out := make([]Addon, 0)
	for rows.Next() {
		var (
			a     Addon
			price string
		)
		if err := rows.Scan(&a.ID, &a.Title, &price, &a.Active); err != nil {
			return nil, fmt.Errorf("scan addon: %w", err)
		}
		if a.Price, err = db.Money(price); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
