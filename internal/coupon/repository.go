package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/backoffice-toko/internal/db"
)

// ErrDuplicateCode is returned when creating a coupon whose code exists.
var ErrDuplicateCode = errors.New("coupon code already exists")

const ruleColumns = `code, kind, value::text, min_spend::text, usage_limit, used_count, valid_from, valid_to, product_ids, active`

// Repository reads and writes coupons in Postgres.
type Repository struct {
	pool db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(pool db.DBTX) *Repository {
	return &Repository{pool: pool}
}

func scanRule(row pgx.Row) (Rule, error) {
	var (
		r               Rule
		kind            string
		value, minSpend string
	)
	if err := row.Scan(&r.Code, &kind, &value, &minSpend, &r.UsageLimit, &r.UsedCount, &r.ValidFrom, &r.ValidTo, &r.ProductIDs, &r.Active); err != nil {
		return Rule{}, err
	}
	r.Kind = Kind(kind)
	var err error
	if r.Value, err = db.Money(value); err != nil {
		return Rule{}, err
	}
	if r.MinSpend, err = db.Money(minSpend); err != nil {
		return Rule{}, err
	}
	if r.ProductIDs == nil {
		r.ProductIDs = []string{}
	}
	return r, nil
}

// GetByCode loads a coupon by its normalised code.
func (r *Repository) GetByCode(ctx context.Context, code string) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM coupons WHERE code = $1`, NormalizeCode(code)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	if err != nil {
		return Rule{}, fmt.Errorf("get coupon: %w", err)
	}
	return rule, nil
}

// List returns coupons ordered by newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM coupons ORDER BY created_at DESC, code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	out := make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Create inserts a new coupon.
func (r *Repository) Create(ctx context.Context, rule Rule) error {
	productIDs := rule.ProductIDs
	if productIDs == nil {
		productIDs = []string{}
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO coupons (code, kind, value, min_spend, usage_limit, used_count, valid_from, valid_to, product_ids, active)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9)`,
		NormalizeCode(rule.Code), string(rule.Kind), rule.Value.String(), rule.MinSpend.String(),
		rule.UsageLimit, rule.ValidFrom, rule.ValidTo, productIDs, rule.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// SetActive toggles a coupon.
func (r *Repository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE coupons SET active = $2 WHERE code = $1`, NormalizeCode(code), active)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RedeemInTx increments the usage counter inside an order transaction. The
// guard on usage_limit makes concurrent redemptions of the last use fail
// with ErrUsageLimitReached instead of overshooting the quota.
func (r *Repository) RedeemInTx(code string, now time.Time) db.TxFunc {
	return func(ctx context.Context, tx pgx.Tx) error {
		if code == "" {
			return nil
		}
		tag, err := tx.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1
			WHERE code = $1 AND active AND (usage_limit IS NULL OR used_count < usage_limit)
			AND (valid_to IS NULL OR valid_to >= $2)`, NormalizeCode(code), now)
		if err != nil {
			return fmt.Errorf("redeem coupon: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUsageLimitReached
		}
		return nil
	}
}

// ReleaseInTx returns a use to the coupon when an edit removes or replaces it.
func (r *Repository) ReleaseInTx(code string) db.TxFunc {
	return func(ctx context.Context, tx pgx.Tx) error {
		if code == "" {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE code = $1`, NormalizeCode(code)); err != nil {
			return fmt.Errorf("release coupon: %w", err)
		}
		return nil
	}
}
