package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/cache"
	"github.com/noah-isme/backoffice-toko/internal/db"
)

const (
	reasonRedeem = "redeem"
	reasonEarn   = "earn"

	settingsCacheKey = "settings"
)

// Account is a customer's points balance.
type Account struct {
	CustomerID string `json:"customerId"`
	Points     int64  `json:"points"`
}

// Store persists loyalty settings, balances and the points ledger.
type Store struct {
	pool   db.DBTX
	cache  *cache.JSON
	logger *zerolog.Logger
}

// NewStore constructs a Store. cache may be nil.
func NewStore(pool db.DBTX, c *cache.JSON, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{pool: pool, cache: c, logger: logger}
}

// Settings returns the programme settings, falling back to DefaultSettings
// when the singleton row is absent.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	key := s.cache.Key(settingsCacheKey)
	var cached Settings
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn().Err(err).Msg("loyalty settings cache read failed")
	} else if ok {
		return cached, nil
	}

	var (
		settings                    Settings
		value, maxPercent, earnRate string
	)
	err := s.pool.QueryRow(ctx, `SELECT enabled, redemption_value::text, max_redemption_percent::text, min_redeem_points, earn_rate::text
		FROM loyalty_settings WHERE id = 1`).Scan(&settings.Enabled, &value, &maxPercent, &settings.MinRedeemPoints, &earnRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load loyalty settings: %w", err)
	}
	if settings.RedemptionValue, err = db.Money(value); err != nil {
		return Settings{}, err
	}
	if settings.MaxRedemptionPercent, err = db.Money(maxPercent); err != nil {
		return Settings{}, err
	}
	if settings.EarnRate, err = db.Money(earnRate); err != nil {
		return Settings{}, err
	}

	if err := s.cache.Set(ctx, key, settings); err != nil {
		s.logger.Warn().Err(err).Msg("loyalty settings cache write failed")
	}
	return settings, nil
}

// SaveSettings upserts the singleton settings row and evicts the cached copy.
func (s *Store) SaveSettings(ctx context.Context, settings Settings) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO loyalty_settings (id, enabled, redemption_value, max_redemption_percent, min_redeem_points, earn_rate, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET enabled = EXCLUDED.enabled, redemption_value = EXCLUDED.redemption_value,
			max_redemption_percent = EXCLUDED.max_redemption_percent, min_redeem_points = EXCLUDED.min_redeem_points,
			earn_rate = EXCLUDED.earn_rate, updated_at = now()`,
		settings.Enabled, settings.RedemptionValue.String(), settings.MaxRedemptionPercent.String(),
		settings.MinRedeemPoints, settings.EarnRate.String())
	if err != nil {
		return fmt.Errorf("save loyalty settings: %w", err)
	}
	if err := s.cache.Delete(ctx, s.cache.Key(settingsCacheKey)); err != nil {
		s.logger.Warn().Err(err).Msg("loyalty settings cache evict failed")
	}
	return nil
}

// Balance returns the customer's points. Unknown customers hold zero.
func (s *Store) Balance(ctx context.Context, customerID string) (int64, error) {
	if customerID == "" {
		return 0, nil
	}
	var points int64
	err := s.pool.QueryRow(ctx, `SELECT points FROM loyalty_accounts WHERE customer_id = $1`, customerID).Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load loyalty balance: %w", err)
	}
	return points, nil
}

// RedeemInTx debits delta points (credits when negative) as part of an order
// transaction. The debit fails with ErrInsufficientPoints rather than letting
// the balance go negative.
func (s *Store) RedeemInTx(customerID, orderID string, revision int, delta int64) db.TxFunc {
	return func(ctx context.Context, tx pgx.Tx) error {
		if delta == 0 {
			return nil
		}
		if customerID == "" {
			return fmt.Errorf("%w: order has no customer", ErrInsufficientPoints)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO loyalty_accounts (customer_id, points) VALUES ($1, 0)
			ON CONFLICT (customer_id) DO NOTHING`, customerID); err != nil {
			return fmt.Errorf("ensure loyalty account: %w", err)
		}
		tag, err := tx.Exec(ctx, `UPDATE loyalty_accounts SET points = points - $2, updated_at = now()
			WHERE customer_id = $1 AND points - $2 >= 0`, customerID, delta)
		if err != nil {
			return fmt.Errorf("debit loyalty points: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientPoints
		}
		if _, err := tx.Exec(ctx, `INSERT INTO loyalty_ledger (customer_id, order_id, revision, reason, delta)
			VALUES ($1, $2, $3, $4, $5)`, customerID, orderID, revision, reasonRedeem, -delta); err != nil {
			return fmt.Errorf("record loyalty redemption: %w", err)
		}
		return nil
	}
}

// Settle awards earned points for an order revision. Points already awarded
// for earlier revisions are netted off. Settlements are serialised on the
// customer's account row, and a revision at or below the latest one already
// settled for the order is skipped, so replays and late retries of older
// revisions are no-ops. It returns the number of points credited (negative on
// a reversal).
func (s *Store) Settle(ctx context.Context, customerID, orderID string, revision int, total decimal.Decimal) (int64, error) {
	if customerID == "" {
		return 0, nil
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return 0, err
	}
	earned := Earned(total, settings)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin loyalty settle: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO loyalty_accounts (customer_id, points) VALUES ($1, 0)
		ON CONFLICT (customer_id) DO NOTHING`, customerID); err != nil {
		return 0, fmt.Errorf("ensure loyalty account: %w", err)
	}
	var balance int64
	if err := tx.QueryRow(ctx, `SELECT points FROM loyalty_accounts WHERE customer_id = $1 FOR UPDATE`,
		customerID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("lock loyalty account: %w", err)
	}

	var (
		awarded int64
		latest  int
	)
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0), COALESCE(MAX(revision), 0)
		FROM loyalty_ledger WHERE order_id = $1 AND reason = $2`,
		orderID, reasonEarn).Scan(&awarded, &latest); err != nil {
		return 0, fmt.Errorf("sum earned points: %w", err)
	}
	if revision <= latest {
		s.logger.Debug().Str("order_id", orderID).Int("revision", revision).Int("settled_revision", latest).
			Msg("loyalty settlement already superseded")
		return 0, tx.Commit(ctx)
	}

	// a zero delta is still recorded: it marks the revision as settled
	delta := earned - awarded
	tag, err := tx.Exec(ctx, `INSERT INTO loyalty_ledger (customer_id, order_id, revision, reason, delta)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (order_id, revision, reason) DO NOTHING`,
		customerID, orderID, revision, reasonEarn, delta)
	if err != nil {
		return 0, fmt.Errorf("record earned points: %w", err)
	}
	if tag.RowsAffected() == 0 || delta == 0 {
		return 0, tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `UPDATE loyalty_accounts SET points = GREATEST(points + $2::bigint, 0), updated_at = now()
		WHERE customer_id = $1`, customerID, delta); err != nil {
		return 0, fmt.Errorf("credit earned points: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit loyalty settle: %w", err)
	}
	s.logger.Info().Str("order_id", orderID).Int("revision", revision).Int64("points", delta).
		Int64("balance_before", balance).Msg("loyalty points settled")
	return delta, nil
}
