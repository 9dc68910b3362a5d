package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func couponColumns() []string {
	return []string{"code", "kind", "value", "min_spend", "usage_limit", "used_count", "valid_from", "valid_to", "product_ids", "active"}
}

func TestRepositoryGetByCode(t *testing.T) {
	repo, mock := newTestRepo(t)
	validTo := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM coupons WHERE code").
		WithArgs("SAVE10").
		WillReturnRows(pgxmock.NewRows(couponColumns()).
			AddRow("SAVE10", "percent", "10.0000", "25.0000", int32Ptr(100), int32(4), nil, &validTo, []string{"mug"}, true))

	rule, err := repo.GetByCode(context.Background(), "save10")
	require.NoError(t, err)
	assert.Equal(t, KindPercent, rule.Kind)
	assert.True(t, d("10").Equal(rule.Value))
	assert.True(t, d("25").Equal(rule.MinSpend))
	assert.Equal(t, int32(100), *rule.UsageLimit)
	assert.Equal(t, []string{"mug"}, rule.ProductIDs)
	assert.Nil(t, rule.ValidFrom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByCodeNotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery("FROM coupons WHERE code").WithArgs("NOPE").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByCode(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateDuplicate(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec("INSERT INTO coupons").
		WithArgs("SAVE10", "percent", "10", "0", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), []string{}, true).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), Rule{Code: "save10", Kind: KindPercent, Value: d("10"), Active: true})
	assert.ErrorIs(t, err, ErrDuplicateCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRedeemInTx(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coupons SET used_count = used_count \\+ 1").
		WithArgs("SAVE10", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE coupons SET used_count = used_count \\+ 1").
		WithArgs("LASTONE", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.RedeemInTx("save10", now)(ctx, tx))
	require.ErrorIs(t, repo.RedeemInTx("lastone", now)(ctx, tx), ErrUsageLimitReached)
	require.NoError(t, repo.RedeemInTx("", now)(ctx, tx))
	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySetActiveMissing(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec("UPDATE coupons SET active").
		WithArgs("GONE", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetActive(context.Background(), "gone", false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
