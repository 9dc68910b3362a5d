package draft

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-toko/internal/loyalty"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func mugLine() pricing.LineItem {
	return pricing.LineItem{
		ProductID:   "mug",
		ProductName: "Enamel mug",
		UnitPrice:   d("10"),
		Quantity:    3,
		Attributes:  map[string]string{"color": "navy"},
		Addons:      []pricing.AddonSelection{{AddonID: "wrap", Title: "Gift wrap", Price: d("2"), Quantity: 1}},
	}
}

func TestReducersDoNotMutateInput(t *testing.T) {
	base, err := New("cust-1", d("8")).AddItem(mugLine())
	require.NoError(t, err)

	changed, err := base.SetQuantity(0, 5)
	require.NoError(t, err)
	changed.Items[0].Addons[0].Price = d("99")
	changed.Items[0].Attributes["color"] = "red"

	assert.Equal(t, int64(3), base.Items[0].Quantity)
	assert.True(t, d("2").Equal(base.Items[0].Addons[0].Price))
	assert.Equal(t, "navy", base.Items[0].Attributes["color"])

	removed, err := base.RemoveItem(0)
	require.NoError(t, err)
	assert.Empty(t, removed.Items)
	assert.Len(t, base.Items, 1)
}

func TestTotalsFollowReducers(t *testing.T) {
	dr, err := New("", d("8")).AddItem(pricing.LineItem{ProductID: "p1", UnitPrice: d("100"), Quantity: 1})
	require.NoError(t, err)
	dr, err = dr.SetDiscount(pricing.Discount{Type: pricing.DiscountPercentage, Value: d("10")})
	require.NoError(t, err)
	dr, err = dr.SetShipping(d("5"))
	require.NoError(t, err)

	assert.Equal(t, "102.20", dr.Totals().Display().Total)

	dr = dr.ApplyCoupon(" save5 ", d("5"))
	assert.Equal(t, "SAVE5", dr.CouponCode)
	assert.Equal(t, "96.80", dr.Totals().Display().Total)

	dr = dr.ClearCoupon()
	assert.Equal(t, "102.20", dr.Totals().Display().Total)
}

func TestApplyPointsAndDiscountableBase(t *testing.T) {
	dr, err := New("cust-1", decimal.Zero).AddItem(mugLine())
	require.NoError(t, err)
	dr = dr.ApplyCoupon("WELCOME", d("6"))

	assert.True(t, d("30").Equal(dr.DiscountableBase()))

	dr = dr.ApplyPoints(loyalty.Redemption{Points: 500, Discount: d("5")})
	assert.Equal(t, int64(500), dr.PointsToRedeem)
	assert.True(t, d("25").Equal(dr.Totals().Total))
}

func TestSetQuantityRules(t *testing.T) {
	weighted := pricing.LineItem{
		ProductID: "coffee",
		UnitPrice: d("20"),
		Quantity:  1,
		Weight:    &pricing.WeightSelection{Value: d("0.25"), Unit: pricing.UnitKilograms, Grams: d("250")},
	}
	dr, err := New("", decimal.Zero).AddItem(weighted)
	require.NoError(t, err)

	_, err = dr.SetQuantity(0, 2)
	require.ErrorIs(t, err, pricing.ErrWeightQuantity)
	_, err = dr.SetQuantity(3, 1)
	require.ErrorIs(t, err, ErrItemIndex)

	dr, err = dr.AddItem(mugLine())
	require.NoError(t, err)
	_, err = dr.SetQuantity(1, 0)
	require.ErrorIs(t, err, pricing.ErrInvalidQuantity)
}

func TestValidate(t *testing.T) {
	require.ErrorIs(t, New("", decimal.Zero).Validate(), ErrNoItems)

	dr, err := New("", decimal.Zero).AddItem(mugLine())
	require.NoError(t, err)
	require.NoError(t, dr.Validate())

	_, err = dr.SetTaxRate(d("-1"))
	require.ErrorIs(t, err, ErrNegativeAmount)
	_, err = dr.SetShipping(d("-0.01"))
	require.ErrorIs(t, err, ErrNegativeAmount)
	_, err = dr.SetDiscount(pricing.Discount{Type: pricing.DiscountPercentage, Value: d("120")})
	require.ErrorIs(t, err, pricing.ErrInvalidDiscount)

	_, err = dr.AddItem(pricing.LineItem{ProductID: "x"})
	require.ErrorIs(t, err, pricing.ErrInvalidQuantity)
}

func TestSetNotesTrims(t *testing.T) {
	dr := New("", decimal.Zero).SetNotes("  leave at door \n")
	assert.Equal(t, "leave at door", dr.Notes)
}
