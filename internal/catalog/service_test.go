package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backoffice-toko/internal/cache"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

type fakeStore struct {
	products    map[string]Product
	addons      []Addon
	productHits int
	addonHits   int
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (Product, error) {
	f.productHits++
	p, ok := f.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (f *fakeStore) ListProducts(context.Context, ListParams) ([]Product, int64, error) {
	out := make([]Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) ListAddons(context.Context) ([]Addon, error) {
	f.addonHits++
	return f.addons, nil
}

func sampleStore() *fakeStore {
	return &fakeStore{
		products: map[string]Product{
			"hamper": {ID: "hamper", Name: "Gift hamper", Price: d("10"), PricingMode: ModeUnit, IsGroup: true, Active: true},
			"tee": {
				ID: "tee", Name: "Tee", PricingMode: ModeUnit, HasVariants: true, Active: true,
				Variants: []Variant{
					{ID: "tee-m", ProductID: "tee", Name: "M", Price: d("15"), Attributes: map[string]string{"size": "M"}, Active: true},
					{ID: "tee-xl", ProductID: "tee", Name: "XL", Price: d("17"), Active: false},
				},
			},
			"coffee":  {ID: "coffee", Name: "House blend", PricingMode: ModeWeight, PricePerUnit: d("80"), BaseWeightUnit: "kg", Active: true},
			"broken":  {ID: "broken", Name: "Bad unit", PricingMode: ModeWeight, PricePerUnit: d("80"), BaseWeightUnit: "lbs", Active: true},
			"retired": {ID: "retired", Name: "Old", Price: d("1"), PricingMode: ModeUnit, Active: false},
		},
		addons: []Addon{
			{ID: "wrap", Title: "Gift wrap", Price: d("2"), Active: true},
			{ID: "card", Title: "Card", Price: d("1"), Active: false},
		},
	}
}

func newService(t *testing.T, store Store) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(store, cache.NewJSON(client, "catalog", time.Minute), nil)
}

func TestResolveLineSnapshotsAddons(t *testing.T) {
	svc := newService(t, sampleStore())

	item, err := svc.ResolveLine(context.Background(), LineRequest{
		ProductID: "hamper",
		Quantity:  3,
		Addons:    []AddonRequest{{AddonID: "wrap"}},
	})
	require.NoError(t, err)
	require.Len(t, item.Addons, 1)
	assert.Equal(t, "Gift wrap", item.Addons[0].Title)
	assert.Equal(t, int64(1), item.Addons[0].Quantity)
	assert.True(t, d("36").Equal(pricing.ItemSubtotal(item)))
}

func TestResolveLineVariant(t *testing.T) {
	svc := newService(t, sampleStore())
	ctx := context.Background()

	item, err := svc.ResolveLine(ctx, LineRequest{ProductID: "tee", VariantID: "tee-m", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "Tee - M", item.ProductName)
	assert.Equal(t, "M", item.Attributes["size"])
	assert.True(t, d("15").Equal(item.UnitPrice))

	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "tee", Quantity: 1})
	require.ErrorIs(t, err, ErrVariantRequired)
	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "tee", VariantID: "tee-xl", Quantity: 1})
	require.ErrorIs(t, err, ErrVariantNotFound)
}

func TestResolveLineWeight(t *testing.T) {
	svc := newService(t, sampleStore())
	ctx := context.Background()

	item, err := svc.ResolveLine(ctx, LineRequest{ProductID: "coffee", Weight: dp("500"), WeightUnit: "g"})
	require.NoError(t, err)
	assert.True(t, d("40").Equal(item.UnitPrice))
	assert.Equal(t, int64(1), item.Quantity)
	require.NotNil(t, item.Weight)

	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "coffee"})
	require.ErrorIs(t, err, ErrWeightRequired)
	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "coffee", Weight: dp("1"), WeightUnit: "kg", Quantity: 2})
	require.ErrorIs(t, err, pricing.ErrWeightQuantity)
	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "coffee", Weight: dp("1"), WeightUnit: "oz"})
	require.ErrorIs(t, err, pricing.ErrUnknownWeightUnit)
	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "broken", Weight: dp("1")})
	require.ErrorIs(t, err, pricing.ErrUnknownWeightUnit)
}

func TestResolveLineRejections(t *testing.T) {
	svc := newService(t, sampleStore())
	ctx := context.Background()

	_, err := svc.ResolveLine(ctx, LineRequest{ProductID: "missing", Quantity: 1})
	require.ErrorIs(t, err, ErrProductNotFound)
	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "retired", Quantity: 1})
	require.ErrorIs(t, err, ErrProductNotFound)
	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "hamper"})
	require.ErrorIs(t, err, pricing.ErrInvalidQuantity)
	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "hamper", Quantity: 1, Addons: []AddonRequest{{AddonID: "card"}}})
	require.ErrorIs(t, err, ErrAddonUnavailable)
	_, err = svc.ResolveLine(ctx, LineRequest{ProductID: "tee", VariantID: "tee-m", Quantity: 1, Addons: []AddonRequest{{AddonID: "wrap"}}})
	require.ErrorIs(t, err, ErrAddonsNotAllowed)
}

func TestServiceCachesLookups(t *testing.T) {
	store := sampleStore()
	svc := newService(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.ResolveLine(ctx, LineRequest{ProductID: "hamper", Quantity: 1, Addons: []AddonRequest{{AddonID: "wrap", Quantity: 2}}})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.productHits)
	assert.Equal(t, 1, store.addonHits)
}

func TestServiceWithoutCache(t *testing.T) {
	store := sampleStore()
	svc := NewService(store, nil, nil)

	_, err := svc.Product(context.Background(), "hamper")
	require.NoError(t, err)
	_, err = svc.Product(context.Background(), "hamper")
	require.NoError(t, err)
	assert.Equal(t, 2, store.productHits)
}

func TestReviseLineKeepsSnapshots(t *testing.T) {
	store := sampleStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	prior, err := svc.ResolveLine(ctx, LineRequest{ProductID: "hamper", Quantity: 3, Addons: []AddonRequest{{AddonID: "wrap"}}})
	require.NoError(t, err)

	// the catalog moves on after the order was placed
	store.products["hamper"] = Product{ID: "hamper", Name: "Deluxe hamper", Price: d("12"), PricingMode: ModeUnit, IsGroup: true, Active: false}
	store.addons[0] = Addon{ID: "wrap", Title: "Gold wrap", Price: d("7"), Active: false}
	store.productHits, store.addonHits = 0, 0

	item, err := svc.ReviseLine(ctx, LineRequest{ProductID: "hamper", Quantity: 2, Addons: []AddonRequest{{AddonID: "wrap", Quantity: 2}}}, prior)
	require.NoError(t, err)
	assert.Equal(t, "Gift hamper", item.ProductName)
	assert.True(t, d("10").Equal(item.UnitPrice))
	require.Len(t, item.Addons, 1)
	assert.Equal(t, "Gift wrap", item.Addons[0].Title)
	assert.True(t, d("2").Equal(item.Addons[0].Price))
	assert.Equal(t, int64(2), item.Addons[0].Quantity)
	assert.Zero(t, store.productHits+store.addonHits)
	// (10 x 2) + (2 x 2 x 2)
	assert.True(t, d("28").Equal(item.TotalPrice()), "got %s", item.TotalPrice())
}

func TestReviseLineSnapshotsNewAddons(t *testing.T) {
	store := sampleStore()
	store.addons = append(store.addons, Addon{ID: "bow", Title: "Bow", Price: d("3"), Active: true})
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	prior, err := svc.ResolveLine(ctx, LineRequest{ProductID: "hamper", Quantity: 1, Addons: []AddonRequest{{AddonID: "wrap"}}})
	require.NoError(t, err)
	store.addons[0].Price = d("9")

	item, err := svc.ReviseLine(ctx, LineRequest{ProductID: "hamper", Quantity: 1, Addons: []AddonRequest{{AddonID: "wrap"}, {AddonID: "bow"}}}, prior)
	require.NoError(t, err)
	require.Len(t, item.Addons, 2)
	assert.True(t, d("2").Equal(item.Addons[0].Price))
	assert.Equal(t, "Bow", item.Addons[1].Title)

	_, err = svc.ReviseLine(ctx, LineRequest{ProductID: "hamper", Quantity: 1, Addons: []AddonRequest{{AddonID: "card"}}}, prior)
	require.ErrorIs(t, err, ErrAddonUnavailable)

	plain, err := svc.ResolveLine(ctx, LineRequest{ProductID: "tee", VariantID: "tee-m", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.ReviseLine(ctx, LineRequest{ProductID: "tee", VariantID: "tee-m", Quantity: 1, Addons: []AddonRequest{{AddonID: "bow"}}}, plain)
	require.ErrorIs(t, err, ErrAddonsNotAllowed)
}

func TestReviseLineReweighsAtStoredRate(t *testing.T) {
	store := sampleStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	prior, err := svc.ResolveLine(ctx, LineRequest{ProductID: "coffee", Weight: dp("500"), WeightUnit: "grams"})
	require.NoError(t, err)
	require.True(t, d("40").Equal(prior.UnitPrice))

	p := store.products["coffee"]
	p.PricePerUnit = d("120")
	store.products["coffee"] = p

	item, err := svc.ReviseLine(ctx, LineRequest{ProductID: "coffee", Weight: dp("0.75"), WeightUnit: "kg"}, prior)
	require.NoError(t, err)
	assert.True(t, d("60").Equal(item.UnitPrice), "got %s", item.UnitPrice)
	assert.True(t, d("750").Equal(item.Weight.Grams))
	assert.Equal(t, int64(1), item.Quantity)

	item, err = svc.ReviseLine(ctx, LineRequest{ProductID: "coffee"}, prior)
	require.NoError(t, err)
	assert.True(t, d("40").Equal(item.UnitPrice))

	_, err = svc.ReviseLine(ctx, LineRequest{ProductID: "coffee", Quantity: 2}, prior)
	require.ErrorIs(t, err, pricing.ErrWeightQuantity)
}
