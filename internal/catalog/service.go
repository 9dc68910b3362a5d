package catalog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/cache"
	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

var (
	// ErrProductNotFound is returned for unknown or inactive products.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantRequired is returned when a product with variants is requested without one.
	ErrVariantRequired = errors.New("variant selection is required")
	// ErrVariantNotFound is returned for a variant that does not belong to the product.
	ErrVariantNotFound = errors.New("variant not found")
	// ErrWeightRequired is returned when a weight-priced product has no weight.
	ErrWeightRequired = errors.New("weight is required for weight-based products")
	// ErrAddonUnavailable is returned for unknown or inactive addons.
	ErrAddonUnavailable = errors.New("addon unavailable")
	// ErrAddonsNotAllowed is returned when addons are attached to a non-group product.
	ErrAddonsNotAllowed = errors.New("addons are only allowed on group products")
)

// Store is the catalog persistence used by Service.
type Store interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, params ListParams) ([]Product, int64, error)
	ListAddons(ctx context.Context) ([]Addon, error)
}

// AddonRequest selects an addon for a line.
type AddonRequest struct {
	AddonID  string `json:"addonId" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gte=0"`
}

// LineRequest is one line as submitted by the order editor.
type LineRequest struct {
	ProductID  string           `json:"productId" validate:"required"`
	VariantID  string           `json:"variantId"`
	Quantity   int64            `json:"quantity" validate:"gte=0"`
	Weight     *decimal.Decimal `json:"weight"`
	WeightUnit string           `json:"weightUnit"`
	Addons     []AddonRequest   `json:"addons" validate:"omitempty,dive"`
}

// ProductPage is one page of the product list.
type ProductPage struct {
	Items []Product `json:"items"`
	Total int64     `json:"total"`
}

// Service resolves catalog lookups through a Redis cache.
type Service struct {
	store  Store
	cache  *cache.JSON
	logger *zerolog.Logger
}

// NewService constructs a Service. c may be nil to disable caching.
func NewService(store Store, c *cache.JSON, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: store, cache: c, logger: logger}
}

// Product returns a product with its variants.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, ErrProductNotFound
	}
	key := s.cache.Key("product", id)
	var cached Product
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	} else if ok {
		return cached, nil
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := s.cache.Set(ctx, key, p); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
	return p, nil
}

// Addons returns all addons.
func (s *Service) Addons(ctx context.Context) ([]Addon, error) {
	key := s.cache.Key("addons")
	var cached []Addon
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	} else if ok {
		return cached, nil
	}
	addons, err := s.store.ListAddons(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, addons); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
	return addons, nil
}

// ListProducts pages through active products. The unfiltered first page is cached.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductPage, error) {
	params.Query = strings.TrimSpace(params.Query)
	cacheable := params.Query == "" && params.Offset == 0
	key := s.cache.Key("products", "first", fmt.Sprint(params.Limit))
	if cacheable {
		var cached ProductPage
		if ok, err := s.cache.Get(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}
	items, total, err := s.store.ListProducts(ctx, params)
	if err != nil {
		return ProductPage{}, err
	}
	page := ProductPage{Items: items, Total: total}
	if cacheable {
		if err := s.cache.Set(ctx, key, page); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
		}
	}
	return page, nil
}

// ResolveLine turns a requested line into a priced order item. Addon titles
// and prices are snapshotted from the catalog at this point.
func (s *Service) ResolveLine(ctx context.Context, req LineRequest) (pricing.LineItem, error) {
	product, err := s.Product(ctx, req.ProductID)
	if err != nil {
		return pricing.LineItem{}, err
	}
	if !product.Active {
		return pricing.LineItem{}, ErrProductNotFound
	}

	item := pricing.LineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		UnitPrice:   product.Price,
		Quantity:    req.Quantity,
	}

	if product.HasVariants {
		if req.VariantID == "" {
			return pricing.LineItem{}, ErrVariantRequired
		}
		variant, ok := findVariant(product.Variants, req.VariantID)
		if !ok {
			return pricing.LineItem{}, fmt.Errorf("%w: %s", ErrVariantNotFound, req.VariantID)
		}
		item.VariantID = variant.ID
		item.ProductName = product.Name + " - " + variant.Name
		item.UnitPrice = variant.Price
		item.Attributes = variant.Attributes
	}

	if product.PricingMode == ModeWeight {
		if req.Weight == nil || !req.Weight.IsPositive() {
			return pricing.LineItem{}, ErrWeightRequired
		}
		if req.Quantity > 1 {
			return pricing.LineItem{}, pricing.ErrWeightQuantity
		}
		unit, err := pricing.ParseWeightUnit(req.WeightUnit)
		if err != nil {
			return pricing.LineItem{}, err
		}
		price, sel, err := pricing.ResolveWeightPrice(product.PricePerUnit, product.BaseWeightUnit, *req.Weight, unit)
		if err != nil {
			return pricing.LineItem{}, fmt.Errorf("product %s: %w", product.ID, err)
		}
		item.UnitPrice = price
		item.Weight = &sel
		item.Quantity = 1
	}

	if len(req.Addons) > 0 {
		if !product.IsGroup {
			return pricing.LineItem{}, ErrAddonsNotAllowed
		}
		addons, err := s.Addons(ctx)
		if err != nil {
			return pricing.LineItem{}, err
		}
		item.Addons = make([]pricing.AddonSelection, 0, len(req.Addons))
		for _, ar := range req.Addons {
			sel, err := snapshotAddon(addons, ar)
			if err != nil {
				return pricing.LineItem{}, err
			}
			item.Addons = append(item.Addons, sel)
		}
	}

	if err := item.Validate(); err != nil {
		return pricing.LineItem{}, err
	}
	return item, nil
}

// ReviseLine reprices a line of an order being edited. The stored line keeps
// its product name, unit price, attributes and addon snapshots; req only
// changes the quantity, the weight and which addons are attached. The catalog
// is read only for addons the line did not carry before.
func (s *Service) ReviseLine(ctx context.Context, req LineRequest, prior pricing.LineItem) (pricing.LineItem, error) {
	item := prior
	item.Attributes = maps.Clone(prior.Attributes)
	item.Addons = nil

	if prior.WeightBased() {
		if req.Quantity > 1 {
			return pricing.LineItem{}, pricing.ErrWeightQuantity
		}
		if req.Weight != nil {
			price, sel, err := reweigh(prior, *req.Weight, req.WeightUnit)
			if err != nil {
				return pricing.LineItem{}, err
			}
			item.UnitPrice = price
			item.Weight = &sel
		}
		item.Quantity = 1
	} else {
		item.Quantity = req.Quantity
	}

	var (
		addons []Addon
		loaded bool
	)
	for _, ar := range req.Addons {
		if snap, ok := findSelection(prior.Addons, ar.AddonID); ok {
			snap.Quantity = addonQuantity(ar)
			item.Addons = append(item.Addons, snap)
			continue
		}
		if !loaded {
			if len(prior.Addons) == 0 {
				product, err := s.Product(ctx, prior.ProductID)
				if err != nil {
					return pricing.LineItem{}, err
				}
				if !product.IsGroup {
					return pricing.LineItem{}, ErrAddonsNotAllowed
				}
			}
			var err error
			if addons, err = s.Addons(ctx); err != nil {
				return pricing.LineItem{}, err
			}
			loaded = true
		}
		sel, err := snapshotAddon(addons, ar)
		if err != nil {
			return pricing.LineItem{}, err
		}
		item.Addons = append(item.Addons, sel)
	}

	if err := item.Validate(); err != nil {
		return pricing.LineItem{}, err
	}
	return item, nil
}

// reweigh scales the stored line price to a new weight.
func reweigh(prior pricing.LineItem, weight decimal.Decimal, rawUnit string) (pricing.Money, pricing.WeightSelection, error) {
	if !weight.IsPositive() {
		return decimal.Zero, pricing.WeightSelection{}, ErrWeightRequired
	}
	unit, err := pricing.ParseWeightUnit(rawUnit)
	if err != nil {
		return decimal.Zero, pricing.WeightSelection{}, err
	}
	grams, err := pricing.ConvertToGrams(weight, unit)
	if err != nil {
		return decimal.Zero, pricing.WeightSelection{}, err
	}
	sel := pricing.WeightSelection{Value: weight, Unit: unit, Grams: grams}
	if grams.Equal(prior.Weight.Grams) {
		return prior.UnitPrice, sel, nil
	}
	if !prior.Weight.Grams.IsPositive() {
		return decimal.Zero, pricing.WeightSelection{}, ErrWeightRequired
	}
	return prior.UnitPrice.Mul(grams).Div(prior.Weight.Grams), sel, nil
}

func snapshotAddon(addons []Addon, ar AddonRequest) (pricing.AddonSelection, error) {
	addon, ok := findAddon(addons, ar.AddonID)
	if !ok || !addon.Active {
		return pricing.AddonSelection{}, fmt.Errorf("%w: %s", ErrAddonUnavailable, ar.AddonID)
	}
	return pricing.AddonSelection{
		AddonID:  addon.ID,
		Title:    addon.Title,
		Price:    addon.Price,
		Quantity: addonQuantity(ar),
	}, nil
}

func addonQuantity(ar AddonRequest) int64 {
	if ar.Quantity == 0 {
		return 1
	}
	return ar.Quantity
}

func findSelection(selections []pricing.AddonSelection, id string) (pricing.AddonSelection, bool) {
	for _, sel := range selections {
		if sel.AddonID == id {
			return sel, true
		}
	}
	return pricing.AddonSelection{}, false
}

func findVariant(variants []Variant, id string) (Variant, bool) {
	for _, v := range variants {
		if v.ID == id && v.Active {
			return v, true
		}
	}
	return Variant{}, false
}

func findAddon(addons []Addon, id string) (Addon, bool) {
	for _, a := range addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}
