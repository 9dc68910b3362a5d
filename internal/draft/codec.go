package draft

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backoffice-toko/internal/pricing"
)

const (
	// CurrentSchemaVersion is written by Encode.
	CurrentSchemaVersion = 2
	// LegacySchemaVersion drafts stored addons and attributes as JSON text
	// inside a JSON string.
	LegacySchemaVersion = 1
)

// ErrMalformedPayload is returned for payloads that match no known schema.
var ErrMalformedPayload = errors.New("malformed draft payload")

// Encode serialises d at the current schema version. Migrated drafts keep
// their legacy marker so the points-mirror rule still applies after re-save.
func Encode(d Draft) ([]byte, error) {
	d.SchemaVersion = CurrentSchemaVersion
	if d.Items == nil {
		d.Items = []pricing.LineItem{}
	}
	return json.Marshal(d)
}

// Decode parses a stored or submitted draft, migrating v1 payloads.
func Decode(raw []byte) (Draft, error) {
	var probe struct {
		SchemaVersion *int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if probe.SchemaVersion == nil {
		return Draft{}, fmt.Errorf("%w: missing schemaVersion", ErrMalformedPayload)
	}
	switch *probe.SchemaVersion {
	case CurrentSchemaVersion:
		return decodeCurrent(raw)
	case LegacySchemaVersion:
		return decodeLegacy(raw)
	default:
		return Draft{}, fmt.Errorf("%w: unsupported schemaVersion %d", ErrMalformedPayload, *probe.SchemaVersion)
	}
}

func decodeCurrent(raw []byte) (Draft, error) {
	var d Draft
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if d.Items == nil {
		d.Items = []pricing.LineItem{}
	}
	return d, nil
}

type legacyDraft struct {
	SchemaVersion  int              `json:"schemaVersion"`
	CustomerID     string           `json:"customerId"`
	Items          []legacyItem     `json:"items"`
	Discount       pricing.Discount `json:"discount"`
	CouponCode     string           `json:"couponCode"`
	CouponDiscount decimal.Decimal  `json:"couponDiscountAmount"`
	PointsToRedeem int64            `json:"pointsToRedeem"`
	PointsDiscount decimal.Decimal  `json:"pointsDiscountAmount"`
	TaxRatePercent decimal.Decimal  `json:"taxRatePercent"`
	Shipping       decimal.Decimal  `json:"shippingAmount"`
	Notes          string           `json:"notes"`
}

type legacyItem struct {
	ProductID     string          `json:"productId"`
	VariantID     string          `json:"variantId"`
	ProductName   string          `json:"productName"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	Quantity      int64           `json:"quantity"`
	IsWeightBased bool            `json:"isWeightBased"`
	Weight        decimal.Decimal `json:"weight"`
	WeightUnit    string          `json:"weightUnit"`
	// Addons and Attributes hold JSON documents encoded as strings.
	Addons     *string `json:"addons"`
	Attributes *string `json:"attributes"`
}

func decodeLegacy(raw []byte) (Draft, error) {
	var legacy legacyDraft
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return Draft{}, fmt.Errorf("%w: v1: %v", ErrMalformedPayload, err)
	}
	out := Draft{
		SchemaVersion:        CurrentSchemaVersion,
		CustomerID:           legacy.CustomerID,
		Items:                make([]pricing.LineItem, 0, len(legacy.Items)),
		Discount:             legacy.Discount,
		CouponCode:           legacy.CouponCode,
		CouponDiscount:       legacy.CouponDiscount,
		PointsToRedeem:       legacy.PointsToRedeem,
		PointsDiscount:       legacy.PointsDiscount,
		TaxRatePercent:       legacy.TaxRatePercent,
		Shipping:             legacy.Shipping,
		Notes:                legacy.Notes,
		LegacyDiscountMirror: true,
	}
	if out.Discount.Type == "" {
		out.Discount.Type = pricing.DiscountFlat
	}
	for i, it := range legacy.Items {
		item, err := migrateItem(it)
		if err != nil {
			return Draft{}, fmt.Errorf("%w: v1 items[%d]: %v", ErrMalformedPayload, i, err)
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func migrateItem(it legacyItem) (pricing.LineItem, error) {
	item := pricing.LineItem{
		ProductID:   it.ProductID,
		VariantID:   it.VariantID,
		ProductName: it.ProductName,
		UnitPrice:   it.UnitPrice,
		Quantity:    it.Quantity,
	}
	if it.IsWeightBased {
		unit, err := pricing.ParseWeightUnit(it.WeightUnit)
		if err != nil {
			return pricing.LineItem{}, err
		}
		grams, err := pricing.ConvertToGrams(it.Weight, unit)
		if err != nil {
			return pricing.LineItem{}, err
		}
		item.Weight = &pricing.WeightSelection{Value: it.Weight, Unit: unit, Grams: grams}
	}
	if it.Addons != nil && *it.Addons != "" {
		if err := json.Unmarshal([]byte(*it.Addons), &item.Addons); err != nil {
			return pricing.LineItem{}, fmt.Errorf("addons: %w", err)
		}
	}
	if it.Attributes != nil && *it.Attributes != "" {
		if err := json.Unmarshal([]byte(*it.Attributes), &item.Attributes); err != nil {
			return pricing.LineItem{}, fmt.Errorf("attributes: %w", err)
		}
	}
	return item, nil
}
