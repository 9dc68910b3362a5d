package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownWeightUnit is returned for any unit other than grams or kg.
	ErrUnknownWeightUnit = errors.New("unknown weight unit")
	// ErrInvalidWeight is returned for a missing or non-positive weight.
	ErrInvalidWeight = errors.New("weight must be greater than zero")
)

// WeightUnit is the unit a weight is expressed in.
type WeightUnit string

const (
	UnitGrams     WeightUnit = "grams"
	UnitKilograms WeightUnit = "kg"
)

// WeightSelection records the weight requested for a weight-based line.
type WeightSelection struct {
	Value Money      `json:"value"`
	Unit  WeightUnit `json:"unit"`
	Grams Money      `json:"grams"`
}

// ParseWeightUnit normalises a unit name. An empty string means grams.
func ParseWeightUnit(raw string) (WeightUnit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "g", "gram", "grams":
		return UnitGrams, nil
	case "kg", "kilogram", "kilograms":
		return UnitKilograms, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownWeightUnit, raw)
	}
}

// ConvertToGrams converts value expressed in unit to grams.
func ConvertToGrams(value Money, unit WeightUnit) (Money, error) {
	switch unit {
	case UnitGrams:
		return value, nil
	case UnitKilograms:
		return value.Shift(3), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownWeightUnit, unit)
	}
}

// ConvertFromGrams converts grams to unit.
func ConvertFromGrams(grams Money, unit WeightUnit) (Money, error) {
	switch unit {
	case UnitGrams:
		return grams, nil
	case UnitKilograms:
		return grams.Shift(-3), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownWeightUnit, unit)
	}
}

// PricePerGram derives the per-gram price from a product's configured price
// and base weight unit.
func PricePerGram(pricePerUnit Money, baseWeightUnit string) (Money, error) {
	unit, err := ParseWeightUnit(baseWeightUnit)
	if err != nil {
		return decimal.Zero, err
	}
	if unit == UnitKilograms {
		return pricePerUnit.Shift(-3), nil
	}
	return pricePerUnit, nil
}

// ValidateWeight rejects missing or non-positive weights.
func ValidateWeight(grams Money) error {
	if !grams.IsPositive() {
		return ErrInvalidWeight
	}
	return nil
}

// ResolveWeightPrice prices a requested weight. A zero weight yields a zero
// price; callers reject such lines through ValidateWeight before submission.
func ResolveWeightPrice(pricePerUnit Money, baseWeightUnit string, weight Money, unit WeightUnit) (Money, WeightSelection, error) {
	perGram, err := PricePerGram(pricePerUnit, baseWeightUnit)
	if err != nil {
		return decimal.Zero, WeightSelection{}, err
	}
	grams, err := ConvertToGrams(weight, unit)
	if err != nil {
		return decimal.Zero, WeightSelection{}, err
	}
	sel := WeightSelection{Value: weight, Unit: unit, Grams: grams}
	if !grams.IsPositive() {
		return decimal.Zero, sel, nil
	}
	return grams.Mul(perGram), sel, nil
}
