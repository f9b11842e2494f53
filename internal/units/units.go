// Package units converts measured KPI values between units of the same
// family. Conversion is linear: every unit carries a fixed multiplicative
// factor to its family's base unit, so result = value * factor(from) /
// factor(to). Cross-family conversion is always an error.
package units

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Family groups mutually convertible units.
type Family string

const (
	FamilyMass    Family = "mass"
	FamilyVolume  Family = "volume"
	FamilyEnergy  Family = "energy"
	FamilyCount   Family = "count"
	FamilyPercent Family = "percent"
	FamilyHours   Family = "hours"
)

// UnsupportedUnitError marks a unit absent from the registry, or a
// conversion attempt across families.
type UnsupportedUnitError struct {
	Unit   string
	Reason string
}

func (e *UnsupportedUnitError) Error() string {
	return fmt.Sprintf("unsupported unit %q: %s", e.Unit, e.Reason)
}

type unitInfo struct {
	family Family
	factor decimal.Decimal
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// registry maps canonical unit symbols to their family and base-unit factor.
// Base units: kg (mass), m3 (volume), kWh (energy), count, pct, h.
var registry = map[string]unitInfo{
	"mg":    {FamilyMass, d("0.000001")},
	"g":     {FamilyMass, d("0.001")},
	"kg":    {FamilyMass, d("1")},
	"t":     {FamilyMass, d("1000")},
	"kt":    {FamilyMass, d("1000000")},
	"ml":    {FamilyVolume, d("0.000001")},
	"l":     {FamilyVolume, d("0.001")},
	"m3":    {FamilyVolume, d("1")},
	"wh":    {FamilyEnergy, d("0.001")},
	"kwh":   {FamilyEnergy, d("1")},
	"mwh":   {FamilyEnergy, d("1000")},
	"gwh":   {FamilyEnergy, d("1000000")},
	"count": {FamilyCount, d("1")},
	"pct":   {FamilyPercent, d("1")},
	"h":     {FamilyHours, d("1")},
}

// aliases maps common spellings onto canonical symbols.
var aliases = map[string]string{
	"tonne":     "t",
	"tonnes":    "t",
	"ton":       "t",
	"tons":      "t",
	"tco2e":     "t",
	"kgco2e":    "kg",
	"gram":      "g",
	"grams":     "g",
	"litre":     "l",
	"litres":    "l",
	"liter":     "l",
	"liters":    "l",
	"m^3":       "m3",
	"cbm":       "m3",
	"%":         "pct",
	"percent":   "pct",
	"hr":        "h",
	"hrs":       "h",
	"hour":      "h",
	"hours":     "h",
	"headcount": "count",
	"employees": "count",
	"incidents": "count",
}

// Canonical normalizes a raw unit string to its registry symbol. The second
// return is false when the unit is unknown.
func Canonical(raw string) (string, bool) {
	symbol := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := aliases[symbol]; ok {
		symbol = alias
	}
	_, ok := registry[symbol]
	return symbol, ok
}

// FamilyOf returns the family of a known unit.
func FamilyOf(raw string) (Family, bool) {
	symbol, ok := Canonical(raw)
	if !ok {
		return "", false
	}
	return registry[symbol].family, true
}

// Normalize converts value from one unit to another within the same family.
func Normalize(value decimal.Decimal, fromUnit, toUnit string) (decimal.Decimal, error) {
	from, ok := Canonical(fromUnit)
	if !ok {
		return decimal.Zero, &UnsupportedUnitError{Unit: fromUnit, Reason: "not in registry"}
	}
	to, ok := Canonical(toUnit)
	if !ok {
		return decimal.Zero, &UnsupportedUnitError{Unit: toUnit, Reason: "not in registry"}
	}

	fromInfo := registry[from]
	toInfo := registry[to]
	if fromInfo.family != toInfo.family {
		return decimal.Zero, &UnsupportedUnitError{
			Unit:   fromUnit,
			Reason: fmt.Sprintf("cannot convert %s to %s", fromInfo.family, toInfo.family),
		}
	}

	return value.Mul(fromInfo.factor).Div(toInfo.factor), nil
}
