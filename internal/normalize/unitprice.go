package normalize

import (
	"math"

	"go.uber.org/zap"
)

// UnitPricePolicy decides the price of a single unit from the resolved
// prices of a listing that sells quantity units. divided reports whether
// effective was treated as a pack total and divided by quantity.
type UnitPricePolicy func(price, promo, effective float64, quantity int) (unit float64, divided bool)

// PerUnitHeuristic is the default policy. Retailers label some prices as
// pack totals and others as already per unit. When the promo price is valid
// and the regular price is non-zero, effective is kept as the unit price if
// either price divided by quantity (rounded to cents) is <= effective. An
// invalid regular price yields an infinite quotient that never matches.
// Otherwise effective is taken as the pack total.
func PerUnitHeuristic(price, promo, effective float64, quantity int) (float64, bool) {
	return perUnit(price, promo, effective, quantity, func(q, eff float64) bool { return q <= eff })
}

// StrictHeuristic is the older variant that only keeps effective when a
// rounded quotient equals it exactly.
func StrictHeuristic(price, promo, effective float64, quantity int) (float64, bool) {
	return perUnit(price, promo, effective, quantity, func(q, eff float64) bool { return q == eff })
}

func perUnit(price, promo, effective float64, quantity int, keep func(q, eff float64) bool) (float64, bool) {
	if quantity <= 1 {
		return effective, false
	}
	q := float64(quantity)
	if price != 0 && IsValidPrice(promo) {
		if keep(round2(price/q), effective) || keep(round2(promo/q), effective) {
			return effective, false
		}
	}
	zap.L().Warn("normalize: assuming effective price is a pack total",
		zap.Float64("effective", effective),
		zap.Float64("price", price),
		zap.Float64("promo", promo),
		zap.Int("quantity", quantity),
	)
	return effective / q, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// PolicyByName maps a config value to a policy. Unknown names return nil.
func PolicyByName(name string) UnitPricePolicy {
	switch name {
	case "", "per_unit":
		return PerUnitHeuristic
	case "strict":
		return StrictHeuristic
	}
	return nil
}
