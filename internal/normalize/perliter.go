package normalize

import "math"

// PerLiter converts a unit price for a container of ml milliliters to a
// price per 1000 ml. ok is false when the result is undefined.
func PerLiter(unitPrice, ml float64) (perLiter float64, ok bool) {
	if ml <= 0 || math.IsNaN(ml) || math.IsInf(ml, 0) {
		return 0, false
	}
	if math.IsNaN(unitPrice) || math.IsInf(unitPrice, 0) {
		return 0, false
	}
	return unitPrice / ml * 1000, true
}
