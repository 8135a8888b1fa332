package normalize

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/vocab"
)

// Invalid is the numeric value of a price string that could not be parsed.
var Invalid = math.Inf(1)

// IsValidPrice reports whether v is a usable price.
func IsValidPrice(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v) && v >= 0
}

// Resolution is the numeric view of a listing's two price fields.
type Resolution struct {
	Price     float64
	Promo     float64
	Effective float64
	// OK is false when neither field held a valid price.
	OK bool
}

// Resolver parses currency-formatted strings according to a vocabulary.
type Resolver struct {
	symbols   []string
	decimal   string
	thousands string
}

// NewResolver builds a Resolver for the currency conventions in v.
func NewResolver(v *vocab.Vocabulary) *Resolver {
	symbols := make([]string, len(v.CurrencySymbols))
	copy(symbols, v.CurrencySymbols)
	// Longest symbol first so "US$" is stripped before "$".
	sort.SliceStable(symbols, func(i, j int) bool { return len(symbols[i]) > len(symbols[j]) })
	return &Resolver{
		symbols:   symbols,
		decimal:   v.DecimalSeparator,
		thousands: v.ThousandsSeparator,
	}
}

// ParsePrice converts s to a number, returning Invalid when s is empty,
// malformed, negative or not finite.
func (r *Resolver) ParsePrice(s string) float64 {
	clean := s
	for _, sym := range r.symbols {
		clean = strings.ReplaceAll(clean, sym, "")
	}
	clean = strings.TrimSpace(clean)
	clean = strings.Join(strings.Fields(clean), "")

	if r.decimal != "" && r.decimal != "." {
		if strings.Contains(clean, r.decimal) && r.thousands != "" {
			clean = strings.ReplaceAll(clean, r.thousands, "")
		}
		clean = strings.ReplaceAll(clean, r.decimal, ".")
	} else if r.thousands != "" {
		clean = strings.ReplaceAll(clean, r.thousands, "")
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || !IsValidPrice(v) {
		if s != "" {
			zap.L().Warn("normalize: invalid price", zap.String("raw", s))
		}
		return Invalid
	}
	return v
}

// Resolve parses both price fields and picks the lower one as effective.
func (r *Resolver) Resolve(price, promo string) Resolution {
	p := r.ParsePrice(price)
	pp := r.ParsePrice(promo)
	eff := math.Min(p, pp)
	return Resolution{
		Price:     p,
		Promo:     pp,
		Effective: eff,
		OK:        IsValidPrice(eff),
	}
}
