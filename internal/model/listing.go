package model

import "math"

// PackageKind is the normalized container type of a listing.
type PackageKind string

const (
	PackageNone   PackageKind = ""
	PackageCan    PackageKind = "can"
	PackageBottle PackageKind = "bottle"
	PackageKeg    PackageKind = "keg"
)

// Valid reports whether k is one of the known package kinds (or none).
func (k PackageKind) Valid() bool {
	switch k {
	case PackageNone, PackageCan, PackageBottle, PackageKeg:
		return true
	}
	return false
}

// Volume is a matched volume vocabulary entry. Token and Milliliters are
// always set together.
type Volume struct {
	Token       string  `json:"token"`
	Milliliters float64 `json:"milliliters"`
}

// Listing is one scraped product row. The raw fields come from the scraper
// export; the remaining fields are filled by the normalization pipeline.
type Listing struct {
	Category        string            `json:"category"`
	SourceReference string            `json:"source_reference"`
	Description     string            `json:"description"`
	Price           string            `json:"price"`
	PromoPrice      string            `json:"promotional_price"`
	Extra           map[string]string `json:"extra,omitempty"`

	Volume         *Volume     `json:"volume,omitempty"`
	Package        PackageKind `json:"package_kind,omitempty"`
	Quantity       int         `json:"pack_quantity,omitempty"`
	PriceValue     *float64    `json:"price_numeric,omitempty"`
	PromoValue     *float64    `json:"promo_price_numeric,omitempty"`
	EffectivePrice *float64    `json:"effective_price,omitempty"`
	UnitPrice      *float64    `json:"unit_price,omitempty"`
	PricePerLiter  *float64    `json:"price_per_liter,omitempty"`
	AmbiguousPrice bool        `json:"ambiguous_price,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// HasPricePerLiter reports whether the listing carries a usable price per liter.
func (l *Listing) HasPricePerLiter() bool {
	return l.PricePerLiter != nil && !math.IsInf(*l.PricePerLiter, 0) && !math.IsNaN(*l.PricePerLiter)
}

// Clone returns a deep copy so callers can keep a listing without sharing
// its maps or numeric pointers.
func (l Listing) Clone() Listing {
	out := l
	if l.Extra != nil {
		out.Extra = make(map[string]string, len(l.Extra))
		for k, v := range l.Extra {
			out.Extra[k] = v
		}
	}
	if l.Volume != nil {
		v := *l.Volume
		out.Volume = &v
	}
	out.PriceValue = cloneFloat(l.PriceValue)
	out.PromoValue = cloneFloat(l.PromoValue)
	out.EffectivePrice = cloneFloat(l.EffectivePrice)
	out.UnitPrice = cloneFloat(l.UnitPrice)
	out.PricePerLiter = cloneFloat(l.PricePerLiter)
	return out
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
