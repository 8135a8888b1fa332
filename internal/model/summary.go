package model

// CategoryMinimum is the cheapest listing found for one category.
// When Found is false no listing in the category had a usable price per liter.
type CategoryMinimum struct {
	Category      string   `json:"category"`
	Found         bool     `json:"found"`
	PricePerLiter float64  `json:"price_per_liter,omitempty"`
	Listing       *Listing `json:"listing,omitempty"`
}

// Summary holds one CategoryMinimum per category, in first-seen order.
type Summary struct {
	Categories []CategoryMinimum `json:"categories"`
}

// Lookup returns the minimum for category, if present.
func (s *Summary) Lookup(category string) (CategoryMinimum, bool) {
	if s == nil {
		return CategoryMinimum{}, false
	}
	for _, c := range s.Categories {
		if c.Category == category {
			return c, true
		}
	}
	return CategoryMinimum{}, false
}

// FoundCount returns how many categories have a valid minimum.
func (s *Summary) FoundCount() int {
	if s == nil {
		return 0
	}
	var n int
	for _, c := range s.Categories {
		if c.Found {
			n++
		}
	}
	return n
}
