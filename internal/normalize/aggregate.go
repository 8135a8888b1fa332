package normalize

import (
	"strings"

	"github.com/sells-group/beerprice/internal/model"
)

// DefaultReferenceSeparator joins source references of tied listings.
const DefaultReferenceSeparator = ","

// Aggregator picks the cheapest listing per category.
type Aggregator struct {
	sep string
}

// NewAggregator returns an Aggregator joining tied references with sep.
func NewAggregator(sep string) *Aggregator {
	if sep == "" {
		sep = DefaultReferenceSeparator
	}
	return &Aggregator{sep: sep}
}

// Aggregate folds listings, in order, into one minimum per category. An
// empty category is a category like any other.
// It must run on a single goroutine: ties are resolved in favor of the
// first listing to reach a minimum, whose copy then collects the source
// references of later ties.
func (a *Aggregator) Aggregate(listings []model.Listing) *model.Summary {
	index := make(map[string]int)
	var mins []model.CategoryMinimum

	for i := range listings {
		l := &listings[i]
		pos, ok := index[l.Category]
		if !ok {
			pos = len(mins)
			index[l.Category] = pos
			mins = append(mins, model.CategoryMinimum{Category: l.Category})
		}
		if !l.HasPricePerLiter() {
			continue
		}
		mins[pos] = a.step(mins[pos], l)
	}

	return &model.Summary{Categories: mins}
}

// step returns the category minimum after considering l. cur is never
// modified; a replacement carries its own copy of the listing.
func (a *Aggregator) step(cur model.CategoryMinimum, l *model.Listing) model.CategoryMinimum {
	ppl := *l.PricePerLiter
	switch {
	case !cur.Found || ppl < cur.PricePerLiter:
		best := l.Clone()
		return model.CategoryMinimum{
			Category:      cur.Category,
			Found:         true,
			PricePerLiter: ppl,
			Listing:       &best,
		}
	case ppl == cur.PricePerLiter && !a.hasReference(cur.Listing.SourceReference, l.SourceReference):
		merged := cur.Listing.Clone()
		merged.SourceReference = a.join(merged.SourceReference, l.SourceReference)
		next := cur
		next.Listing = &merged
		return next
	}
	return cur
}

func (a *Aggregator) hasReference(joined, ref string) bool {
	if joined == ref {
		return true
	}
	ref = strings.TrimSpace(ref)
	for _, r := range strings.Split(joined, a.sep) {
		if strings.TrimSpace(r) == ref {
			return true
		}
	}
	return false
}

func (a *Aggregator) join(joined, ref string) string {
	if joined == "" {
		return ref
	}
	if ref == "" {
		return joined
	}
	return joined + a.sep + ref
}
