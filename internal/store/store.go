// Package store persists pipeline runs, their enriched listings and the
// cheapest-per-category summary.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/beerprice/internal/model"
)

// ErrNotFound is returned unwrapped when a run does not exist.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Input  string          `json:"input,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`

	// CreatedAfter, when set, keeps runs created at or after this time.
	CreatedAfter time.Time `json:"created_after,omitempty"`
}

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, stats model.RunStats) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveListings(ctx context.Context, runID string, listings []model.Listing) error
	ListListings(ctx context.Context, runID string) ([]model.Listing, error)
	SaveSummary(ctx context.Context, runID string, summary *model.Summary) error
	// GetSummary returns nil when the run has no stored summary.
	GetSummary(ctx context.Context, runID string) (*model.Summary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

// listingColumns is the column order used by listingRow and scanListing.
var listingColumns = []string{
	"run_id", "position", "category", "source_reference", "description",
	"price", "promo_price", "extra", "volume_token", "volume_ml",
	"package_kind", "quantity", "price_value", "promo_value",
	"effective_price", "unit_price", "price_per_liter", "ambiguous_price", "error",
}

var summaryColumns = []string{"run_id", "position", "category", "found", "price_per_liter", "listing"}

func listingRow(runID string, pos int, l *model.Listing) ([]any, error) {
	var extra *string
	if len(l.Extra) > 0 {
		b, err := json.Marshal(l.Extra)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal extra")
		}
		s := string(b)
		extra = &s
	}

	var token *string
	var ml *float64
	if l.Volume != nil {
		token = &l.Volume.Token
		ml = &l.Volume.Milliliters
	}

	return []any{
		runID, pos, l.Category, l.SourceReference, l.Description,
		l.Price, l.PromoPrice, extra, token, ml,
		string(l.Package), l.Quantity, l.PriceValue, l.PromoValue,
		l.EffectivePrice, l.UnitPrice, l.PricePerLiter, l.AmbiguousPrice, l.Error,
	}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanListing reads the listingColumns after run_id and position.
func scanListing(row scannable) (model.Listing, error) {
	var l model.Listing
	var extra, token *string
	var ml *float64
	var pkg string

	err := row.Scan(
		&l.Category, &l.SourceReference, &l.Description,
		&l.Price, &l.PromoPrice, &extra, &token, &ml,
		&pkg, &l.Quantity, &l.PriceValue, &l.PromoValue,
		&l.EffectivePrice, &l.UnitPrice, &l.PricePerLiter, &l.AmbiguousPrice, &l.Error,
	)
	if err != nil {
		return l, eris.Wrap(err, "store: scan listing")
	}

	l.Package = model.PackageKind(pkg)
	if token != nil && ml != nil {
		l.Volume = &model.Volume{Token: *token, Milliliters: *ml}
	}
	if extra != nil {
		if err := json.Unmarshal([]byte(*extra), &l.Extra); err != nil {
			return l, eris.Wrap(err, "store: unmarshal extra")
		}
	}
	return l, nil
}

func summaryRow(runID string, pos int, c *model.CategoryMinimum) ([]any, error) {
	var listing *string
	var ppl *float64
	if c.Found {
		ppl = &c.PricePerLiter
	}
	if c.Listing != nil {
		b, err := json.Marshal(c.Listing)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal summary listing")
		}
		s := string(b)
		listing = &s
	}
	return []any{runID, pos, c.Category, c.Found, ppl, listing}, nil
}

// scanCategory reads category, found, price_per_liter and listing.
func scanCategory(row scannable) (model.CategoryMinimum, error) {
	var c model.CategoryMinimum
	var ppl *float64
	var listing *string

	if err := row.Scan(&c.Category, &c.Found, &ppl, &listing); err != nil {
		return c, eris.Wrap(err, "store: scan summary")
	}
	if ppl != nil {
		c.PricePerLiter = *ppl
	}
	if listing != nil {
		c.Listing = &model.Listing{}
		if err := json.Unmarshal([]byte(*listing), c.Listing); err != nil {
			return c, eris.Wrap(err, "store: unmarshal summary listing")
		}
	}
	return c, nil
}

func marshalStats(stats model.RunStats) (string, error) {
	b, err := json.Marshal(stats)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal stats")
	}
	return string(b), nil
}

func unmarshalStats(raw *string) (*model.RunStats, error) {
	if raw == nil {
		return nil, nil
	}
	var s model.RunStats
	if err := json.Unmarshal([]byte(*raw), &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal stats")
	}
	return &s, nil
}
