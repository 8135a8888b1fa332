// Package ingest turns retailer search result payloads into raw listings.
package ingest

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/fetcher"
	"github.com/sells-group/beerprice/internal/model"
)

// SourceColumn holds the page a listing was ingested from in Listing.Extra.
const SourceColumn = "url"

// Format of a search result payload.
type Format string

// Payload formats.
const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// Selectors are the CSS selectors used to read HTML search result pages.
// Description, Price, PromoPrice and Link are relative to Product.
type Selectors struct {
	Product     string
	Description string
	Price       string
	PromoPrice  string
	Link        string
}

// Options configures an Ingester.
type Options struct {
	// Category is the search term; it becomes every listing's category.
	Category string
	// ListingPrefix keeps only descriptions starting with it. Empty keeps all.
	ListingPrefix string
	// MatchCategory additionally requires the description to contain the
	// category term.
	MatchCategory bool
	Format        Format
	Selectors     Selectors
}

// Ingester reads search result payloads from files or URLs.
type Ingester struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// New creates an Ingester. f may be nil when only local files are read.
func New(f fetcher.Fetcher, opts Options) *Ingester {
	opts.ListingPrefix = strings.ToLower(opts.ListingPrefix)
	return &Ingester{fetcher: f, opts: opts}
}

// Ingest reads each source in order and returns the kept listings. Sources
// are fetched one at a time so a retailer sees a single client.
func (in *Ingester) Ingest(ctx context.Context, sources []string) ([]model.Listing, error) {
	var out []model.Listing
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := in.load(ctx, src)
		if err != nil {
			return nil, err
		}

		listings, err := in.Parse(data, src)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: parse %s", src)
		}

		zap.L().Info("ingested search results",
			zap.String("source", src),
			zap.String("category", in.opts.Category),
			zap.Int("listings", len(listings)),
		)
		out = append(out, listings...)
	}
	return out, nil
}

func (in *Ingester) load(ctx context.Context, src string) ([]byte, error) {
	if isURL(src) {
		if in.fetcher == nil {
			return nil, eris.Errorf("ingest: no fetcher configured for %s", src)
		}
		return in.fetcher.Fetch(ctx, src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", src)
	}
	return data, nil
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Parse converts one payload to listings, detecting the format unless
// Options.Format is set. source is recorded in each listing's Extra.
func (in *Ingester) Parse(data []byte, source string) ([]model.Listing, error) {
	format := in.opts.Format
	if format == FormatAuto {
		format = Detect(data)
	}

	var products []product
	var err error
	switch format {
	case FormatJSON:
		products, err = parseJSON(data)
	case FormatHTML:
		products, err = parseHTML(data, in.opts.Selectors)
	default:
		return nil, eris.Errorf("ingest: unknown format %q", format)
	}
	if err != nil {
		return nil, err
	}

	listings := make([]model.Listing, 0, len(products))
	for _, p := range products {
		desc := strings.ToLower(strings.TrimSpace(p.description))
		if !in.keep(desc) {
			continue
		}
		listings = append(listings, model.Listing{
			Category:        in.opts.Category,
			SourceReference: p.link,
			Description:     desc,
			Price:           p.price,
			PromoPrice:      p.promoPrice,
			Extra:           map[string]string{SourceColumn: source},
		})
	}

	if skipped := len(products) - len(listings); skipped > 0 {
		zap.L().Debug("skipped non-matching products",
			zap.String("source", source),
			zap.Int("skipped", skipped),
		)
	}
	return listings, nil
}

func (in *Ingester) keep(desc string) bool {
	if desc == "" {
		return false
	}
	if in.opts.ListingPrefix != "" && !strings.HasPrefix(desc, in.opts.ListingPrefix) {
		return false
	}
	if in.opts.MatchCategory && in.opts.Category != "" &&
		!strings.Contains(desc, strings.ToLower(in.opts.Category)) {
		return false
	}
	return true
}

// Detect guesses the payload format from its first non-space byte.
func Detect(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && gjson.ValidBytes(trimmed) {
		return FormatJSON
	}
	return FormatHTML
}

type product struct {
	description string
	price       string
	promoPrice  string
	link        string
}
