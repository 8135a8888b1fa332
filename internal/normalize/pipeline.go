package normalize

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/beerprice/internal/model"
	"github.com/sells-group/beerprice/internal/vocab"
)

// ErrMissingDescription marks a listing that has nothing to parse.
var ErrMissingDescription = eris.New("normalize: missing description")

// Options configures a Pipeline.
type Options struct {
	// Workers bounds concurrent enrichment. Zero means GOMAXPROCS.
	Workers int
	// Policy decides unit prices for multi-unit packs. Nil means PerUnitHeuristic.
	Policy UnitPricePolicy
}

// Result is the output of one pipeline run.
type Result struct {
	Listings []model.Listing `json:"listings"`
	Summary  *model.Summary  `json:"summary"`
	Stats    model.RunStats  `json:"stats"`
}

// Pipeline enriches listings in parallel, then aggregates them once.
type Pipeline struct {
	parser     *Parser
	resolver   *Resolver
	aggregator *Aggregator
	policy     UnitPricePolicy
	workers    int
}

// New builds a Pipeline over vocabulary v.
func New(v *vocab.Vocabulary, opts Options) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	policy := opts.Policy
	if policy == nil {
		policy = PerUnitHeuristic
	}
	return &Pipeline{
		parser:     NewParser(v),
		resolver:   NewResolver(v),
		aggregator: NewAggregator(v.ReferenceSeparator),
		policy:     policy,
		workers:    workers,
	}
}

// Run enriches every listing and aggregates the cheapest per category.
// The input slice is not modified. Output order equals input order. A
// faulty listing is emitted unenriched with Error set; only context
// cancellation fails the run.
func (p *Pipeline) Run(ctx context.Context, listings []model.Listing) (*Result, error) {
	out := make([]model.Listing, len(listings))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range listings {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = p.enrichSafe(i, listings[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := p.aggregator.Aggregate(out)
	stats := collectStats(out, summary)

	zap.L().Info("normalize: run complete",
		zap.Int("total", stats.Total),
		zap.Int("enriched", stats.Enriched),
		zap.Int("invalid_price", stats.InvalidPrice),
		zap.Int("missing_volume", stats.MissingVolume),
		zap.Int("faulty", stats.Faulty),
		zap.Int("categories", stats.Categories),
	)

	return &Result{Listings: out, Summary: summary, Stats: stats}, nil
}

// enrichSafe runs Enrich and converts a panic into a per-listing error so
// one bad row cannot take down the batch.
func (p *Pipeline) enrichSafe(idx int, in model.Listing) (out model.Listing) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("normalize: listing panicked",
				zap.Int("index", idx),
				zap.Any("panic", r),
			)
			out = in.Clone()
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	enriched, err := p.Enrich(in)
	if err != nil {
		zap.L().Warn("normalize: listing not enriched",
			zap.Int("index", idx),
			zap.String("category", in.Category),
			zap.Error(err),
		)
		out = in.Clone()
		out.Error = err.Error()
		return out
	}
	return enriched
}

// Enrich runs parse, resolve, unit price and per-liter steps on a copy of
// in. A listing without a valid price is returned with attributes set and
// numeric fields unset.
func (p *Pipeline) Enrich(in model.Listing) (model.Listing, error) {
	if strings.TrimSpace(in.Description) == "" {
		return in, ErrMissingDescription
	}
	l := in.Clone()

	attrs := p.parser.Parse(l.Description)
	l.Volume = attrs.Volume
	l.Package = attrs.Package
	l.Quantity = attrs.Quantity

	res := p.resolver.Resolve(l.Price, l.PromoPrice)
	if !res.OK {
		zap.L().Warn("normalize: no valid price, skipping numeric steps",
			zap.String("description", l.Description),
			zap.String("price", l.Price),
			zap.String("promo", l.PromoPrice),
		)
		return l, nil
	}
	if IsValidPrice(res.Price) {
		l.PriceValue = model.Float(res.Price)
	}
	if IsValidPrice(res.Promo) {
		l.PromoValue = model.Float(res.Promo)
	}
	l.EffectivePrice = model.Float(res.Effective)

	unit, divided := p.policy(res.Price, res.Promo, res.Effective, l.Quantity)
	l.UnitPrice = model.Float(unit)
	l.AmbiguousPrice = divided

	if l.Volume != nil {
		if ppl, ok := PerLiter(unit, l.Volume.Milliliters); ok {
			l.PricePerLiter = model.Float(ppl)
		}
	}
	return l, nil
}

func collectStats(listings []model.Listing, summary *model.Summary) model.RunStats {
	s := model.RunStats{Total: len(listings)}
	for i := range listings {
		l := &listings[i]
		switch {
		case l.Error != "":
			s.Faulty++
			continue
		case l.EffectivePrice == nil:
			s.InvalidPrice++
		case l.Volume == nil:
			s.MissingVolume++
		}
		if l.HasPricePerLiter() {
			s.Enriched++
		}
		if l.AmbiguousPrice {
			s.AmbiguousPrice++
		}
	}
	s.Categories = len(summary.Categories)
	s.CategoriesHit = summary.FoundCount()
	return s
}
