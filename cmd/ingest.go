package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/fetcher"
	"github.com/sells-group/beerprice/internal/ingest"
	"github.com/sells-group/beerprice/internal/listing"
	"github.com/sells-group/beerprice/internal/model"
)

var (
	ingestSources       []string
	ingestCategory      string
	ingestOutput        string
	ingestFormat        string
	ingestMatchCategory bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Convert saved or live search result pages into a listings CSV",
	Long: `Reads supermarket search results (JSON API responses or HTML pages) from
local files or URLs and writes them as a listings CSV that process accepts.

Examples:
  # Convert saved search responses
  beerprice ingest --source results-1.json --source results-2.json --category heineken --output items.csv

  # Fetch a live search page
  beerprice ingest --source "https://mercado.example/busca?q=skol" --category skol --output items.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		switch ingest.Format(ingestFormat) {
		case ingest.FormatAuto, ingest.FormatJSON, ingest.FormatHTML:
		default:
			return eris.Errorf("ingest: unknown format %q", ingestFormat)
		}
		return runIngest(cmd.Context(), newHTTPFetcher(), ingestSources, ingestOutput)
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestSources, "source", nil, "file path or URL of a search result payload (repeatable)")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "search term recorded as each listing's category (required)")
	ingestCmd.Flags().StringVar(&ingestOutput, "output", "", "path of the listings CSV to write (required)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "payload format: json or html (default: detect)")
	ingestCmd.Flags().BoolVar(&ingestMatchCategory, "match-category", false, "keep only descriptions containing the category term")
	_ = ingestCmd.MarkFlagRequired("source")
	_ = ingestCmd.MarkFlagRequired("category")
	_ = ingestCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(ingestCmd)
}

func newHTTPFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Ingest.UserAgent,
		Timeout:    time.Duration(cfg.Ingest.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Ingest.MaxRetries,
		RatePerSec: cfg.Ingest.RatePerSec,
	})
}

func runIngest(ctx context.Context, f fetcher.Fetcher, sources []string, output string) error {
	sel := cfg.Ingest.Selectors
	in := ingest.New(f, ingest.Options{
		Category:      ingestCategory,
		ListingPrefix: cfg.Ingest.ListingPrefix,
		MatchCategory: ingestMatchCategory,
		Format:        ingest.Format(ingestFormat),
		Selectors: ingest.Selectors{
			Product:     sel.Product,
			Description: sel.Description,
			Price:       sel.Price,
			PromoPrice:  sel.PromoPrice,
			Link:        sel.Link,
		},
	})

	listings, err := in.Ingest(ctx, sources)
	if err != nil {
		return err
	}

	zap.L().Info("search results ingested",
		zap.Int("sources", len(sources)),
		zap.Int("listings", len(listings)),
		zap.String("category", ingestCategory),
	)

	return writeListingsCSV(output, listings)
}

func writeListingsCSV(path string, listings []model.Listing) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "ingest: create output")
	}
	layout := listing.Layout{
		Columns: listing.DefaultColumns(),
		Extra:   []string{ingest.SourceColumn},
	}
	if err := listing.WriteCSV(f, layout, listings, listing.WriteOptions{}); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "ingest: write output")
	}
	return eris.Wrap(f.Close(), "ingest: close output")
}
