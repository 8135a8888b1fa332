package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/listing"
	"github.com/sells-group/beerprice/internal/model"
	"github.com/sells-group/beerprice/internal/report"
	"github.com/sells-group/beerprice/internal/runner"
	"github.com/sells-group/beerprice/internal/store"
)

// processFlags holds the flag values of the process command.
type processFlags struct {
	CSV     string
	Output  string
	XLSX    string
	Format  string
	Persist bool
}

var procFlags processFlags

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Normalize a scraped listings CSV and report the cheapest beer per category",
	Long: `Reads a listings CSV exported by the supermarket scrapers, extracts volume,
package and quantity from each description, computes unit price and price per
liter, and prints the cheapest listing per category.

Examples:
  # Print the report
  beerprice process --csv items.csv

  # Write enriched CSV and a spreadsheet, and record the run
  beerprice process --csv items.csv --output enriched.csv --xlsx report.xlsx --persist`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("process"); err != nil {
			return err
		}
		if procFlags.Format != "text" && procFlags.Format != "json" {
			return eris.Errorf("process: unknown format %q", procFlags.Format)
		}

		ctx := cmd.Context()

		var st store.Store
		if procFlags.Persist {
			s, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck
			if err := s.Migrate(ctx); err != nil {
				return err
			}
			st = s
		}

		return runProcess(ctx, st, procFlags, os.Stdout)
	},
}

func init() {
	processCmd.Flags().StringVar(&procFlags.CSV, "csv", "", "path to the listings CSV (required)")
	processCmd.Flags().StringVar(&procFlags.Output, "output", "", "write enriched listings to this CSV")
	processCmd.Flags().StringVar(&procFlags.XLSX, "xlsx", "", "write enriched listings and the report to this spreadsheet")
	processCmd.Flags().StringVar(&procFlags.Format, "format", "text", "report format: text or json")
	processCmd.Flags().BoolVar(&procFlags.Persist, "persist", false, "record the run in the configured store")
	_ = processCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(processCmd)
}

// runProcess reads, normalizes and reports one CSV. st may be nil.
func runProcess(ctx context.Context, st store.Store, flags processFlags, out io.Writer) error {
	log := zap.L().With(zap.String("csv", flags.CSV))

	f, err := os.Open(flags.CSV)
	if err != nil {
		return eris.Wrap(err, "process: open csv")
	}
	defer f.Close() //nolint:errcheck

	cols := cfg.Input.Columns
	listings, layout, err := listing.ReadCSV(f, listing.ReadOptions{
		Encoding: cfg.Input.Encoding,
		Columns: listing.Columns{
			Category:        cols.Category,
			SourceReference: cols.SourceReference,
			Description:     cols.Description,
			Price:           cols.Price,
			PromoPrice:      cols.PromoPrice,
		},
	})
	if err != nil {
		return eris.Wrap(err, "process: read csv")
	}
	log.Info("listings loaded", zap.Int("count", len(listings)))

	p, err := initPipeline()
	if err != nil {
		return err
	}

	outcome, err := runner.New(p, st).Process(ctx, flags.CSV, listings)
	if err != nil {
		return eris.Wrap(err, "process: normalize")
	}
	res := outcome.Result

	fields := []zap.Field{
		zap.Int("enriched", res.Stats.Enriched),
		zap.Int("invalid_price", res.Stats.InvalidPrice),
		zap.Int("missing_volume", res.Stats.MissingVolume),
		zap.Int("faulty", res.Stats.Faulty),
	}
	if outcome.Run != nil {
		fields = append(fields, zap.String("run_id", outcome.Run.ID))
	}
	log.Info("listings normalized", fields...)

	if flags.Output != "" {
		if err := writeEnrichedCSV(flags.Output, layout, res.Listings); err != nil {
			return err
		}
		log.Info("enriched csv written", zap.String("path", flags.Output))
	}
	if flags.XLSX != "" {
		if err := listing.WriteXLSX(flags.XLSX, layout, res.Listings, res.Summary); err != nil {
			return eris.Wrap(err, "process: write xlsx")
		}
		log.Info("spreadsheet written", zap.String("path", flags.XLSX))
	}

	if flags.Format == "json" {
		return report.JSON(out, res.Summary)
	}
	return report.Text(out, res.Summary, report.Options{
		CurrencySymbol: cfg.Report.CurrencySymbol,
		Locale:         cfg.Report.Locale,
	})
}

func writeEnrichedCSV(path string, layout listing.Layout, listings []model.Listing) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "process: create output")
	}
	if err := listing.WriteCSV(f, layout, listings, listing.WriteOptions{Enriched: true}); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "process: write output")
	}
	return eris.Wrap(f.Close(), "process: close output")
}
