// Package report renders the cheapest-per-category summary.
package report

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/beerprice/internal/model"
)

// NoValidPrice is printed for a category without any usable price per liter.
const NoValidPrice = "No valid prices found for this product type."

// Options configures Text.
type Options struct {
	// CurrencySymbol prefixes every amount. Default "R$".
	CurrencySymbol string
	// Locale is a BCP 47 tag used for number formatting. Default "pt-BR".
	Locale string
}

func (o Options) printer() (*message.Printer, string, error) {
	sym := o.CurrencySymbol
	if sym == "" {
		sym = "R$"
	}
	loc := o.Locale
	if loc == "" {
		loc = "pt-BR"
	}
	tag, err := language.Parse(loc)
	if err != nil {
		return nil, "", eris.Wrapf(err, "report: parse locale %q", loc)
	}
	return message.NewPrinter(tag), sym, nil
}

// Text writes one block per category in summary order.
func Text(w io.Writer, summary *model.Summary, opts Options) error {
	p, sym, err := opts.printer()
	if err != nil {
		return err
	}
	if summary == nil || len(summary.Categories) == 0 {
		_, err := io.WriteString(w, "No listings with a category were processed.\n")
		return eris.Wrap(err, "report: write")
	}

	for _, c := range summary.Categories {
		if !c.Found || c.Listing == nil {
			_, err = p.Fprintf(w, "Lowest price per liter for %s: none\n%s\n\n", c.Category, NoValidPrice)
		} else {
			_, err = p.Fprintf(w, "Lowest price per liter for %s: %s %.2f\n", c.Category, sym, c.PricePerLiter)
			if err == nil {
				err = writeListing(p, w, sym, c.Listing)
			}
		}
		if err != nil {
			return eris.Wrap(err, "report: write")
		}
	}
	return nil
}

func writeListing(p *message.Printer, w io.Writer, sym string, l *model.Listing) error {
	if _, err := p.Fprintf(w, "Product Description: %s\n", l.Description); err != nil {
		return err
	}
	if l.UnitPrice != nil {
		if _, err := p.Fprintf(w, "Unit Price: %s %.2f\n", sym, *l.UnitPrice); err != nil {
			return err
		}
	}
	_, err := p.Fprintf(w, "Product Link: %s\n\n", l.SourceReference)
	return err
}

// JSON writes summary as indented JSON.
func JSON(w io.Writer, summary *model.Summary) error {
	if summary == nil {
		summary = &model.Summary{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(summary), "report: encode json")
}
