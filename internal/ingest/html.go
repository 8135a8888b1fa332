package ingest

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// DefaultSelectors match the data attributes used by the retailer pages
// the scrapers target.
func DefaultSelectors() Selectors {
	return Selectors{
		Product:     "[data-product]",
		Description: ".product-description",
		Price:       ".product-price",
		PromoPrice:  ".product-discount-price",
		Link:        "a",
	}
}

func parseHTML(data []byte, sel Selectors) ([]product, error) {
	if sel.Product == "" {
		sel = DefaultSelectors()
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "ingest: parse html")
	}

	var out []product
	doc.Find(sel.Product).Each(func(_ int, s *goquery.Selection) {
		p := product{
			description: text(s, sel.Description),
			price:       text(s, sel.Price),
			promoPrice:  text(s, sel.PromoPrice),
		}
		if sel.Link != "" {
			link := s.Find(sel.Link).First()
			if link.Length() == 0 && s.Is(sel.Link) {
				link = s
			}
			p.link, _ = link.Attr("href")
		}
		out = append(out, p)
	})
	return out, nil
}

// text returns the whitespace-collapsed text of the first match.
func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}
