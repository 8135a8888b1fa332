package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// parseJSON reads results.products[]. product_link may be an object with an
// href or a plain string.
func parseJSON(data []byte) ([]product, error) {
	if !gjson.ValidBytes(data) {
		return nil, eris.New("ingest: invalid json")
	}

	items := gjson.GetBytes(data, "results.products")
	if !items.Exists() {
		return nil, eris.New("ingest: json has no results.products")
	}
	if !items.IsArray() {
		return nil, eris.New("ingest: results.products is not an array")
	}

	var out []product
	items.ForEach(func(_, p gjson.Result) bool {
		link := p.Get("product_link.href")
		if !link.Exists() {
			link = p.Get("product_link")
			if link.IsObject() {
				link = gjson.Result{}
			}
		}
		out = append(out, product{
			description: p.Get("product_description").String(),
			price:       p.Get("product_price").String(),
			promoPrice:  p.Get("product_discount_price").String(),
			link:        link.String(),
		})
		return true
	})
	return out, nil
}
