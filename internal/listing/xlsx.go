package listing

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/beerprice/internal/model"
)

// Sheet names used by WriteXLSX.
const (
	ListingsSheet = "listings"
	CheapestSheet = "cheapest"
)

// WriteXLSX saves enriched listings and the per-category summary to a
// workbook at path.
func WriteXLSX(path string, layout Layout, listings []model.Listing, summary *model.Summary) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(ListingsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add listings sheet")
	}
	header := append(layout.Columns.names(), layout.Extra...)
	header = append(header, EnrichedHeader...)
	addStringRow(sheet, header)

	for i := range listings {
		l := &listings[i]
		row := sheet.AddRow()
		for _, v := range []string{l.Category, l.SourceReference, l.Description, l.Price, l.PromoPrice} {
			row.AddCell().SetString(v)
		}
		for _, col := range layout.Extra {
			row.AddCell().SetString(l.Extra[col])
		}
		var volume string
		if l.Volume != nil {
			volume = l.Volume.Token
		}
		row.AddCell().SetString(volume)
		if l.Volume != nil {
			row.AddCell().SetFloat(l.Volume.Milliliters)
		} else {
			row.AddCell()
		}
		row.AddCell().SetString(string(l.Package))
		if l.Quantity > 0 {
			row.AddCell().SetInt(l.Quantity)
		} else {
			row.AddCell()
		}
		addFloatCell(row, l.UnitPrice)
		addFloatCell(row, l.PricePerLiter)
		row.AddCell().SetString(l.Error)
	}

	cheapest, err := f.AddSheet(CheapestSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add cheapest sheet")
	}
	addStringRow(cheapest, []string{"category", "price_per_liter", "description", "unit_price", "source_reference"})
	if summary != nil {
		for _, c := range summary.Categories {
			row := cheapest.AddRow()
			row.AddCell().SetString(c.Category)
			if !c.Found || c.Listing == nil {
				row.AddCell().SetString("no valid price")
				continue
			}
			row.AddCell().SetFloat(c.PricePerLiter)
			row.AddCell().SetString(c.Listing.Description)
			addFloatCell(row, c.Listing.UnitPrice)
			row.AddCell().SetString(c.Listing.SourceReference)
		}
	}

	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addFloatCell(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}
