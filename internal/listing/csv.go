// Package listing reads scraper CSV exports into listings and writes
// enriched listings back out as CSV or XLSX.
package listing

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/beerprice/internal/model"
)

// Columns names the CSV header of each listing field.
type Columns struct {
	Category        string
	SourceReference string
	Description     string
	Price           string
	PromoPrice      string
}

// DefaultColumns matches the header written by the scrapers.
func DefaultColumns() Columns {
	return Columns{
		Category:        "item",
		SourceReference: "product_link",
		Description:     "product_description",
		Price:           "product_price",
		PromoPrice:      "product_discount_price",
	}
}

func (c Columns) names() []string {
	return []string{c.Category, c.SourceReference, c.Description, c.Price, c.PromoPrice}
}

// Layout describes the columns of a file: the mapped listing fields plus
// any other columns, in header order, carried through in Listing.Extra.
type Layout struct {
	Columns Columns
	Extra   []string
}

// ReadOptions configures ReadCSV.
type ReadOptions struct {
	// Encoding is "utf-8" (default) or "latin-1".
	Encoding string
	Columns  Columns
}

// EnrichedHeader lists the columns WriteCSV appends for enriched output.
var EnrichedHeader = []string{"volume", "volume_value", "package_type", "quantity", "unit_price", "price_per_liter", "error"}

// ReadCSV decodes listings from r. The description column is required;
// other mapped columns may be absent and read as empty strings.
func ReadCSV(r io.Reader, opts ReadOptions) ([]model.Listing, Layout, error) {
	cols := opts.Columns
	if cols == (Columns{}) {
		cols = DefaultColumns()
	}
	layout := Layout{Columns: cols}

	src, err := decoder(r, opts.Encoding)
	if err != nil {
		return nil, layout, err
	}

	reader := csv.NewReader(src)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, layout, eris.New("listing: csv is empty")
	}
	if err != nil {
		return nil, layout, eris.Wrap(err, "listing: read header")
	}

	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}
	if _, ok := colIdx[cols.Description]; !ok {
		return nil, layout, eris.Errorf("listing: missing required column %q", cols.Description)
	}

	mapped := make(map[string]bool, 5)
	for _, n := range cols.names() {
		mapped[n] = true
	}
	for _, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if !mapped[col] && col != "" {
			layout.Extra = append(layout.Extra, col)
		}
	}

	var listings []model.Listing
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, layout, eris.Wrapf(err, "listing: read row %d", line)
		}
		if isBlank(row) {
			continue
		}

		l := model.Listing{
			Category:        getCol(row, colIdx, cols.Category),
			SourceReference: getCol(row, colIdx, cols.SourceReference),
			Description:     getCol(row, colIdx, cols.Description),
			Price:           getCol(row, colIdx, cols.Price),
			PromoPrice:      getCol(row, colIdx, cols.PromoPrice),
		}
		if len(layout.Extra) > 0 {
			l.Extra = make(map[string]string, len(layout.Extra))
			for _, col := range layout.Extra {
				l.Extra[col] = getCol(row, colIdx, col)
			}
		}
		listings = append(listings, l)
	}

	return listings, layout, nil
}

func decoder(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return r, nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	}
	return nil, eris.Errorf("listing: unsupported encoding %q", encoding)
}

// getCol safely retrieves a column value from a CSV row.
func getCol(row []string, colIdx map[string]int, col string) string {
	idx, ok := colIdx[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteOptions configures WriteCSV.
type WriteOptions struct {
	// Enriched appends the EnrichedHeader columns.
	Enriched bool
}

// WriteCSV encodes listings as UTF-8 CSV using layout for the header.
func WriteCSV(w io.Writer, layout Layout, listings []model.Listing, opts WriteOptions) error {
	cw := csv.NewWriter(w)

	header := append(layout.Columns.names(), layout.Extra...)
	if opts.Enriched {
		header = append(header, EnrichedHeader...)
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "listing: write header")
	}

	for i := range listings {
		l := &listings[i]
		row := []string{l.Category, l.SourceReference, l.Description, l.Price, l.PromoPrice}
		for _, col := range layout.Extra {
			row = append(row, l.Extra[col])
		}
		if opts.Enriched {
			row = append(row, enrichedCells(l)...)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "listing: write row %d", i+1)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "listing: flush csv")
}

func enrichedCells(l *model.Listing) []string {
	var volume, volumeValue, quantity string
	if l.Volume != nil {
		volume = l.Volume.Token
		volumeValue = formatFloat(&l.Volume.Milliliters)
	}
	if l.Quantity > 0 {
		quantity = strconv.Itoa(l.Quantity)
	}
	return []string{
		volume,
		volumeValue,
		string(l.Package),
		quantity,
		formatFloat(l.UnitPrice),
		formatFloat(l.PricePerLiter),
		l.Error,
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
