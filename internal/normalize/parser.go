// Package normalize turns raw scraped listings into comparable prices:
// it parses descriptions, resolves prices, derives unit and per-liter
// prices, and picks the cheapest listing per category.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/model"
	"github.com/sells-group/beerprice/internal/vocab"
)

// Attributes are the structured fields read from a description.
type Attributes struct {
	Volume   *model.Volume
	Package  model.PackageKind
	Quantity int
}

// Parser extracts volume, package kind and pack quantity from free text.
type Parser struct {
	volumes  []vocab.VolumeUnit
	packages []vocab.PackageTerm
	qtyRe    *regexp.Regexp
}

// NewParser builds a Parser over v. Tokens are folded once here so Parse
// only has to fold the description.
func NewParser(v *vocab.Vocabulary) *Parser {
	p := &Parser{
		volumes:  make([]vocab.VolumeUnit, 0, len(v.VolumeUnits)),
		packages: make([]vocab.PackageTerm, 0, len(v.Packages)),
	}
	for _, u := range v.VolumeUnits {
		p.volumes = append(p.volumes, vocab.VolumeUnit{Token: vocab.Fold(u.Token), Milliliters: u.Milliliters})
	}
	for _, t := range v.Packages {
		p.packages = append(p.packages, vocab.PackageTerm{Term: vocab.Fold(t.Term), Kind: t.Kind})
	}
	p.qtyRe = quantityPattern(v.PackWords)
	return p
}

// quantityPattern matches "<integer> <pack word>" with the word ending at a
// non-letter or end of text. Go's \b is ASCII-only, so the trailing
// boundary is spelled out to support words such as "pç".
func quantityPattern(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	sorted := make([]string, 0, len(words))
	for _, w := range words {
		sorted = append(sorted, regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(w))))
	}
	// Longest first so "unidades" is tried before "un".
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return regexp.MustCompile(`(?i)\b(\d+)\s*(?:` + strings.Join(sorted, "|") + `)(?:[^\p{L}\p{N}_]|$)`)
}

// Parse reads all attributes from description.
func (p *Parser) Parse(description string) Attributes {
	vol, pkg := p.VolumeAndPackage(description)
	return Attributes{
		Volume:   vol,
		Package:  pkg,
		Quantity: p.Quantity(description),
	}
}

// VolumeAndPackage returns the first volume and package vocabulary entries
// contained in the whitespace-free, lowercased description.
func (p *Parser) VolumeAndPackage(description string) (*model.Volume, model.PackageKind) {
	folded := vocab.Fold(description)

	var vol *model.Volume
	for _, u := range p.volumes {
		if strings.Contains(folded, u.Token) {
			vol = &model.Volume{Token: u.Token, Milliliters: u.Milliliters}
			break
		}
	}

	pkg := model.PackageNone
	for _, t := range p.packages {
		if strings.Contains(folded, t.Term) {
			pkg = t.Kind
			break
		}
	}

	zap.L().Debug("normalize: parsed description",
		zap.String("description", description),
		zap.Any("volume", vol),
		zap.String("package", string(pkg)),
	)
	return vol, pkg
}

// Quantity returns the pack size stated in description, or 1.
func (p *Parser) Quantity(description string) int {
	if p.qtyRe == nil {
		return 1
	}
	m := p.qtyRe.FindStringSubmatch(description)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
