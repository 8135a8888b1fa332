// Package vocab holds the domain vocabulary used to read scraped listings:
// volume units, package synonyms, pack words and currency conventions.
package vocab

import (
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/beerprice/internal/model"
)

// VolumeUnit maps a unit label as it appears in descriptions to milliliters.
type VolumeUnit struct {
	Token       string  `yaml:"token"`
	Milliliters float64 `yaml:"ml"`
}

// PackageTerm maps a description term to a package kind.
type PackageTerm struct {
	Term string            `yaml:"term"`
	Kind model.PackageKind `yaml:"kind"`
}

// Vocabulary is the full set of matching tables. Order inside VolumeUnits
// and Packages is the match priority: the first entry found wins.
type Vocabulary struct {
	VolumeUnits        []VolumeUnit  `yaml:"volume_units"`
	Packages           []PackageTerm `yaml:"packages"`
	PackWords          []string      `yaml:"pack_words"`
	CurrencySymbols    []string      `yaml:"currency_symbols"`
	DecimalSeparator   string        `yaml:"decimal_separator"`
	ThousandsSeparator string        `yaml:"thousands_separator"`
	ReferenceSeparator string        `yaml:"reference_separator"`
}

// Default returns the Brazilian Portuguese vocabulary the scrapers were
// built against.
func Default() *Vocabulary {
	return &Vocabulary{
		VolumeUnits: []VolumeUnit{
			{Token: "5l", Milliliters: 5000},
			{Token: "600ml", Milliliters: 600},
			{Token: "350ml", Milliliters: 350},
			{Token: "330ml", Milliliters: 330},
			{Token: "275ml", Milliliters: 275},
			{Token: "269ml", Milliliters: 269},
			{Token: "250ml", Milliliters: 250},
			{Token: "210ml", Milliliters: 210},
		},
		Packages: []PackageTerm{
			{Term: "lata", Kind: model.PackageCan},
			{Term: "garrafa", Kind: model.PackageBottle},
			{Term: "longneck", Kind: model.PackageBottle},
			{Term: "ln", Kind: model.PackageBottle},
			{Term: "barril", Kind: model.PackageKeg},
			{Term: "keg", Kind: model.PackageKeg},
		},
		PackWords:          []string{"unidades", "unidade", "und", "un", "pack", "pacote", "caixa", "cx", "pç"},
		CurrencySymbols:    []string{"R$"},
		DecimalSeparator:   ",",
		ThousandsSeparator: ".",
		ReferenceSeparator: ",",
	}
}

// Load reads a vocabulary from a YAML file. Fields missing from the file
// keep their Default values.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vocab: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML vocabulary document on top of Default.
func Parse(data []byte) (*Vocabulary, error) {
	v := Default()
	var doc Vocabulary
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "vocab: decode yaml")
	}
	if len(doc.VolumeUnits) > 0 {
		v.VolumeUnits = doc.VolumeUnits
	}
	if len(doc.Packages) > 0 {
		v.Packages = doc.Packages
	}
	if len(doc.PackWords) > 0 {
		v.PackWords = doc.PackWords
	}
	if len(doc.CurrencySymbols) > 0 {
		v.CurrencySymbols = doc.CurrencySymbols
	}
	if doc.DecimalSeparator != "" {
		v.DecimalSeparator = doc.DecimalSeparator
	}
	if doc.ThousandsSeparator != "" {
		v.ThousandsSeparator = doc.ThousandsSeparator
	}
	if doc.ReferenceSeparator != "" {
		v.ReferenceSeparator = doc.ReferenceSeparator
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks the tables for entries the parser cannot use.
func (v *Vocabulary) Validate() error {
	if len(v.VolumeUnits) == 0 {
		return eris.New("vocab: no volume units")
	}
	seen := make(map[string]bool, len(v.VolumeUnits))
	for _, u := range v.VolumeUnits {
		tok := Fold(u.Token)
		if tok == "" {
			return eris.New("vocab: empty volume token")
		}
		if u.Milliliters <= 0 {
			return eris.Errorf("vocab: volume %q must be positive", u.Token)
		}
		if seen[tok] {
			return eris.Errorf("vocab: duplicate volume token %q", u.Token)
		}
		seen[tok] = true
	}
	for _, p := range v.Packages {
		if Fold(p.Term) == "" {
			return eris.New("vocab: empty package term")
		}
		if p.Kind == model.PackageNone || !p.Kind.Valid() {
			return eris.Errorf("vocab: package term %q has unknown kind %q", p.Term, p.Kind)
		}
	}
	for _, w := range v.PackWords {
		if strings.TrimSpace(w) == "" {
			return eris.New("vocab: empty pack word")
		}
	}
	if v.DecimalSeparator == v.ThousandsSeparator {
		return eris.Errorf("vocab: decimal and thousands separators are both %q", v.DecimalSeparator)
	}
	return nil
}

// Marshal renders the vocabulary as YAML.
func (v *Vocabulary) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(v)
	return out, eris.Wrap(err, "vocab: encode yaml")
}

// Fold lowercases s and removes every whitespace rune. Descriptions and
// vocabulary tokens are compared in this form.
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
