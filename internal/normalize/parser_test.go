package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/beerprice/internal/model"
	"github.com/sells-group/beerprice/internal/vocab"
)

func newTestParser() *Parser {
	return NewParser(vocab.Default())
}

func TestVolumeAndPackage_EveryToken(t *testing.T) {
	p := newTestParser()
	for _, u := range vocab.Default().VolumeUnits {
		t.Run(u.Token, func(t *testing.T) {
			// Spread the token out with whitespace; matching ignores it.
			spaced := ""
			for _, r := range u.Token {
				spaced += string(r) + " \t"
			}
			vol, _ := p.VolumeAndPackage("cerveja teste " + spaced)
			require.NotNil(t, vol)
			assert.Equal(t, u.Token, vol.Token)
			assert.InDelta(t, u.Milliliters, vol.Milliliters, 0.001)
		})
	}
}

func TestVolumeAndPackage_StellaLata(t *testing.T) {
	vol, pkg := newTestParser().VolumeAndPackage("Stella Artois Lata 350ml")
	require.NotNil(t, vol)
	assert.Equal(t, "350ml", vol.Token)
	assert.InDelta(t, 350, vol.Milliliters, 0.001)
	assert.Equal(t, model.PackageCan, pkg)
}

func TestVolumeAndPackage_NoMatch(t *testing.T) {
	vol, pkg := newTestParser().VolumeAndPackage("cerveja artesanal ipa")
	assert.Nil(t, vol)
	assert.Equal(t, model.PackageNone, pkg)
}

func TestVolumeAndPackage_PackageSynonyms(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		desc string
		want model.PackageKind
	}{
		{"cerveja heineken garrafa 600ml", model.PackageBottle},
		{"Cerveja Stella Long Neck 330ml", model.PackageBottle},
		{"cerveja corona ln 330ml", model.PackageBottle},
		{"cerveja heineken barril 5l", model.PackageKeg},
		{"cerveja heineken keg 5 L", model.PackageKeg},
		{"CERVEJA BECKS LATA 350ML", model.PackageCan},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, pkg := p.VolumeAndPackage(tt.desc)
			assert.Equal(t, tt.want, pkg)
		})
	}
}

func TestVolumeAndPackage_PriorityFollowsDeclaredOrder(t *testing.T) {
	// "1,5l" also contains "5l"; whichever is declared first wins.
	first := vocab.Default()
	first.VolumeUnits = []vocab.VolumeUnit{{Token: "1,5l", Milliliters: 1500}, {Token: "5l", Milliliters: 5000}}
	second := vocab.Default()
	second.VolumeUnits = []vocab.VolumeUnit{{Token: "5l", Milliliters: 5000}, {Token: "1,5l", Milliliters: 1500}}

	vol, _ := NewParser(first).VolumeAndPackage("cerveja pet 1,5l")
	require.NotNil(t, vol)
	assert.InDelta(t, 1500, vol.Milliliters, 0.001)

	vol, _ = NewParser(second).VolumeAndPackage("cerveja pet 1,5l")
	require.NotNil(t, vol)
	assert.InDelta(t, 5000, vol.Milliliters, 0.001)
}

func TestVolumeAndPackage_PackagePriority(t *testing.T) {
	// "kiln" contains "ln" but "lata" is declared earlier.
	_, pkg := newTestParser().VolumeAndPackage("cerveja kiln lata 350ml")
	assert.Equal(t, model.PackageCan, pkg)
}

func TestQuantity(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		desc string
		want int
	}{
		{"cerveja stella lata 350ml 12 unidades", 12},
		{"cerveja stella lata 350ml 1 unidade", 1},
		{"cerveja heineken pack 6 un", 6},
		{"cerveja heineken 6 pack", 6},
		{"cerveja heineken 6pack lata", 6},
		{"Cerveja Becks 8 UND 269ml", 8},
		{"cerveja corona caixa 24 cx", 24},
		{"cerveja corona 15 Pacote", 15},
		{"cerveja brahma 18 pç", 18},
		{"cerveja brahma 12 un.", 12},
		{"cerveja stella lata 350ml", 1},
		{"cerveja 12 unid", 1},
		{"cerveja 0 unidades", 1},
		{"", 1},
		{"cerveja 4 unidades e 6 unidades", 4},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Quantity(tt.desc))
		})
	}
}

func TestQuantity_NoPackWords(t *testing.T) {
	v := vocab.Default()
	v.PackWords = nil
	assert.Equal(t, 1, NewParser(v).Quantity("cerveja 12 unidades"))
}

func TestParse_AllAttributes(t *testing.T) {
	attrs := newTestParser().Parse("Cerveja Heineken Lata 350ml 12 Unidades")
	require.NotNil(t, attrs.Volume)
	assert.Equal(t, "350ml", attrs.Volume.Token)
	assert.Equal(t, model.PackageCan, attrs.Package)
	assert.Equal(t, 12, attrs.Quantity)
}
