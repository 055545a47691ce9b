package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "Poulet Entier", "POULET ENTIER"},
		{"trim", "  Poulet Entier  ", "POULET ENTIER"},
		{"accents", "Huile de Tournesol Raffinée", "HUILE DE TOURNESOL RAFFINEE"},
		{"ligature", "Filet de Bœuf", "FILET DE BOEUF"},
		{"parens", "Poulet Cru (Kg)", "POULET CRU KG"},
		{"punctuation", "Mayonnaise Calve, 820ml.", "MAYONNAISE CALVE 820ML"},
		{"dashes", "Pommes-de-terre Allumettes", "POMMES DE TERRE ALLUMETTES"},
		{"multi space", "Ailes  de   Poulet", "AILES DE POULET"},
		{"empty", "   ", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeName(tc.input))
		})
	}
}

func TestNormalizeName_VariantsCollapse(t *testing.T) {
	// The same ingredient under different export spellings normalizes to
	// one key.
	variants := []string{
		"Poulet Cru (Kg)",
		"poulet cru (kg)",
		"POULET CRU  (KG)",
	}
	first := NormalizeName(variants[0])
	for _, v := range variants[1:] {
		assert.Equal(t, first, NormalizeName(v))
	}
}
