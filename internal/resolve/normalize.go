// Package resolve maps raw product references from purchase extracts to
// canonical products using explicit consolidation rules first and
// normalized-name matching as fallback.
package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// accentFold strips combining marks so "Bœuf Séché" and "Boeuf Seche" match.
var accentFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName standardizes a raw product name for matching by:
//  1. Trimming whitespace
//  2. Folding accents (é -> e, œ stays handled by the ligature replacer)
//  3. Converting to uppercase
//  4. Stripping punctuation (commas, periods, quotes, parens, dashes)
//  5. Collapsing multiple spaces into single spaces
//
// Matching stays exact after normalization: no string-distance fuzzing.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	// Ligatures first; the mark stripper does not split them.
	name = strings.NewReplacer("œ", "oe", "Œ", "OE", "æ", "ae", "Æ", "AE").Replace(name)

	if folded, _, err := transform.String(accentFold, name); err == nil {
		name = folded
	}

	name = strings.ToUpper(name)

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"(", " ",
		")", " ",
		"-", " ",
		"/", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	return name
}
