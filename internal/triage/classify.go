package triage

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Classification is the productivity verdict shown for a result.
type Classification string

const (
	Productive   Classification = "productive"
	Unproductive Classification = "unproductive"
	Undefined    Classification = "undefined"
)

var unproductiveLabels = map[string]struct{}{
	"spam":         {},
	"erro":         {},
	"error":        {},
	"improdutivo":  {},
	"unproductive": {},
}

// Classify maps a category label to a Classification. It depends on the
// label only; the attention flag is reported separately.
func Classify(category string) Classification {
	label := NormalizeCategory(category)

	switch {
	case label == "" || label == "n/a" || label == "na":
		return Undefined
	case isUnproductive(label):
		return Unproductive
	default:
		return Productive
	}
}

// Classification of a result, see Classify.
func (r Result) Classification() Classification {
	return Classify(r.Category)
}

func isUnproductive(label string) bool {
	_, ok := unproductiveLabels[label]
	return ok
}

// NormalizeCategory lowercases the label, folds accents and drops emoji and
// punctuation, so "❌ ERRO" and "erro" compare equal.
func NormalizeCategory(category string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, category)
	if err != nil {
		folded = category
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '/':
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
