package matching

import (
	"strings"
	"unicode"
)

// Trigrams returns the trigram set of s the way pg_trgm builds it: the text is
// lowercased and split into alphanumeric words, each word is padded with two
// spaces in front and one behind, and every three-rune window is collected.
func Trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// Similarity is pg_trgm similarity(): shared trigrams over the union of both
// sets, in [0,1]. Two strings without any trigram score 0.
func Similarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	common := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			common++
		}
	}
	return float64(common) / float64(len(ta)+len(tb)-common)
}
