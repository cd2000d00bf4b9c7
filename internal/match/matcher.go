package match

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// textThreshold is the minimum similarity for a free-text or date
// fallback comparison to count as matched.
const textThreshold = 0.80

// Comparison records the outcome of scoring one field.
type Comparison struct {
	Field      string  `json:"field"`
	FormValue  string  `json:"form_value"`
	Extracted  string  `json:"extracted_value"`
	Similarity float64 `json:"similarity"`
	Matched    bool    `json:"matched"`
}

// acceptedDateLayouts covers ISO dates, day-first numeric dates and the
// common spelled-out forms produced by document extraction.
var acceptedDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Compare scores a single field. An absent extracted value yields
// similarity 0 and unmatched; it is a valid result, not an error.
func Compare(field, formValue, extracted string) Comparison {
	c := Comparison{
		Field:     field,
		FormValue: formValue,
		Extracted: extracted,
	}
	switch KindOf(field) {
	case KindIdentifier:
		a := NormalizeIdentifier(formValue)
		b := NormalizeIdentifier(extracted)
		if a != "" && a == b {
			c.Similarity = 1.0
			c.Matched = true
		}
	case KindDate:
		da, okA := ParseDate(formValue)
		db, okB := ParseDate(extracted)
		if okA && okB {
			if da.Equal(db) {
				c.Similarity = 1.0
				c.Matched = true
			}
			break
		}
		c.Similarity = textSimilarity(formValue, extracted)
		c.Matched = c.Similarity >= textThreshold
	default:
		c.Similarity = textSimilarity(formValue, extracted)
		c.Matched = c.Similarity >= textThreshold
	}
	return c
}

// textSimilarity is a length-normalized edit distance over normalized
// strings. It is symmetric and deterministic.
func textSimilarity(a, b string) float64 {
	a = NormalizeText(a)
	b = NormalizeText(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}
	sim := 1.0 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

// NormalizeText case-folds, strips punctuation and collapses whitespace.
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeIdentifier strips separators and upper-cases, the canonical
// form used for identifier comparison and duplicate detection.
func NormalizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// ParseDate tries the accepted date layouts in order.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range acceptedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
