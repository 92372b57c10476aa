package builtin

import (
	"fmt"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Category maps a canonical token to the pattern recognizing it in free text.
type Category struct {
	Token   string
	Pattern *regexp.Regexp
}

// CategoryTable is an ordered best-match table. Order is the tie-break: when
// several patterns match, the earliest entry wins.
type CategoryTable []Category

// Categories builds a table from token/pattern pairs, in the given order.
// Patterns are matched against Fold(text), so they should be lowercase.
func Categories(pairs ...string) (CategoryTable, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("categories: odd number of arguments (%d)", len(pairs))
	}
	table := make(CategoryTable, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		re, err := regexp.Compile(pairs[i+1])
		if err != nil {
			return nil, fmt.Errorf("categories: token %q: %w", pairs[i], err)
		}
		table = append(table, Category{Token: pairs[i], Pattern: re})
	}
	return table, nil
}

// MustCategories is Categories for tables fixed at compile time.
func MustCategories(pairs ...string) CategoryTable {
	t, err := Categories(pairs...)
	if err != nil {
		panic(err)
	}
	return t
}

// MatchCategory returns the token of the first entry whose pattern matches
// text, or ok=false when none does.
func MatchCategory(table CategoryTable, text string) (token string, ok bool) {
	folded := Fold(text)
	for _, c := range table {
		if c.Pattern.MatchString(folded) {
			return c.Token, true
		}
	}
	return "", false
}

// Fold prepares free text for matching: NFC composition, then Russian
// lower-casing (so "Квартира" and "КВАРТИРА" match the same pattern, and
// a decomposed "й" equals the composed one).
func Fold(s string) string {
	// A Caser keeps state and must not be shared between goroutines.
	return cases.Lower(language.Russian).String(norm.NFC.String(s))
}
