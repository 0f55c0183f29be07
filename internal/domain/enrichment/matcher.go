package enrichment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/smartsched/slotfinder/internal/domain/directory"
)

// DefaultThreshold is the similarity a name pair must exceed to match.
const DefaultThreshold = 0.6

// Matcher picks the role a directory name belongs to.
type Matcher interface {
	// Match returns the index into roles of the accepted role, or -1.
	Match(name string, roles []*directory.PractitionerRole) int
}

// TokenMatcher accepts the first role whose display name scores above
// Threshold. It is greedy and order dependent.
type TokenMatcher struct {
	Threshold float64
}

func NewTokenMatcher() *TokenMatcher {
	return &TokenMatcher{Threshold: DefaultThreshold}
}

func (m *TokenMatcher) Match(name string, roles []*directory.PractitionerRole) int {
	for i, r := range roles {
		if Similarity(r.DisplayName(), name) > m.Threshold {
			return i
		}
	}
	return -1
}

// Similarity scores two person names in [0, 1]. Both are split into
// lowercase word tokens longer than two characters. Any rune that is not a
// letter or digit separates tokens, so "Smith-Jones" yields "smith" and
// "jones" and "O'Neil" yields only "neil". A token of a counts when
// it is a substring of a token of b or the other way round. The count is
// divided by the larger token set, so "Dr. Jane Doe, MD" and "Jane Doe"
// score 1 while "Jane Doe" and "Jane Roe" score 0.5.
func Similarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	matched := 0
	for _, x := range ta {
		for _, y := range tb {
			if strings.Contains(x, y) || strings.Contains(y, x) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(max(len(ta), len(tb)))
}

func tokenize(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), isSeparator) {
		if utf8.RuneCountInString(tok) <= 2 || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
