// Package matching compares party names registered on the portal against the
// names a caller expects to find.
package matching

import (
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Threshold is the minimum similarity for two names to be considered the same party.
const Threshold = 0.85

var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
})))

// Normalize strips accents, lower-cases, and drops punctuation, spaces and
// digits. Underscores and whitespace other than the plain space survive, as
// the portal's own comparison keeps them.
func Normalize(name string) string {
	s, _, err := transform.String(asciiFold, name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func keep(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r == '_':
		return true
	case r == ' ':
		return false
	case r >= 0x1c && r <= 0x1f:
		return true
	default:
		return unicode.IsSpace(r)
	}
}

// Similarity returns the Ratcliff/Obershelp ratio of the normalized names, in [0, 1].
func Similarity(a, b string) float64 {
	return ratio(Normalize(a), Normalize(b))
}

func ratio(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// VerifyBucket reports whether any registered name matches any expected name.
// An empty expected list is always verified. The scan stops at the first match.
func VerifyBucket(registered, expected []string) bool {
	if len(expected) == 0 {
		return true
	}
	for _, r := range registered {
		nr := Normalize(r)
		for _, e := range expected {
			if ratio(nr, Normalize(e)) >= Threshold {
				return true
			}
		}
	}
	return false
}

// Buckets groups party names by pole.
type Buckets struct {
	Active  []string `json:"ativos"`
	Passive []string `json:"passivos"`
	Neutral []string `json:"neutros"`
}

// Outcome is the per-bucket result of a party verification.
type Outcome struct {
	Active  bool `json:"ativos"`
	Passive bool `json:"passivos"`
	Neutral bool `json:"neutros"`
}

// Verified is true only when every bucket is verified.
func (o Outcome) Verified() bool {
	return o.Active && o.Passive && o.Neutral
}

// VerifyParties checks each bucket of registered names against its expected counterpart.
func VerifyParties(registered, expected Buckets) Outcome {
	return Outcome{
		Active:  VerifyBucket(registered.Active, expected.Active),
		Passive: VerifyBucket(registered.Passive, expected.Passive),
		Neutral: VerifyBucket(registered.Neutral, expected.Neutral),
	}
}
