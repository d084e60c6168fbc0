package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/unicode/norm"
)

// Canonical term labels.
const (
	TermSpring          = "前期"
	TermAutumn          = "後期"
	TermFullYear        = "通年"
	TermIntensive       = "集中"
	TermIntensiveSpring = TermIntensive + TermSpring
	TermIntensiveAutumn = TermIntensive + TermAutumn

	firstHalf  = "前半"
	secondHalf = "後半"
)

// TermFamilies lists the labels whose members share the label as a prefix.
var TermFamilies = []string{TermIntensive, TermFullYear, TermSpring, TermAutumn}

var (
	intensiveWords  = []string{"集中", "intensive"}
	fullYearWords   = []string{"通年", "fullyear", "yearlong", "annual"}
	springWords     = []string{"前期", "春", "spring"}
	autumnWords     = []string{"後期", "秋", "autumn", "fall"}
	firstHalfWords  = []string{firstHalf, "firsthalf"}
	secondHalfWords = []string{secondHalf, "secondhalf"}

	brackets     = runes.Remove(runes.Predicate(isBracket))
	bracketRunes = "()[]{}<>「」『』【】〔〕〈〉《》"
)

func isBracket(r rune) bool {
	return strings.ContainsRune(bracketRunes, r)
}

// Term maps a free-form term label onto the closed set of canonical labels.
// Unrecognised labels pass through with brackets removed.
func Term(s string) string {
	key := termKey(s)
	if key == "" {
		return ""
	}
	switch {
	case containsAny(key, intensiveWords):
		switch {
		case containsAny(key, springWords):
			return TermIntensiveSpring
		case containsAny(key, autumnWords):
			return TermIntensiveAutumn
		}
		return TermIntensive
	case containsAny(key, fullYearWords):
		return TermFullYear
	case containsAny(key, springWords):
		return TermSpring + half(key)
	case containsAny(key, autumnWords):
		return TermAutumn + half(key)
	}
	return norm.NFC.String(strings.TrimSpace(brackets.String(FoldWidth(s))))
}

// termKey folds width and case and drops brackets and whitespace so that
// synonym matching sees "Spring (前期)" and "spring前期" alike.
func termKey(s string) string {
	s = strings.ToLower(FoldWidth(s))
	s = brackets.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			return -1
		}
		return r
	}, s)
}

func half(key string) string {
	switch {
	case containsAny(key, firstHalfWords):
		return firstHalf
	case containsAny(key, secondHalfWords):
		return secondHalf
	}
	return ""
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
