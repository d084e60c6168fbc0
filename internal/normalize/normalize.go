// Package normalize provides the text normalisation used by the syllabus index.
// It folds character widths, maps katakana and hiragana onto one script, strips
// whitespace and punctuation, and canonicalises term labels. Every function is
// pure and idempotent.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// LongVowel is the katakana prolonged sound mark.
const LongVowel = 'ー'

const (
	hiraganaFirst = 'ぁ'
	hiraganaLast  = 'ゖ'
	katakanaFirst = 'ァ'
	katakanaLast  = 'ヶ'
	kanaOffset    = katakanaFirst - hiraganaFirst
)

var (
	toHiragana = runes.Map(func(r rune) rune {
		switch {
		case r >= katakanaFirst && r <= katakanaLast:
			return r - kanaOffset
		case r == 'ヽ' || r == 'ヾ':
			return r - kanaOffset
		}
		return r
	})
	toKatakana = runes.Map(func(r rune) rune {
		switch {
		case r >= hiraganaFirst && r <= hiraganaLast:
			return r + kanaOffset
		case r == 'ゝ' || r == 'ゞ':
			return r + kanaOffset
		}
		return r
	})
	dropLongVowel = runes.Remove(runes.Predicate(func(r rune) bool { return r == LongVowel }))
	stripAll      = runes.Remove(runes.Predicate(isStripped))
	stripKeepLong = runes.Remove(runes.Predicate(func(r rune) bool {
		return r != LongVowel && isStripped(r)
	}))
)

// punctuation holds the characters removed before matching, in their
// half-width form where one exists (FoldWidth runs first).
var punctuation = map[rune]struct{}{
	LongVowel: {}, '・': {}, '-': {}, '‐': {}, '‑': {}, '‒': {}, '–': {}, '—': {}, '―': {},
	'−': {}, '~': {}, '〜': {}, '_': {},
	'(': {}, ')': {}, '[': {}, ']': {}, '{': {}, '}': {}, '<': {}, '>': {},
	'「': {}, '」': {}, '『': {}, '』': {}, '【': {}, '】': {}, '〔': {}, '〕': {},
	'〈': {}, '〉': {}, '《': {}, '》': {},
	',': {}, '、': {}, '.': {}, '。': {}, '/': {}, ':': {}, ';': {}, '!': {}, '?': {},
	'\'': {}, '"': {}, '&': {}, '+': {}, '*': {}, '#': {}, '@': {}, '|': {}, '\\': {},
}

func isStripped(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	_, ok := punctuation[r]
	return ok
}

// FoldWidth converts full-width Latin letters, digits and punctuation to their
// half-width forms and half-width katakana to full-width, composing voiced
// sound marks afterwards.
func FoldWidth(s string) string {
	return norm.NFC.String(width.Fold.String(s))
}

// ToKanaCanonical maps katakana to hiragana and removes long-vowel marks.
func ToKanaCanonical(s string) string {
	return dropLongVowel.String(toHiragana.String(s))
}

// ToKanaLongPreserving maps hiragana to katakana, keeping long-vowel marks.
func ToKanaLongPreserving(s string) string {
	return toKatakana.String(s)
}

// ForMatch is the canonical match form: width folded, lower-cased, hiragana,
// without whitespace, punctuation or long-vowel marks. The result is
// recomposed so that marks separated by stripped characters stay stable.
func ForMatch(s string) string {
	s = strings.ToLower(FoldWidth(s))
	return norm.NFC.String(stripAll.String(ToKanaCanonical(s)))
}

// ForTokensLongPreserving is the complementary token form: width folded,
// lower-cased, katakana, punctuation stripped but long-vowel marks kept.
func ForTokensLongPreserving(s string) string {
	s = strings.ToLower(FoldWidth(s))
	return norm.NFC.String(stripKeepLong.String(ToKanaLongPreserving(s)))
}
