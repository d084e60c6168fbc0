package query

import (
	"strings"
	"unicode/utf8"

	"github.com/syllabus-search/offline-index/internal/ngram"
	"github.com/syllabus-search/offline-index/internal/normalize"
)

// DefaultTokensPerQuery bounds the postings fan-out of one keyword.
const DefaultTokensPerQuery = 10

// Kind tags the candidate-generation strategy chosen for a keyword.
type Kind int

const (
	// EmptyQuery has no keyword; callers page by filters instead.
	EmptyQuery Kind = iota
	// PrefixQuery scans name and instructor prefixes for a one-character keyword.
	PrefixQuery
	// NgramQuery unions bigram postings and confirms by substring.
	NgramQuery
)

func (k Kind) String() string {
	switch k {
	case EmptyQuery:
		return "empty"
	case PrefixQuery:
		return "prefix"
	case NgramQuery:
		return "ngram"
	default:
		return "unknown"
	}
}

// Plan is the strategy decision for one keyword.
type Plan struct {
	Kind     Kind
	RawQuery string
	// Needle is the match form of the keyword used for prefix and
	// substring confirmation.
	Needle string
	// Tokens are the postings keys of an NgramQuery. Empty tokens on an
	// NgramQuery mean every entry is a candidate.
	Tokens []string
}

// KindOf reports the strategy Parse would choose for keyword. The keyword
// length is measured on the trimmed input so that a single typed character
// takes the prefix path even when normalisation removes it.
func KindOf(keyword string) Kind {
	switch utf8.RuneCountInString(strings.TrimSpace(keyword)) {
	case 0:
		return EmptyQuery
	case 1:
		return PrefixQuery
	default:
		return NgramQuery
	}
}

// Parse chooses the strategy for keyword.
func Parse(keyword string, tokensPerQuery int) Plan {
	if tokensPerQuery <= 0 {
		tokensPerQuery = DefaultTokensPerQuery
	}
	plan := Plan{RawQuery: keyword, Kind: KindOf(keyword)}
	trimmed := strings.TrimSpace(keyword)
	switch plan.Kind {
	case EmptyQuery:
		return plan
	case PrefixQuery:
		plan.Needle = normalize.ForMatch(trimmed)
		return plan
	}
	plan.Needle = normalize.ForMatch(trimmed)
	if utf8.RuneCountInString(plan.Needle) < 2 {
		// a one-rune needle has no bigram any entry could be posted under
		return plan
	}
	plan.Tokens = ngram.Interleave(tokensPerQuery,
		ngram.Bigrams(plan.Needle),
		ngram.Bigrams(normalize.ForTokensLongPreserving(trimmed)),
	)
	return plan
}
