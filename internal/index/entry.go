package index

import (
	"github.com/syllabus-search/offline-index/internal/catalog"
	"github.com/syllabus-search/offline-index/internal/ngram"
	"github.com/syllabus-search/offline-index/internal/normalize"
)

// DefaultTokensPerEntry bounds the number of bigrams kept per entry.
const DefaultTokensPerEntry = 50

// Entry is an indexed course: the raw record plus the normalized forms the
// query engine matches against.
type Entry struct {
	Record      catalog.RawRecord
	AggNorm     string
	NameNorm    string
	TeacherNorm string
	TermNorm    string
	DedupKey    string
	Tokens      []string
}

// BuildEntry derives an Entry from rec. Tokens interleave the bigrams of the
// match form and of the long-vowel preserving form so that early n-grams of
// both scripts survive the cap.
func BuildEntry(rec catalog.RawRecord, maxTokens int) Entry {
	if maxTokens <= 0 {
		maxTokens = DefaultTokensPerEntry
	}
	agg := rec.ClassName + rec.TeacherName
	aggNorm := normalize.ForMatch(agg)
	termNorm := normalize.Term(rec.Term)
	return Entry{
		Record:      rec,
		AggNorm:     aggNorm,
		NameNorm:    normalize.ForMatch(rec.ClassName),
		TeacherNorm: normalize.ForMatch(rec.TeacherName),
		TermNorm:    termNorm,
		DedupKey:    catalog.DedupKey(rec, termNorm),
		Tokens: ngram.Interleave(maxTokens,
			ngram.Bigrams(aggNorm),
			ngram.Bigrams(normalize.ForTokensLongPreserving(agg)),
		),
	}
}

// Result converts the entry to its caller-facing form.
func (e *Entry) Result() catalog.ResultRecord {
	return catalog.NewResult(e.Record, e.TermNorm, e.DedupKey)
}
