// Package query runs keyword searches and filter-only listings against the
// published index generation. A keyword is first turned into a Plan
// (prefix scan or n-gram postings), candidates are confirmed and filtered,
// and results are returned in a deterministic order.
package query

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/syllabus-search/offline-index/internal/catalog"
	"github.com/syllabus-search/offline-index/internal/index"
	"github.com/syllabus-search/offline-index/pkg/metrics"
)

const filterKind = "filter"

// Options configures an Engine.
type Options struct {
	TokensPerQuery int
	Tables         Tables
	Metrics        *metrics.Metrics
}

// Engine answers queries against the generation published in a Store.
type Engine struct {
	store          *index.Store
	filter         *Filter
	tokensPerQuery int
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

func New(store *index.Store, opts Options) *Engine {
	if opts.TokensPerQuery <= 0 {
		opts.TokensPerQuery = DefaultTokensPerQuery
	}
	if opts.Tables.CategoryGroups == nil && opts.Tables.CampusAliases == nil {
		opts.Tables = DefaultTables()
	}
	return &Engine{
		store:          store,
		filter:         NewFilter(opts.Tables),
		tokensPerQuery: opts.TokensPerQuery,
		metrics:        opts.Metrics,
		logger:         slog.Default().With("component", "query-engine"),
	}
}

// Search runs keyword with criteria. An empty keyword or an index that has
// never been published yields an empty, non-nil slice.
func (e *Engine) Search(keyword string, c Criteria) []catalog.ResultRecord {
	start := time.Now()
	plan := Parse(keyword, e.tokensPerQuery)
	gen := e.store.Current()

	var results []catalog.ResultRecord
	switch {
	case gen == nil, plan.Kind == EmptyQuery:
		results = []catalog.ResultRecord{}
	case plan.Kind == PrefixQuery:
		results = e.collect(gen, PrefixCandidates(gen, plan.Needle), c)
	default:
		results = e.collect(gen, NgramCandidates(gen, plan), c)
		sortByName(results)
	}

	e.observe(plan.Kind.String(), start, len(results))
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"kind", plan.Kind.String(),
		"tokens", plan.Tokens,
		"results", len(results),
	)
	return results
}

// Page returns one page of the filter-only listing ordered by course name.
// A non-positive limit yields an empty page.
func (e *Engine) Page(c Criteria, offset, limit int) []catalog.ResultRecord {
	if limit <= 0 {
		return []catalog.ResultRecord{}
	}
	all := e.All(c, 0)
	offset = max(offset, 0)
	if offset >= len(all) {
		return []catalog.ResultRecord{}
	}
	end := min(offset+limit, len(all))
	return all[offset:end]
}

// All returns every entry matching c ordered by course name, truncated to
// limit when limit is positive.
func (e *Engine) All(c Criteria, limit int) []catalog.ResultRecord {
	start := time.Now()
	gen := e.store.Current()
	if gen == nil {
		return []catalog.ResultRecord{}
	}
	p := e.filter.compile(c)
	results := make([]catalog.ResultRecord, 0)
	for i := range gen.Entries {
		if p.match(&gen.Entries[i]) {
			results = append(results, gen.Entries[i].Result())
		}
	}
	sortByName(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	e.observe(filterKind, start, len(results))
	return results
}

// Count reports how many entries match c.
func (e *Engine) Count(c Criteria) int {
	gen := e.store.Current()
	if gen == nil {
		return 0
	}
	p := e.filter.compile(c)
	n := 0
	for i := range gen.Entries {
		if p.match(&gen.Entries[i]) {
			n++
		}
	}
	return n
}

// PrefixCandidates returns, in index order, the entries whose normalized
// name or instructor starts with needle.
func PrefixCandidates(gen *index.Generation, needle string) []int {
	out := make([]int, 0)
	for i := range gen.Entries {
		entry := &gen.Entries[i]
		if strings.HasPrefix(entry.NameNorm, needle) || strings.HasPrefix(entry.TeacherNorm, needle) {
			out = append(out, i)
		}
	}
	return out
}

// NgramCandidates unions the postings of the plan tokens and keeps only the
// entries whose aggregate text contains the needle. Without tokens every
// entry is a candidate.
func NgramCandidates(gen *index.Generation, plan Plan) []int {
	var union []int
	if len(plan.Tokens) == 0 {
		union = make([]int, len(gen.Entries))
		for i := range union {
			union[i] = i
		}
	} else {
		seen := make(map[int]struct{})
		for _, tok := range plan.Tokens {
			for _, pos := range gen.Lookup(tok) {
				if _, dup := seen[pos]; dup {
					continue
				}
				seen[pos] = struct{}{}
				union = append(union, pos)
			}
		}
		slices.Sort(union)
	}

	confirmed := make([]int, 0, len(union))
	for _, pos := range union {
		if strings.Contains(gen.Entries[pos].AggNorm, plan.Needle) {
			confirmed = append(confirmed, pos)
		}
	}
	return confirmed
}

func (e *Engine) collect(gen *index.Generation, candidates []int, c Criteria) []catalog.ResultRecord {
	p := e.filter.compile(c)
	results := make([]catalog.ResultRecord, 0, len(candidates))
	for _, pos := range candidates {
		entry := &gen.Entries[pos]
		if p.match(entry) {
			results = append(results, entry.Result())
		}
	}
	return results
}

// sortByName orders results by Japanese collation of the course name, then
// by id.
func sortByName(results []catalog.ResultRecord) {
	col := collate.New(language.Japanese)
	slices.SortStableFunc(results, func(a, b catalog.ResultRecord) int {
		if c := col.CompareString(a.ClassName, b.ClassName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func (e *Engine) observe(kind string, start time.Time, n int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(kind).Inc()
	e.metrics.SearchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.Observe(float64(n))
}
