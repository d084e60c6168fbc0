package analytics

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/syllabus-search/offline-index/internal/normalize"
)

const latencyWindow = 10000

type AggregatedStats struct {
	TotalQueries      int64               `json:"total_queries"`
	ByType            map[EventType]int64 `json:"by_type"`
	ZeroResultCount   int64               `json:"zero_result_count"`
	AvgLatencyUs      float64             `json:"avg_latency_us"`
	P50LatencyUs      int64               `json:"p50_latency_us"`
	P95LatencyUs      int64               `json:"p95_latency_us"`
	P99LatencyUs      int64               `json:"p99_latency_us"`
	TopKeywords       []KeywordCount      `json:"top_keywords"`
	ZeroResultQueries []KeywordCount      `json:"zero_result_keywords"`
	QueriesPerMinute  float64             `json:"queries_per_minute"`
}

type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int64  `json:"count"`
}

// Aggregator keeps running totals over query events. Keywords are grouped
// by their match form so "データ" and "でーた" count as one.
type Aggregator struct {
	mu         sync.Mutex
	total      int64
	byType     map[EventType]int64
	zero       int64
	latencies  []int64
	next       int
	keywords   map[string]*keywordTally
	zeroByWord map[string]*keywordTally
	startTime  time.Time
	now        func() time.Time
}

type keywordTally struct {
	display string
	count   int64
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byType:     make(map[EventType]int64),
		latencies:  make([]int64, 0, latencyWindow),
		keywords:   make(map[string]*keywordTally),
		zeroByWord: make(map[string]*keywordTally),
		startTime:  time.Now(),
		now:        time.Now,
	}
}

func (a *Aggregator) Record(ev QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byType[ev.Type]++
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, ev.LatencyUs)
	} else {
		a.latencies[a.next] = ev.LatencyUs
		a.next = (a.next + 1) % latencyWindow
	}

	if ev.Results == 0 {
		a.zero++
	}
	if ev.Type != EventSearch {
		return
	}
	key := normalize.ForMatch(ev.Keyword)
	if key == "" {
		return
	}
	tally(a.keywords, key, ev.Keyword)
	if ev.Results == 0 {
		tally(a.zeroByWord, key, ev.Keyword)
	}
}

func tally(m map[string]*keywordTally, key, display string) {
	t, ok := m[key]
	if !ok {
		t = &keywordTally{display: display}
		m[key] = t
	}
	t.count++
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalQueries:      a.total,
		ByType:            make(map[EventType]int64, len(a.byType)),
		ZeroResultCount:   a.zero,
		TopKeywords:       topN(a.keywords, 10),
		ZeroResultQueries: topN(a.zeroByWord, 10),
	}
	for k, v := range a.byType {
		stats.ByType[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := min(pct*len(sorted)/100, len(sorted)-1)
	return sorted[idx]
}

func topN(m map[string]*keywordTally, n int) []KeywordCount {
	out := make([]KeywordCount, 0, len(m))
	for _, t := range m {
		out = append(out, KeywordCount{Keyword: t.display, Count: t.count})
	}
	slices.SortFunc(out, func(a, b KeywordCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Keyword, b.Keyword)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
