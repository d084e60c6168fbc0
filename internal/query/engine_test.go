package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syllabus-search/offline-index/internal/catalog"
	"github.com/syllabus-search/offline-index/internal/index"
	"github.com/syllabus-search/offline-index/pkg/metrics"
)

func englishConversation() catalog.RawRecord {
	return catalog.RawRecord{
		ID:          "1",
		ClassName:   "English Conversation",
		TeacherName: "Smith",
		Category:    "English Dept",
		Campus:      []string{"Aoyama"},
		Time:        &catalog.Schedule{Day: "Mon", Periods: []int{1}},
		Term:        "Spring",
	}
}

func newEngine(t testing.TB, records ...catalog.RawRecord) *Engine {
	t.Helper()
	store := index.NewStore(0)
	_, err := store.Rebuild(context.Background(), records, "test")
	require.NoError(t, err)
	return New(store, Options{})
}

func ids(results []catalog.ResultRecord) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestSearchMultiCharKeyword(t *testing.T) {
	e := newEngine(t, englishConversation())

	got := e.Search("Conv", Criteria{})
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "English Conversation", got[0].ClassName)
	assert.Equal(t, "Mon 1", got[0].Time)
	assert.Equal(t, "前期", got[0].Term)
}

func TestSearchSingleCharWithoutPrefixMatch(t *testing.T) {
	e := newEngine(t, englishConversation())

	got := e.Search("z", Criteria{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPageFiltersByCampus(t *testing.T) {
	e := newEngine(t, englishConversation())

	assert.Empty(t, e.Page(Criteria{Campus: "Sagamihara"}, 0, 20))
	assert.Equal(t, []string{"1"}, ids(e.Page(Criteria{Campus: "Aoyama"}, 0, 20)))
	assert.Equal(t, []string{"1"}, ids(e.Page(Criteria{Campus: "渋谷"}, 0, 20)))
}

func TestSearchEmptyKeyword(t *testing.T) {
	e := newEngine(t, englishConversation())

	assert.Empty(t, e.Search("", Criteria{}))
	assert.Empty(t, e.Search("   ", Criteria{}))
}

func TestSearchBeforePublish(t *testing.T) {
	e := New(index.NewStore(0), Options{})

	assert.Empty(t, e.Search("Conv", Criteria{}))
	assert.Empty(t, e.Search("C", Criteria{}))
	assert.Empty(t, e.Page(Criteria{}, 0, 10))
	assert.Empty(t, e.All(Criteria{}, 0))
}

func TestSearchConfirmsSubstring(t *testing.T) {
	records := []catalog.RawRecord{
		{ID: "shuffled", ClassName: "Abc Bcd", TeacherName: "X"},
		{ID: "exact", ClassName: "Abcd Seminar", TeacherName: "Y"},
	}
	e := newEngine(t, records...)
	gen := e.store.Current()

	plan := Parse("abcd", 0)
	require.Equal(t, NgramQuery, plan.Kind)

	// the shuffled entry carries every query bigram
	for _, tok := range []string{"ab", "bc", "cd"} {
		assert.Contains(t, gen.Lookup(tok), 0, "token %q", tok)
	}

	assert.Equal(t, []int{1}, NgramCandidates(gen, plan))
	assert.Equal(t, []string{"exact"}, ids(e.Search("abcd", Criteria{})))
}

func TestSearchAcrossScripts(t *testing.T) {
	e := newEngine(t, catalog.RawRecord{ID: "c", ClassName: "コンピューター入門", TeacherName: "山田"})

	for _, q := range []string{"コンピューター", "こんぴゅーたー", "コンピュータ", "ｺﾝﾋﾟｭｰﾀｰ", "入門"} {
		assert.Equal(t, []string{"c"}, ids(e.Search(q, Criteria{})), "query %q", q)
	}
}

func TestSearchNeedleWithoutTokensScansAll(t *testing.T) {
	e := newEngine(t,
		catalog.RawRecord{ID: "1", ClassName: "C- Programming", TeacherName: "Ritchie"},
		catalog.RawRecord{ID: "2", ClassName: "Databases", TeacherName: "Codd"},
	)

	// "c-" is two runes but normalizes to a single rune
	plan := Parse("c-", 0)
	require.Equal(t, NgramQuery, plan.Kind)
	require.Empty(t, plan.Tokens)

	assert.Equal(t, []string{"1", "2"}, ids(e.Search("c-", Criteria{})))
}

func TestSearchLongVowelNeedleKeepsEveryMatch(t *testing.T) {
	e := newEngine(t,
		catalog.RawRecord{ID: "art", ClassName: "アート入門", TeacherName: "佐藤"},
		catalog.RawRecord{ID: "ai", ClassName: "あい基礎", TeacherName: "鈴木"},
		catalog.RawRecord{ID: "none", ClassName: "統計学", TeacherName: "高橋"},
	)

	// "ai" has no "アー" posting, so it is only found by scanning on "あ"
	assert.ElementsMatch(t, []string{"art", "ai"}, ids(e.Search("あー", Criteria{})))
}

func TestSearchMultiCharSortedByName(t *testing.T) {
	e := newEngine(t,
		catalog.RawRecord{ID: "3", ClassName: "Data Science B", TeacherName: "T"},
		catalog.RawRecord{ID: "1", ClassName: "Data Science A", TeacherName: "T"},
		catalog.RawRecord{ID: "2", ClassName: "Data Science A", TeacherName: "U"},
	)

	assert.Equal(t, []string{"1", "2", "3"}, ids(e.Search("data", Criteria{})))
}

func TestSearchSingleCharPreservesIndexOrder(t *testing.T) {
	e := newEngine(t,
		catalog.RawRecord{ID: "b", ClassName: "Zoology", TeacherName: "Abe"},
		catalog.RawRecord{ID: "x", ClassName: "History", TeacherName: "Ito"},
		catalog.RawRecord{ID: "a", ClassName: "Algebra", TeacherName: "Zimmer"},
	)

	assert.Equal(t, []string{"b", "a"}, ids(e.Search("z", Criteria{})))
	assert.Equal(t, []string{"b", "a"}, ids(e.Search("Ｚ", Criteria{})))
}

func TestSearchAppliesFilters(t *testing.T) {
	online := englishConversation()
	online.ID = "2"
	online.ClassName = "English Conversation（オンライン）"

	e := newEngine(t, englishConversation(), online)

	assert.Equal(t, []string{"1", "2"}, ids(e.Search("english", Criteria{})))
	assert.Equal(t, []string{"2"}, ids(e.Search("english", Criteria{Delivery: DeliveryOnline})))
	assert.Equal(t, []string{"1"}, ids(e.Search("english", Criteria{Delivery: DeliveryInPerson})))
	assert.Empty(t, e.Search("english", Criteria{Delivery: DeliveryOnline, Term: "Fall"}))
}

func TestPageAndAll(t *testing.T) {
	var records []catalog.RawRecord
	for i := range 5 {
		records = append(records, catalog.RawRecord{
			ID:        fmt.Sprintf("id-%d", i),
			ClassName: fmt.Sprintf("Course %d", 4-i),
			Campus:    []string{"青山"},
		})
	}
	e := newEngine(t, records...)

	assert.Equal(t, []string{"id-4", "id-3"}, ids(e.Page(Criteria{}, 0, 2)))
	assert.Equal(t, []string{"id-2", "id-1"}, ids(e.Page(Criteria{}, 2, 2)))
	assert.Equal(t, []string{"id-0"}, ids(e.Page(Criteria{}, 4, 2)))
	assert.Empty(t, e.Page(Criteria{}, 5, 2))
	assert.Empty(t, e.Page(Criteria{}, 0, 0))
	assert.Equal(t, []string{"id-4", "id-3"}, ids(e.Page(Criteria{}, -3, 2)))

	assert.Len(t, e.All(Criteria{}, 0), 5)
	assert.Len(t, e.All(Criteria{}, 3), 3)
	assert.Empty(t, e.All(Criteria{Campus: "相模原"}, 0))

	assert.Equal(t, 5, e.Count(Criteria{}))
	assert.Zero(t, e.Count(Criteria{Campus: "相模原"}))
	assert.Zero(t, New(index.NewStore(0), Options{}).Count(Criteria{}))
}

func TestEngineRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := index.NewStore(0)
	_, err := store.Rebuild(context.Background(), []catalog.RawRecord{englishConversation()}, "v1")
	require.NoError(t, err)

	e := New(store, Options{Metrics: m})
	e.Search("Conv", Criteria{})
	e.Search("E", Criteria{})
	e.All(Criteria{}, 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "syllabus_queries_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "kind" {
					counts[l.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"ngram": 1, "prefix": 1, "filter": 1}, counts)
}

func BenchmarkSearch(b *testing.B) {
	records := make([]catalog.RawRecord, 0, 5000)
	for i := range 5000 {
		records = append(records, catalog.RawRecord{
			ID:          fmt.Sprintf("c-%d", i),
			ClassName:   fmt.Sprintf("情報システム論%d（オンライン）", i%97),
			TeacherName: fmt.Sprintf("講師%d", i%31),
			Campus:      []string{"青山"},
			Term:        "前期",
		})
	}
	e := newEngine(b, records...)

	queries := []struct {
		name, keyword string
	}{
		{"prefix", "情"},
		{"ngram", "システム"},
		{"ngram_miss", "データベース"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = e.Search(q.keyword, Criteria{Campus: "aoyama"})
			}
		})
	}
}
