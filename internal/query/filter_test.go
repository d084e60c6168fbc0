package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syllabus-search/offline-index/internal/catalog"
	"github.com/syllabus-search/offline-index/internal/index"
)

func entry(mut func(r *catalog.RawRecord)) *index.Entry {
	rec := catalog.RawRecord{
		ID:          "x",
		ClassName:   "英語コミュニケーション",
		TeacherName: "田中",
		Category:    "英米文学科",
		Grade:       "2年",
		Campus:      []string{"青山キャンパス"},
		Time:        &catalog.Schedule{Day: "月", Periods: []int{1, 2}},
		Term:        "前期前半",
	}
	if mut != nil {
		mut(&rec)
	}
	e := index.BuildEntry(rec, 0)
	return &e
}

func TestMatchesFiltersEmptyCriteria(t *testing.T) {
	assert.True(t, MatchesFilters(entry(nil), Criteria{}))
	assert.True(t, MatchesFilters(entry(func(r *catalog.RawRecord) { r.Time = nil }), Criteria{}))
}

func TestMatchesFiltersCategory(t *testing.T) {
	e := entry(nil)

	assert.True(t, MatchesFilters(e, Criteria{Category: "文学部"}))
	assert.False(t, MatchesFilters(e, Criteria{Category: "法学部"}))
	assert.True(t, MatchesFilters(e, Criteria{Category: "英米文学科"}), "unknown group is a singleton")
	assert.False(t, MatchesFilters(e, Criteria{Category: "英米"}))

	assert.True(t, MatchesFilters(e, Criteria{Department: "英米文学科", Category: "法学部"}), "department overrides category")
	assert.False(t, MatchesFilters(e, Criteria{Department: "文学部"}), "department is not expanded")
}

func TestMatchesFiltersCampus(t *testing.T) {
	e := entry(nil)
	tests := []struct {
		campus string
		want   bool
	}{
		{"青山", true},
		{"Aoyama", true},
		{"ＡＯＹＡＭＡ", true},
		{"渋谷", true},
		{"相模原", false},
		{"Sagamihara", false},
		{"淵野辺", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesFilters(e, Criteria{Campus: tt.campus}), "campus %q", tt.campus)
	}

	both := entry(func(r *catalog.RawRecord) { r.Campus = []string{"Aoyama", "Sagamihara Campus"} })
	assert.True(t, MatchesFilters(both, Criteria{Campus: "相模原"}))

	none := entry(func(r *catalog.RawRecord) { r.Campus = nil })
	assert.False(t, MatchesFilters(none, Criteria{Campus: "青山"}))
}

func TestMatchesFiltersCampusCustomTable(t *testing.T) {
	f := NewFilter(DefaultTables().Merge(nil, map[string][]string{"新宿": {"shinjuku"}}))
	e := entry(func(r *catalog.RawRecord) { r.Campus = []string{"Shinjuku"} })

	assert.True(t, f.Matches(e, Criteria{Campus: "新宿"}))
	assert.False(t, f.Matches(e, Criteria{Campus: "青山"}))
}

func TestIsOnline(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"英語（オンライン）", true},
		{"英語(オンライン)", true},
		{"英語【オンライン授業】", true},
		{"Statistics (Online)", true},
		{"Statistics [on-demand] ", true},
		{"英語", false},
		{"オンライン英語", false},
		{"英語（オンライン）演習", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsOnline(tt.name), "IsOnline(%q)", tt.name)
	}
}

func TestMatchesFiltersDelivery(t *testing.T) {
	inPerson := entry(nil)
	online := entry(func(r *catalog.RawRecord) { r.ClassName += "（オンライン）" })

	assert.True(t, MatchesFilters(online, Criteria{Delivery: DeliveryOnline}))
	assert.False(t, MatchesFilters(inPerson, Criteria{Delivery: DeliveryOnline}))
	assert.True(t, MatchesFilters(inPerson, Criteria{Delivery: DeliveryInPerson}))
	assert.False(t, MatchesFilters(online, Criteria{Delivery: DeliveryInPerson}))
}

func TestMatchesFiltersGrade(t *testing.T) {
	e := entry(nil)

	assert.True(t, MatchesFilters(e, Criteria{Grade: "2年"}))
	assert.True(t, MatchesFilters(e, Criteria{Grade: "2"}))
	assert.False(t, MatchesFilters(e, Criteria{Grade: "3"}))
}

func TestMatchesFiltersSchedule(t *testing.T) {
	e := entry(nil)
	tests := []struct {
		name string
		c    Criteria
		want bool
	}{
		{"day", Criteria{Day: "月"}, true},
		{"other day", Criteria{Day: "火"}, false},
		{"single period", Criteria{Periods: []int{2}}, true},
		{"missing period", Criteria{Periods: []int{3}}, false},
		{"period subset", Criteria{Day: "月", Periods: []int{1, 2}}, true},
		{"period superset", Criteria{Periods: []int{1, 2, 3}}, false},
		{"slot", Criteria{Slots: []Slot{{Day: "火", Period: 1}, {Day: "月", Period: 2}}}, true},
		{"no slot", Criteria{Slots: []Slot{{Day: "火", Period: 1}}}, false},
		{"slots override day", Criteria{Day: "火", Slots: []Slot{{Day: "月", Period: 1}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesFilters(e, tt.c))
		})
	}

	unscheduled := entry(func(r *catalog.RawRecord) { r.Time = nil })
	assert.False(t, MatchesFilters(unscheduled, Criteria{Day: "月"}))
	assert.False(t, MatchesFilters(unscheduled, Criteria{Slots: []Slot{{Day: "月", Period: 1}}}))
}

func TestMatchesFiltersUnscheduled(t *testing.T) {
	irregular := entry(func(r *catalog.RawRecord) {
		r.ClassName = "集中講義（不定期）"
		r.Time = nil
	})
	regular := entry(nil)

	assert.True(t, MatchesFilters(irregular, Criteria{Unscheduled: true}))
	assert.True(t, MatchesFilters(irregular, Criteria{Unscheduled: true, Day: "月"}), "schedule checks are skipped")
	assert.False(t, MatchesFilters(regular, Criteria{Unscheduled: true}))
}

func TestMatchesFiltersTerm(t *testing.T) {
	e := entry(nil)

	assert.True(t, MatchesFilters(e, Criteria{Term: "前期"}), "family prefix")
	assert.True(t, MatchesFilters(e, Criteria{Term: "Spring"}))
	assert.True(t, MatchesFilters(e, Criteria{Term: "前期（前半）"}))
	assert.False(t, MatchesFilters(e, Criteria{Term: "前期後半"}))
	assert.False(t, MatchesFilters(e, Criteria{Term: "後期"}))

	summer := entry(func(r *catalog.RawRecord) { r.Term = "【夏期】" })
	assert.True(t, MatchesFilters(summer, Criteria{Term: "夏期"}))
	assert.False(t, MatchesFilters(summer, Criteria{Term: "夏"}))

	intensive := entry(func(r *catalog.RawRecord) { r.Term = "集中（後期）" })
	assert.True(t, MatchesFilters(intensive, Criteria{Term: "集中"}))
	assert.False(t, MatchesFilters(intensive, Criteria{Term: "後期"}))
}

func TestMatchesFiltersAreConjunctive(t *testing.T) {
	e := entry(nil)
	all := Criteria{
		Category: "文学部",
		Campus:   "aoyama",
		Delivery: DeliveryInPerson,
		Grade:    "2",
		Day:      "月",
		Periods:  []int{1},
		Term:     "spring",
	}
	assert.True(t, MatchesFilters(e, all))

	breakers := []func(c *Criteria){
		func(c *Criteria) { c.Category = "法学部" },
		func(c *Criteria) { c.Campus = "相模原" },
		func(c *Criteria) { c.Delivery = DeliveryOnline },
		func(c *Criteria) { c.Grade = "4" },
		func(c *Criteria) { c.Day = "金" },
		func(c *Criteria) { c.Periods = []int{5} },
		func(c *Criteria) { c.Term = "fall" },
		func(c *Criteria) { c.Unscheduled = true },
	}
	for i, brk := range breakers {
		c := all
		brk(&c)
		assert.False(t, MatchesFilters(e, c), "breaker %d", i)
	}
}
