package query

import (
	"regexp"
	"slices"
	"strings"

	"github.com/syllabus-search/offline-index/internal/index"
	"github.com/syllabus-search/offline-index/internal/normalize"
)

// Delivery selects online or in-person courses.
type Delivery string

const (
	DeliveryAny      Delivery = ""
	DeliveryOnline   Delivery = "online"
	DeliveryInPerson Delivery = "in_person"
)

// Slot is one (day, period) pair of the timetable.
type Slot struct {
	Day    string `json:"day"`
	Period int    `json:"period"`
}

// Criteria are the structured filters of a query. Zero values mean "any".
type Criteria struct {
	Category    string   `json:"category,omitempty"`
	Department  string   `json:"department,omitempty"`
	Campus      string   `json:"campus,omitempty"`
	Delivery    Delivery `json:"delivery,omitempty"`
	Grade       string   `json:"grade,omitempty"`
	Day         string   `json:"day,omitempty"`
	Periods     []int    `json:"periods,omitempty"`
	Slots       []Slot   `json:"slots,omitempty"`
	Term        string   `json:"term,omitempty"`
	Unscheduled bool     `json:"unscheduled,omitempty"`
}

var (
	onlineMarker = regexp.MustCompile(`(?i)[(\[【〔《]\s*(?:オンライン|online|遠隔|オンデマンド|on-?demand)[^)\]】〕》]*[)\]】〕》]\s*$`)

	unscheduledMarkers = []string{"不定期", "irregular", "unscheduled"}
)

// IsOnline reports whether a course name ends with a bracketed online marker.
func IsOnline(className string) bool {
	return onlineMarker.MatchString(normalize.FoldWidth(className))
}

// Filter evaluates Criteria against entries using a fixed set of tables.
type Filter struct {
	categories map[string][]string
	campuses   campusTable
}

func NewFilter(t Tables) *Filter {
	return &Filter{
		categories: t.CategoryGroups,
		campuses:   newCampusTable(t.CampusAliases),
	}
}

var defaultFilter = NewFilter(DefaultTables())

// MatchesFilters evaluates c against e with the built-in tables.
func MatchesFilters(e *index.Entry, c Criteria) bool {
	return defaultFilter.Matches(e, c)
}

// Matches reports whether e satisfies every constraint of c.
func (f *Filter) Matches(e *index.Entry, c Criteria) bool {
	p := f.compile(c)
	return p.match(e)
}

// predicate is Criteria with the query side canonicalised once, so that a
// scan over many entries does not repeat table lookups.
type predicate struct {
	f           *Filter
	department  string
	categories  []string
	campus      string
	delivery    Delivery
	grade       string
	unscheduled bool
	slots       []Slot
	day         string
	periods     []int
	term        string
	termFamily  bool
}

func (f *Filter) compile(c Criteria) predicate {
	p := predicate{
		f:           f,
		department:  c.Department,
		delivery:    c.Delivery,
		grade:       c.Grade,
		unscheduled: c.Unscheduled,
		slots:       c.Slots,
		day:         strings.TrimSpace(normalize.FoldWidth(c.Day)),
		periods:     c.Periods,
	}
	if c.Department == "" && c.Category != "" {
		if group, ok := f.categories[c.Category]; ok {
			p.categories = group
		} else {
			p.categories = []string{c.Category}
		}
	}
	if c.Campus != "" {
		p.campus = f.campuses.canonical(c.Campus)
	}
	if c.Term != "" {
		p.term = normalize.Term(c.Term)
		p.termFamily = slices.Contains(normalize.TermFamilies, p.term)
	}
	return p
}

func (p *predicate) match(e *index.Entry) bool {
	rec := &e.Record

	if p.department != "" {
		if rec.Category != p.department {
			return false
		}
	} else if p.categories != nil && !slices.Contains(p.categories, rec.Category) {
		return false
	}

	if p.campus != "" && !p.matchCampus(rec.Campus) {
		return false
	}

	switch p.delivery {
	case DeliveryOnline:
		if !IsOnline(rec.ClassName) {
			return false
		}
	case DeliveryInPerson:
		if IsOnline(rec.ClassName) {
			return false
		}
	}

	if p.grade != "" && rec.Grade != p.grade && !strings.Contains(rec.Grade, p.grade) {
		return false
	}

	if p.unscheduled {
		if !isUnscheduled(e.NameNorm) {
			return false
		}
	} else if !p.matchSchedule(e) {
		return false
	}

	if p.term != "" {
		if p.termFamily {
			if !strings.HasPrefix(e.TermNorm, p.term) {
				return false
			}
		} else if e.TermNorm != p.term {
			return false
		}
	}
	return true
}

func (p *predicate) matchCampus(labels []string) bool {
	for _, l := range labels {
		if p.f.campuses.canonical(l) == p.campus {
			return true
		}
	}
	return false
}

func isUnscheduled(nameNorm string) bool {
	for _, m := range unscheduledMarkers {
		if strings.Contains(nameNorm, m) {
			return true
		}
	}
	return false
}

func (p *predicate) matchSchedule(e *index.Entry) bool {
	t := e.Record.Time
	if len(p.slots) > 0 {
		if t == nil {
			return false
		}
		day := strings.TrimSpace(normalize.FoldWidth(t.Day))
		for _, s := range p.slots {
			if strings.TrimSpace(normalize.FoldWidth(s.Day)) == day && slices.Contains(t.Periods, s.Period) {
				return true
			}
		}
		return false
	}
	if p.day == "" && len(p.periods) == 0 {
		return true
	}
	if t == nil {
		return false
	}
	if p.day != "" && strings.TrimSpace(normalize.FoldWidth(t.Day)) != p.day {
		return false
	}
	for _, period := range p.periods {
		if !slices.Contains(t.Periods, period) {
			return false
		}
	}
	return true
}
