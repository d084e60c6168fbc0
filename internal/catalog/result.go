package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/syllabus-search/offline-index/internal/normalize"
)

// ResultRecord is the caller-facing view of an indexed course.
type ResultRecord struct {
	ID          string `json:"id"`
	DedupKey    string `json:"dedup_key"`
	ClassName   string `json:"class_name"`
	TeacherName string `json:"teacher_name"`
	Time        string `json:"time"`
	Campus      string `json:"campus"`
	Grade       string `json:"grade"`
	Category    string `json:"category"`
	Credit      string `json:"credit"`
	Term        string `json:"term"`
	EvalMethod  string `json:"eval_method"`
}

// NewResult formats rec for display. term is the canonical term label and
// dedupKey the value computed by DedupKey at index time.
func NewResult(rec RawRecord, term, dedupKey string) ResultRecord {
	r := ResultRecord{
		ID:          rec.ID,
		DedupKey:    dedupKey,
		ClassName:   rec.ClassName,
		TeacherName: rec.TeacherName,
		Time:        FormatTime(rec.Time),
		Campus:      FormatCampus(rec.Campus),
		Grade:       rec.Grade,
		Category:    rec.Category,
		Term:        term,
	}
	if rec.Credit != nil {
		r.Credit = strconv.Itoa(*rec.Credit)
	}
	if rec.EvalMethod != nil {
		r.EvalMethod = *rec.EvalMethod
	}
	return r
}

// FormatTime renders a schedule as "day p1,p2"; a missing schedule is empty.
func FormatTime(s *Schedule) string {
	if s == nil {
		return ""
	}
	periods := make([]string, len(s.Periods))
	for i, p := range s.Periods {
		periods[i] = strconv.Itoa(p)
	}
	if len(periods) == 0 {
		return s.Day
	}
	return strings.TrimSpace(s.Day + " " + strings.Join(periods, ","))
}

// FormatCampus joins campus labels for display.
func FormatCampus(campus []string) string {
	return strings.Join(campus, ", ")
}

// DedupKey identifies a course independently of its source so that records
// from this index and from a live backend can be merged. It hashes the
// normalized name, instructor, time, campus, grade, category and term.
func DedupKey(rec RawRecord, term string) string {
	campus := make([]string, len(rec.Campus))
	for i, c := range rec.Campus {
		campus[i] = normalize.ForMatch(c)
	}
	slices.Sort(campus)
	parts := []string{
		normalize.ForMatch(rec.ClassName),
		normalize.ForMatch(rec.TeacherName),
		normalize.ForMatch(FormatTime(rec.Time)),
		strings.Join(campus, ","),
		normalize.ForMatch(rec.Grade),
		normalize.ForMatch(rec.Category),
		term,
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(parts, "\x1f")))
}
