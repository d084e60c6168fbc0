package query

import (
	"slices"
	"strings"

	"github.com/syllabus-search/offline-index/internal/normalize"
)

// Canonical campus names.
const (
	CampusAoyama     = "青山"
	CampusSagamihara = "相模原"
)

// Tables holds the lookup tables used by the filter predicate.
type Tables struct {
	// CategoryGroups expands a category to the entry categories it covers.
	CategoryGroups map[string][]string
	// CampusAliases maps a canonical campus name to the labels that denote it.
	CampusAliases map[string][]string
}

// DefaultTables returns the built-in category and campus tables.
func DefaultTables() Tables {
	return Tables{
		CategoryGroups: map[string][]string{
			"青山スタンダード": {
				"青山スタンダード科目", "キリスト教理解関連科目", "人間理解関連科目",
				"社会理解関連科目", "自然理解関連科目", "歴史理解関連科目", "技能・方法・知識関連科目",
			},
			"文学部":      {"英米文学科", "フランス文学科", "日本文学科", "史学科", "比較芸術学科"},
			"経済学部":     {"経済学科", "現代経済デザイン学科"},
			"法学部":      {"法学科", "ヒューマンライツ学科"},
			"経営学部":     {"経営学科", "マーケティング学科"},
			"国際政治経済学部": {"国際政治学科", "国際経済学科", "国際コミュニケーション学科"},
			"理工学部": {
				"物理科学科", "数理サイエンス学科", "化学・生命科学科", "電気電子工学科",
				"機械創造工学科", "経営システム工学科", "情報テクノロジー学科",
			},
			"教職課程": {"教職課程科目", "教職に関する科目", "教科に関する科目"},
		},
		CampusAliases: map[string][]string{
			CampusAoyama:     {"青山", "aoyama", "渋谷", "shibuya"},
			CampusSagamihara: {"相模原", "sagamihara", "淵野辺", "fuchinobe"},
		},
	}
}

// Merge adds the given groups and aliases on top of t. Extra aliases for a
// known canonical campus are appended; unknown canonical names are added.
func (t Tables) Merge(groups, aliases map[string][]string) Tables {
	out := Tables{
		CategoryGroups: make(map[string][]string, len(t.CategoryGroups)+len(groups)),
		CampusAliases:  make(map[string][]string, len(t.CampusAliases)+len(aliases)),
	}
	for k, v := range t.CategoryGroups {
		out.CategoryGroups[k] = slices.Clone(v)
	}
	for k, v := range groups {
		out.CategoryGroups[k] = slices.Clone(v)
	}
	for k, v := range t.CampusAliases {
		out.CampusAliases[k] = slices.Clone(v)
	}
	for k, v := range aliases {
		out.CampusAliases[k] = append(out.CampusAliases[k], v...)
	}
	return out
}

type campusAlias struct {
	canonical string
	alias     string
}

// campusTable canonicalises campus labels by alias substring matching.
type campusTable struct {
	aliases []campusAlias
}

func newCampusTable(aliases map[string][]string) campusTable {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	slices.Sort(names)
	var t campusTable
	for _, name := range names {
		for _, a := range append([]string{name}, aliases[name]...) {
			if n := normalize.ForMatch(a); n != "" {
				t.aliases = append(t.aliases, campusAlias{canonical: name, alias: n})
			}
		}
	}
	return t
}

// canonical returns the canonical campus a label denotes, or the normalized
// label itself when no alias matches.
func (t campusTable) canonical(label string) string {
	n := normalize.ForMatch(label)
	for _, a := range t.aliases {
		if strings.Contains(n, a.alias) {
			return a.canonical
		}
	}
	return n
}
