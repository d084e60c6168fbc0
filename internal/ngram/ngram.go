// Package ngram produces the overlapping character bigrams used as postings
// keys by the syllabus index.
package ngram

// Bigrams returns every overlapping two-rune window of s from left to right.
// A one-rune string yields itself and an empty string yields nothing. The
// windows are not deduplicated.
func Bigrams(s string) []string {
	r := []rune(s)
	switch len(r) {
	case 0:
		return nil
	case 1:
		return []string{s}
	}
	out := make([]string, 0, len(r)-1)
	for i := 0; i+1 < len(r); i++ {
		out = append(out, string(r[i:i+2]))
	}
	return out
}

// Interleave merges the sources round-robin, one token from each in turn,
// skipping tokens already taken, and stops once limit tokens are collected.
// Early positions of every source are represented even when the limit cuts
// the tail. A limit <= 0 means no limit.
func Interleave(limit int, sources ...[]string) []string {
	total := 0
	longest := 0
	for _, src := range sources {
		total += len(src)
		longest = max(longest, len(src))
	}
	if limit > 0 {
		total = min(total, limit)
	}
	out := make([]string, 0, total)
	seen := make(map[string]struct{}, total)
	for i := 0; i < longest; i++ {
		for _, src := range sources {
			if i >= len(src) {
				continue
			}
			tok := src[i]
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}
