package index

// PostingList holds ascending positions into Generation.Entries.
type PostingList []int

// Postings maps a bigram token to the entries whose token list contains it.
type Postings map[string]PostingList

// Stats summarises a published generation.
type Stats struct {
	Version  string `json:"version"`
	Entries  int    `json:"entries"`
	Tokens   int    `json:"tokens"`
	Postings int    `json:"postings"`
	BuiltAt  string `json:"built_at,omitempty"`
}
