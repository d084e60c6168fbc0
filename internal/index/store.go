// Package index builds and publishes the in-memory syllabus index. A build
// produces a Generation (entries plus postings) that is never mutated; the
// Store swaps whole generations so readers always observe a matched pair.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syllabus-search/offline-index/internal/catalog"
	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
)

const cancelCheckEvery = 1024

// Generation is one immutable build of the index.
type Generation struct {
	Entries  []Entry
	Postings Postings
	Version  string
	BuiltAt  time.Time
}

// Lookup returns the postings for an exact token, or nil when absent.
func (g *Generation) Lookup(token string) PostingList {
	if g == nil {
		return nil
	}
	return g.Postings[token]
}

// Len returns the number of entries in the generation.
func (g *Generation) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Entries)
}

// Store owns the currently published generation.
type Store struct {
	current        atomic.Pointer[Generation]
	tokensPerEntry int
	logger         *slog.Logger
}

func NewStore(tokensPerEntry int) *Store {
	if tokensPerEntry <= 0 {
		tokensPerEntry = DefaultTokensPerEntry
	}
	return &Store{
		tokensPerEntry: tokensPerEntry,
		logger:         slog.Default().With("component", "index-store"),
	}
}

// Build indexes every record or fails as a whole. It never touches the
// published generation.
func (s *Store) Build(ctx context.Context, records []catalog.RawRecord, version string) (*Generation, error) {
	start := time.Now()
	gen := &Generation{
		Entries:  make([]Entry, 0, len(records)),
		Postings: make(Postings),
		Version:  version,
	}
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("index build cancelled: %w", err)
			}
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: record %d has no id", apperrors.ErrSnapshotMalformed, i)
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("%w: %q", apperrors.ErrDuplicateRecord, rec.ID)
		}
		seen[rec.ID] = struct{}{}

		entry := BuildEntry(rec, s.tokensPerEntry)
		pos := len(gen.Entries)
		for _, tok := range entry.Tokens {
			gen.Postings[tok] = append(gen.Postings[tok], pos)
		}
		gen.Entries = append(gen.Entries, entry)
	}
	gen.BuiltAt = time.Now()
	s.logger.Debug("index generation built",
		"version", version,
		"entries", len(gen.Entries),
		"tokens", len(gen.Postings),
		"duration", time.Since(start),
	)
	return gen, nil
}

// Publish makes gen visible to readers and returns the generation it replaced.
func (s *Store) Publish(gen *Generation) *Generation {
	prev := s.current.Swap(gen)
	s.logger.Info("index generation published",
		"version", gen.Version,
		"entries", gen.Len(),
		"tokens", len(gen.Postings),
	)
	return prev
}

// Rebuild builds a generation from records and publishes it. On failure the
// previous generation stays live.
func (s *Store) Rebuild(ctx context.Context, records []catalog.RawRecord, version string) (*Generation, error) {
	gen, err := s.Build(ctx, records, version)
	if err != nil {
		return nil, err
	}
	s.Publish(gen)
	return gen, nil
}

// Current returns the published generation, or nil before the first publish.
// Callers that read entries and postings together must use one Current value.
func (s *Store) Current() *Generation {
	return s.current.Load()
}

// Ready reports whether a generation has been published.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// Lookup returns postings for token from the published generation.
func (s *Store) Lookup(token string) PostingList {
	return s.Current().Lookup(token)
}

func (s *Store) Stats() Stats {
	gen := s.Current()
	if gen == nil {
		return Stats{}
	}
	total := 0
	for _, pl := range gen.Postings {
		total += len(pl)
	}
	return Stats{
		Version:  gen.Version,
		Entries:  len(gen.Entries),
		Tokens:   len(gen.Postings),
		Postings: total,
		BuiltAt:  gen.BuiltAt.UTC().Format(time.RFC3339),
	}
}
