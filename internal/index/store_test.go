package index

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syllabus-search/offline-index/internal/catalog"
	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
)

func record(id, name, teacher string) catalog.RawRecord {
	return catalog.RawRecord{ID: id, ClassName: name, TeacherName: teacher, Term: "Spring"}
}

func TestBuildEntry(t *testing.T) {
	e := BuildEntry(record("1", "コンピューター", "山田"), 0)

	assert.Equal(t, "こんぴゅた山田", e.AggNorm)
	assert.Equal(t, "こんぴゅた", e.NameNorm)
	assert.Equal(t, "山田", e.TeacherNorm)
	assert.Equal(t, "前期", e.TermNorm)
	assert.NotEmpty(t, e.DedupKey)

	// first token of each script form, in round-robin order
	require.GreaterOrEqual(t, len(e.Tokens), 2)
	assert.Equal(t, "こん", e.Tokens[0])
	assert.Equal(t, "コン", e.Tokens[1])
	assert.Contains(t, e.Tokens, "ュー", "long-vowel bigram from the katakana form")
}

func TestBuildEntryCapsTokens(t *testing.T) {
	// 40 distinct katakana give 39 bigrams per script form, 78 in total
	long := "アイウエオカキクケコサシスセソタチツテトナニヌネノハヒフヘホマミムメモヤユヨラリ"
	e := BuildEntry(record("1", long, "講師"), 0)
	require.Len(t, e.Tokens, DefaultTokensPerEntry)
	assert.Equal(t, 50, DefaultTokensPerEntry)
	assert.Equal(t, "あい", e.Tokens[0])
	assert.Equal(t, "アイ", e.Tokens[1])
	assert.Equal(t, "いう", e.Tokens[2])
	assert.Equal(t, "イウ", e.Tokens[3])
	assert.NotContains(t, e.Tokens, "講師", "aggregate tail is cut by the cap")

	e = BuildEntry(record("1", long, "講師"), 7)
	assert.Equal(t, []string{"あい", "アイ", "いう", "イウ", "うえ", "ウエ", "えお"}, e.Tokens)
}

func TestBuildPostings(t *testing.T) {
	s := NewStore(0)
	gen, err := s.Build(context.Background(), []catalog.RawRecord{
		record("a", "English Conversation", "Smith"),
		record("b", "English Writing", "Jones"),
	}, "v1")
	require.NoError(t, err)

	assert.Equal(t, PostingList{0, 1}, gen.Lookup("en"))
	assert.Equal(t, PostingList{0}, gen.Lookup("co"))
	assert.Nil(t, gen.Lookup("zz"))
	assert.False(t, s.Ready(), "Build must not publish")
}

func TestBuildIsAllOrNothing(t *testing.T) {
	s := NewStore(0)
	_, err := s.Rebuild(context.Background(), []catalog.RawRecord{record("a", "Old", "T")}, "v1")
	require.NoError(t, err)

	_, err = s.Rebuild(context.Background(), []catalog.RawRecord{
		record("x", "New", "T"),
		record("x", "Dup", "T"),
	}, "v2")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRecord)

	_, err = s.Rebuild(context.Background(), []catalog.RawRecord{record("", "NoID", "T")}, "v3")
	assert.ErrorIs(t, err, apperrors.ErrSnapshotMalformed)

	gen := s.Current()
	require.NotNil(t, gen)
	assert.Equal(t, "v1", gen.Version)
	assert.Equal(t, 1, gen.Len())
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStore(0).Build(ctx, []catalog.RawRecord{record("a", "x", "y")}, "v")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreBeforePublish(t *testing.T) {
	s := NewStore(0)
	assert.False(t, s.Ready())
	assert.Nil(t, s.Current())
	assert.Nil(t, s.Lookup("en"))
	assert.Equal(t, Stats{}, s.Stats())
}

func corpus(n int, prefix string) []catalog.RawRecord {
	out := make([]catalog.RawRecord, n)
	for i := range out {
		out[i] = record(fmt.Sprintf("%s-%d", prefix, i), fmt.Sprintf("%s course %d", prefix, i), "teacher")
	}
	return out
}

// Readers racing with publishes must never see postings that point past the
// entries of the generation they loaded.
func TestConcurrentReadersSeeWholeGenerations(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()
	small, err := s.Build(ctx, corpus(3, "small"), "small")
	require.NoError(t, err)
	large, err := s.Build(ctx, corpus(500, "large"), "large")
	require.NoError(t, err)
	s.Publish(small)

	var (
		wg       sync.WaitGroup
		stop     atomic.Bool
		failures atomic.Int64
		reads    atomic.Int64
	)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				gen := s.Current()
				for _, tok := range []string{"co", "te", "ur"} {
					for _, pos := range gen.Lookup(tok) {
						if pos < 0 || pos >= len(gen.Entries) {
							failures.Add(1)
						}
					}
				}
				if gen.Version == "small" && gen.Len() != 3 || gen.Version == "large" && gen.Len() != 500 {
					failures.Add(1)
				}
				reads.Add(1)
				if stop.Load() {
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			s.Publish(large)
		} else {
			s.Publish(small)
		}
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Positive(t, reads.Load())
}
