package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/syllabus-search/offline-index/internal/catalog"
	"github.com/syllabus-search/offline-index/internal/index"
	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
	"github.com/syllabus-search/offline-index/pkg/metrics"
	"github.com/syllabus-search/offline-index/pkg/tracing"
)

// Outcome classifies one synchronization attempt.
type Outcome string

const (
	OutcomeUpdated       Outcome = "updated"
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomeManifestError Outcome = "manifest_error"
	OutcomeFetchError    Outcome = "fetch_error"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeStoreError    Outcome = "store_error"
)

// Result describes a finished synchronization attempt.
type Result struct {
	Outcome  Outcome
	Version  string
	Entries  int
	Duration time.Duration
}

// Synchronizer moves the index to the published snapshot. It is not safe for
// concurrent use; callers collapse concurrent syncs.
type Synchronizer struct {
	source   ManifestSource
	fetcher  *Fetcher
	cache    Cache
	store    *index.Store
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Options wires optional collaborators.
type Options struct {
	Notifier Notifier
	Metrics  *metrics.Metrics
}

func NewSynchronizer(source ManifestSource, fetcher *Fetcher, cache Cache, store *index.Store, opts Options) *Synchronizer {
	return &Synchronizer{
		source:   source,
		fetcher:  fetcher,
		cache:    cache,
		store:    store,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   slog.Default().With("component", "snapshot-sync", "source", source.Name()),
	}
}

// LoadLocal rebuilds the index from the disk cache. It reports false when no
// cached snapshot exists.
func (s *Synchronizer) LoadLocal(ctx context.Context) (bool, error) {
	data, err := s.cache.ReadSnapshot()
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no cached snapshot", "dir", s.cache.Dir())
		return false, nil
	}
	if err != nil {
		return false, err
	}
	version, err := s.cache.ReadVersion()
	if err != nil {
		return false, err
	}
	records, err := catalog.Decode(data)
	if err != nil {
		return false, fmt.Errorf("cached snapshot: %w", err)
	}
	gen, err := s.store.Rebuild(ctx, records, version)
	s.observeRebuild(err)
	if err != nil {
		return false, fmt.Errorf("rebuilding from cached snapshot: %w", err)
	}
	s.observeGeneration(gen)
	s.logger.Info("loaded cached snapshot", "version", version, "entries", gen.Len())
	return true, nil
}

// Sync checks the manifest and, when its version differs from the one
// recorded locally, downloads the snapshot, replaces the disk cache and
// publishes a new generation. On any failure the previous cache, version
// token and published generation stay in place.
func (s *Synchronizer) Sync(ctx context.Context) (Result, error) {
	start := time.Now()
	res, err := s.sync(ctx)
	res.Duration = time.Since(start)
	if s.metrics != nil {
		s.metrics.SnapshotSyncsTotal.WithLabelValues(string(res.Outcome)).Inc()
	}
	if err != nil {
		s.logger.Warn("snapshot sync failed, keeping local snapshot",
			"outcome", res.Outcome,
			"version", res.Version,
			"error", err,
		)
		return res, err
	}
	s.logger.Info("snapshot sync finished",
		"outcome", res.Outcome,
		"version", res.Version,
		"entries", res.Entries,
		"duration", res.Duration,
	)
	return res, nil
}

func (s *Synchronizer) sync(ctx context.Context) (res Result, err error) {
	ctx, span := tracing.Start(ctx, "snapshot.sync")
	defer func() {
		span.SetAttr("outcome", string(res.Outcome))
		span.End(err)
		span.Log(s.logger)
	}()

	_, sp := tracing.Start(ctx, "manifest")
	m, err := s.source.Manifest(ctx)
	sp.End(err)
	if err != nil {
		return Result{Outcome: OutcomeManifestError}, fmt.Errorf("reading manifest: %w", err)
	}
	res = Result{Version: m.Version}
	span.SetAttr("version", m.Version)

	local, err := s.cache.ReadVersion()
	if err != nil {
		res.Outcome = OutcomeStoreError
		return res, err
	}
	if gen := s.store.Current(); gen != nil && local == m.Version && gen.Version == m.Version {
		res.Outcome = OutcomeUnchanged
		res.Entries = gen.Len()
		return res, nil
	}

	dctx, sp := tracing.Start(ctx, "download")
	data, err := s.fetcher.Fetch(dctx, m.URL)
	sp.SetAttr("bytes", len(data))
	sp.End(err)
	if err != nil {
		res.Outcome = OutcomeFetchError
		return res, err
	}

	_, sp = tracing.Start(ctx, "decode")
	records, err := catalog.Decode(data)
	sp.SetAttr("records", len(records))
	sp.End(err)
	if err != nil {
		res.Outcome = OutcomeMalformed
		return res, err
	}

	bctx, sp := tracing.Start(ctx, "build")
	gen, err := s.store.Build(bctx, records, m.Version)
	sp.End(err)
	s.observeRebuild(err)
	if err != nil {
		res.Outcome = OutcomeMalformed
		if !errors.Is(err, apperrors.ErrSnapshotMalformed) && !errors.Is(err, apperrors.ErrDuplicateRecord) {
			res.Outcome = OutcomeStoreError
		}
		return res, err
	}

	_, sp = tracing.Start(ctx, "persist")
	err = s.persist(data, m.Version)
	sp.End(err)
	if err != nil {
		res.Outcome = OutcomeStoreError
		return res, err
	}
	s.store.Publish(gen)
	s.observeGeneration(gen)

	res.Outcome = OutcomeUpdated
	res.Entries = gen.Len()
	s.notify(ctx, PublishedEvent{
		Version:   m.Version,
		URL:       m.URL,
		Entries:   gen.Len(),
		Tokens:    len(gen.Postings),
		Bytes:     len(data),
		Timestamp: gen.BuiltAt,
	})
	return res, nil
}

// persist writes the snapshot and then its version token. When the token
// cannot be written the previous snapshot file is put back, so the cache
// never pairs new data with an old version.
func (s *Synchronizer) persist(data []byte, version string) error {
	prev, prevErr := s.cache.ReadSnapshot()
	if prevErr != nil && !errors.Is(prevErr, fs.ErrNotExist) {
		return prevErr
	}
	if err := s.cache.WriteSnapshot(data); err != nil {
		return err
	}
	err := s.cache.WriteVersion(version)
	if err == nil {
		return nil
	}

	if prevErr == nil {
		if rerr := s.cache.WriteSnapshot(prev); rerr != nil {
			s.logger.Error("failed to restore previous snapshot file", "dir", s.cache.Dir(), "error", rerr)
			return errors.Join(err, rerr)
		}
		s.logger.Warn("version token not written, restored previous snapshot file", "version", version, "error", err)
		return err
	}
	if rerr := s.cache.RemoveSnapshot(); rerr != nil {
		s.logger.Error("failed to remove unversioned snapshot file", "dir", s.cache.Dir(), "error", rerr)
		return errors.Join(err, rerr)
	}
	s.logger.Warn("version token not written, removed new snapshot file", "version", version, "error", err)
	return err
}

func (s *Synchronizer) notify(ctx context.Context, ev PublishedEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SnapshotPublished(ctx, ev); err != nil {
		s.logger.Error("failed to announce snapshot", "version", ev.Version, "error", err)
	}
}

func (s *Synchronizer) observeRebuild(err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.IndexRebuildsTotal.WithLabelValues(status).Inc()
}

func (s *Synchronizer) observeGeneration(gen *index.Generation) {
	if s.metrics == nil || gen == nil {
		return
	}
	s.metrics.IndexEntries.Set(float64(gen.Len()))
	s.metrics.IndexTokens.Set(float64(len(gen.Postings)))
}
