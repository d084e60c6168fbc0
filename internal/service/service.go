// Package service is the handle callers hold: it owns the index store, the
// query engine and the snapshot synchronizer, and keeps network work off
// the query path.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/syllabus-search/offline-index/internal/analytics"
	"github.com/syllabus-search/offline-index/internal/catalog"
	"github.com/syllabus-search/offline-index/internal/index"
	"github.com/syllabus-search/offline-index/internal/query"
	"github.com/syllabus-search/offline-index/internal/snapshot"
	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
	"github.com/syllabus-search/offline-index/pkg/logger"
)

// Syncer is the part of the snapshot synchronizer the service drives.
type Syncer interface {
	LoadLocal(ctx context.Context) (bool, error)
	Sync(ctx context.Context) (snapshot.Result, error)
}

// Tracker receives one event per read.
type Tracker interface {
	Track(ev analytics.QueryEvent)
}

// SyncStatus is the outcome of the last finished sync.
type SyncStatus struct {
	Outcome    snapshot.Outcome `json:"outcome"`
	Version    string           `json:"version,omitempty"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Status summarises the service for the snapshot endpoint.
type Status struct {
	Ready    bool        `json:"ready"`
	Index    index.Stats `json:"index"`
	LastSync *SyncStatus `json:"last_sync,omitempty"`
}

type Service struct {
	store   *index.Store
	engine  *query.Engine
	syncer  Syncer
	tracker Tracker

	group    singleflight.Group
	lastSync atomic.Pointer[SyncStatus]

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

// New wires a Service. tracker may be nil.
func New(store *index.Store, engine *query.Engine, syncer Syncer, tracker Tracker) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:   store,
		engine:  engine,
		syncer:  syncer,
		tracker: tracker,
		ctx:     ctx,
		cancel:  cancel,
		logger:  slog.Default().With("component", "syllabus-service"),
	}
}

// Prepare loads the cached snapshot synchronously so queries can be served
// immediately, then checks the manifest in the background. A cache that
// cannot be loaded is reported but does not stop the background sync.
func (s *Service) Prepare(ctx context.Context) error {
	_, loadErr := s.syncer.LoadLocal(ctx)
	if loadErr != nil {
		s.logger.Warn("cached snapshot unusable, waiting for download", "error", loadErr)
	}
	s.goSync()
	if loadErr != nil {
		return fmt.Errorf("loading cached snapshot: %w", loadErr)
	}
	return nil
}

// Sync checks the manifest now. Concurrent calls share one attempt.
func (s *Service) Sync(ctx context.Context) (snapshot.Result, error) {
	ch := s.group.DoChan("sync", func() (any, error) {
		res, err := s.syncer.Sync(s.ctx)
		status := &SyncStatus{Outcome: res.Outcome, Version: res.Version, FinishedAt: time.Now().UTC()}
		if err != nil {
			status.Error = err.Error()
		}
		s.lastSync.Store(status)
		return res, err
	})
	select {
	case r := <-ch:
		res, _ := r.Val.(snapshot.Result)
		return res, r.Err
	case <-ctx.Done():
		return snapshot.Result{}, ctx.Err()
	}
}

// StartRefreshLoop re-checks the manifest every interval until Close.
func (s *Service) StartRefreshLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	started := s.spawn(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, _ = s.Sync(s.ctx)
			case <-s.ctx.Done():
				return
			}
		}
	})
	if started {
		s.logger.Info("snapshot refresh loop started", "interval", interval)
	}
}

// TriggerSync starts a background sync and returns immediately.
func (s *Service) TriggerSync() {
	s.goSync()
}

func (s *Service) goSync() {
	s.spawn(func() { _, _ = s.Sync(s.ctx) })
}

// spawn runs fn in a tracked goroutine unless the service is closed.
func (s *Service) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Service) IsReady() bool {
	return s.store.Ready()
}

// Ready returns ErrNotReady until a generation has been published.
func (s *Service) Ready() error {
	if !s.store.Ready() {
		return apperrors.ErrNotReady
	}
	return nil
}

// Wait blocks until background syncs started so far have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background work and waits for it.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Search(ctx context.Context, keyword string, c query.Criteria) []catalog.ResultRecord {
	start := time.Now()
	results := s.engine.Search(keyword, c)
	s.track(ctx, analytics.QueryEvent{
		Type:     analytics.EventSearch,
		Keyword:  keyword,
		Plan:     query.KindOf(keyword).String(),
		Criteria: c,
		Results:  len(results),
	}, start)
	return results
}

func (s *Service) Page(ctx context.Context, c query.Criteria, offset, limit int) []catalog.ResultRecord {
	start := time.Now()
	results := s.engine.Page(c, offset, limit)
	s.track(ctx, analytics.QueryEvent{Type: analytics.EventPage, Criteria: c, Results: len(results)}, start)
	return results
}

func (s *Service) All(ctx context.Context, c query.Criteria, limit int) []catalog.ResultRecord {
	start := time.Now()
	results := s.engine.All(c, limit)
	s.track(ctx, analytics.QueryEvent{Type: analytics.EventAll, Criteria: c, Results: len(results)}, start)
	return results
}

// Count reports the number of entries matching c. It is not tracked as a
// query.
func (s *Service) Count(_ context.Context, c query.Criteria) int {
	return s.engine.Count(c)
}

func (s *Service) Status() Status {
	return Status{
		Ready:    s.store.Ready(),
		Index:    s.store.Stats(),
		LastSync: s.lastSync.Load(),
	}
}

func (s *Service) track(ctx context.Context, ev analytics.QueryEvent, start time.Time) {
	if s.tracker == nil {
		return
	}
	ev.LatencyUs = time.Since(start).Microseconds()
	ev.Version = s.store.Stats().Version
	ev.RequestID = logger.RequestID(ctx)
	ev.Timestamp = start.UTC()
	s.tracker.Track(ev)
}
