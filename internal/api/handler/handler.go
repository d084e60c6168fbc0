// Package handler serves the syllabus index over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/syllabus-search/offline-index/internal/analytics"
	"github.com/syllabus-search/offline-index/internal/catalog"
	"github.com/syllabus-search/offline-index/internal/query"
	"github.com/syllabus-search/offline-index/internal/service"
	"github.com/syllabus-search/offline-index/internal/snapshot"
	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
	"github.com/syllabus-search/offline-index/pkg/logger"
	"github.com/syllabus-search/offline-index/pkg/middleware"
)

// Index is the part of service.Service the handler serves.
type Index interface {
	Search(ctx context.Context, keyword string, c query.Criteria) []catalog.ResultRecord
	Page(ctx context.Context, c query.Criteria, offset, limit int) []catalog.ResultRecord
	All(ctx context.Context, c query.Criteria, limit int) []catalog.ResultRecord
	Count(ctx context.Context, c query.Criteria) int
	Sync(ctx context.Context) (snapshot.Result, error)
	Status() service.Status
}

// StatsSource reports aggregated query analytics.
type StatsSource interface {
	Stats() analytics.AggregatedStats
}

type Handler struct {
	index        Index
	stats        StatsSource
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New creates a Handler. stats may be nil.
func New(index Index, stats StatsSource, defaultLimit, maxResults int) *Handler {
	if maxResults <= 0 {
		maxResults = 100
	}
	if defaultLimit <= 0 || defaultLimit > maxResults {
		defaultLimit = min(20, maxResults)
	}
	return &Handler{
		index:        index,
		stats:        stats,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "api-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/courses", h.Courses)
	mux.HandleFunc("GET /api/v1/courses/all", h.AllCourses)
	mux.HandleFunc("POST /api/v1/snapshot/sync", h.SyncSnapshot)
	mux.HandleFunc("GET /api/v1/snapshot", h.SnapshotStatus)
	mux.HandleFunc("GET /api/v1/analytics", h.Analytics)
}

// ListResponse is the body of every listing endpoint.
type ListResponse struct {
	Query   string                 `json:"query,omitempty"`
	Ready   bool                   `json:"ready"`
	Version string                 `json:"version,omitempty"`
	Total   int                    `json:"total"`
	Offset  int                    `json:"offset"`
	Results []catalog.ResultRecord `json:"results"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	keyword := q.Get("q")
	if strings.TrimSpace(keyword) == "" {
		h.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	c, err := ParseCriteria(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, limit, err := h.window(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results := h.index.Search(ctx, keyword, c)
	total := len(results)
	results = window(results, offset, limit)

	logger.FromContext(ctx).Info("search completed",
		"query", keyword,
		"total_hits", total,
		"returned", len(results),
	)
	h.writeList(w, ListResponse{Query: keyword, Total: total, Offset: offset, Results: results})
}

func (h *Handler) Courses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := ParseCriteria(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, limit, err := h.window(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	total := h.index.Count(r.Context(), c)
	results := h.index.Page(r.Context(), c, offset, limit)
	h.writeList(w, ListResponse{Total: total, Offset: offset, Results: results})
}

// AllCourses lists every match for the criteria. Without an explicit limit
// the whole listing is returned.
func (h *Handler) AllCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := ParseCriteria(q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit := 0
	if q.Get("limit") != "" {
		if _, limit, err = h.window(q); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	results := h.index.All(r.Context(), c, limit)
	h.writeList(w, ListResponse{Total: len(results), Results: results})
}

func (h *Handler) SyncSnapshot(w http.ResponseWriter, r *http.Request) {
	res, err := h.index.Sync(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Warn("manual snapshot sync failed", "outcome", res.Outcome, "error", err)
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"outcome":     res.Outcome,
		"version":     res.Version,
		"entries":     res.Entries,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

func (h *Handler) SnapshotStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Status())
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.stats.Stats())
}

func (h *Handler) window(q map[string][]string) (offset, limit int, err error) {
	limit = h.defaultLimit
	if s := first(q, "limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n < 1 {
			return 0, 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, h.maxResults)
	}
	if s := first(q, "offset"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n < 0 {
			return 0, 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = n
	}
	return offset, limit, nil
}

func window(results []catalog.ResultRecord, offset, limit int) []catalog.ResultRecord {
	if offset >= len(results) {
		return []catalog.ResultRecord{}
	}
	return results[offset:min(offset+limit, len(results))]
}

func (h *Handler) writeList(w http.ResponseWriter, resp ListResponse) {
	st := h.index.Status()
	resp.Ready = st.Ready
	resp.Version = st.Index.Version
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		msg = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{
		"error":      msg,
		"request_id": middleware.GetRequestID(r),
	})
}

func first(q map[string][]string, key string) string {
	if v := q[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}
