package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
	"github.com/syllabus-search/offline-index/pkg/metrics"
	"github.com/syllabus-search/offline-index/pkg/resilience"
	"github.com/syllabus-search/offline-index/pkg/tracing"
)

// FetcherConfig tunes snapshot downloads. Zero values take defaults.
type FetcherConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	MaxSize     int64
}

// Fetcher downloads snapshot files with per-attempt timeouts, retry with
// backoff and a circuit breaker around the remote host.
type Fetcher struct {
	client  *http.Client
	cfg     FetcherConfig
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewFetcher(client *http.Client, cfg FetcherConfig, m *metrics.Metrics) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 64 << 20
	}
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("snapshot-download", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "snapshot-fetcher"),
	}
}

// Fetch downloads url and returns the body. Failures wrap ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		attempts int
	)
	retryCfg := resilience.RetryConfig{
		MaxAttempts:    f.cfg.MaxAttempts,
		InitialDelay:   f.cfg.RetryDelay,
		JitterFraction: 0.2,
	}
	err := resilience.Retry(ctx, "snapshot-download", retryCfg, func(ctx context.Context) error {
		attempts++
		return f.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, f.cfg.Timeout, "snapshot-download", func(ctx context.Context) error {
				b, err := f.get(ctx, url)
				if err != nil {
					return err
				}
				body = b
				return nil
			})
		})
	})
	tracing.FromContext(ctx).SetAttr("attempts", attempts)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrFetchFailed, err)
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("%w: building request: %v", apperrors.ErrFetchFailed, err))
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.observe("error")
		return nil, fmt.Errorf("downloading snapshot: %w", err)
	}
	defer resp.Body.Close()
	f.observe(strconv.Itoa(resp.StatusCode))

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: snapshot status %d", apperrors.ErrFetchFailed, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, resilience.Permanent(fmt.Errorf("%w: snapshot status %d", apperrors.ErrFetchFailed, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxSize {
		return nil, resilience.Permanent(fmt.Errorf("%w: snapshot exceeds %d bytes", apperrors.ErrFetchFailed, f.cfg.MaxSize))
	}
	f.logger.Debug("snapshot downloaded", "bytes", len(body), "duration", time.Since(start))
	return body, nil
}

func (f *Fetcher) observe(status string) {
	if f.metrics != nil {
		f.metrics.SnapshotDownloadsTotal.WithLabelValues(status).Inc()
	}
}
