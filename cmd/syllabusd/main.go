package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/syllabus-search/offline-index/internal/analytics"
	"github.com/syllabus-search/offline-index/internal/api/handler"
	"github.com/syllabus-search/offline-index/internal/index"
	"github.com/syllabus-search/offline-index/internal/query"
	"github.com/syllabus-search/offline-index/internal/service"
	"github.com/syllabus-search/offline-index/internal/snapshot"
	"github.com/syllabus-search/offline-index/pkg/config"
	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
	"github.com/syllabus-search/offline-index/pkg/health"
	"github.com/syllabus-search/offline-index/pkg/kafka"
	"github.com/syllabus-search/offline-index/pkg/logger"
	"github.com/syllabus-search/offline-index/pkg/metrics"
	"github.com/syllabus-search/offline-index/pkg/middleware"
	"github.com/syllabus-search/offline-index/pkg/postgres"
	pkgredis "github.com/syllabus-search/offline-index/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("syllabus index stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("syllabus index stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting syllabus index",
		"port", cfg.Server.Port,
		"manifest_source", cfg.Snapshot.ManifestSource,
		"data_dir", cfg.Snapshot.DataDir,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	checker := health.NewChecker(2 * time.Second)
	source, watchedKeys, closeSource := manifestSource(ctx, cfg, checker)
	defer closeSource()

	store := index.NewStore(cfg.Search.TokensPerEntry)
	engine := query.New(store, query.Options{
		TokensPerQuery: cfg.Search.TokensPerQuery,
		Tables:         query.DefaultTables().Merge(cfg.Filters.CategoryGroups, cfg.Filters.CampusAliases),
		Metrics:        m,
	})
	fetcher := snapshot.NewFetcher(&http.Client{}, snapshot.FetcherConfig{
		Timeout:     cfg.Snapshot.FetchTimeout,
		MaxAttempts: cfg.Snapshot.MaxAttempts,
		RetryDelay:  cfg.Snapshot.RetryDelay,
		MaxSize:     cfg.Snapshot.MaxSnapshotSize,
	}, m)

	var (
		notifier snapshot.Notifier
		sink     analytics.Sink
	)
	kafkaEnabled := len(cfg.Kafka.Brokers) > 0
	if kafkaEnabled {
		publishedProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SnapshotPublished)
		defer publishedProducer.Close()
		notifier = snapshot.NewKafkaNotifier(publishedProducer)

		eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer eventsProducer.Close()
		sink = eventsProducer
		slog.Info("kafka events enabled",
			"brokers", cfg.Kafka.Brokers,
			"snapshot_topic", cfg.Kafka.Topics.SnapshotPublished,
			"search_topic", cfg.Kafka.Topics.SearchEvents,
		)
	} else {
		slog.Warn("no kafka brokers configured, events stay local")
	}

	aggregator := analytics.NewAggregator()
	collector := analytics.NewCollector(sink, aggregator, analytics.CollectorConfig{})
	collector.Start(ctx)
	defer collector.Close()

	syncer := snapshot.NewSynchronizer(source, fetcher, snapshot.NewDiskCache(cfg.Snapshot.DataDir), store,
		snapshot.Options{Notifier: notifier, Metrics: m})
	svc := service.New(store, engine, syncer, collector)
	defer svc.Close()

	if err := svc.Prepare(ctx); err != nil {
		slog.Warn("starting without a cached snapshot", "error", err)
	}
	svc.StartRefreshLoop(cfg.Snapshot.RefreshInterval)

	checker.Register("index", func(context.Context) health.ComponentHealth {
		st := store.Stats()
		if err := svc.Ready(); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("version %s, %d entries", st.Version, st.Entries),
		}
	})

	mux := http.NewServeMux()
	handler.New(svc, aggregator, cfg.Search.DefaultLimit, cfg.Search.MaxResults).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.Server.Port {
			mux.Handle("GET /metrics", metrics.Handler(reg))
		} else {
			shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, reg)
			if err != nil {
				return err
			}
			defer shutdownWithin(cfg.Server.ShutdownTimeout, shutdownMetrics)
		}
	}

	// Metrics must wrap the mux directly so the matched pattern is visible.
	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("syllabus index listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownWithin(cfg.Server.ShutdownTimeout, server.Shutdown)
		return nil
	})
	if kafkaEnabled && len(watchedKeys) > 0 {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ConfigChanged, service.HandleConfigChange(svc, watchedKeys))
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}
	return g.Wait()
}

// manifestSource builds the configured manifest source. A remote store
// that cannot be reached at startup degrades to a source that reports the
// connection error, so the cached snapshot keeps being served.
func manifestSource(ctx context.Context, cfg *config.Config, checker *health.Checker) (snapshot.ManifestSource, []string, func()) {
	noop := func() {}
	switch cfg.Snapshot.ManifestSource {
	case config.ManifestHTTP:
		return &snapshot.HTTPSource{URL: cfg.Snapshot.ManifestURL, Client: &http.Client{Timeout: cfg.Snapshot.FetchTimeout}}, nil, noop

	case config.ManifestRedis:
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, serving cached snapshot only", "addr", cfg.Redis.Addr, "error", err)
			checker.Register("redis", unreachable(err))
			return unavailableSource{name: "redis", err: err}, nil, noop
		}
		checker.Register("redis", health.Ping(client.Ping, health.StatusDegraded))
		keys := []string{cfg.Redis.URLKey, cfg.Redis.VersionKey}
		return snapshot.NewRedisSource(client, keys[0], keys[1]), keys, func() { _ = client.Close() }

	case config.ManifestPostgres:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, serving cached snapshot only", "host", cfg.Postgres.Host, "error", err)
			checker.Register("postgres", unreachable(err))
			return unavailableSource{name: "postgres", err: err}, nil, noop
		}
		checker.Register("postgres", health.Ping(client.Ping, health.StatusDegraded))
		keys := []string{cfg.Postgres.URLKey, cfg.Postgres.VersionKey}
		return snapshot.NewPostgresSource(client, keys[0], keys[1]), keys, func() { _ = client.Close() }

	default:
		return snapshot.StaticSource{M: snapshot.Manifest{
			URL:     cfg.Snapshot.StaticURL,
			Version: cfg.Snapshot.StaticVersion,
		}}, nil, noop
	}
}

type unavailableSource struct {
	name string
	err  error
}

func (s unavailableSource) Manifest(context.Context) (snapshot.Manifest, error) {
	return snapshot.Manifest{}, fmt.Errorf("%w: %s manifest store unavailable: %w", apperrors.ErrFetchFailed, s.name, s.err)
}

func (s unavailableSource) Name() string { return s.name }

func unreachable(err error) health.Check {
	return func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
	}
}

func shutdownWithin(timeout time.Duration, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
