package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syllabus-search/offline-index/pkg/kafka"
)

// Sink receives batches of events. *kafka.Producer implements it.
type Sink interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig tunes batching. Zero values take defaults.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector feeds events to an Aggregator synchronously and to a Sink in
// batches from a background goroutine. Track never blocks: when the buffer
// is full the event still counts locally but is not shipped.
type Collector struct {
	sink       Sink
	aggregator *Aggregator
	cfg        CollectorConfig
	eventCh    chan QueryEvent
	stop       chan struct{}
	done       chan struct{}
	startOnce  sync.Once
	closeOnce  sync.Once
	started    atomic.Bool
	logger     *slog.Logger
}

// NewCollector creates a Collector. Either sink or aggregator may be nil.
func NewCollector(sink Sink, aggregator *Aggregator, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		sink:       sink,
		aggregator: aggregator,
		cfg:        cfg,
		eventCh:    make(chan QueryEvent, cfg.BufferSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "analytics-collector"),
	}
}

// Start launches the shipping loop. It is a no-op without a sink.
func (c *Collector) Start(ctx context.Context) {
	if c.sink == nil {
		return
	}
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run(ctx)
		c.logger.Info("analytics collector started",
			"buffer_size", c.cfg.BufferSize,
			"batch_size", c.cfg.BatchSize,
			"flush_interval", c.cfg.FlushInterval,
		)
	})
}

func (c *Collector) Track(ev QueryEvent) {
	if c.aggregator != nil {
		c.aggregator.Record(ev)
	}
	if c.sink == nil {
		return
	}
	select {
	case c.eventCh <- ev:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops the loop after a final flush.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		if c.started.Load() {
			<-c.done
		}
	})
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.cfg.BatchSize)
	for {
		select {
		case ev := <-c.eventCh:
			batch = append(batch, toKafka(ev))
			if len(batch) >= c.cfg.BatchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-c.stop:
			c.final(batch)
			return
		case <-ctx.Done():
			c.final(batch)
			return
		}
	}
}

func (c *Collector) final(batch []kafka.Event) {
drain:
	for {
		select {
		case ev := <-c.eventCh:
			batch = append(batch, toKafka(ev))
		default:
			break drain
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.flush(ctx, batch)
}

// flush ships batch and returns an empty buffer to reuse. Failed batches
// are dropped; analytics are best effort.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.sink.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "batch_size", len(batch), "error", err)
	} else {
		c.logger.Debug("analytics batch flushed", "events", len(batch))
	}
	return make([]kafka.Event, 0, c.cfg.BatchSize)
}

func toKafka(ev QueryEvent) kafka.Event {
	return kafka.Event{Key: string(ev.Type), Value: ev}
}
