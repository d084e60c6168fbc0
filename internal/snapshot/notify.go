package snapshot

import (
	"context"
	"time"

	"github.com/syllabus-search/offline-index/pkg/kafka"
)

// PublishedEvent announces that a new snapshot generation went live.
type PublishedEvent struct {
	Version   string    `json:"version"`
	URL       string    `json:"url"`
	Entries   int       `json:"entries"`
	Tokens    int       `json:"tokens"`
	Bytes     int       `json:"bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is told about every published generation.
type Notifier interface {
	SnapshotPublished(ctx context.Context, ev PublishedEvent) error
}

// EventPublisher is the part of the kafka producer the notifier uses.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaNotifier publishes PublishedEvent values keyed by version.
type KafkaNotifier struct {
	producer EventPublisher
}

func NewKafkaNotifier(p EventPublisher) *KafkaNotifier {
	return &KafkaNotifier{producer: p}
}

func (n *KafkaNotifier) SnapshotPublished(ctx context.Context, ev PublishedEvent) error {
	return n.producer.Publish(ctx, kafka.Event{Key: ev.Version, Value: ev})
}
