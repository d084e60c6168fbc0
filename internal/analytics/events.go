// Package analytics records what callers ask the index for. Events are
// aggregated in memory for the stats endpoint and, when a sink is
// configured, shipped to Kafka in batches.
package analytics

import (
	"time"

	"github.com/syllabus-search/offline-index/internal/query"
)

type EventType string

const (
	EventSearch EventType = "search"
	EventPage   EventType = "page"
	EventAll    EventType = "all"
)

// QueryEvent describes one read against the index.
type QueryEvent struct {
	Type      EventType      `json:"type"`
	Keyword   string         `json:"keyword,omitempty"`
	Plan      string         `json:"plan,omitempty"`
	Criteria  query.Criteria `json:"criteria"`
	Results   int            `json:"results"`
	LatencyUs int64          `json:"latency_us"`
	Version   string         `json:"index_version,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
