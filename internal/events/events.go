// Package events records engagement changes to an append-only log.
package events

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	KindIncrement  = "increment"
	KindInitialize = "initialize"
)

type Event struct {
	EventID   string    `json:"eventId"`
	ProductID string    `json:"productId"`
	Kind      string    `json:"kind"`
	Counter   string    `json:"counter"`
	Delta     float64   `json:"delta"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink persists engagement events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, events []Event) error
	Close() error
}

// NopSink discards everything. It is used when no event store is configured.
type NopSink struct{}

func (NopSink) Record(context.Context, []Event) error { return nil }
func (NopSink) Close() error                          { return nil }

// FromDeltas builds one increment event per applied counter delta, in counter
// name order.
func FromDeltas(productID string, deltas map[string]float64, at time.Time) []Event {
	names := make([]string, 0, len(deltas))
	for name := range deltas {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Event, 0, len(names))
	for _, name := range names {
		out = append(out, Event{
			EventID:   uuid.New().String(),
			ProductID: productID,
			Kind:      KindIncrement,
			Counter:   name,
			Delta:     deltas[name],
			Timestamp: at.UTC(),
		})
	}
	return out
}

// Initialized is the single event logged for a bulk initialisation; Delta
// holds the number of products that were initialised.
func Initialized(count int, at time.Time) Event {
	return Event{
		EventID:   uuid.New().String(),
		Kind:      KindInitialize,
		Delta:     float64(count),
		Timestamp: at.UTC(),
	}
}
