package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves run journal events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error

	// GetByRunID retrieves all events of one run in append order.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}

// AppendEvent appends a typed event.
func AppendEvent(ctx context.Context, store Store, e Event) error {
	return store.Append(ctx, e.RunID(), e.Type(), e.Payload(), e.Metadata())
}
