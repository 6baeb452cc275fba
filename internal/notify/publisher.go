// Package notify fans run journal events out to external listeners.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/progan/internal/eventstore"
)

// Publisher delivers journal events. Delivery failures are reported but never stop a run.
type Publisher interface {
	Publish(ctx context.Context, e eventstore.Event) error
	Close() error
}

// StatusSink stores the latest status document of a run under its id.
type StatusSink interface {
	PutStatus(ctx context.Context, runID string, status []byte) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, eventstore.Event) error { return nil }
func (Noop) Close() error                                     { return nil }

// Envelope is the wire form of a published event.
type Envelope struct {
	RunID     string          `json:"run_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode renders e as an Envelope.
func Encode(e eventstore.Event) ([]byte, error) {
	payload := json.RawMessage(e.Payload())
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal(Envelope{
		RunID:     e.RunID(),
		Type:      e.Type(),
		Timestamp: e.Timestamp().UTC(),
		Payload:   payload,
	})
}
