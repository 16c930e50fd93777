// Package producer publishes auth events to message brokers (Kafka, Redis Streams via watermill).
package producer

import (
	"context"
	"encoding/json"

	"courier-auth/backend/internal/telemetry"
)

// Producer emits auth events to a broker. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; wrap in telemetry.Async when needed.
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}

// Encode serializes an event the way every producer writes it.
func Encode(event *telemetry.Event) ([]byte, error) {
	return json.Marshal(event)
}
