package postgres

import (
	"context"
	"fmt"

	"github.com/predictify/marketengine/internal/host"
)

// EventLog implements host.EventLog as an append-only audit table, the
// durable record internal/events.Emitter writes to before (optionally)
// publishing the same payload to internal/store/redistore for live fan-out.
type EventLog struct {
	client *Client
}

// NewEventLog wraps an already-connected, already-migrated Client.
func NewEventLog(client *Client) *EventLog {
	return &EventLog{client: client}
}

var _ host.EventLog = (*EventLog)(nil)

func (e *EventLog) Emit(ctx context.Context, topic string, payload []byte) error {
	_, err := e.client.pool.Exec(ctx,
		`INSERT INTO events (topic, payload) VALUES ($1, $2)`,
		topic, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: emit event %s: %w", topic, err)
	}
	return nil
}
