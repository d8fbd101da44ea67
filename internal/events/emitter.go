// Package events implements the §4.L event emitter: every state-mutating
// entrypoint funnels its outcome through Emitter.Emit, which encodes a
// structured payload and appends it to the host event log (and, when a
// signal bus is wired, publishes it for the websocket hub to fan out).
package events

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/notify"
)

// channelPrefix namespaces event topics on the signal bus; the websocket
// hub subscribes to one "events:<Topic>" channel per topic.
const channelPrefix = "events:"

// Emitter appends structured audit events and optionally fans them out over
// a pub/sub signal bus for live subscribers and an operator notifier for a
// configured subset of topics.
type Emitter struct {
	log      host.EventLog
	bus      domain.SignalBus  // optional; nil disables live fan-out
	notifier *notify.Notifier  // optional; nil disables operator notifications
}

// New creates an Emitter. bus and notifier may both be nil.
func New(log host.EventLog, bus domain.SignalBus, notifier *notify.Notifier) *Emitter {
	return &Emitter{log: log, bus: bus, notifier: notifier}
}

// Emit encodes fields as a protobuf structpb.Struct and appends it to the
// event log under topic, per §4.L. Per §7's propagation policy, this must
// only be called after an entrypoint's mutation has already committed to
// storage — an error here does not roll back state, since the event log is
// an append-only side channel, not the transaction boundary itself.
func (e *Emitter) Emit(ctx context.Context, topic domain.EventTopic, fields map[string]any) error {
	fields["topic"] = string(topic)
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", topic, err)
	}

	payload, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", topic, err)
	}
	if len(payload) > domain.MaxEventPayloadBytes {
		return fmt.Errorf("events: %s payload %d bytes exceeds %d: %w", topic, len(payload), domain.MaxEventPayloadBytes, domain.ErrPayloadTooLarge)
	}

	if err := e.log.Emit(ctx, string(topic), payload); err != nil {
		return fmt.Errorf("events: emit %s: %w", topic, err)
	}

	if e.bus != nil {
		_ = e.bus.Publish(ctx, channelPrefix+string(topic), payload)
	}

	if e.notifier != nil {
		// Notify's own configured event allowlist decides which topics
		// actually reach a sender; every topic is offered here.
		_ = e.notifier.Notify(ctx, string(topic), string(topic), formatFields(fields))
	}
	return nil
}

// formatFields renders an event's fields as "key=value" pairs in stable
// sorted-key order, for a human-readable notification body.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "topic" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
