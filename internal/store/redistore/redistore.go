// Package redistore implements host.KV, domain.RateLimiter, and
// domain.SignalBus over Redis. The application wires only the rate limiter
// (per-client-IP HTTP request limiting) and the signal bus (event fan-out to
// the WebSocket hub) from this package; its host.KV is not used as a backend.
package redistore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

// Store wraps a go-redis client for the KV, rate-limiter, and signal-bus
// facades this package exposes.
type Store struct {
	rdb *redis.Client
}

// New wraps an already-connected go-redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func namespacedKey(ns host.Namespace, key string) string {
	return fmt.Sprintf("kv:%s:%s", ns, key)
}

// Get implements host.KV. Namespaces other than NamespaceTemporary are still
// served (a caller may choose Redis for all three), but only Temporary gets
// the TTL semantics its name promises elsewhere in the facade.
func (s *Store) Get(ctx context.Context, ns host.Namespace, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, namespacedKey(ns, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redistore: get %s/%s: %w", ns, key, err)
	}
	return val, true, nil
}

func (s *Store) Put(ctx context.Context, ns host.Namespace, key string, val []byte) error {
	return s.PutWithTTL(ctx, ns, key, val, 0)
}

func (s *Store) PutWithTTL(ctx context.Context, ns host.Namespace, key string, val []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, namespacedKey(ns, key), val, ttl).Err(); err != nil {
		return fmt.Errorf("redistore: put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ns host.Namespace, key string) error {
	if err := s.rdb.Del(ctx, namespacedKey(ns, key)).Err(); err != nil {
		return fmt.Errorf("redistore: delete %s/%s: %w", ns, key, err)
	}
	return nil
}

// ListKeys scans the namespace's key space for a prefix match. Uses SCAN
// rather than KEYS to avoid blocking the server on a large temporary
// namespace (pending-action volume can spike around dispute windows).
func (s *Store) ListKeys(ctx context.Context, ns host.Namespace, prefix string) ([]string, error) {
	pattern := namespacedKey(ns, prefix) + "*"
	nsPrefix := namespacedKey(ns, "")

	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(nsPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redistore: list_keys %s/%s*: %w", ns, prefix, err)
	}
	return keys, nil
}

var _ domain.SignalBus = (*Store)(nil)

// Publish fans a payload out to a pub/sub channel; delivery is best-effort
// to subscribers currently connected (the WebSocket hub).
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redistore: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of raw payloads for the given pub/sub channel.
// The returned channel is closed when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := s.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("redistore: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// StreamAppend appends payload to a Redis stream for at-least-once delivery
// to consumers that read back through StreamRead (durable event replay,
// unlike the ephemeral pub/sub channel above).
func (s *Store) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redistore: stream_append %s: %w", stream, err)
	}
	return nil
}

// StreamRead reads up to count messages from stream after lastID ("0" for
// the beginning).
func (s *Store) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	if lastID == "" {
		lastID = "0"
	}
	if count <= 0 {
		count = 100
	}
	res, err := s.rdb.XRangeN(ctx, stream, "("+lastID, "+", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("redistore: stream_read %s: %w", stream, err)
	}

	out := make([]domain.StreamMessage, 0, len(res))
	for _, msg := range res {
		payload, _ := msg.Values["payload"].(string)
		out = append(out, domain.StreamMessage{ID: msg.ID, Payload: []byte(payload)})
	}
	return out, nil
}
