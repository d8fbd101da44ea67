// Package market implements the market registry (§4.D): CRUD on market
// records and the index of all market IDs, backed by the storage facade.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

const (
	marketKeyPrefix = "market:"
	counterKey      = "market_counter"
)

// Registry is the market CRUD facade grounded on internal/service/market_service.go's
// cache-then-store read pattern and upsert-then-invalidate write pattern,
// adapted here onto the generic host.KV facade rather than a typed SQL table
// (spec.md §9's "flat records keyed by identifiers in the storage facade").
type Registry struct {
	kv host.KV
}

// New creates a Registry over the given storage facade.
func New(kv host.KV) *Registry {
	return &Registry{kv: kv}
}

func marketKey(id domain.MarketID) string {
	return marketKeyPrefix + string(id)
}

// Create allocates a new market ID from the per-contract monotonic counter
// and stores the given record under it. Returns an error wrapping
// ErrStorageFailure if the generated ID somehow already exists (defensive;
// the counter is monotonic so this does not happen in practice).
func (r *Registry) Create(ctx context.Context, m *domain.Market) (domain.MarketID, error) {
	id, err := r.nextID(ctx)
	if err != nil {
		return "", fmt.Errorf("market: create: %w", err)
	}

	if _, exists, err := r.kv.Get(ctx, host.NamespacePersistent, marketKey(id)); err != nil {
		return "", fmt.Errorf("market: create: check existing: %w", err)
	} else if exists {
		return "", fmt.Errorf("market: create: id collision %s: %w", id, domain.ErrStorageFailure)
	}

	m.ID = id
	if err := r.Store(ctx, m); err != nil {
		return "", err
	}
	return id, nil
}

// nextID increments the persisted counter and formats a short opaque market
// identifier from it.
func (r *Registry) nextID(ctx context.Context) (domain.MarketID, error) {
	raw, ok, err := r.kv.Get(ctx, host.NamespaceInstance, counterKey)
	if err != nil {
		return "", fmt.Errorf("read counter: %w", err)
	}

	var n int64
	if ok {
		n, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return "", fmt.Errorf("parse counter: %w", err)
		}
	}
	n++

	if err := r.kv.Put(ctx, host.NamespaceInstance, counterKey, []byte(strconv.FormatInt(n, 10))); err != nil {
		return "", fmt.Errorf("write counter: %w", err)
	}

	return domain.MarketID(fmt.Sprintf("mkt_%d", n)), nil
}

// Load fetches a market record by ID.
func (r *Registry) Load(ctx context.Context, id domain.MarketID) (*domain.Market, error) {
	raw, ok, err := r.kv.Get(ctx, host.NamespacePersistent, marketKey(id))
	if err != nil {
		return nil, fmt.Errorf("market: load %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("market: load %s: %w", id, domain.ErrMarketNotFound)
	}

	var m domain.Market
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("market: load %s: decode: %w", id, err)
	}
	return &m, nil
}

// Store persists the full market record as a single atomic write, matching
// §4.B's "guarantees serialization atomicity per key" — the entire Market,
// including its bets map and history slices, is one KV value.
func (r *Registry) Store(ctx context.Context, m *domain.Market) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("market: store %s: encode: %w", m.ID, err)
	}
	if err := r.kv.Put(ctx, host.NamespacePersistent, marketKey(m.ID), raw); err != nil {
		return fmt.Errorf("market: store %s: %w", m.ID, err)
	}
	return nil
}

// ListIDs enumerates every market ID. May be O(n); the spec permits this
// since it is only used by analytics/query entrypoints, never the hot path.
func (r *Registry) ListIDs(ctx context.Context) ([]domain.MarketID, error) {
	keys, err := r.kv.ListKeys(ctx, host.NamespacePersistent, marketKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("market: list_ids: %w", err)
	}
	ids := make([]domain.MarketID, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, domain.MarketID(strings.TrimPrefix(k, marketKeyPrefix)))
	}
	return ids, nil
}

// ListAll loads every market record. Used by the pool-size, contract-state
// and fee-analytics aggregations and by the archiver; O(n) by construction.
func (r *Registry) ListAll(ctx context.Context) ([]*domain.Market, error) {
	ids, err := r.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Market, 0, len(ids))
	for _, id := range ids {
		m, err := r.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
