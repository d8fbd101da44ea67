package market_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/market"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) key(ns host.Namespace, key string) string { return string(ns) + "/" + key }

func (m *memKV) Get(_ context.Context, ns host.Namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[m.key(ns, key)]
	return v, ok, nil
}

func (m *memKV) Put(ctx context.Context, ns host.Namespace, key string, val []byte) error {
	return m.PutWithTTL(ctx, ns, key, val, 0)
}

func (m *memKV) PutWithTTL(_ context.Context, ns host.Namespace, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.key(ns, key)] = val
	return nil
}

func (m *memKV) Delete(_ context.Context, ns host.Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, m.key(ns, key))
	return nil
}

func (m *memKV) ListKeys(_ context.Context, ns host.Namespace, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	want := m.key(ns, prefix)
	for k := range m.data {
		if len(k) >= len(want) && k[:len(want)] == want {
			keys = append(keys, k[len(string(ns))+1:])
		}
	}
	return keys, nil
}

func TestCreateAllocatesMonotonicIDs(t *testing.T) {
	reg := market.New(newMemKV())
	ctx := context.Background()

	id1, err := reg.Create(ctx, &domain.Market{Question: "q1", Outcomes: []domain.Outcome{"yes", "no"}})
	require.NoError(t, err)
	id2, err := reg.Create(ctx, &domain.Market{Question: "q2", Outcomes: []domain.Outcome{"yes", "no"}})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestLoadRoundTripsStore(t *testing.T) {
	reg := market.New(newMemKV())
	ctx := context.Background()

	id, err := reg.Create(ctx, &domain.Market{
		Question:    "will it happen",
		Outcomes:    []domain.Outcome{"yes", "no"},
		TotalStaked: domain.NewAmount(500),
	})
	require.NoError(t, err)

	loaded, err := reg.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "will it happen", loaded.Question)
	assert.Equal(t, domain.NewAmount(500), loaded.TotalStaked)
}

func TestLoadUnknownMarketReturnsNotFound(t *testing.T) {
	reg := market.New(newMemKV())
	_, err := reg.Load(context.Background(), "mkt_999")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
}

func TestListIDsAndListAll(t *testing.T) {
	reg := market.New(newMemKV())
	ctx := context.Background()

	id1, err := reg.Create(ctx, &domain.Market{Question: "q1", Outcomes: []domain.Outcome{"a", "b"}})
	require.NoError(t, err)
	id2, err := reg.Create(ctx, &domain.Market{Question: "q2", Outcomes: []domain.Outcome{"a", "b"}})
	require.NoError(t, err)

	ids, err := reg.ListIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.MarketID{id1, id2}, ids)

	all, err := reg.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreOverwritesExistingRecord(t *testing.T) {
	reg := market.New(newMemKV())
	ctx := context.Background()

	id, err := reg.Create(ctx, &domain.Market{Question: "q1", Outcomes: []domain.Outcome{"a", "b"}, State: domain.StateActive})
	require.NoError(t, err)

	loaded, err := reg.Load(ctx, id)
	require.NoError(t, err)
	loaded.State = domain.StateEnded
	require.NoError(t, reg.Store(ctx, loaded))

	reloaded, err := reg.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnded, reloaded.State)
}
