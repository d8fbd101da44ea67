package resolution_test

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
	"github.com/predictify/marketengine/internal/oracle"
	"github.com/predictify/marketengine/internal/resolution"
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

type fixedClock struct{ now int64 }

func (c fixedClock) Now() int64 { return c.now }

func newEngine(kv host.KV, now int64) (*resolution.Engine, *market.Registry) {
	reg := market.New(kv)
	oracles := oracle.NewAdapter(kv, domain.DefaultEngineConfig())
	return resolution.New(reg, oracles, fixedClock{now: now}, domain.DefaultEngineConfig()), reg
}

func TestAdvanceStateActiveToEnded(t *testing.T) {
	m := &domain.Market{State: domain.StateActive, EndTime: 100}
	resolution.AdvanceState(m, 100)
	assert.Equal(t, domain.StateEnded, m.State)
}

func TestAdvanceStateActiveBeforeEndTimeUnchanged(t *testing.T) {
	m := &domain.Market{State: domain.StateActive, EndTime: 100}
	resolution.AdvanceState(m, 50)
	assert.Equal(t, domain.StateActive, m.State)
}

func TestAdvanceStateEndedToPendingResolution(t *testing.T) {
	m := &domain.Market{State: domain.StateEnded}
	resolution.AdvanceState(m, 200)
	assert.Equal(t, domain.StatePendingResolution, m.State)
}

func endedMarketWithStakes(t *testing.T, reg *market.Registry) domain.MarketID {
	t.Helper()
	m := &domain.Market{
		Question:                 "will it happen",
		Outcomes:                 []domain.Outcome{"yes", "no"},
		State:                    domain.StateEnded,
		EndTime:                  100,
		DisputeWindowSeconds:     3600,
		ResolutionTimeoutSeconds: 259200,
		TotalStaked:              domain.NewAmount(300),
		PerOutcomeTotal: map[domain.Outcome]domain.Amount{
			"yes": domain.NewAmount(200),
			"no":  domain.NewAmount(100),
		},
	}
	id, err := reg.Create(context.Background(), m)
	require.NoError(t, err)
	return id
}

// TestResolveFallsBackToCommunityWhenOracleUnconfigured covers R1's oracle-
// unavailable path: an Ended market with no usable oracle_config falls back
// to the community-majority outcome instead of erroring.
func TestResolveFallsBackToCommunityWhenOracleUnconfigured(t *testing.T) {
	kv := newMemKV()
	e, reg := newEngine(kv, 200)
	marketID := endedMarketWithStakes(t, reg)

	m, err := e.Resolve(context.Background(), marketID)
	require.NoError(t, err)
	require.NotNil(t, m.WinningOutcome)
	assert.Equal(t, domain.Outcome("yes"), *m.WinningOutcome)
	assert.Equal(t, domain.StateResolved, m.State)
	assert.Equal(t, int64(200), m.ResolvedAt)
}

// TestResolveIsIdempotent covers R1: replaying resolve against an
// already-Resolved market returns the stored winner without recomputing.
func TestResolveIsIdempotent(t *testing.T) {
	kv := newMemKV()
	e, reg := newEngine(kv, 200)
	marketID := endedMarketWithStakes(t, reg)

	first, err := e.Resolve(context.Background(), marketID)
	require.NoError(t, err)

	second, err := e.Resolve(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, first.WinningOutcome, second.WinningOutcome)
	assert.Equal(t, first.ResolvedAt, second.ResolvedAt)
}

func TestResolveRejectsBeforeMarketEnds(t *testing.T) {
	kv := newMemKV()
	reg := market.New(kv)
	m := &domain.Market{
		Outcomes: []domain.Outcome{"yes", "no"},
		State:    domain.StateActive,
		EndTime:  1000,
	}
	marketID, err := reg.Create(context.Background(), m)
	require.NoError(t, err)

	e := resolution.New(reg, oracle.NewAdapter(kv, domain.DefaultEngineConfig()), fixedClock{now: 500}, domain.DefaultEngineConfig())

	_, err = e.Resolve(context.Background(), marketID)
	assert.ErrorIs(t, err, domain.ErrMarketNotEnded)
}

// TestResolveCancelsMarketWithNoStakes covers the zero-stake case: nothing
// to resolve, so the market moves straight to Cancelled.
func TestResolveCancelsMarketWithNoStakes(t *testing.T) {
	kv := newMemKV()
	e, reg := newEngine(kv, 200)
	m := &domain.Market{
		Outcomes:    []domain.Outcome{"yes", "no"},
		State:       domain.StateEnded,
		EndTime:     100,
		TotalStaked: domain.ZeroAmount(),
	}
	marketID, err := reg.Create(context.Background(), m)
	require.NoError(t, err)

	resolved, err := e.Resolve(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, resolved.State)
}

func TestFinalizeRejectsWhileDisputeWindowOpen(t *testing.T) {
	kv := newMemKV()
	e, reg := newEngine(kv, 200)
	marketID := endedMarketWithStakes(t, reg)

	_, err := e.Resolve(context.Background(), marketID)
	require.NoError(t, err)

	_, err = e.Finalize(context.Background(), marketID)
	assert.ErrorIs(t, err, domain.ErrDisputeWindowOpen)
}

func TestFinalizeSucceedsAfterDisputeWindow(t *testing.T) {
	kv := newMemKV()
	e, reg := newEngine(kv, 200)
	marketID := endedMarketWithStakes(t, reg)

	_, err := e.Resolve(context.Background(), marketID)
	require.NoError(t, err)

	// DisputeWindowSeconds is 3600, ResolvedAt is 200; jump well past it.
	late := resolution.New(reg, oracle.NewAdapter(kv, domain.DefaultEngineConfig()), fixedClock{now: 200 + 3600 + 1}, domain.DefaultEngineConfig())
	finalized, err := late.Finalize(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinalized, finalized.State)
}

func TestFinalizeRejectsWithActiveDispute(t *testing.T) {
	kv := newMemKV()
	e, reg := newEngine(kv, 200)
	marketID := endedMarketWithStakes(t, reg)

	_, err := e.Resolve(context.Background(), marketID)
	require.NoError(t, err)

	m, err := reg.Load(context.Background(), marketID)
	require.NoError(t, err)
	disputeID := domain.DisputeID("d1")
	m.ActiveDisputeID = &disputeID
	require.NoError(t, reg.Store(context.Background(), m))

	late := resolution.New(reg, oracle.NewAdapter(kv, domain.DefaultEngineConfig()), fixedClock{now: 200 + 3600 + 1}, domain.DefaultEngineConfig())
	_, err = late.Finalize(context.Background(), marketID)
	assert.ErrorIs(t, err, domain.ErrDisputeWindowOpen)
}
