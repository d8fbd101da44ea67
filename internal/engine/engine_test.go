package engine_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/admin"
	"github.com/predictify/marketengine/internal/dispute"
	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/engine"
	"github.com/predictify/marketengine/internal/events"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/ledger"
	"github.com/predictify/marketengine/internal/market"
	"github.com/predictify/marketengine/internal/oracle"
	"github.com/predictify/marketengine/internal/payout"
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

type memTransfer struct {
	mu    sync.Mutex
	calls int
}

func (t *memTransfer) Transfer(_ context.Context, from, to string, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return nil
}

type memEventLog struct {
	mu     sync.Mutex
	topics []string
}

func (l *memEventLog) Emit(_ context.Context, topic string, _ []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.topics = append(l.topics, topic)
	return nil
}

type allowAuth struct{}

func (allowAuth) Authenticate(context.Context, string, host.AuthRequest) error { return nil }

type fixedClock struct{ now int64 }

func (c fixedClock) Now() int64 { return c.now }

// testEngine bundles a fully-wired Engine with the fakes and registries
// needed to drive it and inspect state directly, mirroring internal/app/
// wire.go's construction order over in-memory collaborators.
type testEngine struct {
	eng      *engine.Engine
	markets  *market.Registry
	resolver *resolution.Engine
	payouts  *payout.Payout
	transfer *memTransfer
	log      *memEventLog
	clock    *fixedClock
}

func newTestEngine(now int64) *testEngine {
	kv := newMemKV()
	cfg := domain.DefaultEngineConfig()
	clock := &fixedClock{now: now}
	transfer := &memTransfer{}
	log := &memEventLog{}

	markets := market.New(kv)
	oracles := oracle.NewAdapter(kv, cfg)
	resolver := resolution.New(markets, oracles, clock, cfg)
	admins := admin.New(kv, clock, cfg)
	led := ledger.New(markets, transfer, clock, cfg)
	payouts := payout.New(markets, transfer, clock, cfg, kv)
	disputes := dispute.New(markets, resolver, transfer, clock, cfg)
	emitter := events.New(log, nil, nil)

	eng := engine.New(kv, allowAuth{}, clock, transfer, cfg, emitter, markets, led, oracles, resolver, payouts, disputes, admins)
	return &testEngine{eng: eng, markets: markets, resolver: resolver, payouts: payouts, transfer: transfer, log: log, clock: clock}
}

func TestInitializeSeedsSuperAdminOnce(t *testing.T) {
	te := newTestEngine(1000)
	ctx := context.Background()

	err := te.eng.Initialize(ctx, "root", host.AuthRequest{}, "root")
	require.NoError(t, err)

	err = te.eng.Initialize(ctx, "root", host.AuthRequest{}, "root")
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestCreateMarketRequiresAdmin(t *testing.T) {
	te := newTestEngine(1000)
	ctx := context.Background()
	require.NoError(t, te.eng.Initialize(ctx, "root", host.AuthRequest{}, "root"))

	_, err := te.eng.CreateMarket(ctx, "not-admin", host.AuthRequest{}, "will it happen tomorrow?",
		[]domain.Outcome{"yes", "no"}, 7, domain.OracleConfig{}, nil, 0)
	assert.ErrorIs(t, err, domain.ErrNotAdmin)
}

func TestCreateMarketAndPlaceBetFullFlow(t *testing.T) {
	te := newTestEngine(1000)
	ctx := context.Background()
	require.NoError(t, te.eng.Initialize(ctx, "root", host.AuthRequest{}, "root"))

	marketID, err := te.eng.CreateMarket(ctx, "root", host.AuthRequest{}, "will it happen tomorrow?",
		[]domain.Outcome{"yes", "no"}, 7, domain.OracleConfig{}, nil, 0)
	require.NoError(t, err)

	bet, err := te.eng.PlaceBet(ctx, "u1", host.AuthRequest{}, marketID, "yes", domain.NewAmount(200))
	require.NoError(t, err)
	assert.Equal(t, domain.BetActive, bet.Status)

	m, err := te.markets.Load(ctx, marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewAmount(200), m.TotalStaked)

	assert.Contains(t, te.log.topics, string(domain.EventMarketCreated))
	assert.Contains(t, te.log.topics, string(domain.EventBetPlaced))
}

func TestCancelBetRefundsAndEmits(t *testing.T) {
	te := newTestEngine(1000)
	ctx := context.Background()
	require.NoError(t, te.eng.Initialize(ctx, "root", host.AuthRequest{}, "root"))

	marketID, err := te.eng.CreateMarket(ctx, "root", host.AuthRequest{}, "will it happen tomorrow?",
		[]domain.Outcome{"yes", "no"}, 7, domain.OracleConfig{}, nil, 0)
	require.NoError(t, err)

	_, err = te.eng.PlaceBet(ctx, "u1", host.AuthRequest{}, marketID, "yes", domain.NewAmount(200))
	require.NoError(t, err)

	amount, err := te.eng.CancelBet(ctx, "u1", host.AuthRequest{}, marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewAmount(200), amount)
	assert.Contains(t, te.log.topics, string(domain.EventBetCancelled))
}

// TestFullLifecycleResolveClaim exercises create -> bet -> resolve ->
// finalize -> claim end to end through the wired Engine, the same path
// review comment 4 flagged as entirely untested.
func TestFullLifecycleResolveClaim(t *testing.T) {
	te := newTestEngine(1000)
	ctx := context.Background()
	require.NoError(t, te.eng.Initialize(ctx, "root", host.AuthRequest{}, "root"))

	marketID, err := te.eng.CreateMarket(ctx, "root", host.AuthRequest{}, "will it happen tomorrow?",
		[]domain.Outcome{"yes", "no"}, 1, domain.OracleConfig{}, nil, 0)
	require.NoError(t, err)

	_, err = te.eng.PlaceBet(ctx, "u1", host.AuthRequest{}, marketID, "yes", domain.NewAmount(200))
	require.NoError(t, err)
	_, err = te.eng.PlaceBet(ctx, "u2", host.AuthRequest{}, marketID, "no", domain.NewAmount(100))
	require.NoError(t, err)

	// Advance the clock past end_time (created with duration_days=1 -> 86400s).
	te.clock.now = 1000 + 86400 + 1

	resolved, err := te.eng.ResolveMarket(ctx, marketID)
	require.NoError(t, err)
	require.NotNil(t, resolved.WinningOutcome)
	assert.Equal(t, domain.Outcome("yes"), *resolved.WinningOutcome)

	// Jump past the dispute window and finalize directly through the same
	// resolution.Engine the wired Engine delegates to (§4.K exposes no
	// separate finalize entrypoint of its own — resolve_market drives the
	// state machine and finalize is a resolution.Engine-level operation).
	te.clock.now = resolved.ResolvedAt + resolved.DisputeWindowSeconds + 1
	finalized, err := te.resolver.Finalize(ctx, marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinalized, finalized.State)

	amount, err := te.eng.ClaimWinnings(ctx, "u1", host.AuthRequest{}, marketID)
	require.NoError(t, err)
	assert.True(t, amount.Sign() > 0)
	assert.Contains(t, te.log.topics, string(domain.EventWinningsClaimed))
}

// TestReentrancyGuardRejectsWhilePersistedFlagIsSet covers §4.K's guard: a
// stuck persisted reentrancy flag (as if a prior call crashed mid-entrypoint
// without releasing it) must fail the next entrypoint fast rather than block.
func TestReentrancyGuardRejectsWhilePersistedFlagIsSet(t *testing.T) {
	kv := newMemKV()
	require.NoError(t, kv.Put(context.Background(), host.NamespaceInstance, "reentrancy_flag", []byte{1}))

	cfg := domain.DefaultEngineConfig()
	clock := &fixedClock{now: 1000}
	transfer := &memTransfer{}
	log := &memEventLog{}
	markets := market.New(kv)
	oracles := oracle.NewAdapter(kv, cfg)
	resolver := resolution.New(markets, oracles, clock, cfg)
	admins := admin.New(kv, clock, cfg)
	led := ledger.New(markets, transfer, clock, cfg)
	payouts := payout.New(markets, transfer, clock, cfg, kv)
	disputes := dispute.New(markets, resolver, transfer, clock, cfg)
	emitter := events.New(log, nil, nil)
	eng := engine.New(kv, allowAuth{}, clock, transfer, cfg, emitter, markets, led, oracles, resolver, payouts, disputes, admins)

	err := eng.Initialize(context.Background(), "root", host.AuthRequest{}, "root")
	assert.ErrorIs(t, err, domain.ErrReentrancy)
}
