package payout_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/market"
	"github.com/predictify/marketengine/internal/payout"
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
	mu       sync.Mutex
	balances map[string]*big.Int
	transfers []transferCall
}

type transferCall struct {
	from, to string
	amount   *big.Int
}

func newMemTransfer() *memTransfer {
	return &memTransfer{balances: make(map[string]*big.Int)}
}

func (t *memTransfer) Transfer(_ context.Context, from, to string, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transfers = append(t.transfers, transferCall{from: from, to: to, amount: new(big.Int).Set(amount)})
	if t.balances[to] == nil {
		t.balances[to] = big.NewInt(0)
	}
	t.balances[to].Add(t.balances[to], amount)
	return nil
}

type fixedClock struct{ now int64 }

func (c fixedClock) Now() int64 { return c.now }

func amt(v int64) domain.Amount { return domain.NewAmount(v) }

// seedResolvedMarket builds a Finalized market matching the spec's S2
// walkthrough: U1 bets 200 and U2 bets 100 on "yes" (the winning outcome),
// U3 bets 300 on "no" (the losing outcome).
func seedResolvedMarket(t *testing.T, reg *market.Registry) domain.MarketID {
	t.Helper()
	winner := domain.Outcome("yes")
	m := &domain.Market{
		Question: "will it happen",
		Outcomes: []domain.Outcome{"yes", "no"},
		State:    domain.StateFinalized,
		TotalStaked: amt(600),
		PerOutcomeTotal: map[domain.Outcome]domain.Amount{
			"yes": amt(300),
			"no":  amt(300),
		},
		WinningOutcome: &winner,
		Bets: map[domain.Identity]*domain.Bet{
			"u1": {User: "u1", Outcome: "yes", Amount: amt(200), Status: domain.BetActive},
			"u2": {User: "u2", Outcome: "yes", Amount: amt(100), Status: domain.BetActive},
			"u3": {User: "u3", Outcome: "no", Amount: amt(300), Status: domain.BetActive},
		},
	}
	id, err := reg.Create(context.Background(), m)
	require.NoError(t, err)
	return id
}

// TestSequentialClaimsDoNotManufactureDust reproduces spec walkthrough S2:
// U1 claims first, then U2 claims. Before the fix, U2's claim recomputed
// ComputePayouts against a shrunken winner set (U1's bet already Claimed and
// therefore excluded) while still dividing the market's full, unchanged
// TotalStaked/PerOutcomeTotal totals — manufacturing bogus extra dust on the
// second claim and violating I5/P2 (sum of payouts + fee <= total_staked).
func TestSequentialClaimsDoNotManufactureDust(t *testing.T) {
	kv := newMemKV()
	reg := market.New(kv)
	transfer := newMemTransfer()
	cfg := domain.DefaultEngineConfig()
	cfg.FeeBps = 200 // 2%

	marketID := seedResolvedMarket(t, reg)
	p := payout.New(reg, transfer, fixedClock{now: 1000}, cfg, kv)

	ctx := context.Background()

	u1Payout, err := p.ClaimWinnings(ctx, marketID, "u1")
	require.NoError(t, err)

	u2Payout, err := p.ClaimWinnings(ctx, marketID, "u2")
	require.NoError(t, err)

	// losingPool = 300, fee = 300*200/10000 = 6, netLosingPool = 294
	// winningPool = 300; u1 share = 294*200/300 = 196; u2 share = 294*100/300 = 98
	// u1 total = 200+196 = 396; u2 total = 100+98 = 198
	assert.Equal(t, amt(396), u1Payout)
	assert.Equal(t, amt(198), u2Payout)

	total := new(big.Int).Add(u1Payout, u2Payout)
	total.Add(total, amt(6)) // platform fee, uncollected but still owed
	assert.True(t, total.Cmp(amt(600)) <= 0,
		"sum of payouts + fee must never exceed total_staked (I5/P2): got %s", total)

	m, err := reg.Load(ctx, marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetClaimed, m.Bets["u1"].Status)
	assert.Equal(t, domain.BetClaimed, m.Bets["u2"].Status)
}

func TestClaimWinningsRejectsDoubleClaim(t *testing.T) {
	kv := newMemKV()
	reg := market.New(kv)
	transfer := newMemTransfer()
	cfg := domain.DefaultEngineConfig()

	marketID := seedResolvedMarket(t, reg)
	p := payout.New(reg, transfer, fixedClock{now: 1000}, cfg, kv)
	ctx := context.Background()

	_, err := p.ClaimWinnings(ctx, marketID, "u1")
	require.NoError(t, err)

	_, err = p.ClaimWinnings(ctx, marketID, "u1")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimWinningsRejectsLosingBet(t *testing.T) {
	kv := newMemKV()
	reg := market.New(kv)
	transfer := newMemTransfer()
	cfg := domain.DefaultEngineConfig()

	marketID := seedResolvedMarket(t, reg)
	p := payout.New(reg, transfer, fixedClock{now: 1000}, cfg, kv)

	_, err := p.ClaimWinnings(context.Background(), marketID, "u3")
	require.ErrorIs(t, err, domain.ErrNotOnWinningOutcome)
}
