package oracle_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/oracle"
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

func customServer(t *testing.T, price string, publishTime int64, confidence *uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"price":        price,
			"confidence":   confidence,
			"publish_time": publishTime,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchPriceScalesByExponent(t *testing.T) {
	srv := customServer(t, "12345", 1000, nil)
	kv := newMemKV()
	a := oracle.NewAdapter(kv, domain.DefaultEngineConfig())

	m := &domain.Market{
		OracleConfig: domain.OracleConfig{
			Variant:  domain.OracleCustom,
			Asset:    srv.URL,
			Exponent: -2,
		},
	}

	pp, err := a.FetchPrice(context.Background(), m, 1000)
	require.NoError(t, err)
	assert.Equal(t, domain.NewAmount(123), pp.Price)
}

func TestFetchPriceRejectsStaleReading(t *testing.T) {
	srv := customServer(t, "100", 1000, nil)
	kv := newMemKV()
	cfg := domain.DefaultEngineConfig()
	a := oracle.NewAdapter(kv, cfg)

	m := &domain.Market{
		OracleConfig: domain.OracleConfig{Variant: domain.OracleCustom, Asset: srv.URL},
	}

	_, err := a.FetchPrice(context.Background(), m, 1000+cfg.MaxStalenessSeconds+1)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestFetchPriceFallsBackToSecondaryOnPrimaryFailure(t *testing.T) {
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(badSrv.Close)
	goodSrv := customServer(t, "500", 1000, nil)

	kv := newMemKV()
	a := oracle.NewAdapter(kv, domain.DefaultEngineConfig())

	fallback := domain.OracleConfig{Variant: domain.OracleCustom, Asset: goodSrv.URL}
	m := &domain.Market{
		OracleConfig:         domain.OracleConfig{Variant: domain.OracleCustom, Asset: badSrv.URL},
		FallbackOracleConfig: &fallback,
	}

	pp, err := a.FetchPrice(context.Background(), m, 1000)
	require.NoError(t, err)
	assert.Equal(t, domain.NewAmount(500), pp.Price)
}

func TestFetchPriceFailsWhenBothPrimaryAndFallbackFail(t *testing.T) {
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(badSrv.Close)

	kv := newMemKV()
	a := oracle.NewAdapter(kv, domain.DefaultEngineConfig())

	fallback := domain.OracleConfig{Variant: domain.OracleCustom, Asset: badSrv.URL}
	m := &domain.Market{
		OracleConfig:         domain.OracleConfig{Variant: domain.OracleCustom, Asset: badSrv.URL},
		FallbackOracleConfig: &fallback,
	}

	_, err := a.FetchPrice(context.Background(), m, 1000)
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestDegradedCrossesThresholdAfterThreeFailures(t *testing.T) {
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(badSrv.Close)

	kv := newMemKV()
	a := oracle.NewAdapter(kv, domain.DefaultEngineConfig())
	m := &domain.Market{OracleConfig: domain.OracleConfig{Variant: domain.OracleCustom, Asset: badSrv.URL}}

	for i := 0; i < 2; i++ {
		_, _ = a.FetchPrice(context.Background(), m, 1000)
		assert.False(t, a.Degraded(context.Background(), badSrv.URL))
	}
	_, _ = a.FetchPrice(context.Background(), m, 1000)
	assert.True(t, a.Degraded(context.Background(), badSrv.URL))
}

func TestMapOutcomeComparisons(t *testing.T) {
	cfg := domain.OracleConfig{
		Threshold:    domain.NewAmount(100),
		TrueOutcome:  "yes",
		FalseOutcome: "no",
	}

	cases := []struct {
		name       string
		comparison domain.Comparison
		price      int64
		want       domain.Outcome
	}{
		{"gt hit", domain.ComparisonGT, 150, "yes"},
		{"gt miss", domain.ComparisonGT, 50, "no"},
		{"lt hit", domain.ComparisonLT, 50, "yes"},
		{"eq hit", domain.ComparisonEQ, 100, "yes"},
		{"eq miss", domain.ComparisonEQ, 101, "no"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg.Comparison = c.comparison
			got := oracle.MapOutcome(cfg, domain.PricePoint{Price: domain.NewAmount(c.price)})
			assert.Equal(t, c.want, got)
		})
	}
}
