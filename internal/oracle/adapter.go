package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

// Adapter applies the shared staleness/confidence/exponent/fallback policy
// (§4.F) on top of whichever concrete Provider a market's oracle_config
// names, and maps the resulting PricePoint onto one of the market's outcome
// labels.
type Adapter struct {
	kv  host.KV
	cfg domain.EngineConfig
}

// NewAdapter creates an Adapter backed by the storage facade (for the
// rolling failure counter behind OracleDegradation/OracleRecovery) and the
// engine's configured staleness/confidence bounds.
func NewAdapter(kv host.KV, cfg domain.EngineConfig) *Adapter {
	return &Adapter{kv: kv, cfg: cfg}
}

// degradedThreshold is the number of consecutive failures that flips a
// feed's health from healthy to failing (§11 monitoring supplement).
const degradedThreshold = 3

func failureCounterKey(asset string) string { return "oracle_failures:" + asset }

// FetchPrice fetches, validates, and scales a reading for market's primary
// oracle_config, falling back to fallback_oracle_config once on any primary
// error, per §4.F.
func (a *Adapter) FetchPrice(ctx context.Context, m *domain.Market, now int64) (domain.PricePoint, error) {
	pp, err := a.fetchOne(ctx, m.OracleConfig, now)
	if err == nil {
		a.recordSuccess(ctx, m.OracleConfig.Asset)
		return pp, nil
	}

	a.recordFailure(ctx, m.OracleConfig.Asset)

	if m.FallbackOracleConfig == nil {
		return domain.PricePoint{}, fmt.Errorf("oracle: primary failed, no fallback configured: %w", domain.ErrOracleUnavailable)
	}

	pp, ferr := a.fetchOne(ctx, *m.FallbackOracleConfig, now)
	if ferr != nil {
		a.recordFailure(ctx, m.FallbackOracleConfig.Asset)
		return domain.PricePoint{}, fmt.Errorf("oracle: primary and fallback failed: %w", domain.ErrOracleUnavailable)
	}
	a.recordSuccess(ctx, m.FallbackOracleConfig.Asset)
	return pp, nil
}

// fetchOne fetches from cfg's provider and applies staleness/confidence/
// exponent checks.
func (a *Adapter) fetchOne(ctx context.Context, cfg domain.OracleConfig, now int64) (domain.PricePoint, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return domain.PricePoint{}, err
	}

	pp, err := provider.FetchPrice(ctx, cfg.Asset, now)
	if err != nil {
		return domain.PricePoint{}, err
	}

	if now-pp.PublishTime > a.cfg.MaxStalenessSeconds {
		return domain.PricePoint{}, domain.ErrOracleStale
	}

	if pp.Confidence != nil && pp.Price.Sign() > 0 {
		// confidence / price > 5% <=> confidence * 10_000 > price * MaxConfidenceRatioBps
		lhs := new(big.Int).Mul(big.NewInt(int64(*pp.Confidence)), big.NewInt(10_000))
		rhs := new(big.Int).Mul(pp.Price, big.NewInt(a.cfg.MaxConfidenceRatioBps))
		if lhs.Cmp(rhs) > 0 {
			return domain.PricePoint{}, domain.ErrOracleConfidenceTooLow
		}
	}

	scaled, err := scaleExponent(pp.Price, cfg.Exponent)
	if err != nil {
		return domain.PricePoint{}, err
	}
	pp.Price = scaled

	return pp, nil
}

// scaleExponent scales a raw provider reading into the market's configured
// minor unit, rejecting a scale that would overflow a signed 128-bit range.
func scaleExponent(price *big.Int, exponent int32) (*big.Int, error) {
	if exponent == 0 {
		return price, nil
	}
	scaled := new(big.Int).Set(price)
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs32(exponent))), nil)
	if exponent > 0 {
		scaled.Mul(scaled, factor)
	} else {
		scaled.Div(scaled, factor)
	}
	if scaled.BitLen() > 127 {
		return nil, domain.ErrArithmeticOverflow
	}
	return scaled, nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// MapOutcome maps a validated PricePoint onto one of the market's outcome
// labels per its comparison/threshold configuration.
func MapOutcome(cfg domain.OracleConfig, pp domain.PricePoint) domain.Outcome {
	var hit bool
	switch cfg.Comparison {
	case domain.ComparisonGT:
		hit = pp.Price.Cmp(cfg.Threshold) > 0
	case domain.ComparisonLT:
		hit = pp.Price.Cmp(cfg.Threshold) < 0
	case domain.ComparisonEQ:
		hit = pp.Price.Cmp(cfg.Threshold) == 0
	}
	if hit {
		return cfg.TrueOutcome
	}
	return cfg.FalseOutcome
}

// recordFailure increments the rolling failure counter for asset, emitting
// no event itself — internal/engine reads the counter via Degraded and
// emits OracleDegradation once it crosses degradedThreshold.
func (a *Adapter) recordFailure(ctx context.Context, asset string) {
	n := a.readCounter(ctx, asset) + 1
	_ = a.kv.PutWithTTL(ctx, host.NamespaceTemporary, failureCounterKey(asset), []byte(strconv.Itoa(n)), 0)
}

// recordSuccess resets the rolling failure counter for asset.
func (a *Adapter) recordSuccess(ctx context.Context, asset string) {
	_ = a.kv.Delete(ctx, host.NamespaceTemporary, failureCounterKey(asset))
}

func (a *Adapter) readCounter(ctx context.Context, asset string) int {
	raw, ok, err := a.kv.Get(ctx, host.NamespaceTemporary, failureCounterKey(asset))
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return n
}

// Degraded reports whether asset's rolling failure count has reached the
// degradation threshold. It reports the current state only, not whether the
// threshold was crossed on this call.
func (a *Adapter) Degraded(ctx context.Context, asset string) bool {
	return a.readCounter(ctx, asset) >= degradedThreshold
}
