package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/predictify/marketengine/internal/domain"
)

// Analytics computes the read-only aggregates backing get_market_analytics
// (§11 supplement, grounded on original_source's market_analytics.rs). It is
// a pure function of already-stored per-market data — not an order-book or
// continuous price feed, so it does not reintroduce anything the Non-goals
// exclude.
func (r *Registry) Analytics(ctx context.Context, id domain.MarketID) (*domain.MarketAnalytics, error) {
	m, err := r.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("market: analytics %s: %w", id, err)
	}

	participation := 0
	sum := big.NewInt(0)
	for _, b := range m.Bets {
		if b.Status == domain.BetActive || b.Status == domain.BetClaimed {
			participation++
			sum.Add(sum, b.Amount)
		}
	}

	avg := domain.ZeroAmount()
	if participation > 0 {
		avg.Div(sum, big.NewInt(int64(participation)))
	}

	var ttr int64
	if m.ResolvedAt > 0 {
		ttr = m.ResolvedAt - m.CreatedAt
	}

	concentration := 0.0
	if m.TotalStaked.Sign() > 0 {
		max := big.NewInt(0)
		for _, v := range m.PerOutcomeTotal {
			if v.Cmp(max) > 0 {
				max = v
			}
		}
		total := new(big.Float).SetInt(m.TotalStaked)
		share := new(big.Float).Quo(new(big.Float).SetInt(max), total)
		concentration, _ = share.Float64()
	}

	return &domain.MarketAnalytics{
		Market:               id,
		ParticipationCount:   participation,
		AverageStake:         avg,
		TimeToResolutionSecs: ttr,
		OutcomeConcentration: concentration,
	}, nil
}
