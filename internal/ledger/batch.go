package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/predictify/marketengine/internal/domain"
	"golang.org/x/sync/errgroup"
)

// BetRequest is one leg of a place_bets batch.
type BetRequest struct {
	Market  domain.MarketID
	Outcome domain.Outcome
	Amount  domain.Amount
}

// PlaceBets implements §4.E place_bets: strict atomicity — every leg is
// validated first (concurrently, since markets are disjoint per §5), then a
// single aggregated value transfer, then all ledger updates are applied in a
// loop; any failure at either stage reverts the whole batch (no ledger
// mutation has happened yet, so "revert" is simply "return the error").
func (l *Ledger) PlaceBets(ctx context.Context, user domain.Identity, reqs []BetRequest) ([]*domain.Bet, error) {
	if err := l.val.ValidateBatchSize(len(reqs)); err != nil {
		return nil, fmt.Errorf("ledger: place_bets: %w", err)
	}

	seen := make(map[domain.MarketID]bool, len(reqs))
	for _, req := range reqs {
		if seen[req.Market] {
			return nil, fmt.Errorf("ledger: place_bets: duplicate market %s in batch: %w", req.Market, domain.ErrInvalidOutcome)
		}
		seen[req.Market] = true
	}

	now := l.clock.Now()
	markets := make([]*domain.Market, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			m, err := l.markets.Load(gctx, req.Market)
			if err != nil {
				return fmt.Errorf("leg %d (%s): %w", i, req.Market, err)
			}
			if err := l.checkPlaceable(m, user, req.Outcome, req.Amount, now); err != nil {
				return fmt.Errorf("leg %d (%s): %w", i, req.Market, err)
			}
			markets[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ledger: place_bets: validation: %w", err)
	}

	total := big.NewInt(0)
	for _, req := range reqs {
		total.Add(total, req.Amount)
		if total.BitLen() > 127 {
			return nil, fmt.Errorf("ledger: place_bets: %w", domain.ErrArithmeticOverflow)
		}
	}

	if err := l.transfer.Transfer(ctx, string(user), contractIdentity, total); err != nil {
		return nil, fmt.Errorf("ledger: place_bets: transfer: %w", err)
	}

	bets := make([]*domain.Bet, len(reqs))
	for i, req := range reqs {
		bets[i] = applyPlaceBet(markets[i], user, req.Outcome, req.Amount, now)
	}
	for i, m := range markets {
		if err := l.markets.Store(ctx, m); err != nil {
			return nil, fmt.Errorf("ledger: place_bets: store leg %d: %w", i, err)
		}
	}

	return bets, nil
}
