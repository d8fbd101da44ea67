// Package payout implements the §4.H payout engine: proportional
// distribution of a resolved market's losing pool to its winners, the
// platform fee claim, dust-free rounding, and refunds on cancellation.
package payout

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/market"
)

const contractIdentity = "contract"

// Payout drives claim_winnings, collect_fees, and cancellation refunds
// against a Finalized (or Cancelled) market.
type Payout struct {
	markets  *market.Registry
	transfer host.ValueTransfer
	clock    host.Clock
	cfg      domain.EngineConfig
	lock     *TimeLock
}

// New creates a Payout engine.
func New(markets *market.Registry, transfer host.ValueTransfer, clock host.Clock, cfg domain.EngineConfig, kv host.KV) *Payout {
	return &Payout{markets: markets, transfer: transfer, clock: clock, cfg: cfg, lock: NewTimeLock(kv, cfg)}
}

// winningSet returns the outcome labels that share the market's win,
// whether a single winning_outcome or a winning_outcomes_tied set.
func winningSet(m *domain.Market) []domain.Outcome {
	if len(m.WinningOutcomesTied) > 0 {
		return m.WinningOutcomesTied
	}
	if m.WinningOutcome != nil {
		return []domain.Outcome{*m.WinningOutcome}
	}
	return nil
}

// ComputePayouts is the pure §4.H computation: it returns each winning
// user's total payout (their own stake back plus their pro-rata share of the
// losing pool net of fee), with the dust remainder assigned one base unit at
// a time to winners in ascending identity order until exhausted. It is safe
// to call repeatedly against an immutable Finalized market — the same inputs
// always produce the same outputs, which is what lets claim_winnings
// recompute the table independently on every call instead of caching it.
//
// The winner set is drawn from every bet on a winning outcome that is
// Active or already Claimed — never narrowed to just Active — so a bet
// flipping to Claimed after its owner's claim doesn't shrink the pool
// ComputePayouts divides on the next caller's call. m.TotalStaked and
// m.PerOutcomeTotal are running totals set at bet placement and never
// decrease on claim, so the winner set used to divide them must be equally
// stable; only Cancelled/Refunded bets (removed from those totals when they
// happened) are excluded.
func ComputePayouts(m *domain.Market, feeBps int64) (map[domain.Identity]domain.Amount, domain.Amount, error) {
	winners := winningSet(m)
	if len(winners) == 0 {
		return nil, nil, fmt.Errorf("payout: market %s has no winning outcome: %w", m.ID, domain.ErrMarketNotResolved)
	}

	winningPool := domain.ZeroAmount()
	for _, o := range winners {
		if v, ok := m.PerOutcomeTotal[o]; ok && v != nil {
			winningPool.Add(winningPool, v)
		}
	}

	losingPool := new(big.Int).Sub(m.TotalStaked, winningPool)
	if losingPool.Sign() < 0 {
		losingPool = domain.ZeroAmount()
	}

	fee := new(big.Int).Div(new(big.Int).Mul(losingPool, big.NewInt(feeBps)), big.NewInt(10_000))
	netLosingPool := new(big.Int).Sub(losingPool, fee)

	type winnerBet struct {
		user domain.Identity
		bet  *domain.Bet
	}
	var winnerBets []winnerBet
	for user, b := range m.Bets {
		if b.Status == domain.BetCancelled || b.Status == domain.BetRefunded {
			continue
		}
		for _, o := range winners {
			if b.Outcome == o {
				winnerBets = append(winnerBets, winnerBet{user: user, bet: b})
				break
			}
		}
	}
	sort.Slice(winnerBets, func(i, j int) bool { return winnerBets[i].user < winnerBets[j].user })

	payouts := make(map[domain.Identity]domain.Amount, len(winnerBets))
	distributed := domain.ZeroAmount()

	if winningPool.Sign() == 0 {
		// Nobody staked on the winning side (can only happen for a tied
		// finalization with an empty tie set, defensively handled). Nothing
		// to distribute beyond returned stakes.
		for _, wb := range winnerBets {
			payouts[wb.user] = new(big.Int).Set(wb.bet.Amount)
		}
		return payouts, fee, nil
	}

	for _, wb := range winnerBets {
		share := new(big.Int).Div(new(big.Int).Mul(netLosingPool, wb.bet.Amount), winningPool)
		total := new(big.Int).Add(wb.bet.Amount, share)
		payouts[wb.user] = total
		distributed.Add(distributed, share)
	}

	dust := new(big.Int).Sub(netLosingPool, distributed)
	for i := 0; dust.Sign() > 0 && i < len(winnerBets); i++ {
		wb := winnerBets[i%len(winnerBets)]
		payouts[wb.user].Add(payouts[wb.user], big.NewInt(1))
		dust.Sub(dust, big.NewInt(1))
	}

	return payouts, fee, nil
}

// ClaimWinnings runs the claim_winnings entrypoint for a single user.
func (p *Payout) ClaimWinnings(ctx context.Context, marketID domain.MarketID, user domain.Identity) (domain.Amount, error) {
	m, err := p.markets.Load(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.State != domain.StateFinalized {
		return nil, domain.ErrMarketNotFinalized
	}

	bet, ok := m.Bets[user]
	if !ok {
		return nil, domain.ErrBetNotFound
	}
	if bet.Status == domain.BetClaimed {
		return nil, domain.ErrAlreadyClaimed
	}
	if bet.Status != domain.BetActive {
		return nil, domain.ErrNotOnWinningOutcome
	}

	payouts, _, err := ComputePayouts(m, p.cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	amount, ok := payouts[user]
	if !ok {
		return nil, domain.ErrNotOnWinningOutcome
	}

	bet.Status = domain.BetClaimed
	if err := p.markets.Store(ctx, m); err != nil {
		return nil, err
	}
	if err := p.transfer.Transfer(ctx, contractIdentity, string(user), amount); err != nil {
		return nil, fmt.Errorf("payout: transfer to %s: %w", user, err)
	}
	return amount, nil
}

// CollectFees runs the collect_fees entrypoint. Any active admin may call
// this (enforced by the caller, internal/engine, which knows the
// authenticated identity).
func (p *Payout) CollectFees(ctx context.Context, admin domain.Identity, marketID domain.MarketID) (domain.Amount, error) {
	m, err := p.markets.Load(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.State != domain.StateFinalized {
		return nil, domain.ErrMarketNotFinalized
	}
	if m.FeeCollected {
		return nil, domain.ErrFeeAlreadyCollected
	}

	_, fee, err := ComputePayouts(m, p.cfg.FeeBps)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	if err := p.lock.CheckAndRecord(ctx, admin, now); err != nil {
		return nil, err
	}

	m.FeeCollected = true
	if err := p.markets.Store(ctx, m); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := p.transfer.Transfer(ctx, contractIdentity, string(admin), fee); err != nil {
			return nil, fmt.Errorf("payout: collect fees: %w", err)
		}
	}
	return fee, nil
}

// ProcessCancellation refunds every Active bet on a Cancelled market and
// marks each Refunded. Returns the number of bets refunded.
func (p *Payout) ProcessCancellation(ctx context.Context, marketID domain.MarketID) (int, error) {
	m, err := p.markets.Load(ctx, marketID)
	if err != nil {
		return 0, err
	}
	if m.State != domain.StateCancelled {
		return 0, domain.ErrMarketNotResolved
	}

	users := make([]domain.Identity, 0, len(m.Bets))
	for u := range m.Bets {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	n := 0
	for _, u := range users {
		bet := m.Bets[u]
		if bet.Status != domain.BetActive {
			continue
		}
		bet.Status = domain.BetRefunded
		if err := p.transfer.Transfer(ctx, contractIdentity, string(u), bet.Amount); err != nil {
			return n, fmt.Errorf("payout: refund %s: %w", u, err)
		}
		n++
	}

	if err := p.markets.Store(ctx, m); err != nil {
		return n, err
	}
	return n, nil
}

// Analytics aggregates fee history across every finalized, fee-collected
// market known to the registry (§11 supplement).
func (p *Payout) Analytics(ctx context.Context) (*domain.FeeAnalytics, error) {
	markets, err := p.markets.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	total := domain.ZeroAmount()
	count := 0
	for _, m := range markets {
		if !m.FeeCollected {
			continue
		}
		_, fee, err := ComputePayouts(m, p.cfg.FeeBps)
		if err != nil {
			continue
		}
		total.Add(total, fee)
		count++
	}

	avg := domain.ZeroAmount()
	if count > 0 {
		avg = new(big.Int).Div(total, big.NewInt(int64(count)))
	}

	return &domain.FeeAnalytics{
		TotalFeesCollected:  total,
		MarketsWithFees:     count,
		AverageFeePerMarket: avg,
	}, nil
}
