// Package ledger implements the bet/stake ledger (§4.E): place_bet,
// cancel_bet, and the atomic place_bets batch form.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/market"
	"github.com/predictify/marketengine/internal/validator"
)

// contractIdentity is the destination account for staked value; a real
// deployment would substitute the contract's own address here, mirroring
// how the value-transfer primitive is opaque to the core (§6).
const contractIdentity = "contract"

// Ledger implements bet placement/cancellation over a market.Registry.
type Ledger struct {
	markets  *market.Registry
	transfer host.ValueTransfer
	clock    host.Clock
	cfg      domain.EngineConfig
	val      *validator.Validator
}

// New creates a Ledger.
func New(markets *market.Registry, transfer host.ValueTransfer, clock host.Clock, cfg domain.EngineConfig) *Ledger {
	return &Ledger{markets: markets, transfer: transfer, clock: clock, cfg: cfg, val: validator.New()}
}

// PlaceBet implements §4.E place_bet.
func (l *Ledger) PlaceBet(ctx context.Context, user domain.Identity, marketID domain.MarketID, outcome domain.Outcome, amount domain.Amount) (*domain.Bet, error) {
	m, err := l.markets.Load(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("ledger: place_bet: %w", err)
	}

	now := l.clock.Now()
	if err := l.checkPlaceable(m, user, outcome, amount, now); err != nil {
		return nil, fmt.Errorf("ledger: place_bet: %w", err)
	}

	if err := l.transfer.Transfer(ctx, string(user), contractIdentity, amount); err != nil {
		return nil, fmt.Errorf("ledger: place_bet: transfer: %w", err)
	}

	bet := applyPlaceBet(m, user, outcome, amount, now)

	if err := l.markets.Store(ctx, m); err != nil {
		return nil, fmt.Errorf("ledger: place_bet: store: %w", err)
	}

	return bet, nil
}

// checkPlaceable runs every precondition for place_bet without mutating m.
func (l *Ledger) checkPlaceable(m *domain.Market, user domain.Identity, outcome domain.Outcome, amount domain.Amount, now int64) error {
	if lazyState(m, now) != domain.StateActive {
		return domain.ErrMarketClosed
	}
	// Boundary B1: now == end_time is rejected (strict less-than).
	if now >= m.EndTime {
		return domain.ErrMarketClosed
	}
	if existing, ok := m.Bets[user]; ok && existing.Status == domain.BetActive {
		return domain.ErrAlreadyBet
	}
	if err := l.val.ValidateOutcomeInMarket(m, outcome); err != nil {
		return err
	}
	if err := l.val.ValidateBet(amount, l.cfg.MinStake, l.cfg.MaxStake); err != nil {
		return err
	}
	return nil
}

// applyPlaceBet mutates m's accounting for a validated bet and returns the
// stored *domain.Bet. Callers must have already checked checkPlaceable.
func applyPlaceBet(m *domain.Market, user domain.Identity, outcome domain.Outcome, amount domain.Amount, now int64) *domain.Bet {
	bet := &domain.Bet{
		Market:    m.ID,
		User:      user,
		Outcome:   outcome,
		Amount:    new(big.Int).Set(amount),
		Timestamp: now,
		Status:    domain.BetActive,
	}

	if m.Bets == nil {
		m.Bets = make(map[domain.Identity]*domain.Bet)
	}
	m.Bets[user] = bet

	if m.PerOutcomeTotal == nil {
		m.PerOutcomeTotal = make(map[domain.Outcome]domain.Amount)
	}
	cur, ok := m.PerOutcomeTotal[outcome]
	if !ok {
		cur = domain.ZeroAmount()
	}
	m.PerOutcomeTotal[outcome] = new(big.Int).Add(cur, amount)

	if m.TotalStaked == nil {
		m.TotalStaked = domain.ZeroAmount()
	}
	m.TotalStaked = new(big.Int).Add(m.TotalStaked, amount)

	return bet
}

// CancelBet implements §4.E cancel_bet, reverting the accounting exactly.
func (l *Ledger) CancelBet(ctx context.Context, user domain.Identity, marketID domain.MarketID) (domain.Amount, error) {
	m, err := l.markets.Load(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("ledger: cancel_bet: %w", err)
	}

	now := l.clock.Now()
	// Boundary B1: at exact equality now == end_time, cancellation is
	// closed the same as placement.
	if now >= m.EndTime {
		return nil, fmt.Errorf("ledger: cancel_bet: %w", domain.ErrMarketClosed)
	}

	bet, ok := m.Bets[user]
	if !ok || bet.Status != domain.BetActive {
		return nil, fmt.Errorf("ledger: cancel_bet: %w", domain.ErrBetNotFound)
	}

	amount := bet.Amount
	m.PerOutcomeTotal[bet.Outcome] = new(big.Int).Sub(m.PerOutcomeTotal[bet.Outcome], amount)
	m.TotalStaked = new(big.Int).Sub(m.TotalStaked, amount)
	bet.Status = domain.BetCancelled

	if err := l.markets.Store(ctx, m); err != nil {
		return nil, fmt.Errorf("ledger: cancel_bet: store: %w", err)
	}

	if err := l.transfer.Transfer(ctx, contractIdentity, string(user), amount); err != nil {
		return nil, fmt.Errorf("ledger: cancel_bet: refund transfer: %w", err)
	}

	return amount, nil
}

// lazyState infers the Active->Ended transition without persisting it; the
// resolution engine is the only component that persists state changes
// (§4.G: "Any state query infers this lazily").
func lazyState(m *domain.Market, now int64) domain.MarketState {
	if m.State == domain.StateActive && now >= m.EndTime {
		return domain.StateEnded
	}
	return m.State
}
