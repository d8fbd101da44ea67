package engine

import (
	"context"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/ledger"
)

// PlaceBet runs place_bet(user, market_id, outcome, amount) -> Bet.
func (e *Engine) PlaceBet(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	marketID domain.MarketID,
	outcome domain.Outcome,
	amount domain.Amount,
) (*domain.Bet, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	bet, err := e.ledger.PlaceBet(ctx, caller, marketID, outcome, amount)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.EventBetPlaced, map[string]any{
		"market_id": string(marketID),
		"user":      string(caller),
		"outcome":   string(outcome),
		"amount":    amount.String(),
	})
	return bet, nil
}

// Vote is the legacy naming alias for place_bet (§9 Open Question decision
// 4): a thin wrapper emitting the same event.
func (e *Engine) Vote(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	marketID domain.MarketID,
	outcome domain.Outcome,
	amount domain.Amount,
) (*domain.Bet, error) {
	return e.PlaceBet(ctx, caller, req, marketID, outcome, amount)
}

// PlaceBets runs the batched place_bets(user, list<(market_id, outcome,
// amount)>) -> list<Bet> form.
func (e *Engine) PlaceBets(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	legs []ledger.BetRequest,
) ([]*domain.Bet, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	bets, err := e.ledger.PlaceBets(ctx, caller, legs)
	if err != nil {
		return nil, err
	}

	for i, bet := range bets {
		e.emit(ctx, domain.EventBetPlaced, map[string]any{
			"market_id": string(legs[i].Market),
			"user":      string(caller),
			"outcome":   string(bet.Outcome),
			"amount":    bet.Amount.String(),
		})
	}
	return bets, nil
}

// CancelBet runs cancel_bet(user, market_id).
func (e *Engine) CancelBet(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	marketID domain.MarketID,
) (domain.Amount, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	amount, err := e.ledger.CancelBet(ctx, caller, marketID)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.EventBetCancelled, map[string]any{
		"market_id": string(marketID),
		"user":      string(caller),
		"amount":    amount.String(),
	})
	return amount, nil
}
