package engine

import (
	"context"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

// ClaimWinnings runs claim_winnings(user, market_id) -> amount.
func (e *Engine) ClaimWinnings(
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

	amount, err := e.payouts.ClaimWinnings(ctx, marketID, caller)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.EventWinningsClaimed, map[string]any{
		"market_id": string(marketID),
		"user":      string(caller),
		"amount":    amount.String(),
	})
	return amount, nil
}

// CollectFees runs collect_fees(admin, market_id) -> amount. Only the
// market's own admin (or any active admin, since fee collection is not
// SuperAdmin-gated by §4.J's role list) may call this.
func (e *Engine) CollectFees(
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
	if err := e.admins.Authorize(ctx, caller); err != nil {
		return nil, err
	}

	fee, err := e.payouts.CollectFees(ctx, caller, marketID)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.EventFeeCollected, map[string]any{
		"market_id": string(marketID),
		"admin":     string(caller),
		"amount":    fee.String(),
	})
	return fee, nil
}
