package engine

import (
	"context"
	"fmt"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/oracle"
)

// FetchOracleResult runs fetch_oracle_result(market_id) -> outcome. It is a
// read of the oracle's current mapped outcome and does not itself transition
// market state — resolve_market is what commits a winner.
func (e *Engine) FetchOracleResult(ctx context.Context, marketID domain.MarketID) (domain.Outcome, error) {
	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return "", fmt.Errorf("engine: fetch_oracle_result: %w", err)
	}

	pp, err := e.oracles.FetchPrice(ctx, m, e.clock.Now())
	if err != nil {
		if e.oracles.Degraded(ctx, m.OracleConfig.Asset) {
			e.emit(ctx, domain.EventOracleDegradation, map[string]any{
				"market_id": string(marketID),
				"asset":     m.OracleConfig.Asset,
			})
		}
		return "", err
	}
	return oracle.MapOutcome(m.OracleConfig, pp), nil
}

// ResolveMarket runs resolve_market(market_id). It drives the §4.G state
// machine to completion for one market and, when the result is a
// cancellation caused by zero stake or an expired tie, immediately triggers
// refunds via the payout engine so the entrypoint leaves no dangling
// unrefunded Cancelled market behind.
func (e *Engine) ResolveMarket(ctx context.Context, marketID domain.MarketID) (*domain.Market, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)

	before, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve_market: %w", err)
	}
	wasResolved := before.State == domain.StateResolved || before.State == domain.StateFinalized

	m, err := e.resolver.Resolve(ctx, marketID)
	if err != nil {
		return nil, err
	}

	switch {
	case m.State == domain.StateResolved && !wasResolved:
		e.emit(ctx, domain.EventMarketResolved, map[string]any{
			"market_id": string(marketID),
			"winner":    outcomeOrEmpty(m.WinningOutcome),
		})
	case m.State == domain.StateDisputeVoting && before.State != domain.StateDisputeVoting:
		e.emit(ctx, domain.EventManualResolutionRequired, map[string]any{
			"market_id": string(marketID),
		})
	case m.State == domain.StateCancelled && before.State != domain.StateCancelled:
		refunded, rerr := e.payouts.ProcessCancellation(ctx, marketID)
		if rerr != nil {
			return nil, fmt.Errorf("engine: resolve_market: refund: %w", rerr)
		}
		e.emit(ctx, domain.EventMarketCancelled, map[string]any{"market_id": string(marketID)})
		if refunded > 0 {
			e.emit(ctx, domain.EventRefunded, map[string]any{"market_id": string(marketID), "count": int64(refunded)})
		}
	}

	return m, nil
}

func outcomeOrEmpty(o *domain.Outcome) string {
	if o == nil {
		return ""
	}
	return string(*o)
}

// DisputeMarket runs dispute_market(user, market_id, stake, reason). The
// spec's argument list omits an explicit outcome, but §4.I describes "the
// disputer's claimed outcome" as inherent to opening a dispute — argument
// lists in §6 are semantic, not textual, so this entrypoint takes the
// claimed outcome as an additional parameter, matching vote_on_dispute's
// shape for the votes that follow it.
func (e *Engine) DisputeMarket(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	marketID domain.MarketID,
	outcome domain.Outcome,
	stake domain.Amount,
	reason string,
) (*domain.Market, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	m, err := e.disputes.Open(ctx, caller, marketID, outcome, stake, reason)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.EventDisputeOpened, map[string]any{
		"market_id": string(marketID),
		"user":      string(caller),
		"outcome":   string(outcome),
		"stake":     stake.String(),
	})
	return m, nil
}

// VoteOnDispute runs vote_on_dispute(user, market_id, dispute_id, outcome,
// stake, reason).
func (e *Engine) VoteOnDispute(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	marketID domain.MarketID,
	disputeID domain.DisputeID,
	outcome domain.Outcome,
	stake domain.Amount,
	reason string,
) (*domain.Market, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	m, err := e.disputes.Vote(ctx, caller, marketID, disputeID, outcome, stake, reason)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.EventDisputeOpened, map[string]any{
		"market_id":  string(marketID),
		"dispute_id": string(disputeID),
		"user":       string(caller),
		"outcome":    string(outcome),
		"stake":      stake.String(),
		"kind":       "vote",
	})
	return m, nil
}

// ResolveDispute runs resolve_dispute(admin, market_id): only an active
// admin may trigger the dispute-tally re-resolution.
func (e *Engine) ResolveDispute(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	marketID domain.MarketID,
) (*domain.Market, error) {
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

	m, err := e.disputes.Resolve(ctx, caller, marketID)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.EventDisputeResolved, map[string]any{
		"market_id": string(marketID),
		"winner":    outcomeOrEmpty(m.WinningOutcome),
		"actor":     string(caller),
	})
	return m, nil
}
