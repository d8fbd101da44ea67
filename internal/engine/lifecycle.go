package engine

import (
	"context"
	"fmt"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/resolution"
)

// CreateMarket runs create_market(admin, question, outcomes, duration_days,
// oracle_config, fallback_oracle_config?, resolution_timeout) -> market_id.
func (e *Engine) CreateMarket(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	question string,
	outcomes []domain.Outcome,
	durationDays int,
	oracleConfig domain.OracleConfig,
	fallbackOracleConfig *domain.OracleConfig,
	resolutionTimeoutSeconds int64,
) (domain.MarketID, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return "", err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return "", err
	}
	if err := e.admins.Authorize(ctx, caller); err != nil {
		return "", err
	}

	now := e.clock.Now()
	endTime := now + int64(durationDays)*86400

	if err := e.val.ValidateMarketMetadata(question, outcomes, now, endTime); err != nil {
		return "", err
	}

	disputeWindow := e.cfg.DefaultDisputeWindowSeconds
	timeout := resolutionTimeoutSeconds
	if timeout <= 0 {
		timeout = e.cfg.DefaultResolutionTimeoutSeconds
	}
	if err := e.val.ValidateDurations(disputeWindow, timeout); err != nil {
		return "", err
	}

	m := &domain.Market{
		Admin:                    caller,
		Question:                 question,
		Outcomes:                 outcomes,
		CreatedAt:                now,
		EndTime:                  endTime,
		DisputeWindowSeconds:     disputeWindow,
		ResolutionTimeoutSeconds: timeout,
		OracleConfig:             oracleConfig,
		FallbackOracleConfig:     fallbackOracleConfig,
		State:                    domain.StateActive,
		TotalStaked:              domain.ZeroAmount(),
		PerOutcomeTotal:          make(map[domain.Outcome]domain.Amount),
		Bets:                     make(map[domain.Identity]*domain.Bet),
		DisputeBaseThreshold:     e.cfg.BaseDisputeThreshold,
	}

	id, err := e.markets.Create(ctx, m)
	if err != nil {
		return "", fmt.Errorf("engine: create_market: %w", err)
	}

	e.emit(ctx, domain.EventMarketCreated, map[string]any{
		"market_id": string(id),
		"admin":     string(caller),
		"question":  question,
	})
	return id, nil
}

// ExtendMarket runs extend_market(admin, market_id, additional_days, reason,
// fee_amount): a discretionary admin extension bounded by
// EngineConfig.MaxExtensionDays, distinct from the automatic extension a
// dispute triggers (internal/dispute.Module.Open, which is not capped).
func (e *Engine) ExtendMarket(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	marketID domain.MarketID,
	additionalDays int,
	reason string,
	feeAmount domain.Amount,
) error {
	if err := e.acquireGuard(ctx); err != nil {
		return err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return err
	}
	if err := e.admins.Authorize(ctx, caller); err != nil {
		return err
	}
	if err := e.val.ValidateReason(reason); err != nil {
		return err
	}

	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return fmt.Errorf("engine: extend_market: %w", err)
	}
	if m.State != domain.StateActive && m.State != domain.StateEnded {
		return fmt.Errorf("engine: extend_market: %w", domain.ErrMarketClosed)
	}
	if m.TotalExtensionDays+additionalDays > e.cfg.MaxExtensionDays {
		return fmt.Errorf("engine: extend_market: %w", domain.ErrInvalidDuration)
	}

	now := e.clock.Now()
	if feeAmount != nil && feeAmount.Sign() > 0 {
		if err := e.transfer.Transfer(ctx, string(caller), contractIdentity, feeAmount); err != nil {
			return fmt.Errorf("engine: extend_market: fee transfer: %w", err)
		}
	}

	m.EndTime += int64(additionalDays) * 86400
	if m.State == domain.StateEnded {
		m.State = domain.StateActive
	}
	m.ExtensionHistory = append(m.ExtensionHistory, domain.ExtensionRecord{
		DaysAdded: additionalDays,
		Reason:    reason,
		Actor:     caller,
		Timestamp: now,
	})
	m.TotalExtensionDays += additionalDays

	if err := e.markets.Store(ctx, m); err != nil {
		return fmt.Errorf("engine: extend_market: %w", err)
	}
	return nil
}

// CancelMarket runs cancel_market(admin, market_id, reason): a sensitive
// operation per §4.J, routed through the multisig pending-action gate when
// enabled.
func (e *Engine) CancelMarket(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	marketID domain.MarketID,
	reason string,
) (*domain.PendingAdminAction, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}
	if err := e.val.ValidateReason(reason); err != nil {
		return nil, err
	}

	action, err := e.dispatchSensitive(ctx, caller, domain.ActionCancelMarket, domain.Identity(marketID),
		map[string]any{"market_id": string(marketID), "reason": reason},
		func() error { return e.cancelMarketEffect(ctx, marketID, reason, caller) })
	return action, err
}

// cancelMarketEffect is the actual state transition dispatched either
// immediately (multisig disabled) or from ExecuteAdminAction (enabled).
func (e *Engine) cancelMarketEffect(ctx context.Context, marketID domain.MarketID, reason string, actor domain.Identity) error {
	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return err
	}
	if m.State == domain.StateFinalized || m.State == domain.StateCancelled {
		return fmt.Errorf("engine: cancel_market: %w", domain.ErrMarketClosed)
	}

	resolution.AdvanceState(m, e.clock.Now())
	m.State = domain.StateCancelled
	if err := e.markets.Store(ctx, m); err != nil {
		return err
	}

	refunded, err := e.payouts.ProcessCancellation(ctx, marketID)
	if err != nil {
		return fmt.Errorf("engine: cancel_market: refund: %w", err)
	}

	e.emit(ctx, domain.EventMarketCancelled, map[string]any{
		"market_id": string(marketID),
		"reason":    reason,
		"actor":     string(actor),
	})
	if refunded > 0 {
		e.emit(ctx, domain.EventRefunded, map[string]any{
			"market_id": string(marketID),
			"count":     int64(refunded),
		})
	}
	return nil
}
