package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

// dispatchSensitive implements §4.J's "when multisig enabled, every
// sensitive operation ... must go through a PendingAdminAction" rule: with
// multisig disabled it runs apply immediately and returns a nil action
// (executed inline); with multisig enabled it creates and returns a pending
// action instead of running apply, deferring the effect to
// ExecuteAdminAction.
func (e *Engine) dispatchSensitive(
	ctx context.Context,
	caller domain.Identity,
	typ domain.PendingActionType,
	target domain.Identity,
	data map[string]any,
	apply func() error,
) (*domain.PendingAdminAction, error) {
	cfg, err := e.admins.GetMultisig(ctx)
	if err != nil {
		return nil, err
	}

	if !cfg.Enabled() {
		if err := apply(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	id, err := e.admins.CreatePendingAction(ctx, caller, typ, target, data)
	if err != nil {
		return nil, err
	}
	action, err := e.admins.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, domain.EventPendingActionCreated, map[string]any{
		"action_id": string(id),
		"type":      string(typ),
		"initiator": string(caller),
	})
	return action, nil
}

// AddAdmin runs add_admin.
func (e *Engine) AddAdmin(ctx context.Context, caller domain.Identity, req host.AuthRequest, target domain.Identity, role domain.AdminRole) (*domain.PendingAdminAction, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)
	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	action, err := e.dispatchSensitive(ctx, caller, domain.ActionAddAdmin, target, map[string]any{"role": string(role)},
		func() error {
			if err := e.admins.AddAdmin(ctx, caller, target, role); err != nil {
				return err
			}
			e.emit(ctx, domain.EventAdminAdded, map[string]any{"admin": string(target), "role": string(role)})
			return nil
		})
	return action, err
}

// RemoveAdmin runs remove_admin.
func (e *Engine) RemoveAdmin(ctx context.Context, caller domain.Identity, req host.AuthRequest, target domain.Identity) (*domain.PendingAdminAction, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)
	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	action, err := e.dispatchSensitive(ctx, caller, domain.ActionRemoveAdmin, target, nil,
		func() error {
			if err := e.admins.RemoveAdmin(ctx, caller, target); err != nil {
				return err
			}
			e.emit(ctx, domain.EventAdminRemoved, map[string]any{"admin": string(target)})
			return nil
		})
	return action, err
}

// UpdateRole runs update_role.
func (e *Engine) UpdateRole(ctx context.Context, caller domain.Identity, req host.AuthRequest, target domain.Identity, role domain.AdminRole) (*domain.PendingAdminAction, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)
	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	action, err := e.dispatchSensitive(ctx, caller, domain.ActionUpdateRole, target, map[string]any{"role": string(role)},
		func() error {
			if err := e.admins.UpdateRole(ctx, caller, target, role); err != nil {
				return err
			}
			e.emit(ctx, domain.EventRoleUpdated, map[string]any{"admin": string(target), "role": string(role)})
			return nil
		})
	return action, err
}

// DeactivateAdmin runs deactivate_admin. Deactivation is reversible via
// ReactivateAdmin and is not routed through the multisig gate — §4.J lists
// only add/remove/update-role/threshold as sensitive, not the
// deactivate/reactivate toggle.
func (e *Engine) DeactivateAdmin(ctx context.Context, caller domain.Identity, req host.AuthRequest, target domain.Identity) error {
	if err := e.acquireGuard(ctx); err != nil {
		return err
	}
	defer e.releaseGuard(ctx)
	if err := e.authenticate(ctx, caller, req); err != nil {
		return err
	}
	if err := e.admins.Deactivate(ctx, caller, target); err != nil {
		return err
	}
	e.emit(ctx, domain.EventAdminRemoved, map[string]any{"admin": string(target), "kind": "deactivated"})
	return nil
}

// ReactivateAdmin runs reactivate_admin.
func (e *Engine) ReactivateAdmin(ctx context.Context, caller domain.Identity, req host.AuthRequest, target domain.Identity) error {
	if err := e.acquireGuard(ctx); err != nil {
		return err
	}
	defer e.releaseGuard(ctx)
	if err := e.authenticate(ctx, caller, req); err != nil {
		return err
	}
	if err := e.admins.Reactivate(ctx, caller, target); err != nil {
		return err
	}
	e.emit(ctx, domain.EventAdminAdded, map[string]any{"admin": string(target), "kind": "reactivated"})
	return nil
}

// SetAdminThreshold runs set_admin_threshold(n).
func (e *Engine) SetAdminThreshold(ctx context.Context, caller domain.Identity, req host.AuthRequest, n int) (*domain.PendingAdminAction, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return nil, err
	}
	defer e.releaseGuard(ctx)
	if err := e.authenticate(ctx, caller, req); err != nil {
		return nil, err
	}

	action, err := e.dispatchSensitive(ctx, caller, domain.ActionSetThreshold, caller, map[string]any{"threshold": float64(n)},
		func() error {
			if err := e.admins.SetThreshold(ctx, caller, n); err != nil {
				return err
			}
			e.emit(ctx, domain.EventThresholdChanged, map[string]any{"threshold": int64(n), "actor": string(caller)})
			return nil
		})
	return action, err
}

// GetMultisigConfig runs get_multisig_config, a read-only query.
func (e *Engine) GetMultisigConfig(ctx context.Context) (domain.MultisigConfig, error) {
	return e.admins.GetMultisig(ctx)
}

// RequiresMultisig runs requires_multisig, reporting whether sensitive
// operations currently require a PendingAdminAction round-trip.
func (e *Engine) RequiresMultisig(ctx context.Context) (bool, error) {
	cfg, err := e.admins.GetMultisig(ctx)
	if err != nil {
		return false, err
	}
	return cfg.Enabled(), nil
}

// CreatePendingAdminAction runs create_pending_admin_action(initiator, type,
// target, data) -> action_id directly, for callers that want to start a
// multisig round-trip without going through one of the specific entrypoints
// above.
func (e *Engine) CreatePendingAdminAction(
	ctx context.Context,
	caller domain.Identity,
	req host.AuthRequest,
	typ domain.PendingActionType,
	target domain.Identity,
	data map[string]any,
) (domain.ActionID, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return "", err
	}
	defer e.releaseGuard(ctx)
	if err := e.authenticate(ctx, caller, req); err != nil {
		return "", err
	}

	id, err := e.admins.CreatePendingAction(ctx, caller, typ, target, data)
	if err != nil {
		return "", err
	}
	e.emit(ctx, domain.EventPendingActionCreated, map[string]any{
		"action_id": string(id),
		"type":      string(typ),
		"initiator": string(caller),
	})
	return id, nil
}

// ApproveAdminAction runs approve_admin_action(admin, action_id) ->
// threshold_met.
func (e *Engine) ApproveAdminAction(ctx context.Context, caller domain.Identity, req host.AuthRequest, id domain.ActionID) (bool, error) {
	if err := e.acquireGuard(ctx); err != nil {
		return false, err
	}
	defer e.releaseGuard(ctx)
	if err := e.authenticate(ctx, caller, req); err != nil {
		return false, err
	}

	met, err := e.admins.Approve(ctx, caller, id)
	if err != nil {
		return false, err
	}
	e.emit(ctx, domain.EventPendingActionApproved, map[string]any{
		"action_id":     string(id),
		"admin":         string(caller),
		"threshold_met": met,
	})
	return met, nil
}

// GetPendingAdminAction runs get_pending_admin_action(action_id), a
// read-only query.
func (e *Engine) GetPendingAdminAction(ctx context.Context, id domain.ActionID) (*domain.PendingAdminAction, error) {
	return e.admins.GetPendingAction(ctx, id)
}

// ExecuteAdminAction runs execute_admin_action(action_id): enforces the
// multisig threshold via internal/admin.Execute, then dispatches the
// action's actual effect by switching on its Type, using the original
// initiator's identity as the authorized actor — the initiator was already
// checked against the required role when the action was created.
func (e *Engine) ExecuteAdminAction(ctx context.Context, caller domain.Identity, req host.AuthRequest, id domain.ActionID) (*domain.PendingAdminAction, error) {
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

	a, err := e.admins.Execute(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := e.dispatchExecuted(ctx, a); err != nil {
		return nil, fmt.Errorf("engine: execute_admin_action: dispatch %s: %w", a.Type, err)
	}

	e.emit(ctx, domain.EventPendingActionExecuted, map[string]any{
		"action_id": string(a.ActionID),
		"type":      string(a.Type),
	})
	return a, nil
}

// dispatchExecuted runs the actual effect of a just-executed pending action.
func (e *Engine) dispatchExecuted(ctx context.Context, a *domain.PendingAdminAction) error {
	switch a.Type {
	case domain.ActionAddAdmin:
		role := domain.AdminRole(stringField(a.Data, "role"))
		if err := e.admins.AddAdmin(ctx, a.Initiator, a.Target, role); err != nil {
			return err
		}
		e.emit(ctx, domain.EventAdminAdded, map[string]any{"admin": string(a.Target), "role": string(role)})

	case domain.ActionRemoveAdmin:
		if err := e.admins.RemoveAdmin(ctx, a.Initiator, a.Target); err != nil {
			return err
		}
		e.emit(ctx, domain.EventAdminRemoved, map[string]any{"admin": string(a.Target)})

	case domain.ActionUpdateRole:
		role := domain.AdminRole(stringField(a.Data, "role"))
		if err := e.admins.UpdateRole(ctx, a.Initiator, a.Target, role); err != nil {
			return err
		}
		e.emit(ctx, domain.EventRoleUpdated, map[string]any{"admin": string(a.Target), "role": string(role)})

	case domain.ActionSetThreshold:
		n := int(numberField(a.Data, "threshold"))
		if err := e.admins.SetThreshold(ctx, a.Initiator, n); err != nil {
			return err
		}
		e.emit(ctx, domain.EventThresholdChanged, map[string]any{"threshold": int64(n), "actor": string(a.Initiator)})

	case domain.ActionCancelMarket:
		marketID := domain.MarketID(stringField(a.Data, "market_id"))
		reason := stringField(a.Data, "reason")
		return e.cancelMarketEffect(ctx, marketID, reason, a.Initiator)

	case domain.ActionWithdrawFees:
		marketID := domain.MarketID(stringField(a.Data, "market_id"))
		fee, err := e.payouts.CollectFees(ctx, a.Initiator, marketID)
		if err != nil {
			return err
		}
		e.emit(ctx, domain.EventFeeCollected, map[string]any{"market_id": string(marketID), "admin": string(a.Initiator), "amount": fee.String()})

	case domain.ActionUpdateOracleConfig:
		return e.applyOracleConfigUpdate(ctx, a)

	case domain.ActionAdjustDisputeParams:
		return e.applyDisputeThresholdAdjustment(ctx, a)

	default:
		return fmt.Errorf("engine: unknown pending action type %s", a.Type)
	}
	return nil
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

func numberField(data map[string]any, key string) float64 {
	v, _ := data[key].(float64)
	return v
}

func amountField(data map[string]any, key string) domain.Amount {
	s := stringField(data, key)
	if s == "" {
		return domain.ZeroAmount()
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return domain.ZeroAmount()
	}
	return v
}

// applyOracleConfigUpdate implements the ActionUpdateOracleConfig effect:
// replaces a market's live OracleConfig with the parameters carried on the
// pending action. §4.D never names this as a create_market-only field, and
// §4.J lists oracle-config changes among the sensitive operations, so this
// mutates the stored market directly rather than going through CreateMarket.
func (e *Engine) applyOracleConfigUpdate(ctx context.Context, a *domain.PendingAdminAction) error {
	marketID := domain.MarketID(stringField(a.Data, "market_id"))
	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return err
	}

	m.OracleConfig = domain.OracleConfig{
		Variant:      domain.OracleVariant(stringField(a.Data, "variant")),
		Asset:        stringField(a.Data, "asset"),
		Threshold:    amountField(a.Data, "threshold"),
		Comparison:   domain.Comparison(stringField(a.Data, "comparison")),
		TrueOutcome:  domain.Outcome(stringField(a.Data, "true_outcome")),
		FalseOutcome: domain.Outcome(stringField(a.Data, "false_outcome")),
		Exponent:     int32(numberField(a.Data, "exponent")),
	}

	if err := e.markets.Store(ctx, m); err != nil {
		return err
	}
	e.emit(ctx, domain.EventOracleDegradation, map[string]any{
		"market_id": string(marketID),
		"kind":      "config_updated",
	})
	return nil
}

// applyDisputeThresholdAdjustment implements the ActionAdjustDisputeParams
// effect: sets a market's DisputeBaseThreshold and appends a
// ThresholdHistoryRecord, matching §4.I's "admin-adjustable base threshold,
// changes recorded in the market's threshold history".
func (e *Engine) applyDisputeThresholdAdjustment(ctx context.Context, a *domain.PendingAdminAction) error {
	marketID := domain.MarketID(stringField(a.Data, "market_id"))
	m, err := e.markets.Load(ctx, marketID)
	if err != nil {
		return err
	}

	oldBase := m.DisputeBaseThreshold
	newBase := amountField(a.Data, "new_base")
	m.DisputeBaseThreshold = newBase
	m.ThresholdHistory = append(m.ThresholdHistory, domain.ThresholdHistoryRecord{
		OldBase:   oldBase,
		NewBase:   newBase,
		Actor:     a.Initiator,
		Timestamp: e.clock.Now(),
		Reason:    stringField(a.Data, "reason"),
	})

	if err := e.markets.Store(ctx, m); err != nil {
		return err
	}
	e.emit(ctx, domain.EventThresholdChanged, map[string]any{
		"market_id": string(marketID),
		"old_base":  oldBase.String(),
		"new_base":  newBase.String(),
	})
	return nil
}

// EmergencyPause runs emergency_pause(admin, reason): a SuperAdmin-only
// circuit breaker that halts every other state-changing entrypoint until
// EmergencyResume lifts it. Queries keep working while paused.
func (e *Engine) EmergencyPause(ctx context.Context, caller domain.Identity, req host.AuthRequest, reason string) error {
	if err := e.acquireGuard(ctx); err != nil {
		return err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return err
	}
	if err := e.admins.Pause(ctx, caller, reason); err != nil {
		return err
	}
	e.emit(ctx, domain.EventContractPaused, map[string]any{"admin": string(caller), "reason": reason})
	return nil
}

// EmergencyResume runs emergency_resume(admin): the one entrypoint that must
// still run while the circuit breaker is open, so it takes the reentrancy
// lock directly instead of going through acquireGuard's pause check.
func (e *Engine) EmergencyResume(ctx context.Context, caller domain.Identity, req host.AuthRequest) error {
	if err := e.acquireReentrancyLock(ctx); err != nil {
		return err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return err
	}
	if err := e.admins.Resume(ctx, caller); err != nil {
		return err
	}
	e.emit(ctx, domain.EventContractResumed, map[string]any{"admin": string(caller)})
	return nil
}
