// Package admin implements the §4.J role set and M-of-N multisig gate:
// role management, threshold configuration, and the create/approve/execute
// lifecycle every sensitive operation runs through when multisig is enabled.
// It also holds the emergency-pause circuit breaker consulted by
// internal/engine's reentrancy-guard path.
package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

const (
	adminKeyPrefix    = "admin:"
	multisigKey       = "multisig_config"
	actionKeyPrefix   = "pending_action:"
	circuitBreakerKey = "circuit_breaker_state"
)

func adminKey(id domain.Identity) string  { return adminKeyPrefix + string(id) }
func actionKey(id domain.ActionID) string { return actionKeyPrefix + string(id) }

// Module drives every §4.J entrypoint over the storage facade.
type Module struct {
	kv    host.KV
	clock host.Clock
	cfg   domain.EngineConfig
}

// New creates an admin Module.
func New(kv host.KV, clock host.Clock, cfg domain.EngineConfig) *Module {
	return &Module{kv: kv, clock: clock, cfg: cfg}
}

// Bootstrap seeds the very first SuperAdmin and a disabled multisig config,
// for use only when initializing a fresh deployment.
func (m *Module) Bootstrap(ctx context.Context, superAdmin domain.Identity) error {
	rec := domain.AdminRecord{Identity: superAdmin, Role: domain.RoleSuperAdmin, IsActive: true}
	if err := m.putAdmin(ctx, rec); err != nil {
		return err
	}
	return m.putMultisig(ctx, domain.MultisigConfig{Threshold: 1, TotalAdmins: 1})
}

func (m *Module) putAdmin(ctx context.Context, rec domain.AdminRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, host.NamespacePersistent, adminKey(rec.Identity), raw)
}

// GetAdmin fetches a single admin record.
func (m *Module) GetAdmin(ctx context.Context, id domain.Identity) (*domain.AdminRecord, error) {
	raw, ok, err := m.kv.Get(ctx, host.NamespacePersistent, adminKey(id))
	if err != nil {
		return nil, fmt.Errorf("admin: get %s: %w", id, err)
	}
	if !ok {
		return nil, domain.ErrAdminNotFound
	}
	var rec domain.AdminRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAdmins enumerates every admin record.
func (m *Module) ListAdmins(ctx context.Context) ([]domain.AdminRecord, error) {
	keys, err := m.kv.ListKeys(ctx, host.NamespacePersistent, adminKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AdminRecord, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := m.kv.Get(ctx, host.NamespacePersistent, k)
		if err != nil || !ok {
			continue
		}
		var rec domain.AdminRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *Module) activeAdminCount(ctx context.Context) (int, error) {
	admins, err := m.ListAdmins(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range admins {
		if a.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *Module) countActiveSuperAdmins(ctx context.Context) (int, error) {
	admins, err := m.ListAdmins(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range admins {
		if a.IsActive && a.Role == domain.RoleSuperAdmin {
			n++
		}
	}
	return n, nil
}

// GetMultisig fetches the current multisig configuration.
func (m *Module) GetMultisig(ctx context.Context) (domain.MultisigConfig, error) {
	raw, ok, err := m.kv.Get(ctx, host.NamespaceInstance, multisigKey)
	if err != nil {
		return domain.MultisigConfig{}, err
	}
	if !ok {
		return domain.MultisigConfig{Threshold: 1, TotalAdmins: 1}, nil
	}
	var cfg domain.MultisigConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.MultisigConfig{}, err
	}
	return cfg, nil
}

func (m *Module) putMultisig(ctx context.Context, cfg domain.MultisigConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, host.NamespaceInstance, multisigKey, raw)
}

// requireSuperAdmin authorizes caller as an active SuperAdmin.
func (m *Module) requireSuperAdmin(ctx context.Context, caller domain.Identity) error {
	rec, err := m.GetAdmin(ctx, caller)
	if err != nil {
		return err
	}
	if !rec.IsActive || rec.Role != domain.RoleSuperAdmin {
		return domain.ErrNotSuperAdmin
	}
	return nil
}

// requireActiveAdmin authorizes caller as any active admin (any role).
func (m *Module) requireActiveAdmin(ctx context.Context, caller domain.Identity) error {
	rec, err := m.GetAdmin(ctx, caller)
	if err == domain.ErrAdminNotFound {
		return domain.ErrNotAdmin
	}
	if err != nil {
		return err
	}
	if !rec.IsActive {
		return domain.ErrNotAdmin
	}
	return nil
}

// Authorize checks that caller is any active admin, for use by
// internal/engine before delegating a non-sensitive admin-only operation.
func (m *Module) Authorize(ctx context.Context, caller domain.Identity) error {
	return m.requireActiveAdmin(ctx, caller)
}

// AuthorizeSuperAdmin checks that caller is an active SuperAdmin.
func (m *Module) AuthorizeSuperAdmin(ctx context.Context, caller domain.Identity) error {
	return m.requireSuperAdmin(ctx, caller)
}

// AddAdmin runs add_admin directly (bypassing multisig gating is the
// caller's responsibility — internal/engine checks MultisigConfig.Enabled()
// before calling straight through here vs. routing through
// CreatePendingAction).
func (m *Module) AddAdmin(ctx context.Context, caller, target domain.Identity, role domain.AdminRole) error {
	if err := m.requireSuperAdmin(ctx, caller); err != nil {
		return err
	}
	if err := m.putAdmin(ctx, domain.AdminRecord{Identity: target, Role: role, IsActive: true}); err != nil {
		return err
	}
	cfg, err := m.GetMultisig(ctx)
	if err != nil {
		return err
	}
	cfg.TotalAdmins++
	return m.putMultisig(ctx, cfg)
}

// RemoveAdmin runs remove_admin, refusing if it would leave zero active
// SuperAdmins (I7) or push the multisig threshold above the remaining active
// admin count (I8).
func (m *Module) RemoveAdmin(ctx context.Context, caller, target domain.Identity) error {
	if err := m.requireSuperAdmin(ctx, caller); err != nil {
		return err
	}
	rec, err := m.GetAdmin(ctx, target)
	if err != nil {
		return err
	}
	if rec.Role == domain.RoleSuperAdmin {
		n, err := m.countActiveSuperAdmins(ctx)
		if err != nil {
			return err
		}
		if rec.IsActive && n <= 1 {
			return domain.ErrLastSuperAdmin
		}
	}

	activeCount, err := m.activeAdminCount(ctx)
	if err != nil {
		return err
	}
	cfg, err := m.GetMultisig(ctx)
	if err != nil {
		return err
	}
	remaining := activeCount
	if rec.IsActive {
		remaining--
	}
	if int64(cfg.Threshold) > int64(remaining) {
		return domain.ErrThresholdExceedsAdmins
	}

	rec.IsActive = false
	return m.putAdmin(ctx, *rec)
}

// UpdateRole runs update_role.
func (m *Module) UpdateRole(ctx context.Context, caller, target domain.Identity, role domain.AdminRole) error {
	if err := m.requireSuperAdmin(ctx, caller); err != nil {
		return err
	}
	rec, err := m.GetAdmin(ctx, target)
	if err != nil {
		return err
	}
	if rec.Role == domain.RoleSuperAdmin && role != domain.RoleSuperAdmin {
		n, err := m.countActiveSuperAdmins(ctx)
		if err != nil {
			return err
		}
		if rec.IsActive && n <= 1 {
			return domain.ErrLastSuperAdmin
		}
	}
	rec.Role = role
	return m.putAdmin(ctx, *rec)
}

// Deactivate/Reactivate toggle IsActive without removing the record.
func (m *Module) Deactivate(ctx context.Context, caller, target domain.Identity) error {
	return m.setActive(ctx, caller, target, false)
}

func (m *Module) Reactivate(ctx context.Context, caller, target domain.Identity) error {
	return m.setActive(ctx, caller, target, true)
}

func (m *Module) setActive(ctx context.Context, caller, target domain.Identity, active bool) error {
	if err := m.requireSuperAdmin(ctx, caller); err != nil {
		return err
	}
	rec, err := m.GetAdmin(ctx, target)
	if err != nil {
		return err
	}
	if !active && rec.Role == domain.RoleSuperAdmin {
		n, err := m.countActiveSuperAdmins(ctx)
		if err != nil {
			return err
		}
		if rec.IsActive && n <= 1 {
			return domain.ErrLastSuperAdmin
		}
	}
	rec.IsActive = active
	return m.putAdmin(ctx, *rec)
}

// SetThreshold runs set_threshold(n). n == 1 disables multisig.
func (m *Module) SetThreshold(ctx context.Context, caller domain.Identity, n int) error {
	if err := m.requireSuperAdmin(ctx, caller); err != nil {
		return err
	}
	active, err := m.activeAdminCount(ctx)
	if err != nil {
		return err
	}
	if n < 1 || n > active {
		return domain.ErrInvalidThreshold
	}
	cfg, err := m.GetMultisig(ctx)
	if err != nil {
		return err
	}
	cfg.Threshold = n
	return m.putMultisig(ctx, cfg)
}

// CreatePendingAction runs create_pending_action: the initiator is
// auto-approved and the action expires ACTION_TTL from now.
func (m *Module) CreatePendingAction(ctx context.Context, initiator domain.Identity, typ domain.PendingActionType, target domain.Identity, data map[string]any) (domain.ActionID, error) {
	if err := m.requireActiveAdmin(ctx, initiator); err != nil {
		return "", err
	}

	now := m.clock.Now()
	id := domain.ActionID(uuid.NewString())
	action := domain.PendingAdminAction{
		ActionID:  id,
		Type:      typ,
		Target:    target,
		Initiator: initiator,
		Approvals: map[domain.Identity]bool{initiator: true},
		CreatedAt: now,
		ExpiresAt: now + int64(m.cfg.ActionTTL.Seconds()),
		Executed:  false,
		Data:      data,
	}
	if err := m.putAction(ctx, action); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Module) putAction(ctx context.Context, a domain.PendingAdminAction) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, host.NamespaceTemporary, actionKey(a.ActionID), raw)
}

// GetPendingAction fetches a single pending action.
func (m *Module) GetPendingAction(ctx context.Context, id domain.ActionID) (*domain.PendingAdminAction, error) {
	raw, ok, err := m.kv.Get(ctx, host.NamespaceTemporary, actionKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrActionNotFound
	}
	var a domain.PendingAdminAction
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Approve runs approve(admin, action_id): only active admins, no duplicate
// approvals. Returns whether the threshold has now been met.
func (m *Module) Approve(ctx context.Context, admin domain.Identity, id domain.ActionID) (bool, error) {
	if err := m.requireActiveAdmin(ctx, admin); err != nil {
		return false, err
	}
	a, err := m.GetPendingAction(ctx, id)
	if err != nil {
		return false, err
	}
	if a.Executed {
		return false, domain.ErrAlreadyExecuted
	}
	if a.Expired(m.clock.Now()) {
		return false, domain.ErrExpired
	}
	if a.HasApproved(admin) {
		return false, domain.ErrAlreadyApproved
	}

	a.Approvals[admin] = true
	if err := m.putAction(ctx, *a); err != nil {
		return false, err
	}

	cfg, err := m.GetMultisig(ctx)
	if err != nil {
		return false, err
	}
	return a.ApprovalCount() >= cfg.Threshold, nil
}

// Pause runs emergency_pause(admin, reason): only a SuperAdmin may halt
// every state-changing entrypoint. Queries remain readable while paused.
func (m *Module) Pause(ctx context.Context, caller domain.Identity, reason string) error {
	if err := m.requireSuperAdmin(ctx, caller); err != nil {
		return err
	}
	return m.putCircuitBreaker(ctx, domain.CircuitBreakerState{
		Paused:   true,
		Reason:   reason,
		PausedBy: caller,
		PausedAt: m.clock.Now(),
	})
}

// Resume runs emergency_resume(admin): only a SuperAdmin may lift a pause.
func (m *Module) Resume(ctx context.Context, caller domain.Identity) error {
	if err := m.requireSuperAdmin(ctx, caller); err != nil {
		return err
	}
	return m.putCircuitBreaker(ctx, domain.CircuitBreakerState{})
}

// CircuitBreaker fetches the current pause state.
func (m *Module) CircuitBreaker(ctx context.Context) (domain.CircuitBreakerState, error) {
	raw, ok, err := m.kv.Get(ctx, host.NamespaceInstance, circuitBreakerKey)
	if err != nil {
		return domain.CircuitBreakerState{}, err
	}
	if !ok {
		return domain.CircuitBreakerState{}, nil
	}
	var state domain.CircuitBreakerState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.CircuitBreakerState{}, err
	}
	return state, nil
}

func (m *Module) putCircuitBreaker(ctx context.Context, state domain.CircuitBreakerState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, host.NamespaceInstance, circuitBreakerKey, raw)
}

// Execute runs execute(action_id): requires approvals >= threshold, not
// expired, not already executed. The actual dispatch of the action's effect
// is the caller's responsibility (internal/engine switches on a.Type); this
// method only enforces the multisig gate and marks the action executed.
func (m *Module) Execute(ctx context.Context, id domain.ActionID) (*domain.PendingAdminAction, error) {
	a, err := m.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Executed {
		return nil, domain.ErrAlreadyExecuted
	}
	if a.Expired(m.clock.Now()) {
		return nil, domain.ErrExpired
	}

	cfg, err := m.GetMultisig(ctx)
	if err != nil {
		return nil, err
	}
	if a.ApprovalCount() < cfg.Threshold {
		return nil, domain.ErrUnauthorized
	}

	a.Executed = true
	if err := m.putAction(ctx, *a); err != nil {
		return nil, err
	}
	return a, nil
}
