package domain

// AdminRecord is a single administrator's identity, role, and active flag.
type AdminRecord struct {
	Identity Identity
	Role     AdminRole
	IsActive bool
}

// MultisigConfig is the process-wide singleton governing how many active
// admin approvals a sensitive operation requires.
type MultisigConfig struct {
	Threshold   int
	TotalAdmins int
}

// Enabled reports whether multisig gating applies (threshold > 1).
func (c MultisigConfig) Enabled() bool { return c.Threshold > 1 }

// PendingActionType tags the kind of sensitive operation a PendingAdminAction
// dispatches once its approval threshold is met.
type PendingActionType string

const (
	ActionAddAdmin             PendingActionType = "add_admin"
	ActionRemoveAdmin          PendingActionType = "remove_admin"
	ActionUpdateRole           PendingActionType = "update_role"
	ActionSetThreshold         PendingActionType = "set_threshold"
	ActionUpdateOracleConfig   PendingActionType = "update_oracle_config"
	ActionCancelMarket         PendingActionType = "cancel_market"
	ActionWithdrawFees         PendingActionType = "withdraw_fees"
	ActionAdjustDisputeParams  PendingActionType = "adjust_dispute_threshold"
)

// PendingAdminAction is an M-of-N gated request awaiting approvals.
type PendingAdminAction struct {
	ActionID   ActionID
	Type       PendingActionType
	Target     Identity
	Initiator  Identity
	Approvals  map[Identity]bool
	CreatedAt  int64
	ExpiresAt  int64
	Executed   bool
	Data       map[string]any
}

// ApprovalCount reports how many distinct identities have approved.
func (p *PendingAdminAction) ApprovalCount() int { return len(p.Approvals) }

// HasApproved reports whether identity already approved this action.
func (p *PendingAdminAction) HasApproved(identity Identity) bool {
	return p.Approvals[identity]
}

// Expired reports whether now is at or past ExpiresAt.
func (p *PendingAdminAction) Expired(now int64) bool { return now >= p.ExpiresAt }

// CircuitBreakerState is the emergency-pause gate every state-changing
// engine entrypoint consults before running. It is a manual admin-triggered
// pause/resume, not the automatic error-rate/latency/liquidity-triggered
// breaker of the original contract — this engine has no runtime telemetry
// to feed an automatic trigger, so only the manual half is implemented (see
// DESIGN.md).
type CircuitBreakerState struct {
	Paused    bool
	Reason    string
	PausedBy  Identity
	PausedAt  int64
}
