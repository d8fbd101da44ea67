// Package engine implements the §4.K lifecycle controller: one method per
// entrypoint named in §6, each acquiring the reentrancy guard, authenticating
// the caller, running the shared validator, delegating to the owning
// component, emitting the corresponding event, and releasing the guard on
// every exit path — grounded on internal/app/app.go's component-wiring shape
// and internal/service/order_service.go's per-call guard/log/audit sequence.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/predictify/marketengine/internal/admin"
	"github.com/predictify/marketengine/internal/dispute"
	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/events"
	"github.com/predictify/marketengine/internal/host"
	"github.com/predictify/marketengine/internal/ledger"
	"github.com/predictify/marketengine/internal/market"
	"github.com/predictify/marketengine/internal/oracle"
	"github.com/predictify/marketengine/internal/payout"
	"github.com/predictify/marketengine/internal/resolution"
	"github.com/predictify/marketengine/internal/validator"
)

const reentrancyFlagKey = "reentrancy_flag"

// contractIdentity is the destination account for value the engine itself
// collects directly (extension fees), mirroring the same constant each
// component package declares independently for its own transfers.
const contractIdentity = "contract"

// Engine wires together every core component and exposes the full §6
// entrypoint surface. It holds no domain state of its own beyond the
// in-process half of the reentrancy guard.
type Engine struct {
	kv       host.KV
	auth     host.Authenticator
	clock    host.Clock
	transfer host.ValueTransfer
	cfg      domain.EngineConfig
	val      *validator.Validator
	events   *events.Emitter

	markets  *market.Registry
	ledger   *ledger.Ledger
	oracles  *oracle.Adapter
	resolver *resolution.Engine
	payouts  *payout.Payout
	disputes *dispute.Module
	admins   *admin.Module

	mu sync.Mutex
}

// New wires an Engine from its component dependencies. Callers (internal/app)
// are responsible for constructing each component over a shared host.KV.
func New(
	kv host.KV,
	auth host.Authenticator,
	clock host.Clock,
	transfer host.ValueTransfer,
	cfg domain.EngineConfig,
	emitter *events.Emitter,
	markets *market.Registry,
	led *ledger.Ledger,
	oracles *oracle.Adapter,
	resolver *resolution.Engine,
	payouts *payout.Payout,
	disputes *dispute.Module,
	admins *admin.Module,
) *Engine {
	return &Engine{
		kv:       kv,
		auth:     auth,
		clock:    clock,
		transfer: transfer,
		cfg:      cfg,
		val:      validator.New(),
		events:   emitter,
		markets:  markets,
		ledger:   led,
		oracles:  oracles,
		resolver: resolver,
		payouts:  payouts,
		disputes: disputes,
		admins:   admins,
	}
}

// acquireGuard implements §4.K's reentrancy guard: a per-process mutex
// documenting the spec's single-threaded-per-entrypoint model, backed by a
// KV flag under NamespaceInstance that is the persisted, multi-instance-safe
// half of the same invariant. Both must succeed before an entrypoint body
// runs. TryLock (rather than Lock) matches the spec's "attempting to set it
// when set fails with Reentrancy" — a blocked entrypoint fails fast instead
// of queuing behind the caller that is already inside the guard.
//
// It also consults the emergency-pause circuit breaker (internal/admin):
// every state-changing entrypoint runs through acquireGuard, so gating here
// covers the whole mutating surface without touching each entrypoint file.
// EmergencyResume is the one exception — it calls acquireReentrancyLock
// directly so a paused contract can still be unpaused.
func (e *Engine) acquireGuard(ctx context.Context) error {
	if err := e.acquireReentrancyLock(ctx); err != nil {
		return err
	}

	state, err := e.admins.CircuitBreaker(ctx)
	if err != nil {
		e.releaseGuard(ctx)
		return fmt.Errorf("engine: guard: %w", err)
	}
	if state.Paused {
		e.releaseGuard(ctx)
		return domain.ErrCircuitBreakerOpen
	}
	return nil
}

// acquireReentrancyLock runs the reentrancy half of acquireGuard alone,
// without the circuit-breaker check, for EmergencyResume's own use.
func (e *Engine) acquireReentrancyLock(ctx context.Context) error {
	if !e.mu.TryLock() {
		return domain.ErrReentrancy
	}

	raw, ok, err := e.kv.Get(ctx, host.NamespaceInstance, reentrancyFlagKey)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: guard: %w", err)
	}
	if ok && len(raw) == 1 && raw[0] == 1 {
		e.mu.Unlock()
		return domain.ErrReentrancy
	}

	if err := e.kv.Put(ctx, host.NamespaceInstance, reentrancyFlagKey, []byte{1}); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine: guard: %w", err)
	}
	return nil
}

// releaseGuard clears both halves of the guard. Called via defer immediately
// after a successful acquireGuard, so it runs on every exit path including
// failure, per §4.K.
func (e *Engine) releaseGuard(ctx context.Context) {
	_ = e.kv.Put(ctx, host.NamespaceInstance, reentrancyFlagKey, []byte{0})
	e.mu.Unlock()
}

// authenticate wraps host.Authenticator.Authenticate with the engine's
// package-qualified error context.
func (e *Engine) authenticate(ctx context.Context, caller domain.Identity, req host.AuthRequest) error {
	if err := e.auth.Authenticate(ctx, string(caller), req); err != nil {
		return fmt.Errorf("engine: authenticate %s: %w", caller, err)
	}
	return nil
}

// emit funnels an event through the emitter without failing the entrypoint
// on a live-fan-out error; per §7 the event log itself is tied to the
// transaction (already committed by the time emit runs), so an error
// returned by the emitter is discarded here and never rolls back state.
func (e *Engine) emit(ctx context.Context, topic domain.EventTopic, fields map[string]any) {
	_ = e.events.Emit(ctx, topic, fields)
}

// Initialize runs the initialize(admin) entrypoint: it may only be called
// once, seeding the first SuperAdmin and a disabled (threshold=1) multisig
// configuration.
func (e *Engine) Initialize(ctx context.Context, caller domain.Identity, req host.AuthRequest, superAdmin domain.Identity) error {
	if err := e.acquireGuard(ctx); err != nil {
		return err
	}
	defer e.releaseGuard(ctx)

	if err := e.authenticate(ctx, caller, req); err != nil {
		return err
	}

	if _, err := e.admins.GetAdmin(ctx, superAdmin); err == nil {
		return fmt.Errorf("engine: initialize: %w", domain.ErrAlreadyInitialized)
	}

	if err := e.admins.Bootstrap(ctx, superAdmin); err != nil {
		return fmt.Errorf("engine: initialize: %w", err)
	}
	e.emit(ctx, domain.EventAdminAdded, map[string]any{"admin": string(superAdmin), "role": string(domain.RoleSuperAdmin)})
	return nil
}
