// Package host defines the narrow collaborator interfaces the engine core
// depends on: authentication, a namespaced key-value store, a value-transfer
// primitive, an event log, a ledger clock, and cross-contract invocation.
// These are the Go realization of spec.md §6's "host execution environment"
// boundary — the core (internal/market, internal/ledger, internal/oracle,
// internal/resolution, internal/payout, internal/dispute, internal/admin,
// internal/engine) depends only on these, never on a concrete backend.
package host

import (
	"context"
	"math/big"
	"time"
)

// Namespace selects one of the three storage regions the facade guarantees
// distinct TTL/rent handling for (§4.B).
type Namespace string

const (
	// NamespaceInstance holds small process-wide singletons: admin set,
	// multisig config, market counter, reentrancy flag.
	NamespaceInstance Namespace = "instance"
	// NamespacePersistent holds market records, bets, admin state,
	// dispute/extension history — anything with no natural expiry.
	NamespacePersistent Namespace = "persistent"
	// NamespaceTemporary holds pending actions and short-lived caches,
	// addressable with a TTL.
	NamespaceTemporary Namespace = "temporary"
)

// Clock is the ledger's monotonically non-decreasing timestamp source.
type Clock interface {
	// Now returns the current ledger time in unix seconds.
	Now() int64
}

// AuthRequest carries the material an Authenticator checks against the
// caller's declared identity — a signed payload for off-chain callers, or an
// already-verified session token for trusted server-to-server calls.
type AuthRequest struct {
	// Signature is the raw signature bytes over the canonical request
	// digest (EIP-712 for on-chain-style identities).
	Signature []byte
	// Payload is the canonical, pre-hash request body the signature covers.
	Payload []byte
	// Nonce prevents replay of a previously accepted signature.
	Nonce uint64
}

// Authenticator fails the call if the caller has not authorized
// action-on-behalf-of identity.
type Authenticator interface {
	Authenticate(ctx context.Context, identity string, req AuthRequest) error
}

// KV is the typed persistent/temporary map over opaque keys the storage
// facade exposes (§4.B). Implementations must guarantee serialization
// atomicity per key; multi-key operations are the caller's responsibility.
type KV interface {
	Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, ns Namespace, key string, val []byte) error
	// PutWithTTL is meaningful for NamespaceTemporary; implementations may
	// treat a zero ttl as "no expiry" for other namespaces.
	PutWithTTL(ctx context.Context, ns Namespace, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, ns Namespace, key string) error
	// ListKeys enumerates keys under a namespace with the given prefix, used
	// by market_registry.list_ids and analytics queries. May be O(n).
	ListKeys(ctx context.Context, ns Namespace, prefix string) ([]string, error)
}

// ValueTransfer is the fungible-value token primitive; it fails atomically
// on insufficient balance.
type ValueTransfer interface {
	Transfer(ctx context.Context, from, to string, amount *big.Int) error
}

// EventLog appends a structured audit event; the transaction that emitted it
// either fully commits (and the event is visible) or fully reverts (and no
// event is ever observed), per §7's propagation policy.
type EventLog interface {
	Emit(ctx context.Context, topic string, payload []byte) error
}

// Invoker performs a synchronous cross-contract call to an external oracle
// or token contract.
type Invoker interface {
	Invoke(ctx context.Context, contractID, function string, args []byte) ([]byte, error)
}
