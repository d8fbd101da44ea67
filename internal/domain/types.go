// Package domain defines the value types, records, and error taxonomy shared
// by every component of the prediction-market engine. Nothing in this
// package performs I/O.
package domain

import "math/big"

// MarketID is a short opaque symbol identifying a market, bounded to 32 bytes.
type MarketID string

// Identity is an opaque caller symbol (wallet address, account ID, ...).
type Identity string

// ActionID identifies a PendingAdminAction, bounded to 32 bytes.
type ActionID string

// DisputeID identifies a single dispute raised against a resolved market.
type DisputeID string

// Outcome is a UTF-8 label naming one possible resolution of a market.
type Outcome string

// Amount is a fixed-point, non-negative-by-convention base-unit quantity.
// The engine performs no implicit scaling; base unit is 1/10_000_000 of the
// underlying value-transfer asset. Represented with math/big since Go has no
// native 128-bit integer.
type Amount = *big.Int

// ZeroAmount returns a fresh zero-valued Amount. Callers must not share a
// single *big.Int across mutable accumulation sites.
func ZeroAmount() Amount { return big.NewInt(0) }

// NewAmount builds an Amount from an int64, for literals and tests.
func NewAmount(v int64) Amount { return big.NewInt(v) }

// MarketState is the lifecycle stage of a market.
type MarketState string

const (
	StateActive            MarketState = "Active"
	StateEnded             MarketState = "Ended"
	StatePendingResolution MarketState = "PendingResolution"
	StateResolved          MarketState = "Resolved"
	StateDisputed          MarketState = "Disputed"
	StateDisputeVoting     MarketState = "DisputeVoting"
	StateFinalized         MarketState = "Finalized"
	StateCancelled         MarketState = "Cancelled"
)

// BetStatus tracks the lifecycle of a single stake.
type BetStatus string

const (
	BetActive    BetStatus = "Active"
	BetCancelled BetStatus = "Cancelled"
	BetClaimed   BetStatus = "Claimed"
	BetRefunded  BetStatus = "Refunded"
)

// AdminRole is the privilege tier of an AdminRecord.
type AdminRole string

const (
	RoleSuperAdmin AdminRole = "SuperAdmin"
	RoleAdmin      AdminRole = "Admin"
	RoleReadOnly   AdminRole = "ReadOnly"
)

// Comparison is how an oracle price is compared against a market threshold.
type Comparison string

const (
	ComparisonGT Comparison = "gt"
	ComparisonLT Comparison = "lt"
	ComparisonEQ Comparison = "eq"
)

// OracleVariant tags which concrete provider an OracleConfig targets.
type OracleVariant string

const (
	OracleReflector OracleVariant = "Reflector"
	OraclePyth      OracleVariant = "Pyth"
	OracleCustom    OracleVariant = "Custom"
)

// ListOpts carries pagination parameters for read-only queries.
type ListOpts struct {
	Limit  int
	Offset int
}
