package domain

import "time"

// EngineConfig holds the platform-wide tunables. They are read from
// configuration at startup; no admin or multisig operation changes them
// while the engine runs.
type EngineConfig struct {
	// FeeBps is the platform fee in basis points taken from the losing pool
	// on finalization. Default 200 (2%).
	FeeBps int64

	// MaxStalenessSeconds rejects an oracle reading older than this.
	// Default 60.
	MaxStalenessSeconds int64

	// MaxConfidenceRatioBps rejects an oracle reading whose confidence
	// interval exceeds this fraction of price, in basis points. Default 500
	// (5%).
	MaxConfidenceRatioBps int64

	// MinStake / MaxStake bound a single bet amount.
	MinStake Amount
	MaxStake Amount

	// MaxExtensionDays caps the cumulative extension_history additions on a
	// single market.
	MaxExtensionDays int

	// ActionTTL is the lifetime of a PendingAdminAction before it expires
	// unexecuted.
	ActionTTL time.Duration

	// DisputeWindowSeconds / ResolutionTimeoutSeconds are defaults applied
	// at market creation when the caller does not override them.
	DefaultDisputeWindowSeconds     int64
	DefaultResolutionTimeoutSeconds int64

	// DisputeExtensionHours is added to a market's extension history when a
	// dispute is opened.
	DisputeExtensionHours int

	// BaseDisputeThreshold / MaxDisputeThreshold bound the dynamic dispute
	// threshold formula (§4.I).
	BaseDisputeThreshold Amount
	MaxDisputeThreshold  Amount

	// DisputeVotingWindowSeconds is the minimum time after a dispute opens
	// before resolve_dispute may tally votes and re-run selection.
	DisputeVotingWindowSeconds int64

	// WithdrawLock is the optional fee-withdrawal time-lock (§9: "may leave
	// it unconfigured (lock = 0) without violating any invariant").
	WithdrawLock time.Duration
	// MaxWithdrawalsPerPeriod caps admin fee withdrawals when WithdrawLock
	// is configured; zero means unlimited.
	MaxWithdrawalsPerPeriod int
}

// DefaultEngineConfig returns the documented defaults (§9).
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FeeBps:                          200,
		MaxStalenessSeconds:             60,
		MaxConfidenceRatioBps:           500,
		MinStake:                        NewAmount(1),
		MaxStake:                        NewAmount(1_000_000_000_000),
		MaxExtensionDays:                90,
		ActionTTL:                       72 * time.Hour,
		DefaultDisputeWindowSeconds:     24 * 3600,
		DefaultResolutionTimeoutSeconds: 3 * 24 * 3600,
		DisputeExtensionHours:           48,
		BaseDisputeThreshold:            NewAmount(100_000_000),
		MaxDisputeThreshold:             NewAmount(100_000_000_000),
		DisputeVotingWindowSeconds:      3 * 24 * 3600,
		WithdrawLock:                    0,
		MaxWithdrawalsPerPeriod:         0,
	}
}
