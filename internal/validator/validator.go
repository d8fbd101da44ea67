// Package validator implements the stateless input-shape checks required at
// every entrypoint boundary before any state mutation is attempted (§4.C).
// Every exported function is pure: no I/O, no host dependency, fail-fast.
package validator

import (
	"unicode/utf8"

	"github.com/predictify/marketengine/internal/domain"
)

const (
	minQuestionLen = 10
	maxQuestionLen = 500

	minOutcomeLen   = 2
	maxOutcomeLen   = 100
	minOutcomeCount = 2
	maxOutcomeCount = 10

	minTagLen  = 2
	maxTagLen  = 50
	maxTags    = 10
	minCategoryLen = 2
	maxCategoryLen = 100
	maxDescriptionLen = 1000

	minReasonLen = 0
	maxReasonLen = 500

	minBatchSize = 1
	maxBatchSize = 50
)

// Validator groups the pure checks so callers can hold one value and call
// methods, matching the shape ConfirmixLabs' governance validator uses
// (one struct, one method per checked entity) even though no state is held.
type Validator struct{}

// New returns a ready-to-use Validator.
func New() *Validator { return &Validator{} }

func charLen(s string) int { return utf8.RuneCountInString(s) }

// ValidateMarketMetadata checks question, outcome list, and duration bounds
// for create_market.
func (v *Validator) ValidateMarketMetadata(question string, outcomes []domain.Outcome, createdAt, endTime int64) error {
	n := charLen(question)
	if n < minQuestionLen || n > maxQuestionLen {
		return domain.NewValidationError("question", domain.ErrInvalidQuestion)
	}

	if len(outcomes) < minOutcomeCount || len(outcomes) > maxOutcomeCount {
		return domain.NewValidationError("outcomes", domain.ErrInvalidOutcomes)
	}

	seen := make(map[domain.Outcome]bool, len(outcomes))
	for _, o := range outcomes {
		l := charLen(string(o))
		if l < minOutcomeLen || l > maxOutcomeLen {
			return domain.NewValidationError("outcomes", domain.ErrInvalidOutcomes)
		}
		if seen[o] {
			return domain.NewValidationError("outcomes", domain.ErrInvalidOutcomes)
		}
		seen[o] = true
	}

	if endTime <= createdAt {
		return domain.NewValidationError("end_time", domain.ErrInvalidDuration)
	}

	return nil
}

// ValidateDurations checks the market's dispute-window and
// resolution-timeout parameters are positive.
func (v *Validator) ValidateDurations(disputeWindowSeconds, resolutionTimeoutSeconds int64) error {
	if disputeWindowSeconds <= 0 {
		return domain.NewValidationError("dispute_window_seconds", domain.ErrInvalidDuration)
	}
	if resolutionTimeoutSeconds <= 0 {
		return domain.NewValidationError("resolution_timeout_seconds", domain.ErrInvalidDuration)
	}
	return nil
}

// ValidateBet checks a proposed stake against the configured min/max bounds.
// Outcome membership is checked separately by ValidateOutcomeInMarket since
// it requires the market record.
func (v *Validator) ValidateBet(amount domain.Amount, minStake, maxStake domain.Amount) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.NewValidationError("amount", domain.ErrInvalidAmount)
	}
	if amount.Cmp(minStake) < 0 {
		return domain.NewValidationError("amount", domain.ErrInsufficientStake)
	}
	if amount.Cmp(maxStake) > 0 {
		return domain.NewValidationError("amount", domain.ErrInvalidAmount)
	}
	return nil
}

// ValidateOutcomeInMarket checks that outcome is one of market's declared
// outcomes.
func (v *Validator) ValidateOutcomeInMarket(market *domain.Market, outcome domain.Outcome) error {
	if !market.OutcomeIndex(outcome) {
		return domain.NewValidationError("outcome", domain.ErrInvalidOutcome)
	}
	return nil
}

// ValidateThreshold checks a proposed multisig threshold against the active
// admin count (I8).
func (v *Validator) ValidateThreshold(threshold, activeAdmins int) error {
	if threshold < 1 || threshold > activeAdmins {
		return domain.NewValidationError("threshold", domain.ErrInvalidThreshold)
	}
	return nil
}

// ValidateReason checks a free-text reason field's length bound.
func (v *Validator) ValidateReason(reason string) error {
	n := charLen(reason)
	if n < minReasonLen || n > maxReasonLen {
		return domain.NewValidationError("reason", domain.ErrInvalidReason)
	}
	return nil
}

// ValidateBatchSize checks a place_bets batch is within [1, 50].
func (v *Validator) ValidateBatchSize(n int) error {
	if n < minBatchSize {
		return domain.NewValidationError("batch", domain.ErrBatchEmpty)
	}
	if n > maxBatchSize {
		return domain.NewValidationError("batch", domain.ErrBatchTooLarge)
	}
	return nil
}

// ValidateTags checks an optional tag list against the bounds shared with
// the rest of the value-type family (§4.A); unused by the required
// entrypoints today but kept available for market metadata extensions.
func (v *Validator) ValidateTags(tags []string) error {
	if len(tags) > maxTags {
		return domain.NewValidationError("tags", domain.ErrInvalidOutcomes)
	}
	for _, t := range tags {
		l := charLen(t)
		if l < minTagLen || l > maxTagLen {
			return domain.NewValidationError("tags", domain.ErrInvalidOutcomes)
		}
	}
	return nil
}

// ValidateDescription checks the optional 0-1000 char description bound.
func (v *Validator) ValidateDescription(desc string) error {
	if charLen(desc) > maxDescriptionLen {
		return domain.NewValidationError("description", domain.ErrInvalidQuestion)
	}
	return nil
}
