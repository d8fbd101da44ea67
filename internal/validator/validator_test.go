package validator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/validator"
)

func TestValidateMarketMetadata(t *testing.T) {
	v := validator.New()

	cases := []struct {
		name      string
		question  string
		outcomes  []domain.Outcome
		createdAt int64
		endTime   int64
		wantErr   error
	}{
		{"valid", "will it rain tomorrow?", []domain.Outcome{"yes", "no"}, 0, 100, nil},
		{"question too short", "short", []domain.Outcome{"yes", "no"}, 0, 100, domain.ErrInvalidQuestion},
		{"too few outcomes", "will it rain tomorrow?", []domain.Outcome{"yes"}, 0, 100, domain.ErrInvalidOutcomes},
		{"duplicate outcomes", "will it rain tomorrow?", []domain.Outcome{"yes", "yes"}, 0, 100, domain.ErrInvalidOutcomes},
		{"end before created", "will it rain tomorrow?", []domain.Outcome{"yes", "no"}, 100, 50, domain.ErrInvalidDuration},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := v.ValidateMarketMetadata(c.question, c.outcomes, c.createdAt, c.endTime)
			if c.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, c.wantErr)
			}
		})
	}
}

func TestValidateMarketMetadataRejectsTooManyOutcomes(t *testing.T) {
	v := validator.New()
	outcomes := make([]domain.Outcome, 11)
	for i := range outcomes {
		outcomes[i] = domain.Outcome(strings.Repeat("x", 3) + string(rune('a'+i)))
	}
	err := v.ValidateMarketMetadata("will it rain tomorrow?", outcomes, 0, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomes)
}

func TestValidateBet(t *testing.T) {
	v := validator.New()
	min, max := domain.NewAmount(10), domain.NewAmount(1000)

	assert.NoError(t, v.ValidateBet(domain.NewAmount(50), min, max))
	assert.ErrorIs(t, v.ValidateBet(domain.NewAmount(5), min, max), domain.ErrInsufficientStake)
	assert.ErrorIs(t, v.ValidateBet(domain.NewAmount(2000), min, max), domain.ErrInvalidAmount)
	assert.ErrorIs(t, v.ValidateBet(domain.NewAmount(0), min, max), domain.ErrInvalidAmount)
	assert.ErrorIs(t, v.ValidateBet(nil, min, max), domain.ErrInvalidAmount)
}

func TestValidateOutcomeInMarket(t *testing.T) {
	v := validator.New()
	m := &domain.Market{Outcomes: []domain.Outcome{"yes", "no"}}

	assert.NoError(t, v.ValidateOutcomeInMarket(m, "yes"))
	assert.ErrorIs(t, v.ValidateOutcomeInMarket(m, "maybe"), domain.ErrInvalidOutcome)
}

func TestValidateThreshold(t *testing.T) {
	v := validator.New()
	assert.NoError(t, v.ValidateThreshold(2, 3))
	assert.ErrorIs(t, v.ValidateThreshold(0, 3), domain.ErrInvalidThreshold)
	assert.ErrorIs(t, v.ValidateThreshold(4, 3), domain.ErrInvalidThreshold)
}

func TestValidateBatchSize(t *testing.T) {
	v := validator.New()
	assert.NoError(t, v.ValidateBatchSize(1))
	assert.NoError(t, v.ValidateBatchSize(50))
	assert.ErrorIs(t, v.ValidateBatchSize(0), domain.ErrBatchEmpty)
	assert.ErrorIs(t, v.ValidateBatchSize(51), domain.ErrBatchTooLarge)
}

func TestValidateReason(t *testing.T) {
	v := validator.New()
	assert.NoError(t, v.ValidateReason(""))
	assert.NoError(t, v.ValidateReason("the community was wrong"))
	assert.ErrorIs(t, v.ValidateReason(strings.Repeat("x", 501)), domain.ErrInvalidReason)
}
