package resolution

import (
	"math/big"

	"github.com/predictify/marketengine/internal/domain"
)

// oracleWeight and communityWeight are the fixed §4.G hybrid weights,
// expressed as exact rationals so tie comparisons never suffer floating
// point rounding.
var (
	oracleWeight    = big.NewRat(70, 100)
	communityWeight = big.NewRat(30, 100)
)

// SelectWinner implements the §4.G hybrid outcome selection exactly as
// written, with no additional mixing rules inferred (spec.md §9's explicit
// instruction). tally is per_outcome_total (or, during dispute re-resolution,
// the dispute-vote tally replacing it — oracle weight unchanged).
//
// Returns (winner, nil) for a unique winner, (nil, tiedSet) for a tied
// finalization, or (nil, nil) when totalStaked is zero (caller must cancel).
func SelectWinner(outcomes []domain.Outcome, tally map[domain.Outcome]domain.Amount, totalStaked domain.Amount, oracleOutcome *domain.Outcome) (*domain.Outcome, []domain.Outcome) {
	if totalStaked == nil || totalStaked.Sign() == 0 {
		return nil, nil
	}

	if oracleOutcome != nil {
		return selectWeighted(outcomes, tally, totalStaked, *oracleOutcome), nil
	}

	winner, tied := communityArgmax(outcomes, tally)
	if winner != nil {
		return winner, nil
	}
	return nil, tied
}

// communityArgmax returns the unique outcome with the strictly highest
// tally, or nil plus the full tied set when two or more outcomes share the
// maximum (community_outcome of step 1).
func communityArgmax(outcomes []domain.Outcome, tally map[domain.Outcome]domain.Amount) (*domain.Outcome, []domain.Outcome) {
	var max domain.Amount
	var leaders []domain.Outcome

	for _, o := range outcomes {
		v, ok := tally[o]
		if !ok || v == nil {
			v = domain.ZeroAmount()
		}
		if max == nil || v.Cmp(max) > 0 {
			max = v
			leaders = []domain.Outcome{o}
		} else if v.Cmp(max) == 0 {
			leaders = append(leaders, o)
		}
	}

	if len(leaders) == 1 {
		return &leaders[0], nil
	}
	return nil, leaders
}

// selectWeighted scores every outcome as
// 0.70*[oracle==o] + 0.30*(tally[o]/total_staked) and returns the argmax,
// breaking ties to oracleOutcome (step 2).
func selectWeighted(outcomes []domain.Outcome, tally map[domain.Outcome]domain.Amount, totalStaked domain.Amount, oracleOutcome domain.Outcome) *domain.Outcome {
	var best domain.Outcome
	var bestScore *big.Rat

	for _, o := range outcomes {
		v, ok := tally[o]
		if !ok || v == nil {
			v = domain.ZeroAmount()
		}

		share := new(big.Rat).SetFrac(v, totalStakedOrOne(totalStaked))
		score := new(big.Rat).Mul(share, communityWeight)
		if o == oracleOutcome {
			score.Add(score, oracleWeight)
		}

		switch {
		case bestScore == nil || score.Cmp(bestScore) > 0:
			best = o
			bestScore = score
		case score.Cmp(bestScore) == 0:
			// Tie: break to the oracle outcome per §4.G step 2.
			if o == oracleOutcome {
				best = o
			}
		}
	}

	return &best
}

func totalStakedOrOne(total domain.Amount) domain.Amount {
	if total.Sign() == 0 {
		return big.NewInt(1)
	}
	return total
}
