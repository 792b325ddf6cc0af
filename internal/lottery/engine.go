package lottery

import (
	"choujiang/internal/models"
)

// Epsilon for float comparisons against the probability budget.
const probEpsilon = 1e-9

// SelectPrize decides the outcome of one draw over the in-stock prizes of an
// activity. It has no side effects; the caller commits the decision
// transactionally. prizes must already be filtered to remaining_quantity > 0
// and ordered by sort_order. A nil prize with nil error means no win.
func SelectPrize(prizes []models.Prize, strategy models.Strategy, rng Rand) (*models.Prize, error) {
	if len(prizes) == 0 {
		return nil, nil
	}
	if strategy == models.StrategyGuaranteed {
		return selectGuaranteed(prizes, rng), nil
	}
	return selectByProbability(prizes, rng)
}

// selectGuaranteed weights every prize by its remaining stock, so each unit
// still in inventory is equally likely.
func selectGuaranteed(prizes []models.Prize, rng Rand) *models.Prize {
	total := 0
	for i := range prizes {
		total += prizes[i].RemainingQuantity
	}
	if total == 0 {
		return nil
	}
	r := rng.Float64() * float64(total)
	cum := 0.0
	for i := range prizes {
		cum += float64(prizes[i].RemainingQuantity)
		if r <= cum {
			return &prizes[i]
		}
	}
	return &prizes[len(prizes)-1]
}

type prizeEntry struct {
	prize *models.Prize
	prob  float64
}

// selectByProbability keeps explicit weights and splits the remainder
// 1-sum(explicit) among zero-probability prizes, proportional to their
// remaining stock. A draw beyond the cumulative total is a no-win.
func selectByProbability(prizes []models.Prize, rng Rand) (*models.Prize, error) {
	var explicit []prizeEntry
	var implicit []*models.Prize
	explicitTotal := 0.0
	for i := range prizes {
		p := prizes[i].Probability
		if p > 0 {
			explicit = append(explicit, prizeEntry{prize: &prizes[i], prob: p})
			explicitTotal += p
		} else {
			implicit = append(implicit, &prizes[i])
		}
	}

	if explicitTotal > 1+probEpsilon {
		return nil, ErrProbabilityOverflow
	}

	var entries []prizeEntry
	remainder := 1 - explicitTotal
	if len(implicit) > 0 && remainder > probEpsilon {
		implicitStock := 0
		for _, p := range implicit {
			implicitStock += p.RemainingQuantity
		}
		if implicitStock > 0 {
			for _, p := range implicit {
				weight := float64(p.RemainingQuantity) / float64(implicitStock)
				entries = append(entries, prizeEntry{prize: p, prob: remainder * weight})
			}
		}
		// No implicit stock: the remainder stays unassigned and raises
		// the no-win chance.
	}
	entries = append(entries, explicit...)

	cum := 0.0
	cumulative := make([]float64, len(entries))
	for i, e := range entries {
		cum += e.prob
		cumulative[i] = cum
	}

	r := rng.Float64()
	if r > cum+probEpsilon {
		return nil, nil
	}
	for i := range entries {
		if r <= cumulative[i]+probEpsilon {
			return entries[i].prize, nil
		}
	}
	return nil, nil
}

// ValidateProbabilitySum checks the explicit-probability budget of one
// activity's prizes. sum includes out-of-stock prizes on purpose.
func ValidateProbabilitySum(prizes []models.Prize) (bool, float64) {
	sum := 0.0
	for i := range prizes {
		sum += prizes[i].Probability
	}
	return sum <= 1+probEpsilon, sum
}
