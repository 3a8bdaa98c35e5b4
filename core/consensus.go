package core

// Float64Source draws uniform values in [0, 1).
type Float64Source interface {
	Float64() float64
}

// SelectionProbabilities returns each node's chance of proposing this round:
// stake*reputation over the cohort total, or 1/N when the total is exactly zero.
func SelectionProbabilities(cohort Cohort) map[string]float64 {
	probs := make(map[string]float64, len(cohort))
	if len(cohort) == 0 {
		return probs
	}

	totalWeight := float64(0)
	for _, n := range cohort {
		totalWeight += n.Stake * n.Reputation
	}

	if totalWeight == 0 {
		uniform := 1 / float64(len(cohort))
		for _, n := range cohort {
			probs[n.ID] = uniform
		}
		return probs
	}
	for _, n := range cohort {
		probs[n.ID] = n.Stake * n.Reputation / totalWeight
	}
	return probs
}

// Elect performs the independent per-node draw. Any number of nodes, including
// none, may be elected in the same round.
func Elect(cohort Cohort, nodeID string, rng Float64Source) (bool, float64) {
	p, ok := SelectionProbabilities(cohort)[nodeID]
	if !ok {
		return false, 0
	}
	return rng.Float64() < p, p
}
