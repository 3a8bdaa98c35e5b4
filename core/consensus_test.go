package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedFloat float64

func (f fixedFloat) Float64() float64 { return float64(f) }

func TestSelectionProbabilitiesUniformFallback(t *testing.T) {
	cohort := Cohort{
		{ID: "a", Stake: 1},
		{ID: "b", Stake: 1},
		{ID: "c", Stake: 1},
	}
	probs := SelectionProbabilities(cohort)
	require.Len(t, probs, 3)
	for _, id := range cohort.IDs() {
		require.Equal(t, 1.0/3.0, probs[id])
	}
}

func TestSelectionProbabilitiesWeighted(t *testing.T) {
	cohort := Cohort{
		{ID: "a", Stake: 1, Reputation: 2},
		{ID: "b", Stake: 3, Reputation: 1},
		{ID: "c", Stake: 5, Reputation: 0},
	}
	probs := SelectionProbabilities(cohort)
	require.InDelta(t, 0.4, probs["a"], 1e-12)
	require.InDelta(t, 0.6, probs["b"], 1e-12)
	require.Equal(t, 0.0, probs["c"])

	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-12)
}

func TestSelectionProbabilitiesEmpty(t *testing.T) {
	require.Empty(t, SelectionProbabilities(nil))
}

func TestElectIndependentDraw(t *testing.T) {
	cohort := Cohort{{ID: "a", Stake: 1}, {ID: "b", Stake: 1}, {ID: "c", Stake: 1}}

	elected, p := Elect(cohort, "a", fixedFloat(0.2))
	require.True(t, elected)
	require.Equal(t, 1.0/3.0, p)

	elected, _ = Elect(cohort, "a", fixedFloat(0.5))
	require.False(t, elected)

	// every node can be elected in the same round
	for _, id := range cohort.IDs() {
		elected, _ := Elect(cohort, id, fixedFloat(0))
		require.True(t, elected)
	}

	elected, p = Elect(cohort, "missing", fixedFloat(0))
	require.False(t, elected)
	require.Equal(t, 0.0, p)
}

func TestElectZeroWeightNeverProposes(t *testing.T) {
	cohort := Cohort{{ID: "a", Stake: 1, Reputation: 1}, {ID: "b", Stake: 0, Reputation: 4}}
	elected, p := Elect(cohort, "b", fixedFloat(0))
	require.False(t, elected)
	require.Equal(t, 0.0, p)

	elected, p = Elect(cohort, "a", fixedFloat(0.999))
	require.True(t, elected)
	require.Equal(t, 1.0, p)
}
