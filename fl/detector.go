package fl

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Artfain/triad-fedchain/core"
)

// DefaultNormFactor is how many times the median update norm a node may reach
// before it is flagged.
const DefaultNormFactor = 2.0

// NormDetector flags nodes whose masked update is unusually large compared with
// the rest of the cohort.
type NormDetector struct {
	Factor float64
}

// DetectMalicious returns the ids whose update L2 norm exceeds Factor times the
// median norm. Fewer than three observations never flag anyone.
func (d NormDetector) DetectMalicious(observations map[string]core.MaskedUpdate) map[string]bool {
	detected := make(map[string]bool)
	if len(observations) < 3 {
		return detected
	}
	factor := d.Factor
	if factor <= 0 {
		factor = DefaultNormFactor
	}

	norms := make(map[string]float64, len(observations))
	sorted := make([]float64, 0, len(observations))
	for id, u := range observations {
		n := UpdateNorm(u)
		norms[id] = n
		sorted = append(sorted, n)
	}
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	for id, n := range norms {
		if n > factor*median {
			detected[id] = true
		}
	}
	return detected
}

// UpdateNorm is the L2 norm over every value of a masked update.
func UpdateNorm(u core.MaskedUpdate) float64 {
	var all []float64
	names := make([]string, 0, len(u))
	for name := range u {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		all = append(all, u[name]...)
	}
	if len(all) == 0 {
		return 0
	}
	return floats.Norm(all, 2)
}

// StaticDetector reports a fixed set of ids every round.
type StaticDetector map[string]bool

// DetectMalicious implements core.Detector.
func (s StaticDetector) DetectMalicious(map[string]core.MaskedUpdate) map[string]bool {
	out := make(map[string]bool, len(s))
	for id, v := range s {
		if v {
			out[id] = true
		}
	}
	return out
}
