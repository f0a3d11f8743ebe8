package metrics

import (
	"math/rand"
	"sort"
)

// DefaultReservoirSize is the per-trend retention cap. Below the cap
// percentiles are exact; above it the reservoir is a uniform random sample
// of all observed values (Vitter's algorithm R), so percentile error shrinks
// as O(1/sqrt(cap)).
const DefaultReservoirSize = 100000

// reservoir holds trend values with bounded memory.
type reservoir struct {
	values []float64
	seen   int64
	cap    int
	rng    *rand.Rand
}

func newReservoir(capacity int, rng *rand.Rand) *reservoir {
	if capacity <= 0 {
		capacity = DefaultReservoirSize
	}
	return &reservoir{
		values: make([]float64, 0, min(capacity, 1024)),
		cap:    capacity,
		rng:    rng,
	}
}

// add records a value, evicting a uniformly random earlier value once the
// reservoir is full.
func (r *reservoir) add(v float64) {
	r.seen++
	if len(r.values) < r.cap {
		r.values = append(r.values, v)
		return
	}
	j := r.rng.Int63n(r.seen)
	if j < int64(r.cap) {
		r.values[j] = v
	}
}

// percentiles returns interpolated percentile values for the given
// probabilities (0..100). A single sorted copy serves all requested points.
func (r *reservoir) percentiles(ps ...float64) []float64 {
	out := make([]float64, len(ps))
	if len(r.values) == 0 {
		return out
	}

	sorted := make([]float64, len(r.values))
	copy(sorted, r.values)
	sort.Float64s(sorted)

	for i, p := range ps {
		out[i] = percentileOf(sorted, p)
	}
	return out
}

// percentileOf computes the p-th percentile of a sorted slice with linear
// interpolation between adjacent ranks.
func percentileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
