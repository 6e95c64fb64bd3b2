package opt

import "math"

// epsilon guards the improvement-rate denominator when the best cost is 0.
const epsilon = 1e-10

// minTenure is the floor of the tenure range regardless of tour size.
const minTenure = 3

// diversityTracker counts visited tours, repeats included.
type diversityTracker struct {
	seen  map[string]int
	total int
}

func newDiversityTracker() *diversityTracker {
	return &diversityTracker{seen: map[string]int{}}
}

func (d *diversityTracker) Record(t Tour) {
	d.seen[t.Key()]++
	d.total++
}

// Ratio is distinct tours over all recorded tours; 0 before any record.
func (d *diversityTracker) Ratio() float64 {
	if d.total == 0 {
		return 0
	}
	return float64(len(d.seen)) / float64(d.total)
}

// improvementRate is the relative change between the two most recent best
// values, or 0 while fewer than two have been recorded.
func improvementRate(history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	last, prev := history[len(history)-1], history[len(history)-2]
	return math.Abs((last - prev) / (last + epsilon))
}

// baseTenure is floor(0.1 * n).
func baseTenure(n int) int { return int(math.Floor(0.1 * float64(n))) }

// adaptTenure derives the tabu tenure for iteration iter of maxIter. The
// result is floored and clamped to [max(3, floor(0.1n)), 2n], lower bound
// winning when the range is empty.
func adaptTenure(n, iter, maxIter int, diversity, improvement float64) int {
	base := baseTenure(n)
	phase := math.Abs(math.Sin(2 * math.Pi * float64(iter) / float64(maxIter)))
	entanglement := diversity * (1 + improvement) * phase
	dynamic := int(math.Floor(float64(base) * (1 + entanglement*(1-phase))))

	lo := max(minTenure, base)
	hi := 2 * n
	return max(min(dynamic, hi), lo)
}
