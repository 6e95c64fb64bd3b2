package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImprovementRate(t *testing.T) {
	assert.Equal(t, 0.0, improvementRate(nil))
	assert.Equal(t, 0.0, improvementRate([]float64{10}))
	assert.InDelta(t, 0.25, improvementRate([]float64{12, 10, 8}), 1e-9)
	// zero best is guarded by epsilon
	assert.InDelta(t, 3/epsilon, improvementRate([]float64{3, 0}), 1)
}

func TestDiversityTracker(t *testing.T) {
	d := newDiversityTracker()
	assert.Equal(t, 0.0, d.Ratio())

	d.Record(Tour{0, 1, 2})
	d.Record(Tour{1, 0, 2})
	d.Record(Tour{0, 1, 2})
	assert.InDelta(t, 2.0/3.0, d.Ratio(), 1e-12)
}

func TestAdaptTenure_PhaseExtremesReturnBase(t *testing.T) {
	// sin(0) = 0 and sin(pi/2) = 1 both cancel the entanglement term.
	assert.Equal(t, 10, adaptTenure(100, 0, 500, 1, 5))
	assert.Equal(t, 10, adaptTenure(100, 125, 500, 1, 5))
}

func TestAdaptTenure_GrowsWithDiversity(t *testing.T) {
	// phase = sin(pi/6) = 0.5: floor(10 * (1 + 0.5*0.5)) = 12
	assert.Equal(t, 12, adaptTenure(100, 1, 12, 1, 0))
	assert.Equal(t, 10, adaptTenure(100, 1, 12, 0, 0))
}

func TestAdaptTenure_Bounds(t *testing.T) {
	for _, n := range []int{2, 3, 9, 10, 31, 100, 250} {
		lo := max(3, n/10)
		hi := max(2*n, lo)
		for iter := 0; iter < 100; iter++ {
			for _, div := range []float64{0, 0.5, 1} {
				for _, rate := range []float64{0, 1, 1e6} {
					got := adaptTenure(n, iter, 100, div, rate)
					assert.GreaterOrEqual(t, got, lo)
					assert.LessOrEqual(t, got, hi)
				}
			}
		}
	}
}

func TestAdaptTenure_SmallToursUseFloor(t *testing.T) {
	assert.Equal(t, 3, adaptTenure(4, 0, 500, 1, 0))
	assert.Equal(t, 3, adaptTenure(2, 7, 500, 1, 0))
}
