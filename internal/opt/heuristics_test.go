package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineMatrix places location i at x[i] on a line.
func lineMatrix(x []float64) Matrix {
	m := make(Matrix, len(x))
	for i := range m {
		m[i] = make([]float64, len(x))
		for j := range m[i] {
			d := x[i] - x[j]
			if d < 0 {
				d = -d
			}
			m[i][j] = d
		}
	}
	return m
}

func TestInitialTour_Strategies(t *testing.T) {
	m := lineMatrix([]float64{0, 3, 1, 2})

	tour, err := InitialTour(StrategyIdentity, m, nil)
	require.NoError(t, err)
	assert.Equal(t, Tour{0, 1, 2, 3}, tour)

	tour, err = InitialTour(StrategyNearest, m, nil)
	require.NoError(t, err)
	assert.Equal(t, Tour{0, 2, 3, 1}, tour)

	for seed := int64(1); seed < 10; seed++ {
		tour, err = InitialTour(StrategyRandom, m, NewRand(seed))
		require.NoError(t, err)
		requirePermutation(t, tour, 4)
	}

	tour, err = InitialTour("", m, NewRand(5))
	require.NoError(t, err)
	requirePermutation(t, tour, 4)
}

func TestInitialTour_Unknown(t *testing.T) {
	_, err := InitialTour("sweep", square4, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInitialTour_RandomIsSeeded(t *testing.T) {
	m := randomMatrix(20, 1, true)
	a, err := InitialTour(StrategyRandom, m, NewRand(8))
	require.NoError(t, err)
	b, err := InitialTour(StrategyRandom, m, NewRand(8))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTwoOptPolish_UncrossesSquare(t *testing.T) {
	out, cost := TwoOptPolish(square4, Tour{0, 2, 1, 3, 0}, 5)
	requireClosedTour(t, out, 4)
	assert.Equal(t, 4.0, cost)
	assert.Equal(t, 0, out[0])
}

func TestTwoOptPolish_NeverWorse(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		m := randomMatrix(11, seed, false)
		start, err := InitialTour(StrategyRandom, m, NewRand(seed))
		require.NoError(t, err)
		out, cost := TwoOptPolish(m, start.Closed(), 3)
		requireClosedTour(t, out, 11)
		assert.LessOrEqual(t, cost, Value(m, start))
		assert.InDelta(t, Value(m, out[:11]), cost, 1e-9)
	}
}

func TestTwoOptSwap(t *testing.T) {
	assert.Equal(t, Tour{0, 3, 2, 1, 4}, twoOptSwap(Tour{0, 1, 2, 3, 4}, 1, 3))
}
