package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Square(t *testing.T) {
	assert.Equal(t, 4.0, Value(square4, Tour{0, 1, 2, 3}))
	assert.Equal(t, 4.0, Value(square4, Tour{2, 1, 0, 3}))
	assert.Equal(t, 6.0, Value(square4, Tour{0, 2, 1, 3}))
}

func TestValue_SingleLocationUsesSelfCost(t *testing.T) {
	assert.Equal(t, 0.0, Value(Matrix{{0}}, Tour{0}))
	assert.Equal(t, 5.0, Value(Matrix{{5}}, Tour{0}))
}

func TestValue_Asymmetric(t *testing.T) {
	m := Matrix{
		{0, 1, 10},
		{10, 0, 1},
		{1, 10, 0},
	}
	assert.Equal(t, 3.0, Value(m, Tour{0, 1, 2}))
	assert.Equal(t, 30.0, Value(m, Tour{0, 2, 1}))
}

func TestSwapDelta_MatchesRecompute(t *testing.T) {
	for _, n := range []int{2, 3, 4, 7, 12} {
		m := randomMatrix(n, int64(n), false)
		tour := identity(n)
		NewRand(int64(n)).Shuffle(n, func(i, j int) { tour[i], tour[j] = tour[j], tour[i] })
		base := Value(m, tour)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				sw := tour.Clone()
				sw[i], sw[j] = sw[j], sw[i]
				want := Value(m, sw) - base
				assert.InDelta(t, want, SwapDelta(m, tour, i, j), 1e-9, "n=%d i=%d j=%d", n, i, j)
				assert.InDelta(t, want, SwapDelta(m, tour, j, i), 1e-9, "n=%d j=%d i=%d", n, j, i)
			}
		}
	}
}

func TestSwapDelta_SamePosition(t *testing.T) {
	assert.Equal(t, 0.0, SwapDelta(square4, Tour{0, 1, 2, 3}, 2, 2))
}

func TestValidateMatrix(t *testing.T) {
	n, err := ValidateMatrix(square4)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	bad := []Matrix{
		nil,
		{},
		{{0, 1}, {1}},
		{{0, 1, 2}, {1, 0, 1}},
		{{0, -1}, {1, 0}},
		{{0, math.NaN()}, {1, 0}},
		{{0, math.Inf(1)}, {1, 0}},
	}
	for i, m := range bad {
		_, err := ValidateMatrix(m)
		assert.ErrorIs(t, err, ErrInvalidInput, "case %d", i)
	}
}

func TestValidatePermutation(t *testing.T) {
	require.NoError(t, ValidatePermutation(Tour{2, 0, 1}, 3))

	for name, tour := range map[string]Tour{
		"short":     {0, 1},
		"long":      {0, 1, 2, 0},
		"repeat":    {0, 0, 1},
		"negative":  {0, -1, 2},
		"too large": {0, 1, 3},
	} {
		assert.ErrorIs(t, ValidatePermutation(tour, 3), ErrInvalidInput, name)
	}
}

func TestMoveIsUnordered(t *testing.T) {
	assert.Equal(t, NewMove(3, 1), NewMove(1, 3))
	assert.Equal(t, Move{A: 1, B: 3}, NewMove(3, 1))
	assert.Equal(t, "(1,3)", NewMove(3, 1).String())
}

func TestTourHelpers(t *testing.T) {
	tour := Tour{3, 1, 2, 0}
	assert.Equal(t, Tour{3, 1, 2, 0, 3}, tour.Closed())
	assert.Equal(t, "3,1,2,0", tour.Key())
	assert.Equal(t, Tour{}, Tour(nil).Closed())

	c := tour.Clone()
	c[0] = 9
	assert.Equal(t, 3, tour[0])
}
