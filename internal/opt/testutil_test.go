package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// square4 has cost 1 between adjacent corners and 2 across the diagonal.
var square4 = Matrix{
	{0, 1, 2, 1},
	{1, 0, 1, 2},
	{2, 1, 0, 1},
	{1, 2, 1, 0},
}

// scriptedRand replays fixed draws, cycling when exhausted.
type scriptedRand struct {
	ints   []int
	floats []float64
	ni, nf int
}

func (s *scriptedRand) Intn(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[s.ni%len(s.ints)] % n
	s.ni++
	return v
}

func (s *scriptedRand) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[s.nf%len(s.floats)]
	s.nf++
	return v
}

// randomMatrix builds an n x n matrix with zero diagonal and costs in [1, 100).
// Asymmetric unless symmetric is set.
func randomMatrix(n int, seed int64, symmetric bool) Matrix {
	r := rand.New(rand.NewSource(seed))
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if symmetric && j < i {
				m[i][j] = m[j][i]
				continue
			}
			m[i][j] = 1 + float64(r.Intn(99))
		}
	}
	return m
}

func requirePermutation(t *testing.T, tour Tour, n int) {
	t.Helper()
	require.NoError(t, ValidatePermutation(tour, n))
}

func requireClosedTour(t *testing.T, tour Tour, n int) {
	t.Helper()
	require.Len(t, tour, n+1)
	require.Equal(t, tour[0], tour[n])
	requirePermutation(t, tour[:n], n)
}
