// Package opt implements the tour optimizer: a tabu search over position
// swaps with adaptive tenure, cost-focused neighborhoods and wave
// perturbation when the search stagnates.
package opt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidInput is returned when the cost matrix or the initial tour is
// unusable. Search never starts in that case.
var ErrInvalidInput = errors.New("invalid input")

// Matrix holds pairwise travel costs; m[a][b] is the cost of going from a to b.
// It is not assumed symmetric and is never mutated by the optimizer.
type Matrix [][]float64

// Tour is a visiting order over location indices [0, N).
type Tour []int

// Clone returns an independent copy of t.
func (t Tour) Clone() Tour { return append(Tour(nil), t...) }

// Key returns a compact string form of t usable as a map key.
func (t Tour) Key() string {
	var b strings.Builder
	b.Grow(len(t) * 4)
	for i, v := range t {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// Closed returns t with its first location appended, making the cycle explicit.
func (t Tour) Closed() Tour {
	if len(t) == 0 {
		return Tour{}
	}
	out := make(Tour, 0, len(t)+1)
	out = append(out, t...)
	return append(out, t[0])
}

// Move is the unordered pair of locations exchanged by a swap. A <= B always
// holds for moves built with NewMove, so equal swaps compare equal.
type Move struct {
	A, B int
}

// NewMove normalizes the pair (u, v).
func NewMove(u, v int) Move {
	if u > v {
		u, v = v, u
	}
	return Move{A: u, B: v}
}

func (mv Move) String() string { return fmt.Sprintf("(%d,%d)", mv.A, mv.B) }

// Value returns the cyclic cost of t, including the edge from the last
// location back to the first.
func Value(m Matrix, t Tour) float64 {
	n := len(t)
	total := 0.0
	for i := 0; i < n; i++ {
		total += m[t[i]][t[(i+1)%n]]
	}
	return total
}

// SwapDelta returns Value(swapped) - Value(t) where swapped exchanges the
// locations at positions i and j. Only the edges touching i and j are read.
func SwapDelta(m Matrix, t Tour, i, j int) float64 {
	n := len(t)
	if i == j || n < 2 {
		return 0
	}
	at := func(p int) int {
		switch p {
		case i:
			return t[j]
		case j:
			return t[i]
		}
		return t[p]
	}
	// edge e joins position e and e+1 (mod n)
	edges := [4]int{(i - 1 + n) % n, i, (j - 1 + n) % n, j}
	delta := 0.0
	for k, e := range edges {
		dup := false
		for q := 0; q < k; q++ {
			if edges[q] == e {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		next := (e + 1) % n
		delta += m[at(e)][at(next)] - m[t[e]][t[next]]
	}
	return delta
}

// ValidateMatrix checks that m is a non-empty square matrix of finite,
// non-negative costs and returns its size.
func ValidateMatrix(m Matrix) (int, error) {
	n := len(m)
	if n == 0 {
		return 0, fmt.Errorf("%w: empty cost matrix", ErrInvalidInput)
	}
	for a, row := range m {
		if len(row) != n {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidInput, a, len(row), n)
		}
		for b, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
				return 0, fmt.Errorf("%w: cost[%d][%d] = %v", ErrInvalidInput, a, b, c)
			}
		}
	}
	return n, nil
}

// ValidatePermutation checks that t is a permutation of [0, n).
func ValidatePermutation(t Tour, n int) error {
	if len(t) != n {
		return fmt.Errorf("%w: tour has %d locations, want %d", ErrInvalidInput, len(t), n)
	}
	seen := make([]bool, n)
	for pos, v := range t {
		if v < 0 || v >= n {
			return fmt.Errorf("%w: location %d at position %d out of range", ErrInvalidInput, v, pos)
		}
		if seen[v] {
			return fmt.Errorf("%w: location %d repeated", ErrInvalidInput, v)
		}
		seen[v] = true
	}
	return nil
}
