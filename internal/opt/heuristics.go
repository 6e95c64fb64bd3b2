package opt

import "fmt"

// Initial tour strategies accepted by InitialTour.
const (
	StrategyRandom   = "random"
	StrategyIdentity = "identity"
	StrategyNearest  = "nearest"
)

// InitialTour builds a starting permutation of [0, len(m)). An empty strategy
// means StrategyRandom.
func InitialTour(strategy string, m Matrix, rng Rand) (Tour, error) {
	n := len(m)
	switch strategy {
	case "", StrategyRandom:
		t := identity(n)
		for i := n - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			t[i], t[j] = t[j], t[i]
		}
		return t, nil
	case StrategyIdentity:
		return identity(n), nil
	case StrategyNearest:
		return nearestNeighbor(m), nil
	}
	return nil, fmt.Errorf("%w: unknown initial strategy %q", ErrInvalidInput, strategy)
}

func identity(n int) Tour {
	t := make(Tour, n)
	for i := range t {
		t[i] = i
	}
	return t
}

// nearestNeighbor walks from location 0 to the cheapest unvisited location
// until all are visited. Ties go to the lower index.
func nearestNeighbor(m Matrix) Tour {
	n := len(m)
	if n == 0 {
		return Tour{}
	}
	visited := make([]bool, n)
	t := make(Tour, 0, n)
	cur := 0
	visited[cur] = true
	t = append(t, cur)
	for len(t) < n {
		next := -1
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if next < 0 || m[cur][j] < m[cur][next] {
				next = j
			}
		}
		visited[next] = true
		t = append(t, next)
		cur = next
	}
	return t
}

// TwoOptPolish applies improving segment reversals to a closed tour for at
// most maxPasses passes and returns the closed result with its cost. The
// first location stays fixed, and a reversal is kept only when it lowers the
// full cyclic cost, so asymmetric matrices are handled.
func TwoOptPolish(m Matrix, closed Tour, maxPasses int) (Tour, float64) {
	if maxPasses <= 0 {
		maxPasses = 1
	}
	if len(closed) < 2 {
		return Tour{}, 0
	}
	best := closed[:len(closed)-1].Clone()
	bestVal := Value(m, best)
	n := len(best)
	for pass := 0; pass < maxPasses; pass++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if v := Value(m, cand); v+1e-9 < bestVal {
					best, bestVal = cand, v
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best.Closed(), bestVal
}

// twoOptSwap returns a copy of ord with positions i..k reversed.
func twoOptSwap(ord Tour, i, k int) Tour {
	out := make(Tour, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
