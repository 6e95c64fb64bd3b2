package opt

import (
	"math"
	"sort"
)

// candidate is one swap of positions i < j applied to the current tour.
type candidate struct {
	i, j int
	move Move
	cost float64
	tabu bool
}

// focalCount is max(2, floor(n^0.3)).
func focalCount(n int) int {
	return max(2, int(math.Floor(math.Pow(float64(n), 0.3))))
}

// focalPositions ranks the non-cyclic edges of t by cost, highest first, and
// returns the start positions of the top focalCount edges plus one uniformly
// drawn position outside that set. Ties keep the lower position first.
func focalPositions(m Matrix, t Tour, rng Rand) []int {
	n := len(t)
	type edge struct {
		pos  int
		cost float64
	}
	edges := make([]edge, 0, max(n-1, 0))
	for i := 0; i+1 < n; i++ {
		edges = append(edges, edge{pos: i, cost: m[t[i]][t[i+1]]})
	}
	sort.SliceStable(edges, func(a, b int) bool { return edges[a].cost > edges[b].cost })

	k := min(focalCount(n), len(edges))
	focal := make([]int, 0, k+1)
	inFocal := make([]bool, n)
	for _, e := range edges[:k] {
		focal = append(focal, e.pos)
		inFocal[e.pos] = true
	}

	rest := make([]int, 0, n-k)
	for p := 0; p < n; p++ {
		if !inFocal[p] {
			rest = append(rest, p)
		}
	}
	if len(rest) > 0 {
		focal = append(focal, rest[rng.Intn(len(rest))])
	}
	return focal
}

// swapCandidates pairs every focal position i with the positions j > i in its
// wrap-around window of radius max(2, 2n) and with the other focal positions.
// Tabu moves are dropped unless they would beat bestVal; relaxed keeps every
// move regardless of tabu status.
func swapCandidates(m Matrix, t Tour, curVal, bestVal float64, focal []int, tabu *tabuList, relaxed bool) []candidate {
	n := len(t)
	radius := max(2, 2*n)
	reach := min(radius, n-1)
	marked := make([]bool, n)

	var out []candidate
	for _, i := range focal {
		clear(marked)
		for off := 1; off <= reach; off++ {
			marked[(i+off)%n] = true
			marked[(i-off+n)%n] = true
		}
		for _, f := range focal {
			if f != i {
				marked[f] = true
			}
		}
		for j := i + 1; j < n; j++ {
			if !marked[j] {
				continue
			}
			mv := NewMove(t[i], t[j])
			cost := curVal + SwapDelta(m, t, i, j)
			isTabu := tabu.Contains(mv)
			if isTabu && !relaxed && cost >= bestVal {
				continue
			}
			out = append(out, candidate{i: i, j: j, move: mv, cost: cost, tabu: isTabu})
		}
	}
	return out
}
