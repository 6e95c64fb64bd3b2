package opt

import "errors"

var (
	errDegenerateNeighborhood = errors.New("degenerate neighborhood")
	errNoAdmissibleMove       = errors.New("no admissible move")
)

// selectMove returns the index of the cheapest admissible candidate. A
// candidate is admissible when its move is not tabu, or when its cost is
// strictly below bestVal. With relaxed set, tabu status is ignored. The
// first candidate wins ties.
func selectMove(cands []candidate, bestVal float64, relaxed bool) (idx int, aspired bool, err error) {
	if len(cands) == 0 {
		return -1, false, errDegenerateNeighborhood
	}
	idx = -1
	for k, c := range cands {
		if idx >= 0 && c.cost >= cands[idx].cost {
			continue
		}
		if relaxed || !c.tabu || c.cost < bestVal {
			idx = k
		}
	}
	if idx < 0 {
		return -1, false, errNoAdmissibleMove
	}
	c := cands[idx]
	return idx, !relaxed && c.tabu, nil
}
