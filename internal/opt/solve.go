package opt

import (
	"context"
	"fmt"
)

// DefaultPolishPasses bounds TwoOptPolish inside Solve when PolishPasses is 0.
const DefaultPolishPasses = 3

// SolveOptions extends Options with tour seeding and post-processing.
type SolveOptions struct {
	Options
	// Initial is used as the starting tour when set; otherwise Strategy
	// builds one from the same generator that drives the search.
	Initial  Tour
	Strategy string
	// Polish runs TwoOptPolish on the search result unless the run was
	// cancelled.
	Polish       bool
	PolishPasses int
}

type Solution struct {
	Result
	// Initial is the open starting tour.
	Initial  Tour
	Polished bool
}

// Solve seeds a starting tour, runs Search and optionally polishes the
// result. Polishing never raises the cost.
func Solve(ctx context.Context, m Matrix, opts SolveOptions) (Solution, error) {
	n, err := ValidateMatrix(m)
	if err != nil {
		return Solution{}, err
	}
	rng := opts.Rand
	if rng == nil {
		rng = NewRand(opts.Seed)
	}
	initial := opts.Initial
	if initial == nil {
		if initial, err = InitialTour(opts.Strategy, m, rng); err != nil {
			return Solution{}, err
		}
	} else if err := ValidatePermutation(initial, n); err != nil {
		return Solution{}, fmt.Errorf("initial tour: %w", err)
	}

	so := opts.Options
	so.Rand = rng
	res, err := Search(ctx, m, initial, so)
	if err != nil {
		return Solution{}, err
	}
	sol := Solution{Result: res, Initial: initial.Clone()}
	if opts.Polish && !res.Metrics.Cancelled {
		passes := opts.PolishPasses
		if passes <= 0 {
			passes = DefaultPolishPasses
		}
		if t, c := TwoOptPolish(m, res.Tour, passes); c < res.Cost {
			sol.Tour, sol.Cost = t, c
		}
		sol.Polished = true
	}
	return sol, nil
}
