package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultIterations is the iteration budget used when Options.Iterations is 0.
const DefaultIterations = 500

// DefaultSnapshotEvery is the tenure snapshot interval.
const DefaultSnapshotEvery = 50

var tracer = otel.Tracer("tourplan/internal/opt")

type Options struct {
	// Iterations is the fixed iteration budget; 0 selects DefaultIterations.
	Iterations int
	// Seed feeds NewRand when Rand is nil.
	Seed int64
	// Rand overrides the generator built from Seed.
	Rand Rand
	// Hook, when set, is called synchronously after every iteration.
	Hook func(IterationStats)
	// SnapshotEvery controls Metrics.Snapshots; 0 selects DefaultSnapshotEvery.
	SnapshotEvery int
}

// IterationStats describes the search state at the end of one iteration.
type IterationStats struct {
	Iteration       int
	CurrentCost     float64
	BestCost        float64
	Tenure          int
	TabuLen         int
	Stagnation      int
	Diversity       float64
	ImprovementRate float64
	Improved        bool
	Perturbed       bool
	Relaxed         bool
	Aspiration      bool
}

type TenureSnapshot struct {
	Iteration int     `json:"iteration"`
	Tenure    int     `json:"tenure"`
	TabuLen   int     `json:"tabuLen"`
	BestCost  float64 `json:"bestCost"`
	Diversity float64 `json:"diversity"`
}

type Metrics struct {
	Iterations           int              `json:"iterations"`
	Improvements         int              `json:"improvements"`
	Perturbations        int              `json:"perturbations"`
	PerturbationSwaps    int              `json:"perturbationSwaps"`
	RelaxedNeighborhoods int              `json:"relaxedNeighborhoods"`
	AspirationOverrides  int              `json:"aspirationOverrides"`
	MaxStagnation        int              `json:"maxStagnation"`
	InitialCost          float64          `json:"initialCost"`
	BestCost             float64          `json:"bestCost"`
	BestHistory          []float64        `json:"bestHistory"`
	FinalTenure          int              `json:"finalTenure"`
	Cancelled            bool             `json:"cancelled"`
	Duration             time.Duration    `json:"durationNs"`
	Snapshots            []TenureSnapshot `json:"snapshots,omitempty"`
}

type Result struct {
	// Tour is the best tour found, closed: len N+1 and Tour[0] == Tour[N].
	Tour    Tour
	Cost    float64
	Metrics Metrics
}

// searchState is owned by exactly one Search call.
type searchState struct {
	m          Matrix
	rng        Rand
	maxIter    int
	cur        Tour
	curVal     float64
	best       Tour
	bestVal    float64
	history    []float64
	stagnation int
	tabu       *tabuList
	visited    *diversityTracker
	metrics    Metrics
}

// Search runs tabu search from initial over m and returns the best tour found.
// The context is checked once per iteration; on cancellation the best tour so
// far is returned with Metrics.Cancelled set and a nil error. Errors wrap
// ErrInvalidInput and are reported before any iteration runs.
func Search(ctx context.Context, m Matrix, initial Tour, opts Options) (Result, error) {
	ctx, span := tracer.Start(ctx, "opt.Search")
	defer span.End()

	res, err := search(ctx, m, initial, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("opt.size", len(initial)),
		attribute.Int("opt.iterations", res.Metrics.Iterations),
		attribute.Int("opt.improvements", res.Metrics.Improvements),
		attribute.Float64("opt.initial_cost", res.Metrics.InitialCost),
		attribute.Float64("opt.best_cost", res.Cost),
		attribute.Bool("opt.cancelled", res.Metrics.Cancelled),
	)
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.DebugContext(ctx, "search finished",
			"size", len(initial),
			"iterations", res.Metrics.Iterations,
			"initial_cost", res.Metrics.InitialCost,
			"best_cost", res.Cost,
			"perturbations", res.Metrics.Perturbations,
			"relaxed", res.Metrics.RelaxedNeighborhoods,
			"cancelled", res.Metrics.Cancelled,
			"duration", res.Metrics.Duration,
		)
	}
	return res, nil
}

func search(ctx context.Context, m Matrix, initial Tour, opts Options) (Result, error) {
	n, err := ValidateMatrix(m)
	if err != nil {
		return Result{}, err
	}
	if err := ValidatePermutation(initial, n); err != nil {
		return Result{}, err
	}
	if opts.Iterations < 0 {
		return Result{}, fmt.Errorf("%w: iterations must be >= 0, got %d", ErrInvalidInput, opts.Iterations)
	}
	maxIter := opts.Iterations
	if maxIter == 0 {
		maxIter = DefaultIterations
	}
	snapEvery := opts.SnapshotEvery
	if snapEvery <= 0 {
		snapEvery = DefaultSnapshotEvery
	}
	rng := opts.Rand
	if rng == nil {
		rng = NewRand(opts.Seed)
	}

	start := time.Now()
	initVal := Value(m, initial)
	if n == 1 {
		return Result{
			Tour: initial.Closed(),
			Cost: initVal,
			Metrics: Metrics{
				InitialCost: initVal,
				BestCost:    initVal,
				BestHistory: []float64{},
				Duration:    time.Since(start),
			},
		}, nil
	}

	st := &searchState{
		m:       m,
		rng:     rng,
		maxIter: maxIter,
		cur:     initial.Clone(),
		curVal:  initVal,
		best:    initial.Clone(),
		bestVal: initVal,
		history: []float64{},
		tabu:    newTabuList(),
		visited: newDiversityTracker(),
	}
	st.metrics.InitialCost = initVal

	for iter := 0; iter < maxIter; iter++ {
		if ctx.Err() != nil {
			st.metrics.Cancelled = true
			break
		}
		stats, err := st.step(iter)
		if err != nil {
			return Result{}, err
		}
		st.metrics.Iterations++
		if iter%snapEvery == 0 {
			st.metrics.Snapshots = append(st.metrics.Snapshots, TenureSnapshot{
				Iteration: iter,
				Tenure:    stats.Tenure,
				TabuLen:   stats.TabuLen,
				BestCost:  stats.BestCost,
				Diversity: stats.Diversity,
			})
		}
		if opts.Hook != nil {
			opts.Hook(stats)
		}
	}

	st.metrics.BestCost = st.bestVal
	st.metrics.BestHistory = st.history
	st.metrics.Duration = time.Since(start)
	return Result{Tour: st.best.Closed(), Cost: st.bestVal, Metrics: st.metrics}, nil
}

// step runs one iteration: account diversity, adapt tenure, perturb when
// stagnant, generate and select a neighbor, then update best and tabu state.
func (st *searchState) step(iter int) (IterationStats, error) {
	n := len(st.cur)

	st.visited.Record(st.cur)
	diversity := st.visited.Ratio()
	rate := improvementRate(st.history)
	tenure := adaptTenure(n, iter, st.maxIter, diversity, rate)
	stats := IterationStats{Iteration: iter, Tenure: tenure, Diversity: diversity, ImprovementRate: rate}

	if st.stagnation > 0 {
		w := newWave(n, iter, st.maxIter, st.stagnation)
		var swaps int
		st.cur, swaps = perturb(st.m, st.cur, st.curVal, st.bestVal, w, st.rng)
		st.metrics.Perturbations++
		st.metrics.PerturbationSwaps += swaps
		stats.Perturbed = swaps > 0
		if swaps > 0 {
			st.curVal = Value(st.m, st.cur)
			if st.curVal < st.bestVal {
				st.recordBest(st.cur, st.curVal)
				stats.Improved = true
			}
		}
	}

	focal := focalPositions(st.m, st.cur, st.rng)
	cands := swapCandidates(st.m, st.cur, st.curVal, st.bestVal, focal, st.tabu, false)
	idx, aspired, err := selectMove(cands, st.bestVal, false)
	if errors.Is(err, errDegenerateNeighborhood) {
		stats.Relaxed = true
		st.metrics.RelaxedNeighborhoods++
		cands = swapCandidates(st.m, st.cur, st.curVal, st.bestVal, focal, st.tabu, true)
		idx, aspired, err = selectMove(cands, st.bestVal, true)
	}
	switch {
	case errors.Is(err, errDegenerateNeighborhood):
		return IterationStats{}, fmt.Errorf("%w: %w at iteration %d", ErrInvalidInput, err, iter)
	case err != nil:
		// swapCandidates drops tabu moves that cannot aspire, so every
		// remaining candidate is admissible.
		panic(fmt.Sprintf("opt: unexpected selection error: %v", err))
	}
	if aspired {
		stats.Aspiration = true
		st.metrics.AspirationOverrides++
	}

	c := cands[idx]
	next := st.cur.Clone()
	next[c.i], next[c.j] = next[c.j], next[c.i]
	nextVal := Value(st.m, next)

	if nextVal < st.bestVal {
		st.recordBest(next, nextVal)
		stats.Improved = true
	}
	if stats.Improved {
		st.stagnation = 0
	} else {
		st.stagnation++
		st.metrics.MaxStagnation = max(st.metrics.MaxStagnation, st.stagnation)
	}
	st.cur, st.curVal = next, nextVal

	st.tabu.Push(c.move)
	st.tabu.Trim(tenure)
	st.metrics.FinalTenure = tenure

	stats.CurrentCost = st.curVal
	stats.BestCost = st.bestVal
	stats.TabuLen = st.tabu.Len()
	stats.Stagnation = st.stagnation
	return stats, nil
}

func (st *searchState) recordBest(t Tour, v float64) {
	st.best = t.Clone()
	st.bestVal = v
	st.history = append(st.history, v)
	st.metrics.Improvements++
}
