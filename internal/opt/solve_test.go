package opt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolve_SeedsFromStrategy(t *testing.T) {
	m := randomMatrix(12, 5, true)
	a, err := Solve(context.Background(), m, SolveOptions{Options: Options{Iterations: 60, Seed: 11}})
	require.NoError(t, err)
	b, err := Solve(context.Background(), m, SolveOptions{Options: Options{Iterations: 60, Seed: 11}})
	require.NoError(t, err)

	assert.Equal(t, a.Tour, b.Tour, "same seed, same result")
	assert.Equal(t, a.Initial, b.Initial)
	requirePermutation(t, a.Initial, 12)
	requireClosedTour(t, a.Tour, 12)
	assert.LessOrEqual(t, a.Cost, Value(m, a.Initial))
	assert.False(t, a.Polished)
}

func TestSolve_ExplicitInitial(t *testing.T) {
	sol, err := Solve(context.Background(), square4, SolveOptions{
		Options: Options{Iterations: 20, Seed: 1},
		Initial: Tour{0, 2, 1, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, Tour{0, 2, 1, 3}, sol.Initial)
	assert.Equal(t, 6.0, sol.Metrics.InitialCost)
	assert.Equal(t, 4.0, sol.Cost)

	_, err = Solve(context.Background(), square4, SolveOptions{Initial: Tour{0, 1, 1, 3}})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSolve_PolishNeverWorse(t *testing.T) {
	m := randomMatrix(15, 8, true)
	plain, err := Solve(context.Background(), m, SolveOptions{Options: Options{Iterations: 30, Seed: 4}})
	require.NoError(t, err)
	polished, err := Solve(context.Background(), m, SolveOptions{Options: Options{Iterations: 30, Seed: 4}, Polish: true})
	require.NoError(t, err)

	assert.True(t, polished.Polished)
	assert.LessOrEqual(t, polished.Cost, plain.Cost)
	assert.InDelta(t, Value(m, polished.Tour[:15]), polished.Cost, 1e-9)
	requireClosedTour(t, polished.Tour, 15)
}

func TestSolve_SkipsPolishWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := Solve(ctx, square4, SolveOptions{Options: Options{Iterations: 10}, Strategy: StrategyIdentity, Polish: true})
	require.NoError(t, err)
	assert.True(t, sol.Metrics.Cancelled)
	assert.False(t, sol.Polished)
}

func TestSolve_UnknownStrategy(t *testing.T) {
	_, err := Solve(context.Background(), square4, SolveOptions{Strategy: "sweep"})
	require.ErrorIs(t, err, ErrInvalidInput)
}
