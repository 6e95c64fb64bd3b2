package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectMove_Empty(t *testing.T) {
	_, _, err := selectMove(nil, 0, false)
	assert.ErrorIs(t, err, errDegenerateNeighborhood)
}

func TestSelectMove_CheapestFirstOnTies(t *testing.T) {
	cands := []candidate{{cost: 7}, {cost: 3}, {cost: 3}, {cost: 5}}
	idx, aspired, err := selectMove(cands, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.False(t, aspired)
}

func TestSelectMove_TabuNeedsAspiration(t *testing.T) {
	cands := []candidate{{cost: 1, tabu: true}, {cost: 2}}

	idx, aspired, err := selectMove(cands, 0.5, false)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.False(t, aspired)

	idx, aspired, err = selectMove(cands, 5, false)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.True(t, aspired)
}

func TestSelectMove_NoAdmissible(t *testing.T) {
	cands := []candidate{{cost: 4, tabu: true}, {cost: 2, tabu: true}, {cost: 3, tabu: true}}
	_, _, err := selectMove(cands, 1, false)
	assert.ErrorIs(t, err, errNoAdmissibleMove)
}

func TestSelectMove_RelaxedIgnoresTabu(t *testing.T) {
	cands := []candidate{{cost: 4, tabu: true}, {cost: 2, tabu: true}}
	idx, aspired, err := selectMove(cands, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.False(t, aspired)
}
