package opt

import "math/rand"

// Rand is the source of every random draw the optimizer makes. *rand.Rand
// satisfies it; tests may inject scripted sequences.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// DefaultSeed is used when a caller passes seed 0.
const DefaultSeed int64 = 1

// NewRand returns a deterministic generator for seed.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = DefaultSeed
	}
	return rand.New(rand.NewSource(seed))
}
