package opt

import "math"

// swapFloor is the minimum acceptance probability for a perturbation swap.
const swapFloor = 0.3

// wave holds the shape of one perturbation for a given search position.
type wave struct {
	amplitude int
	resonance float64
	radius    int
	centers   []int
}

// newWave derives amplitude, resonance, swap radius and centers from search
// progress, stagnation and tour size n. The size factor uses integer n/50.
func newWave(n, iter, maxIter, stagnation int) wave {
	nf := float64(n)
	progress := float64(iter) / float64(maxIter)
	stagFactor := math.Min(1, float64(stagnation)/float64(maxIter))
	scale := 0.5 + float64(n/50)
	intensity := (progress + stagFactor) * scale

	stagBoost := 1 + float64(stagnation)/float64(maxIter)
	logBoost := 1 + math.Log(nf)/10

	w := wave{
		amplitude: max(1, int(nf*(1-intensity)*stagBoost*logBoost)),
		resonance: math.Sin(intensity * math.Pi * 2 * logBoost),
	}
	w.radius = max(1, int(float64(w.amplitude)*(1-math.Abs(w.resonance))*stagBoost*logBoost))
	w.centers = make([]int, w.amplitude)
	for c := range w.centers {
		w.centers[c] = int(nf*math.Abs(math.Sin(float64(c)*w.resonance*stagBoost*logBoost))) % n
	}
	return w
}

// swapProbability favors swaps as cur approaches best, never dropping below
// swapFloor.
func swapProbability(curVal, bestVal float64) float64 {
	if bestVal <= 0 {
		return swapFloor
	}
	return math.Max(swapFloor, 1-curVal/bestVal)
}

// perturb applies amplitude rounds of the wave to a copy of cur. Each center
// proposes a swap of two distinct positions inside its radius window; the
// swap is committed only when it passes the probability draw and leaves the
// tour strictly cheaper than bestVal. It returns the new tour and the number
// of committed swaps.
func perturb(m Matrix, cur Tour, curVal, bestVal float64, w wave, rng Rand) (Tour, int) {
	n := len(cur)
	out := cur.Clone()
	width := min(2*w.radius+1, n)
	if width < 2 {
		return out, 0
	}
	swaps := 0
	for round := 0; round < w.amplitude; round++ {
		for _, center := range w.centers {
			a := rng.Intn(width)
			b := rng.Intn(width - 1)
			if b >= a {
				b++
			}
			p1, p2 := windowPos(center, w.radius, width, n, a), windowPos(center, w.radius, width, n, b)

			if rng.Float64() >= swapProbability(curVal, bestVal) {
				continue
			}
			d := SwapDelta(m, out, p1, p2)
			if curVal+d < bestVal {
				out[p1], out[p2] = out[p2], out[p1]
				curVal += d
				swaps++
			}
		}
	}
	return out, swaps
}

// windowPos maps the k-th slot of a center's window to a tour position. A
// window covering the whole tour is indexed directly.
func windowPos(center, radius, width, n, k int) int {
	if width >= n {
		return k
	}
	return ((center-radius+k)%n + n) % n
}
