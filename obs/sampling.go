package obs

import (
	"math"
	"math/rand/v2"
	"sort"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
)

// HomogeneousSampling returns n equally spaced coordinates starting at the
// first grid point.
func HomogeneousSampling(g *grid.Grid, n int) []float64 {
	coords := make([]float64, n)
	if n == 0 {
		return coords
	}
	dx := (g.Max() - g.Min()) / float64(n)
	for j := range coords {
		coords[j] = g.Min() + float64(j)*dx
	}
	return coords
}

// RandomSampling draws n distinct coordinates inside the grid, rounded to
// precision decimals, and returns them sorted.
func RandomSampling(g *grid.Grid, n, precision int, rng *rand.Rand) ([]float64, error) {
	scale := math.Pow(10, float64(precision))
	if avail := math.Floor((g.Max()-g.Min())*scale) + 1; float64(n) > avail {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument,
			"cannot draw %d distinct coordinates with %d decimals in [%v, %v]", n, precision, g.Min(), g.Max())
	}
	seen := make(map[float64]bool, n)
	coords := make([]float64, 0, n)
	for len(coords) < n {
		pick := g.Min() + math.Round(rng.Float64()*g.L()*scale)/scale
		if seen[pick] || pick > g.Max() || pick < g.Min() {
			continue
		}
		seen[pick] = true
		coords = append(coords, pick)
	}
	sort.Float64s(coords)
	return coords, nil
}

// RemoveDuplicates returns the sorted distinct coordinates.
func RemoveDuplicates(coords []float64) []float64 {
	res := clone(coords)
	sort.Float64s(res)
	n := 0
	for i, c := range res {
		if i == 0 || c != res[n-1] {
			res[n] = c
			n++
		}
	}
	return res[:n]
}

// Degrade adds independent Gaussian noise of mean mu and standard deviation
// sigma to signal.
func Degrade(signal []float64, mu, sigma float64, rng *rand.Rand) []float64 {
	res := make([]float64, len(signal))
	for i, v := range signal {
		res[i] = v + mu + sigma*rng.NormFloat64()
	}
	return res
}
