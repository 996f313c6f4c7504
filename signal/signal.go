// Package signal builds initial conditions on a grid: analytic profiles and
// random band-limited fields.
package signal

import (
	"math"
	"math/rand/v2"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
	"github.com/martndj/dVar/spectral"
	"gonum.org/v1/gonum/floats"
)

// Profile is a function of the coordinate.
type Profile interface {
	Value(x float64) float64
}

// Gaussian is a bump of given amplitude and width centered on Center.
type Gaussian struct {
	Center, Width, Amplitude float64
}

func (p Gaussian) Value(x float64) float64 {
	d := (x - p.Center) / p.Width
	return p.Amplitude * math.Exp(-d*d)
}

// Soliton is the solitary wave of the Korteweg-de Vries equation
// u' + beta u_xxx + gamma u u_x = 0.
type Soliton struct {
	Center, Amplitude, Beta, Gamma float64
}

func (p Soliton) Value(x float64) float64 {
	k := math.Sqrt(math.Abs(p.Amplitude*p.Gamma / (12 * p.Beta)))
	s := 1 / math.Cosh(k*(x-p.Center))
	return p.Amplitude * s * s
}

// Constant is a uniform value.
type Constant float64

func (c Constant) Value(float64) float64 { return float64(c) }

// Sum adds profiles.
type Sum []Profile

func (s Sum) Value(x float64) float64 {
	var v float64
	for _, p := range s {
		v += p.Value(x)
	}
	return v
}

// OnGrid evaluates p at every grid point.
func OnGrid(g *grid.Grid, p Profile) []float64 {
	x := g.Zeros()
	for i := range x {
		x[i] = p.Value(g.At(i))
	}
	return x
}

// RandomSpectral returns a random field holding only the wavenumbers up to
// ntrc, with independent normal spectral coefficients, scaled so that its
// largest absolute value is amp.
func RandomSpectral(g *grid.Grid, ntrc int, amp float64, rng *rand.Rand) ([]float64, error) {
	if ntrc < 0 || ntrc > g.N()/2 {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "truncation %d out of [0, %d]", ntrc, g.N()/2)
	}
	tr := spectral.NewTransform(g.N())
	r := make([]float64, g.N())
	for k := 1; k <= tr.Pairs() && k <= ntrc; k++ {
		r[2*k-1] = rng.NormFloat64()
		r[2*k] = rng.NormFloat64()
	}
	x := tr.Synthesize(r)
	m := math.Max(math.Abs(floats.Max(x)), math.Abs(floats.Min(x)))
	if m == 0 {
		return x, nil
	}
	floats.Scale(amp/m, x)
	return x, nil
}
