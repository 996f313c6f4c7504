// Package covariance implements homogeneous isotropic background-error
// covariances on a periodic grid through their spectral square root.
//
// The covariance is B = L Lᵗ with
//
//	L = T Σ P S
//
// where S is the diagonal square root of the correlation spectrum in the
// packed r basis, P the synthesis from r space to physical space, Σ the
// per-point standard deviation and T the spectral truncation filter. The
// N by N matrix B is never formed.
package covariance

import (
	"math"
	"math/rand/v2"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
	"github.com/martndj/dVar/spectral"
)

// Gaussian evaluates exp(-(x-x0)²/(2 l²)).
func Gaussian(x, x0, l float64) float64 {
	return math.Exp(-(x - x0) * (x - x0) / (2 * l * l))
}

// Correlation returns the Gaussian correlation function of length scale l on
// the grid points, centered on x0 with periodic distances.
func Correlation(g *grid.Grid, l, x0 float64) ([]float64, error) {
	if !(l > 0) || math.IsInf(l, 0) {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "correlation length must be positive and finite, got %v", l)
	}
	f := make([]float64, g.N())
	for i := range f {
		f[i] = Gaussian(g.Distance(g.At(i), x0), 0, l)
	}
	return f, nil
}

// SqrtDiagonal returns the square root of the correlation spectrum packed in
// the r basis, scaled so that P S² Pᵗ is the circulant matrix built from corr.
func SqrtDiagonal(g *grid.Grid, corr []float64) ([]float64, error) {
	n := g.N()
	if len(corr) != n {
		return nil, dvar.Configuration(dvar.CodeLengthMismatch, "correlation has length %d, grid has %d points", len(corr), n)
	}
	tr := spectral.NewTransform(n)
	c := tr.Forward(corr)

	nf := float64(n)
	sq := make([]float64, n)
	sq[0] = nf * cmplxAbs(c[0])
	for k := 1; k <= tr.Pairs(); k++ {
		v := nf * cmplxAbs(c[k]) / 2
		sq[2*k-1] = v
		sq[2*k] = v
	}
	if n%2 == 0 {
		sq[n-1] = nf * cmplxAbs(c[n/2])
	}
	for i, v := range sq {
		if v < 0 || math.IsNaN(v) {
			return nil, dvar.Configuration(dvar.CodeNegativeSpectrum,
				"squared spectral coefficient %d is %v, the correlation is not positive semi-definite", i, v)
		}
		sq[i] = math.Sqrt(v)
	}
	return sq, nil
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// Operator applies the square root of a spectral covariance and its adjoint.
type Operator struct {
	grid        *grid.Grid
	tr          *spectral.Transform
	lengthScale float64
	sigma       []float64
	sqrtDiag    []float64
	ntrc        int
}

// New builds the covariance of correlation length l and standard deviation
// profile sigma, one value per grid point.
func New(g *grid.Grid, l float64, sigma []float64) (*Operator, error) {
	if len(sigma) != g.N() {
		return nil, dvar.Configuration(dvar.CodeLengthMismatch, "sigma has length %d, grid has %d points", len(sigma), g.N())
	}
	corr, err := Correlation(g, l, g.Min())
	if err != nil {
		return nil, err
	}
	sq, err := SqrtDiagonal(g, corr)
	if err != nil {
		return nil, err
	}
	s := make([]float64, len(sigma))
	copy(s, sigma)
	return &Operator{
		grid:        g,
		tr:          spectral.NewTransform(g.N()),
		lengthScale: l,
		sigma:       s,
		sqrtDiag:    sq,
		ntrc:        spectral.TruncationWavenumber(g.N()),
	}, nil
}

// NewUniform builds a covariance with the same standard deviation everywhere.
func NewUniform(g *grid.Grid, l, sigma float64) (*Operator, error) {
	s := make([]float64, g.N())
	for i := range s {
		s[i] = sigma
	}
	return New(g, l, s)
}

// Grid returns the grid the operator is defined on.
func (op *Operator) Grid() *grid.Grid { return op.grid }

// LengthScale returns the correlation length.
func (op *Operator) LengthScale() float64 { return op.lengthScale }

// Sigma returns a copy of the standard deviation profile.
func (op *Operator) Sigma() []float64 {
	s := make([]float64, len(op.sigma))
	copy(s, op.sigma)
	return s
}

// SqrtDiagonal returns a copy of the packed square-root spectrum.
func (op *Operator) SqrtDiagonal() []float64 {
	s := make([]float64, len(op.sqrtDiag))
	copy(s, op.sqrtDiag)
	return s
}

// ApplySqrt maps a control vector xi to physical space: L xi.
func (op *Operator) ApplySqrt(xi []float64) ([]float64, error) {
	if len(xi) != op.grid.N() {
		return nil, dvar.LengthMismatch("control vector", len(xi), op.grid.N())
	}
	r := make([]float64, len(xi))
	for i, v := range xi {
		r[i] = op.sqrtDiag[i] * v
	}
	x := op.tr.Synthesize(r)
	for i := range x {
		x[i] *= op.sigma[i]
	}
	return op.tr.Truncate(x, op.ntrc), nil
}

// ApplySqrtAdjoint applies Lᵗ, each step of ApplySqrt transposed in
// reverse order.
func (op *Operator) ApplySqrtAdjoint(x []float64) ([]float64, error) {
	if len(x) != op.grid.N() {
		return nil, dvar.LengthMismatch("state", len(x), op.grid.N())
	}
	y := op.tr.Truncate(x, op.ntrc)
	for i := range y {
		y[i] *= op.sigma[i]
	}
	r := op.tr.SynthesizeAdjoint(y)
	for i := range r {
		r[i] *= op.sqrtDiag[i]
	}
	return r, nil
}

// Apply returns B x = L Lᵗ x.
func (op *Operator) Apply(x []float64) ([]float64, error) {
	xi, err := op.ApplySqrtAdjoint(x)
	if err != nil {
		return nil, err
	}
	return op.ApplySqrt(xi)
}

// Sample draws a realisation of the background error, L xi with xi
// standard normal.
func (op *Operator) Sample(rng *rand.Rand) []float64 {
	xi := make([]float64, op.grid.N())
	for i := range xi {
		xi[i] = rng.NormFloat64()
	}
	x, _ := op.ApplySqrt(xi)
	return x
}
