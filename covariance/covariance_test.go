package covariance

import (
	"math"
	"math/rand/v2"
	"testing"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestCorrelation(t *testing.T) {
	g, err := grid.New(100, 100.)
	require.NoError(t, err)

	f, err := Correlation(g, 5., 0.)
	require.NoError(t, err)
	assert.Equal(t, 1., f[0])
	assert.InDelta(t, Gaussian(10., 0., 5.), f[10], 1e-15)
	// periodic: x = 90 is at distance 10 from 0
	assert.InDelta(t, f[10], f[90], 1e-15)

	_, err = Correlation(g, 0., 0.)
	assert.ErrorIs(t, err, dvar.ErrConfiguration)
}

func TestSqrtDiagonalRejectsNegativeSpectrum(t *testing.T) {
	g, err := grid.New(8, 8.)
	require.NoError(t, err)
	corr := make([]float64, 8)
	corr[0] = math.NaN()
	_, err = SqrtDiagonal(g, corr)
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeNegativeSpectrum})

	_, err = SqrtDiagonal(g, make([]float64, 7))
	assert.ErrorIs(t, err, dvar.ErrConfiguration)
}

func TestAdjoint(t *testing.T) {
	rng := rand.New(rand.NewPCG(4573216806, 1))
	for _, n := range []int{11, 100, 101} {
		g, err := grid.New(n, 100.)
		require.NoError(t, err)
		sigma := make([]float64, n)
		for i := range sigma {
			sigma[i] = 1 + 0.5*math.Sin(2*math.Pi*float64(i)/float64(n))
		}
		op, err := New(g, 5., sigma)
		require.NoError(t, err)

		x := make([]float64, n)
		y := make([]float64, n)
		for i := range x {
			x[i] = 2 * rng.NormFloat64()
			y[i] = 2 * rng.NormFloat64()
		}
		ly, err := op.ApplySqrt(y)
		require.NoError(t, err)
		ltx, err := op.ApplySqrtAdjoint(x)
		require.NoError(t, err)
		direct := floats.Dot(x, ly)
		adjoint := floats.Dot(ltx, y)
		assert.InDelta(t, 0., (direct-adjoint)/math.Abs(direct), 1e-10, "n=%d", n)
	}
}

func TestImpulseResponse(t *testing.T) {
	g, err := grid.New(100, 100.)
	require.NoError(t, err)
	sigma, l := 5., 5.
	op, err := NewUniform(g, l, sigma)
	require.NoError(t, err)

	j0 := g.N() / 4
	dirac := g.Zeros()
	dirac[j0] = 1.
	bx, err := op.Apply(dirac)
	require.NoError(t, err)

	corr, err := Correlation(g, l, g.At(j0))
	require.NoError(t, err)
	for i := range corr {
		assert.InDelta(t, sigma*sigma*corr[i], bx[i], 1e-8, "i=%d", i)
	}
}

func TestLengthChecks(t *testing.T) {
	g, err := grid.New(16, 1.)
	require.NoError(t, err)
	op, err := NewUniform(g, .1, 1.)
	require.NoError(t, err)

	_, err = op.ApplySqrt(make([]float64, 15))
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeLengthMismatch})
	_, err = op.ApplySqrtAdjoint(make([]float64, 17))
	assert.ErrorIs(t, err, dvar.ErrPrecondition)

	_, err = New(g, .1, make([]float64, 3))
	assert.ErrorIs(t, err, dvar.ErrConfiguration)
}

func TestSampleIsSmooth(t *testing.T) {
	g, err := grid.New(64, 64.)
	require.NoError(t, err)
	op, err := NewUniform(g, 4., 2.)
	require.NoError(t, err)

	x := op.Sample(rand.New(rand.NewPCG(1, 1)))
	require.Len(t, x, 64)
	// the sample lies in the range of the truncated square root
	assert.True(t, floats.EqualApprox(x, op.tr.Truncate(x, op.ntrc), 1e-12))
}
