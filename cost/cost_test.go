package cost

import (
	"math"
	"math/rand/v2"
	"testing"

	dvar "github.com/martndj/dVar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats"
)

// rosenbrock is the two-dimensional Rosenbrock function.
func rosenbrock(t *testing.T, opts ...Option) *Term {
	t.Helper()
	term, err := New(
		func(x []float64) float64 {
			a, b := 1-x[0], x[1]-x[0]*x[0]
			return a*a + 100*b*b
		},
		func(grad, x []float64) {
			b := x[1] - x[0]*x[0]
			grad[0] = -2*(1-x[0]) - 400*x[0]*b
			grad[1] = 200 * b
		},
		opts...,
	)
	require.NoError(t, err)
	return term
}

// wave is sum_i 0.5 x_i² + 0.1 sin(3 x_i), a mildly curved bowl.
func wave(t *testing.T) *Term {
	t.Helper()
	term, err := New(
		func(x []float64) float64 {
			s := 0.
			for _, v := range x {
				s += 0.5*v*v + 0.1*math.Sin(3*v)
			}
			return s
		},
		func(grad, x []float64) {
			for i, v := range x {
				grad[i] = v + 0.3*math.Cos(3*v)
			}
		},
	)
	require.NoError(t, err)
	return term
}

func TestNew(t *testing.T) {
	_, err := New(nil, func(grad, x []float64) {})
	assert.ErrorIs(t, err, dvar.ErrConfiguration)
	_, err = New(func(x []float64) float64 { return 0 }, func(grad, x []float64) {}, WithMaxGradNorm(-1))
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeInvalidArgument})
}

func TestTrivial(t *testing.T) {
	j := Trivial()
	x := []float64{1, 2, 3}
	assert.Equal(t, 7., j.Evaluate(x))
	assert.Equal(t, x, j.GradientOf(x))
	_, ok := j.MaxGradNorm()
	assert.False(t, ok)
}

func TestGradientCap(t *testing.T) {
	j := rosenbrock(t, WithMaxGradNorm(1))
	x := []float64{-1.2, 1}
	g := j.GradientOf(x)
	assert.InDelta(t, 1., floats.Norm(g, 2), 1e-14)

	raw := rosenbrock(t).GradientOf(x)
	floats.Scale(1/floats.Norm(raw, 2), raw)
	assert.InDeltaSlice(t, raw, g, 1e-14)

	// below the cap the gradient is untouched
	small := []float64{1.001, 1.002}
	assert.Equal(t, rosenbrock(t).GradientOf(small), rosenbrock(t, WithMaxGradNorm(100)).GradientOf(small))
}

func TestAlgebra(t *testing.T) {
	j1 := rosenbrock(t)
	j2 := Trivial()
	rng := rand.New(rand.NewPCG(71, 72))
	for i := 0; i < 10; i++ {
		x := []float64{rng.NormFloat64(), rng.NormFloat64()}
		sum := j1.Sum(j2)
		assert.Equal(t, j1.Evaluate(x)+j2.Evaluate(x), sum.Evaluate(x))
		g := j1.GradientOf(x)
		floats.Add(g, j2.GradientOf(x))
		assert.Equal(t, g, sum.GradientOf(x))

		scaled := j1.Scale(0.5)
		assert.Equal(t, 0.5*j1.Evaluate(x), scaled.Evaluate(x))
		g = j1.GradientOf(x)
		floats.Scale(0.5, g)
		assert.Equal(t, g, scaled.GradientOf(x))

		// associativity and distributivity
		a := j1.Sum(j2).Sum(j2)
		b := j1.Sum(j2.Sum(j2))
		assert.InDelta(t, a.Evaluate(x), b.Evaluate(x), 1e-12)
		c := j1.Sum(j2).Scale(3)
		d := j1.Scale(3).Sum(j2.Scale(3))
		assert.InDelta(t, c.Evaluate(x), d.Evaluate(x), 1e-12)
		assert.True(t, floats.EqualApprox(c.GradientOf(x), d.GradientOf(x), 1e-12))
	}
}

func TestSumCaps(t *testing.T) {
	capped := rosenbrock(t, WithMaxGradNorm(2))
	tighter := rosenbrock(t, WithMaxGradNorm(0.5))
	free := rosenbrock(t)

	v, ok := free.Sum(free).MaxGradNorm()
	assert.False(t, ok)
	assert.Zero(t, v)
	v, ok = free.Sum(capped).MaxGradNorm()
	assert.True(t, ok)
	assert.Equal(t, 2., v)
	v, _ = capped.Sum(free).MaxGradNorm()
	assert.Equal(t, 2., v)
	v, _ = capped.Sum(tighter).MaxGradNorm()
	assert.Equal(t, 0.5, v)
	_, ok = capped.Scale(2).MaxGradNorm()
	assert.False(t, ok)
}

func TestGradientTest(t *testing.T) {
	j := wave(t).Sum(Trivial().Scale(0.5))
	report := j.GradientTest([]float64{-1.2, 1}, -1, -14)
	require.Len(t, report.Steps, 14)
	assert.Equal(t, -1, report.Steps[0].Power)
	assert.Equal(t, -14, report.Steps[13].Power)

	s, ok := report.At(-7)
	require.True(t, ok)
	assert.InDelta(t, 1., s.Ratio, 1e-6)
	s, _ = report.At(-1)
	assert.Greater(t, math.Abs(s.Ratio-1), 1e-2)

	// a wrong gradient does not converge
	bad, err := New(j.Evaluate, func(grad, x []float64) {
		j.Gradient(grad, x)
		grad[0] *= 2
	})
	require.NoError(t, err)
	s, _ = bad.GradientTest([]float64{-1.2, 1}, -1, -14).At(-7)
	assert.Greater(t, math.Abs(s.Ratio-1), 1e-2)

	core, logs := observer.New(zap.InfoLevel)
	report.Log(zap.New(core))
	assert.Equal(t, 15, logs.Len())
}
