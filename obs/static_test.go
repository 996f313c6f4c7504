package obs

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	dvar "github.com/martndj/dVar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestNewStaticSet(t *testing.T) {
	_, err := NewStaticSet([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeLengthMismatch})

	_, err = NewStaticSet([]float64{1, 2}, []float64{1, 2}, WithDiagonalMetric([]float64{1}))
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeInvalidMetric})

	_, err = NewStaticSet([]float64{1, 2}, []float64{1, 2}, WithMetric(mat.NewSymDense(3, nil)))
	assert.ErrorIs(t, err, dvar.ErrConfiguration)

	s, err := NewStaticSet([]float64{3, 1, 2}, []float64{30, 10, 20}, WithScalarMetric(2))
	require.NoError(t, err)
	assert.Equal(t, 3, s.NObs())
	// coordinates keep their order
	assert.Equal(t, []float64{3, 1, 2}, s.Coords())
	assert.True(t, s.IsDiagonal())
	assert.Equal(t, 2., s.Metric().At(1, 1))

	empty, err := NewStaticSet(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NObs())
	assert.Nil(t, empty.Metric())
}

func TestInnerProduct(t *testing.T) {
	coords := []float64{1, 2, 3}
	values := []float64{1, -1, 2}
	diag, err := NewStaticSet(coords, values, WithDiagonalMetric([]float64{1, 2, 3}))
	require.NoError(t, err)
	full, err := NewStaticSet(coords, values, WithMetric(mat.NewSymDense(3, []float64{
		1, 0.5, 0,
		0.5, 2, 0,
		0, 0, 3,
	})))
	require.NoError(t, err)
	assert.False(t, full.IsDiagonal())

	y1 := []float64{1, 2, 3}
	y2 := []float64{-1, 0, 1}
	p, err := diag.InnerProduct(y1, y2)
	require.NoError(t, err)
	assert.Equal(t, 8., p)
	p, err = full.InnerProduct(y1, y2)
	require.NoError(t, err)
	assert.InDelta(t, 8.-0.5*2, p, 1e-14)

	n, err := diag.Norm(y1)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(1+8+27), n, 1e-14)

	ry, err := full.ApplyMetric(y2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, -0.5, 3}, ry, 1e-14)

	_, err = diag.InnerProduct(y1, y2[:2])
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeLengthMismatch})
}

func TestCorrelation(t *testing.T) {
	g := testGrid(t)
	s, err := NewStaticSet([]float64{1, 2, 3}, []float64{1, 2, 3}, WithOperator(CoordinateSample()))
	require.NoError(t, err)

	c, err := s.Correlation([]float64{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1., c, 1e-14)
	c, err = s.Correlation([]float64{-1, -2, -3})
	require.NoError(t, err)
	assert.InDelta(t, -1., c, 1e-14)

	_, err = s.Correlation(make([]float64, 3))
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeZeroNorm})

	c, err = s.CorrelationModelEquivalent(g.X(), g)
	require.NoError(t, err)
	assert.InDelta(t, 1., c, 1e-12)

	// the background misses the observations by exactly the increment
	xb := g.Zeros()
	c, err = s.CorrelationBackground(g.X(), xb, g)
	require.NoError(t, err)
	assert.InDelta(t, 1., c, 1e-12)
}

func TestInnovationAdjoint(t *testing.T) {
	g := testGrid(t)
	rng := rand.New(rand.NewPCG(43, 44))
	coords := HomogeneousSampling(g, 12)
	s, err := NewStaticSet(coords, randomVector(rng, 12), WithOperator(CoordinateSample()))
	require.NoError(t, err)

	x := randomVector(rng, g.N())
	y := randomVector(rng, 12)
	// the innovation is affine, its linear part is -H
	d, err := s.Innovation(x, g)
	require.NoError(t, err)
	d0, err := s.Innovation(g.Zeros(), g)
	require.NoError(t, err)
	floats.Sub(d, d0)

	adj, err := s.InnovationAdjoint(y, g)
	require.NoError(t, err)
	assert.InDelta(t, floats.Dot(y, d), floats.Dot(adj, x), 1e-12)

	_, err = s.ModelEquivalent(x[:4], g)
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeLengthMismatch})
	_, err = s.ModelEquivalentAdjoint(y[:4], g)
	assert.ErrorIs(t, err, dvar.ErrPrecondition)
}

func TestGridSet(t *testing.T) {
	g := testGrid(t)
	rng := rand.New(rand.NewPCG(45, 46))
	v := randomVector(rng, g.N())
	s, err := NewGridSet(g, v)
	require.NoError(t, err)
	assert.Same(t, g, s.Grid())

	d, err := s.Innovation(v, g)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, g.N()), d)

	pos, err := s.Interpolate(g)
	require.NoError(t, err)
	assert.Equal(t, g.X(), pos)
}

func TestConcatenate(t *testing.T) {
	m1 := mat.NewSymDense(2, []float64{2, 0.5, 0.5, 1})
	s1, err := NewStaticSet([]float64{1, 2}, []float64{10, 20}, WithMetric(m1), WithOperator(CoordinateSample()))
	require.NoError(t, err)
	s2, err := NewStaticSet([]float64{5, 4, 3}, []float64{50, 40, 30}, WithDiagonalMetric([]float64{3, 4, 5}), WithOperator(CoordinateSample()))
	require.NoError(t, err)

	s, err := s1.Concatenate(s2)
	require.NoError(t, err)
	assert.Equal(t, s1.NObs()+s2.NObs(), s.NObs())
	assert.Equal(t, []float64{1, 2, 5, 4, 3}, s.Coords())
	assert.Equal(t, []float64{10, 20, 50, 40, 30}, s.Values())

	rng := rand.New(rand.NewPCG(47, 48))
	a := randomVector(rng, 5)
	b := randomVector(rng, 5)
	p, err := s.InnerProduct(a, b)
	require.NoError(t, err)
	p1, err := s1.InnerProduct(a[:2], b[:2])
	require.NoError(t, err)
	p2, err := s2.InnerProduct(a[2:], b[2:])
	require.NoError(t, err)
	assert.InDelta(t, p1+p2, p, 1e-12)

	other, err := NewStaticSet([]float64{6}, []float64{60})
	require.NoError(t, err)
	_, err = s1.Concatenate(other)
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeOperatorMismatch})
	forced, err := s1.Concatenate(other, SkipOperatorCheck())
	require.NoError(t, err)
	assert.Equal(t, KindCoordinateSample, forced.Operator().Kind())
}

func TestStaticSetDumpLoad(t *testing.T) {
	op, err := Custom("scaled", scaledSample, scaledSampleAdjoint, 0.5)
	require.NoError(t, err)
	reg := NewRegistry()
	require.NoError(t, reg.Register(op))

	m := mat.NewSymDense(3, []float64{2, 0.1, 0, 0.1, 2, 0.2, 0, 0.2, 2})
	s, err := NewStaticSet([]float64{0.5, 7.5, 3}, []float64{1.5, -2, 0.25}, WithMetric(m), WithOperator(op))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Dump(&buf))
	got, err := LoadStaticSet(&buf, reg)
	require.NoError(t, err)
	assert.Equal(t, s.Coords(), got.Coords())
	assert.Equal(t, s.Values(), got.Values())
	assert.True(t, mat.Equal(s.Metric(), got.Metric()))
	assert.True(t, s.Operator().Equal(got.Operator()))

	buf.Reset()
	require.NoError(t, s.Dump(&buf))
	_, err = LoadStaticSet(&buf, NewRegistry())
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeUnknownOperator})

	_, err = LoadStaticSet(bytes.NewReader([]byte("garbage")), reg)
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeInvalidPersistence})
}
