package obs

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
	"github.com/martndj/dVar/ode"
	"github.com/martndj/dVar/simulate"
	"github.com/martndj/dVar/ssm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

type window struct {
	g  *grid.Grid
	nl *simulate.Launcher
	tl *simulate.TangentLinearLauncher
	tw *TimeWindowSet
}

func burgersWindow(t *testing.T, times ...float64) window {
	t.Helper()
	g, err := grid.New(40, 2*math.Pi)
	require.NoError(t, err)
	nl, err := simulate.NewLauncher(g, ssm.NewBurgers(g, 0.1), ode.NewRK4(), 0.01)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(51, 52))
	entries := make([]Entry, len(times))
	for i, tm := range times {
		coords, err := RandomSampling(g, 8, 2, rng)
		require.NoError(t, err)
		s, err := NewStaticSet(coords, randomVector(rng, 8),
			WithOperator(CoordinateSample()), WithDiagonalMetric([]float64{1, 2, 3, 4, 1, 2, 3, 4}))
		require.NoError(t, err)
		entries[i] = Entry{Time: tm, Set: s}
	}
	tw, err := NewTimeWindowSet(entries...)
	require.NoError(t, err)
	return window{g: g, nl: nl, tl: simulate.NewTangentLinearLauncher(nl), tw: tw}
}

func smoothState(g *grid.Grid) []float64 {
	x := g.Zeros()
	for i := range x {
		x[i] = 1 + 0.3*math.Cos(g.At(i))
	}
	return x
}

func TestNewTimeWindowSet(t *testing.T) {
	w := burgersWindow(t, 0.3, 0.1, 0.2)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, w.tw.Times())
	assert.Equal(t, 24, w.tw.NObs())
	tMin, tMax, ok := w.tw.Bounds()
	assert.True(t, ok)
	assert.Equal(t, 0.1, tMin)
	assert.Equal(t, 0.3, tMax)
	_, ok = w.tw.At(0.2 + 1e-14)
	assert.True(t, ok)
	_, ok = w.tw.At(0.25)
	assert.False(t, ok)

	s, _ := w.tw.At(0.1)
	_, err := NewTimeWindowSet(Entry{0.1, s}, Entry{0.1 + 1e-13, s})
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeDuplicateTime})

	ident, err := NewStaticSet([]float64{1}, []float64{1})
	require.NoError(t, err)
	_, err = NewTimeWindowSet(Entry{0.1, s}, Entry{0.2, ident})
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeOperatorMismatch})
}

func TestEmptyWindow(t *testing.T) {
	w := burgersWindow(t)
	assert.True(t, w.tw.IsEmpty())
	_, _, ok := w.tw.Bounds()
	assert.False(t, ok)

	_, err := w.tw.ModelEquivalent(w.g.Zeros(), w.nl, 0)
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeEmptyWindow})
	_, err = w.tw.ModelEquivalentAdjoint(nil, w.g.Zeros(), w.nl, w.tl, 0)
	assert.ErrorIs(t, err, dvar.ErrPrecondition)
}

func TestPropagate(t *testing.T) {
	w := burgersWindow(t, 0., 0.1, 0.25)
	x := smoothState(w.g)
	states, err := w.tw.Propagate(x, w.nl, 0)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, x, states[0].Values)

	traj, err := w.nl.Integrate(x, 0.25, 0)
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox(traj.Final(), states[2].Values, 1e-12))

	_, err = w.tw.Propagate(x, w.tl, 0)
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeUnreferenced})
	_, err = w.tw.Propagate(x, w.nl, 0.05)
	assert.ErrorIs(t, err, dvar.ErrPrecondition)
}

func TestInnovation(t *testing.T) {
	w := burgersWindow(t, 0.1, 0.2)
	x := smoothState(w.g)
	hx, err := w.tw.ModelEquivalent(x, w.nl, 0)
	require.NoError(t, err)
	d, err := w.tw.Innovation(x, w.nl, 0)
	require.NoError(t, err)
	for i, smp := range w.tw.Values() {
		sum := make([]float64, len(smp.Values))
		floats.AddTo(sum, hx[i].Values, d[i].Values)
		assert.True(t, floats.EqualApprox(smp.Values, sum, 1e-12))
	}
}

func TestModelEquivalentAdjoint(t *testing.T) {
	w := burgersWindow(t, 0., 0.1, 0.13, 0.3)
	x := smoothState(w.g)
	rng := rand.New(rand.NewPCG(53, 54))

	traj, err := w.nl.Integrate(x, 0.3, 0)
	require.NoError(t, err)
	require.NoError(t, w.tl.Reference(traj))
	dx := randomVector(rng, w.g.N())
	hdx, err := w.tw.ModelEquivalent(dx, w.tl, 0)
	require.NoError(t, err)

	res := make(Series, w.tw.Len())
	direct := 0.
	for i, tm := range w.tw.Times() {
		res[i] = Sample{Time: tm, Values: randomVector(rng, 8)}
		direct += floats.Dot(res[i].Values, hdx[i].Values)
	}
	grad, err := w.tw.ModelEquivalentAdjoint(res, x, w.nl, w.tl, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0., (direct-floats.Dot(grad, dx))/math.Abs(direct), 1e-10)

	_, err = w.tw.ModelEquivalentAdjoint(res[1:], x, w.nl, w.tl, 0)
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeTimeKeysMismatch})
}

func TestWindowInnerProduct(t *testing.T) {
	w := burgersWindow(t, 0.1, 0.2)
	v := w.tw.Values()
	p, err := w.tw.InnerProduct(v, v)
	require.NoError(t, err)
	sq, err := w.tw.SquareNorm(v)
	require.NoError(t, err)
	assert.Equal(t, p, sq)

	expected := 0.
	for _, e := range w.tw.Entries() {
		n, err := e.Set.Norm(e.Set.Values())
		require.NoError(t, err)
		expected += n * n
	}
	n, err := w.tw.Norm(v)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(expected), n, 1e-12)

	shifted := Series{{Time: 0.1, Values: v[0].Values}, {Time: 0.3, Values: v[1].Values}}
	_, err = w.tw.InnerProduct(v, shifted)
	assert.ErrorIs(t, err, &dvar.Error{Code: dvar.CodeTimeKeysMismatch})

	mv, err := w.tw.ApplyMetric(v)
	require.NoError(t, err)
	assert.Equal(t, 2*v[1].Values[1], mv[1].Values[1])
}

func TestCutAndUnion(t *testing.T) {
	w := burgersWindow(t, 0.1, 0.2, 0.3, 0.4)
	cut := w.tw.Cut(0.2, 0.3)
	assert.Equal(t, []float64{0.2, 0.3}, cut.Times())
	assert.Equal(t, 16, cut.NObs())
	assert.True(t, w.tw.Cut(0.5, 1).IsEmpty())

	early := w.tw.Cut(0, 0.2)
	late := w.tw.Cut(0.2, 1)
	u, err := early.Union(late)
	require.NoError(t, err)
	assert.Equal(t, w.tw.Times(), u.Times())
	// the shared time holds both copies
	assert.Equal(t, w.tw.NObs()+8, u.NObs())
	s, ok := u.At(0.2)
	require.True(t, ok)
	assert.Equal(t, 16, s.NObs())

	empty, err := NewTimeWindowSet()
	require.NoError(t, err)
	u, err = empty.Union(w.tw)
	require.NoError(t, err)
	assert.Equal(t, w.tw.Times(), u.Times())
}

func TestWindowDumpLoad(t *testing.T) {
	w := burgersWindow(t, 0.3, 0.1)
	var buf bytes.Buffer
	require.NoError(t, w.tw.Dump(&buf))
	got, err := LoadTimeWindowSet(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, w.tw.Times(), got.Times())
	assert.Equal(t, w.tw.Values(), got.Values())
	for _, e := range w.tw.Entries() {
		s, ok := got.At(e.Time)
		require.True(t, ok)
		assert.Equal(t, e.Set.Coords(), s.Coords())
	}

	empty, err := NewTimeWindowSet()
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, empty.Dump(&buf))
	got, err = LoadTimeWindowSet(&buf, nil)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}
