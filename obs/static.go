package obs

import (
	"fmt"
	"math"
	"strings"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/gonumExtensions"
	"github.com/martndj/dVar/grid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// StaticSet is a collection of observations made at a single time.
//
// Coordinates are kept in the order they were given: a full metric couples
// arbitrary pairs of observations, so reordering coordinates would silently
// break it.
type StaticSet struct {
	coords []float64
	values []float64
	op     Operator
	// metric is nil for an empty set.
	metric *mat.SymDense
	// diag holds the metric diagonal when the metric is diagonal.
	diag []float64
	grid *grid.Grid
}

type settings struct {
	op     Operator
	metric mat.Symmetric
	diag   []float64
	scalar float64
	kind   int
}

const (
	metricIdentity = iota
	metricScalar
	metricDiagonal
	metricFull
)

// Option configures a StaticSet.
type Option func(*settings)

// WithOperator sets the observation operator, the identity by default.
func WithOperator(op Operator) Option {
	return func(s *settings) { s.op = op }
}

// WithMetric sets a full symmetric metric over observation space.
func WithMetric(m mat.Symmetric) Option {
	return func(s *settings) { s.metric, s.kind = m, metricFull }
}

// WithScalarMetric sets the metric to v times the identity.
func WithScalarMetric(v float64) Option {
	return func(s *settings) { s.scalar, s.kind = v, metricScalar }
}

// WithDiagonalMetric sets a diagonal metric.
func WithDiagonalMetric(d []float64) Option {
	return func(s *settings) { s.diag, s.kind = d, metricDiagonal }
}

// NewStaticSet returns the observations values made at coords.
func NewStaticSet(coords, values []float64, opts ...Option) (*StaticSet, error) {
	if len(coords) != len(values) {
		return nil, dvar.Configuration(dvar.CodeLengthMismatch, "%d coordinates for %d values", len(coords), len(values))
	}
	var st settings
	for _, opt := range opts {
		opt(&st)
	}
	n := len(coords)
	s := &StaticSet{coords: clone(coords), values: clone(values), op: st.op}
	if n == 0 {
		if st.kind == metricFull && st.metric != nil && st.metric.SymmetricDim() != 0 {
			return nil, dvar.Configuration(dvar.CodeInvalidMetric, "metric of size %d for an empty set", st.metric.SymmetricDim())
		}
		return s, nil
	}
	switch st.kind {
	case metricIdentity:
		s.metric = gonumExtensions.Eye(n)
	case metricScalar:
		s.metric = gonumExtensions.ScaledEye(n, st.scalar)
	case metricDiagonal:
		if len(st.diag) != n {
			return nil, dvar.Configuration(dvar.CodeInvalidMetric, "diagonal metric of length %d for %d observations", len(st.diag), n)
		}
		s.metric = gonumExtensions.Diag(st.diag)
	case metricFull:
		if st.metric == nil || st.metric.SymmetricDim() != n {
			dim := 0
			if st.metric != nil {
				dim = st.metric.SymmetricDim()
			}
			return nil, dvar.Configuration(dvar.CodeInvalidMetric, "metric of size %d for %d observations", dim, n)
		}
		s.metric = mat.NewSymDense(n, nil)
		s.metric.CopySym(st.metric)
	}
	if gonumExtensions.NANORINF(s.metric) {
		return nil, dvar.Configuration(dvar.CodeInvalidMetric, "metric has non-finite entries")
	}
	if gonumExtensions.IsDiagonal(s.metric) {
		s.diag = make([]float64, n)
		for i := range s.diag {
			s.diag[i] = s.metric.At(i, i)
		}
	}
	return s, nil
}

// NewGridSet returns observations made at every point of g.
func NewGridSet(g *grid.Grid, values []float64, opts ...Option) (*StaticSet, error) {
	s, err := NewStaticSet(g.X(), values, opts...)
	if err != nil {
		return nil, err
	}
	s.grid = g
	return s, nil
}

// NObs returns the number of observations.
func (s *StaticSet) NObs() int { return len(s.coords) }

// Coords returns a copy of the coordinates.
func (s *StaticSet) Coords() []float64 { return clone(s.coords) }

// Values returns a copy of the observed values.
func (s *StaticSet) Values() []float64 { return clone(s.values) }

// Operator returns the observation operator.
func (s *StaticSet) Operator() Operator { return s.op }

// Grid returns the grid of a set built with NewGridSet, nil otherwise.
func (s *StaticSet) Grid() *grid.Grid { return s.grid }

// Metric returns a copy of the metric, nil for an empty set.
func (s *StaticSet) Metric() *mat.SymDense {
	if s.metric == nil {
		return nil
	}
	m := mat.NewSymDense(s.metric.SymmetricDim(), nil)
	m.CopySym(s.metric)
	return m
}

// IsDiagonal reports whether the metric is diagonal.
func (s *StaticSet) IsDiagonal() bool { return s.diag != nil || s.metric == nil }

// ModelEquivalent applies the observation operator to the state x.
func (s *StaticSet) ModelEquivalent(x []float64, g *grid.Grid) ([]float64, error) {
	if len(x) != g.N() {
		return nil, dvar.LengthMismatch("state", len(x), g.N())
	}
	return s.op.Apply(x, g, s.coords)
}

// ModelEquivalentAdjoint applies the adjoint of the observation operator.
func (s *StaticSet) ModelEquivalentAdjoint(y []float64, g *grid.Grid) ([]float64, error) {
	want := s.NObs()
	if s.op.Kind() == KindIdentity {
		want = g.N()
	}
	if len(y) != want {
		return nil, dvar.LengthMismatch("observation vector", len(y), want)
	}
	return s.op.ApplyAdjoint(y, g, s.coords)
}

// Innovation returns the observed values minus the model equivalent of x.
func (s *StaticSet) Innovation(x []float64, g *grid.Grid) ([]float64, error) {
	hx, err := s.ModelEquivalent(x, g)
	if err != nil {
		return nil, err
	}
	if len(hx) != s.NObs() {
		return nil, dvar.LengthMismatch("model equivalent", len(hx), s.NObs())
	}
	d := clone(s.values)
	floats.Sub(d, hx)
	return d, nil
}

// InnovationAdjoint is the adjoint of Innovation with respect to x.
func (s *StaticSet) InnovationAdjoint(d []float64, g *grid.Grid) ([]float64, error) {
	x, err := s.ModelEquivalentAdjoint(d, g)
	if err != nil {
		return nil, err
	}
	floats.Scale(-1, x)
	return x, nil
}

// Interpolate returns the grid positions the observations are sampled at.
func (s *StaticSet) Interpolate(g *grid.Grid) ([]float64, error) {
	idx, err := g.Pos2Idx(s.coords)
	if err != nil {
		return nil, err
	}
	pos := make([]float64, len(idx))
	for i, j := range idx {
		pos[i] = g.At(j)
	}
	return pos, nil
}

// ApplyMetric returns R y.
func (s *StaticSet) ApplyMetric(y []float64) ([]float64, error) {
	if len(y) != s.NObs() {
		return nil, dvar.LengthMismatch("observation vector", len(y), s.NObs())
	}
	if s.NObs() == 0 {
		return []float64{}, nil
	}
	if s.diag != nil {
		res := clone(y)
		floats.Mul(res, s.diag)
		return res, nil
	}
	var res mat.VecDense
	res.MulVec(s.metric, mat.NewVecDense(len(y), clone(y)))
	return res.RawVector().Data, nil
}

// InnerProduct returns y1ᵗ R y2.
func (s *StaticSet) InnerProduct(y1, y2 []float64) (float64, error) {
	if len(y1) != s.NObs() {
		return 0, dvar.LengthMismatch("first operand", len(y1), s.NObs())
	}
	if len(y2) != s.NObs() {
		return 0, dvar.LengthMismatch("second operand", len(y2), s.NObs())
	}
	if s.NObs() == 0 {
		return 0, nil
	}
	if s.diag != nil {
		sum := 0.
		for i, d := range s.diag {
			sum += y1[i] * d * y2[i]
		}
		return sum, nil
	}
	return mat.Inner(mat.NewVecDense(len(y1), clone(y1)), s.metric, mat.NewVecDense(len(y2), clone(y2))), nil
}

// Norm returns sqrt(yᵗ R y).
func (s *StaticSet) Norm(y []float64) (float64, error) {
	p, err := s.InnerProduct(y, y)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(p), nil
}

// Correlation returns the correlation of y with the observed values.
func (s *StaticSet) Correlation(y []float64) (float64, error) {
	return s.correlate(s.values, y)
}

// CorrelationModelEquivalent returns the correlation of the model equivalent
// of x with the observed values.
func (s *StaticSet) CorrelationModelEquivalent(x []float64, g *grid.Grid) (float64, error) {
	hx, err := s.ModelEquivalent(x, g)
	if err != nil {
		return 0, err
	}
	return s.Correlation(hx)
}

// CorrelationBackground returns the correlation of the model equivalent of
// the increment v with the innovation of the background xb.
func (s *StaticSet) CorrelationBackground(v, xb []float64, g *grid.Grid) (float64, error) {
	d, err := s.Innovation(xb, g)
	if err != nil {
		return 0, err
	}
	hv, err := s.ModelEquivalent(v, g)
	if err != nil {
		return 0, err
	}
	return s.correlate(hv, d)
}

func (s *StaticSet) correlate(a, b []float64) (float64, error) {
	p, err := s.InnerProduct(a, b)
	if err != nil {
		return 0, err
	}
	na, _ := s.Norm(a)
	nb, _ := s.Norm(b)
	if na == 0 || nb == 0 {
		return 0, dvar.Precondition(dvar.CodeZeroNorm, "correlation with a zero norm vector")
	}
	return p / (na * nb), nil
}

type concatSettings struct {
	skipOperatorCheck bool
}

// ConcatOption configures Concatenate.
type ConcatOption func(*concatSettings)

// SkipOperatorCheck allows concatenating sets with different operators, the
// operator of the receiver is kept.
func SkipOperatorCheck() ConcatOption {
	return func(c *concatSettings) { c.skipOperatorCheck = true }
}

// Concatenate returns the union of two sets of independent observations:
// coordinates and values are appended and the metric is block diagonal.
func (s *StaticSet) Concatenate(other *StaticSet, opts ...ConcatOption) (*StaticSet, error) {
	var c concatSettings
	for _, opt := range opts {
		opt(&c)
	}
	if !c.skipOperatorCheck && !s.op.Equal(other.op) {
		return nil, dvar.Configuration(dvar.CodeOperatorMismatch, "cannot concatenate observations of operators %s and %s", s.op, other.op)
	}
	coords := append(clone(s.coords), other.coords...)
	values := append(clone(s.values), other.values...)
	var blocks []mat.Symmetric
	for _, m := range []*mat.SymDense{s.metric, other.metric} {
		if m != nil {
			blocks = append(blocks, m)
		}
	}
	opts2 := []Option{WithOperator(s.op)}
	if m := gonumExtensions.BlockDiag(blocks...); m != nil {
		opts2 = append(opts2, WithMetric(m))
	}
	return NewStaticSet(coords, values, opts2...)
}

func (s *StaticSet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "StaticSet nObs=%d operator=%s", s.NObs(), s.op)
	if s.IsDiagonal() {
		b.WriteString(" metric=diagonal")
	} else {
		b.WriteString(" metric=full")
	}
	fmt.Fprintf(&b, "\n  coords: %v", s.coords)
	return b.String()
}
