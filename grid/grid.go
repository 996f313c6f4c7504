// Package grid implements the uniform periodic one-dimensional grid the model
// states and the observation coordinates live on.
package grid

import (
	"math"

	dvar "github.com/martndj/dVar"
)

// snap absorbs round-off when a coordinate sits exactly on a grid point.
const snap = 1e-9

// Grid is a periodic discretization of [Min, Min+L) with N points.
type Grid struct {
	n      int
	length float64
	origin float64
	x      []float64
}

// Option configures a Grid.
type Option func(*Grid)

// Centered places the grid on [-L/2, L/2).
func Centered() Option {
	return func(g *Grid) { g.origin = -g.length / 2 }
}

// WithOrigin places the first grid point at origin.
func WithOrigin(origin float64) Option {
	return func(g *Grid) { g.origin = origin }
}

// New returns a grid of n points over a periodic domain of length L starting
// at 0 unless an option says otherwise.
func New(n int, length float64, opts ...Option) (*Grid, error) {
	if n < 2 {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "grid needs at least 2 points, got %d", n)
	}
	if !(length > 0) || math.IsInf(length, 0) {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "grid length must be positive and finite, got %v", length)
	}
	g := &Grid{n: n, length: length}
	for _, opt := range opts {
		opt(g)
	}
	dx := length / float64(n)
	g.x = make([]float64, n)
	for i := range g.x {
		g.x[i] = g.origin + float64(i)*dx
	}
	return g, nil
}

// N returns the number of grid points.
func (g *Grid) N() int { return g.n }

// L returns the domain length.
func (g *Grid) L() float64 { return g.length }

// Dx returns the grid spacing.
func (g *Grid) Dx() float64 { return g.length / float64(g.n) }

// Min returns the first coordinate.
func (g *Grid) Min() float64 { return g.x[0] }

// Max returns the last coordinate.
func (g *Grid) Max() float64 { return g.x[g.n-1] }

// X returns a copy of the coordinates.
func (g *Grid) X() []float64 {
	x := make([]float64, g.n)
	copy(x, g.x)
	return x
}

// At returns the i-th coordinate.
func (g *Grid) At(i int) float64 { return g.x[i] }

// Zeros returns a zero state vector.
func (g *Grid) Zeros() []float64 { return make([]float64, g.n) }

// Idx returns the smallest index i such that x[i] >= c.
func (g *Grid) Idx(c float64) (int, error) {
	if math.IsNaN(c) || c < g.Min()-snap*g.Dx() || c > g.Max()+snap*g.Dx() {
		return 0, dvar.Precondition(dvar.CodeOutOfGrid, "coordinate %v outside [%v, %v]", c, g.Min(), g.Max())
	}
	i := int(math.Ceil((c-g.origin)/g.Dx() - snap))
	if i < 0 {
		i = 0
	}
	if i >= g.n {
		i = g.n - 1
	}
	return i, nil
}

// Pos2Idx maps every coordinate to its grid index, see Idx.
func (g *Grid) Pos2Idx(coords []float64) ([]int, error) {
	idx := make([]int, len(coords))
	for i, c := range coords {
		j, err := g.Idx(c)
		if err != nil {
			return nil, err
		}
		idx[i] = j
	}
	return idx, nil
}

// Distance returns the periodic distance between two coordinates.
func (g *Grid) Distance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), g.length)
	return math.Min(d, g.length-d)
}

// Equal reports whether two grids describe the same discretization.
func (g *Grid) Equal(o *Grid) bool {
	return g.n == o.n && g.length == o.length && g.origin == o.origin
}
