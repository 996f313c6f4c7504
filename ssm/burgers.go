package ssm

import (
	"github.com/martndj/dVar/grid"
	"gonum.org/v1/gonum/mat"
)

// Burgers is the viscous Burgers equation on a periodic grid
//
// u_t = -u u_x + nu u_xx
//
// discretized with centered differences.
type Burgers struct {
	Grid *grid.Grid
	Nu   float64
}

// NewBurgers returns the Burgers model of viscosity nu on g.
func NewBurgers(g *grid.Grid, nu float64) *Burgers {
	return &Burgers{Grid: g, Nu: nu}
}

// ddx is the centered first derivative, an antisymmetric operator.
func (b Burgers) ddx(u mat.Vector) []float64 {
	n := u.Len()
	res := make([]float64, n)
	h := 2 * b.Grid.Dx()
	for i := 0; i < n; i++ {
		res[i] = (u.AtVec((i+1)%n) - u.AtVec((i-1+n)%n)) / h
	}
	return res
}

// lap is the centered second derivative, a symmetric operator.
func (b Burgers) lap(u mat.Vector) []float64 {
	n := u.Len()
	res := make([]float64, n)
	h2 := b.Grid.Dx() * b.Grid.Dx()
	for i := 0; i < n; i++ {
		res[i] = (u.AtVec((i+1)%n) - 2*u.AtVec(i) + u.AtVec((i-1+n)%n)) / h2
	}
	return res
}

// Derivative returns -u Du + nu Lap u.
func (b Burgers) Derivative(t float64, state mat.Vector) mat.Vector {
	du := b.ddx(state)
	lu := b.lap(state)
	res := make([]float64, state.Len())
	for i := range res {
		res[i] = -state.AtVec(i)*du[i] + b.Nu*lu[i]
	}
	return mat.NewVecDense(len(res), res)
}

// Tangent returns -(dx Du + u D dx) + nu Lap dx.
func (b Burgers) Tangent(t float64, state, dx mat.Vector) mat.Vector {
	du := b.ddx(state)
	ddx := b.ddx(dx)
	ldx := b.lap(dx)
	res := make([]float64, state.Len())
	for i := range res {
		res[i] = -(dx.AtVec(i)*du[i] + state.AtVec(i)*ddx[i]) + b.Nu*ldx[i]
	}
	return mat.NewVecDense(len(res), res)
}

// TangentAdjoint returns -Du a + D(u a) + nu Lap a, using Dᵗ = -D.
func (b Burgers) TangentAdjoint(t float64, state, a mat.Vector) mat.Vector {
	n := state.Len()
	du := b.ddx(state)
	ua := make([]float64, n)
	for i := range ua {
		ua[i] = state.AtVec(i) * a.AtVec(i)
	}
	dua := b.ddx(mat.NewVecDense(n, ua))
	la := b.lap(a)
	res := make([]float64, n)
	for i := range res {
		res[i] = -du[i]*a.AtVec(i) + dua[i] + b.Nu*la[i]
	}
	return mat.NewVecDense(n, res)
}

// StateSpaceOrder returns the number of grid points.
func (b Burgers) StateSpaceOrder() int { return b.Grid.N() }
