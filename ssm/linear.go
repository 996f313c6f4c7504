package ssm

import (
	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
	"gonum.org/v1/gonum/mat"
)

// Linear represents the autonomous system
//
// x'(t) = A x(t)
//
// Its tangent-linear model is itself.
type Linear struct {
	// State Dynamics
	A mat.Matrix
}

// NewLinear creates a new linear model, A must be square.
func NewLinear(A mat.Matrix) (*Linear, error) {
	m, n := A.Dims()
	if m != n {
		return nil, dvar.Configuration(dvar.CodeShapeMismatch, "state transition matrix is %dx%d", m, n)
	}
	return &Linear{A: A}, nil
}

// NewAdvection returns the centered finite-difference discretization of
// u_t + c u_x = 0 on a periodic grid.
func NewAdvection(g *grid.Grid, c float64) *Linear {
	n := g.N()
	a := mat.NewDense(n, n, nil)
	coef := c / (2 * g.Dx())
	for i := 0; i < n; i++ {
		a.Set(i, (i+1)%n, a.At(i, (i+1)%n)-coef)
		a.Set(i, (i-1+n)%n, a.At(i, (i-1+n)%n)+coef)
	}
	return &Linear{A: a}
}

// Derivative returns A x.
func (model Linear) Derivative(t float64, state mat.Vector) mat.Vector {
	var res mat.VecDense
	res.MulVec(model.A, state)
	return &res
}

// Tangent returns A dx.
func (model Linear) Tangent(t float64, state, dx mat.Vector) mat.Vector {
	return model.Derivative(t, dx)
}

// TangentAdjoint returns Aᵗ a.
func (model Linear) TangentAdjoint(t float64, state, a mat.Vector) mat.Vector {
	var res mat.VecDense
	res.MulVec(model.A.T(), a)
	return &res
}

// StateSpaceOrder returns the number of states.
func (model Linear) StateSpaceOrder() int {
	m, _ := model.A.Dims()
	return m
}
