// Package ssm holds the model right-hand sides that the propagators of the
// simulate package integrate.
package ssm

import (
	"gonum.org/v1/gonum/mat"
)

// Model interface has three parts:
//
// 1) The f function which returns the state derivative evaluated at time t
// and state(t).
//
// 2) The Jacobian of f at state applied to a perturbation.
//
// 3) The transposed Jacobian applied to an adjoint vector.
type Model interface {
	Derivative(t float64, state mat.Vector) mat.Vector
	Tangent(t float64, state, dx mat.Vector) mat.Vector
	TangentAdjoint(t float64, state, a mat.Vector) mat.Vector
	// Returns the state space order
	StateSpaceOrder() int
}
