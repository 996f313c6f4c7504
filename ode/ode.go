// Package ode implements explicit Runge-Kutta methods
// https://en.wikipedia.org/wiki/Runge–Kutta_methods together with their
// discrete tangent-linear and adjoint steps. The tangent-linear step is the
// exact derivative of the Runge-Kutta map, not a discretization of the
// linearized equation, so the pair passes adjoint tests to round-off.
package ode

import (
	"gonum.org/v1/gonum/mat"
)

// DifferentiableSystem is the right-hand side of x' = f(t, x).
type DifferentiableSystem interface {
	Derivative(t float64, state mat.Vector) mat.Vector
}

// Linearizable systems also provide the Jacobian of f at state applied to a
// perturbation, and its transpose applied to an adjoint vector.
type Linearizable interface {
	DifferentiableSystem
	Tangent(t float64, state, dx mat.Vector) mat.Vector
	TangentAdjoint(t float64, state, a mat.Vector) mat.Vector
}

// RungeKutta holds the butcherTableau which describes the Runge Kutta method.
type RungeKutta struct {
	Description butcherTableau
}

// Stages returns the number of stages of the method.
func (rk RungeKutta) Stages() int { return rk.Description.stages }

// weights used for stepping.
func (rk RungeKutta) weights() []float64 { return rk.Description.weights[0] }

// a returns the coefficient a_ij of the Runge-Kutta matrix, zero above the
// strict lower triangle.
func (rk RungeKutta) a(i, j int) float64 {
	row := rk.Description.rungeKuttaMatrix
	if i >= len(row) || j >= len(row[i]) {
		return 0
	}
	return row[i][j]
}

// stageStates computes the intermediate states y_i and derivative points
// k_i of one step of length h from (t, value).
func (rk RungeKutta) stageStates(t, h float64, value mat.Vector, system DifferentiableSystem) (y []*mat.VecDense, k []mat.Vector) {
	s := rk.Description.stages
	y = make([]*mat.VecDense, s)
	k = make([]mat.Vector, s)
	for i := 0; i < s; i++ {
		tmp := mat.VecDenseCopyOf(value)
		// Combine previously computed derivative points according to the
		// Butcher Tableau.
		for j := 0; j < i; j++ {
			if a := rk.a(i, j); a != 0 {
				tmp.AddScaledVec(tmp, h*a, k[j])
			}
		}
		y[i] = tmp
		k[i] = system.Derivative(t+h*rk.Description.nodes[i], tmp)
	}
	return y, k
}

// Step advances value from t to t+h.
func (rk RungeKutta) Step(t, h float64, value mat.Vector, system DifferentiableSystem) *mat.VecDense {
	_, k := rk.stageStates(t, h, value, system)
	res := mat.VecDenseCopyOf(value)
	// Sum up the different contributions with relevant weights.
	for i, b := range rk.weights() {
		if b != 0 {
			res.AddScaledVec(res, h*b, k[i])
		}
	}
	return res
}

// TangentStep propagates the perturbation dx through the step taken from
// (t, value).
func (rk RungeKutta) TangentStep(t, h float64, value, dx mat.Vector, system Linearizable) *mat.VecDense {
	y, _ := rk.stageStates(t, h, value, system)
	s := rk.Description.stages
	dk := make([]mat.Vector, s)
	for i := 0; i < s; i++ {
		dy := mat.VecDenseCopyOf(dx)
		for j := 0; j < i; j++ {
			if a := rk.a(i, j); a != 0 {
				dy.AddScaledVec(dy, h*a, dk[j])
			}
		}
		dk[i] = system.Tangent(t+h*rk.Description.nodes[i], y[i], dy)
	}
	res := mat.VecDenseCopyOf(dx)
	for i, b := range rk.weights() {
		if b != 0 {
			res.AddScaledVec(res, h*b, dk[i])
		}
	}
	return res
}

// AdjointStep is the transpose of TangentStep: it maps the adjoint of the
// state at t+h back to the adjoint of the state at t.
func (rk RungeKutta) AdjointStep(t, h float64, value, lambda mat.Vector, system Linearizable) *mat.VecDense {
	y, _ := rk.stageStates(t, h, value, system)
	s := rk.Description.stages
	b := rk.weights()
	yBar := make([]mat.Vector, s)
	res := mat.VecDenseCopyOf(lambda)
	// Stages are visited in reverse, stage i only feeds the stages j > i.
	for i := s - 1; i >= 0; i-- {
		kBar := mat.NewVecDense(lambda.Len(), nil)
		kBar.AddScaledVec(kBar, h*b[i], lambda)
		for j := i + 1; j < s; j++ {
			if a := rk.a(j, i); a != 0 {
				kBar.AddScaledVec(kBar, h*a, yBar[j])
			}
		}
		yBar[i] = system.TangentAdjoint(t+h*rk.Description.nodes[i], y[i], kBar)
		res.AddVec(res, yBar[i])
	}
	return res
}

// NewRK4 function returns a forth order Runge-Kutta object
func NewRK4() *RungeKutta {
	var temp butcherTableau
	temp.stages = 4
	temp.nodes = []float64{0, 1. / 2., 1. / 2., 1}
	temp.weights = [][]float64{{1. / 6., 1. / 3., 1. / 3., 1. / 6.}}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 2.},
		{0, 1. / 2.},
		{0, 0, 1.},
	}
	rk := RungeKutta{temp}
	return &rk
}

// NewEulerMethod returns a pointer to a Runge-Kutta that does the Euler method.
func NewEulerMethod() *RungeKutta {
	var temp butcherTableau
	temp.stages = 1
	temp.nodes = []float64{0}
	temp.weights = [][]float64{{1}}
	rk := RungeKutta{temp}
	return &rk
}

// butcherTableau which describes the approximate solution, see https://en.wikipedia.org/wiki/Runge–Kutta_methods.
type butcherTableau struct {
	stages           int
	weights          [][]float64
	nodes            []float64
	rungeKuttaMatrix [][]float64
}

// NewFehlberg45 implements https://en.wikipedia.org/wiki/Runge%E2%80%93Kutta%E2%80%93Fehlberg_method
// Steps use the fifth order weights, the step size stays fixed.
func NewFehlberg45() *RungeKutta {
	var temp butcherTableau
	temp.stages = 6
	temp.nodes = []float64{0, 1. / 4., 3. / 8., 12. / 13., 1., 1. / 2.}
	temp.weights = [][]float64{
		{16. / 135., 0, 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.},
		{25. / 216., 0, 1408. / 2565., 2197. / 4104., -1. / 5., 0},
	}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 4.},
		{3. / 32., 9. / 32.},
		{1932. / 2197., -7200. / 2197., 7296. / 2197.},
		{439. / 216., -8., 3680. / 513., -845. / 4104.},
		{-8. / 27., 2, -3544. / 2565., 1859. / 4104., -11. / 40.},
	}
	rk := RungeKutta{temp}
	return &rk
}

// Scheme returns the method registered under name: "euler", "rk4" or
// "fehlberg45".
func Scheme(name string) (*RungeKutta, bool) {
	switch name {
	case "euler":
		return NewEulerMethod(), true
	case "rk4", "":
		return NewRK4(), true
	case "fehlberg45":
		return NewFehlberg45(), true
	}
	return nil, false
}
