// Package simulate integrates differentiable models forward in time and
// provides the tangent-linear and adjoint propagators linearized about a
// stored reference trajectory.
//
// A Launcher integrates the nonlinear model with a fixed-step explicit
// Runge-Kutta scheme. A TangentLinearLauncher must be referenced against a
// trajectory of the same step before it can integrate perturbations or
// adjoints.
package simulate

import (
	"math"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
	"github.com/martndj/dVar/ode"
	"github.com/martndj/dVar/ssm"
	"gonum.org/v1/gonum/mat"
)

// stepTolerance is the relative slack allowed when a duration is converted
// to a number of steps.
const stepTolerance = 1e-6

// Launcher integrates a model on a grid.
type Launcher struct {
	grid   *grid.Grid
	model  ssm.Model
	method *ode.RungeKutta
	dt     float64
}

// NewLauncher returns a launcher stepping model with method and time step dt.
func NewLauncher(g *grid.Grid, model ssm.Model, method *ode.RungeKutta, dt float64) (*Launcher, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "time step must be positive, got %v", dt)
	}
	if model.StateSpaceOrder() != g.N() {
		return nil, dvar.Configuration(dvar.CodeShapeMismatch, "model has %d states, grid has %d points", model.StateSpaceOrder(), g.N())
	}
	if method == nil {
		method = ode.NewRK4()
	}
	return &Launcher{grid: g, model: model, method: method, dt: dt}, nil
}

// Grid returns the grid of the integrated states.
func (l *Launcher) Grid() *grid.Grid { return l.grid }

// Dt returns the time step.
func (l *Launcher) Dt() float64 { return l.dt }

// Integrate advances x over duration starting at t0 and returns every
// intermediate state.
func (l *Launcher) Integrate(x []float64, duration, t0 float64) (*Trajectory, error) {
	if len(x) != l.grid.N() {
		return nil, dvar.LengthMismatch("initial state", len(x), l.grid.N())
	}
	n, err := nSteps(duration, l.dt)
	if err != nil {
		return nil, err
	}
	traj := &Trajectory{T0: t0, Dt: l.dt, States: make([][]float64, n+1)}
	traj.States[0] = clone(x)
	state := mat.NewVecDense(len(x), clone(x))
	for k := 0; k < n; k++ {
		state = l.method.Step(t0+float64(k)*l.dt, l.dt, state, l.model)
		traj.States[k+1] = clone(state.RawVector().Data)
	}
	return traj, nil
}

// TangentLinearLauncher propagates perturbations and adjoints about a
// reference trajectory.
type TangentLinearLauncher struct {
	grid   *grid.Grid
	model  ssm.Model
	method *ode.RungeKutta
	dt     float64
	ref    *Trajectory
}

// NewTangentLinearLauncher returns the tangent-linear counterpart of l. It
// must be referenced before use.
func NewTangentLinearLauncher(l *Launcher) *TangentLinearLauncher {
	return &TangentLinearLauncher{grid: l.grid, model: l.model, method: l.method, dt: l.dt}
}

// Grid returns the grid of the integrated states.
func (tl *TangentLinearLauncher) Grid() *grid.Grid { return tl.grid }

// Reference sets the trajectory the model is linearized about.
func (tl *TangentLinearLauncher) Reference(traj *Trajectory) error {
	if traj == nil || len(traj.States) == 0 {
		return dvar.Precondition(dvar.CodeInvalidArgument, "empty reference trajectory")
	}
	if math.Abs(traj.Dt-tl.dt) > stepTolerance*tl.dt {
		return dvar.Precondition(dvar.CodeInvalidArgument, "reference time step %v differs from %v", traj.Dt, tl.dt)
	}
	if len(traj.States[0]) != tl.grid.N() {
		return dvar.LengthMismatch("reference state", len(traj.States[0]), tl.grid.N())
	}
	tl.ref = traj
	return nil
}

// IsReferenced reports whether a reference trajectory is set.
func (tl *TangentLinearLauncher) IsReferenced() bool { return tl.ref != nil }

// window returns the reference index of t0 after checking that n steps from
// there stay inside the reference trajectory.
func (tl *TangentLinearLauncher) window(t0 float64, n int) (int, error) {
	if tl.ref == nil {
		return 0, dvar.Precondition(dvar.CodeUnreferenced, "tangent-linear propagator used before Reference")
	}
	k0, err := nSteps(t0-tl.ref.T0, tl.dt)
	if err != nil {
		return 0, dvar.Precondition(dvar.CodeTrajectoryRange, "start time %v precedes the reference start %v", t0, tl.ref.T0).WithCause(err)
	}
	if k0+n > len(tl.ref.States)-1 {
		return 0, dvar.Precondition(dvar.CodeTrajectoryRange,
			"interval [%v, %v] exceeds the reference trajectory [%v, %v]",
			t0, t0+float64(n)*tl.dt, tl.ref.T0, tl.ref.T0+float64(len(tl.ref.States)-1)*tl.dt)
	}
	return k0, nil
}

// Integrate propagates the perturbation dx over duration from t0.
func (tl *TangentLinearLauncher) Integrate(dx []float64, duration, t0 float64) (*Trajectory, error) {
	if len(dx) != tl.grid.N() {
		return nil, dvar.LengthMismatch("perturbation", len(dx), tl.grid.N())
	}
	n, err := nSteps(duration, tl.dt)
	if err != nil {
		return nil, err
	}
	k0, err := tl.window(t0, n)
	if err != nil {
		return nil, err
	}
	traj := &Trajectory{T0: t0, Dt: tl.dt, States: make([][]float64, n+1)}
	traj.States[0] = clone(dx)
	v := mat.NewVecDense(len(dx), clone(dx))
	for k := 0; k < n; k++ {
		v = tl.step(k0+k, v)
		traj.States[k+1] = clone(v.RawVector().Data)
	}
	return traj, nil
}

// Adjoint maps the adjoint a of the state at t0+duration back to the adjoint
// of the initial condition at t0.
func (tl *TangentLinearLauncher) Adjoint(a []float64, duration, t0 float64) ([]float64, error) {
	if len(a) != tl.grid.N() {
		return nil, dvar.LengthMismatch("adjoint state", len(a), tl.grid.N())
	}
	n, err := nSteps(duration, tl.dt)
	if err != nil {
		return nil, err
	}
	k0, err := tl.window(t0, n)
	if err != nil {
		return nil, err
	}
	lambda := mat.NewVecDense(len(a), clone(a))
	for k := n - 1; k >= 0; k-- {
		lambda = tl.stepAdjoint(k0+k, lambda)
	}
	return lambda.RawVector().Data, nil
}

// IntegrateSteps propagates dx from t0 once and returns the perturbation
// after each of the step counts, which must be non-decreasing.
func (tl *TangentLinearLauncher) IntegrateSteps(dx []float64, counts []int, t0 float64) ([][]float64, error) {
	if len(dx) != tl.grid.N() {
		return nil, dvar.LengthMismatch("perturbation", len(dx), tl.grid.N())
	}
	if err := checkCounts(counts); err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, nil
	}
	k0, err := tl.window(t0, counts[len(counts)-1])
	if err != nil {
		return nil, err
	}
	res := make([][]float64, len(counts))
	v := mat.NewVecDense(len(dx), clone(dx))
	k := 0
	for i, c := range counts {
		for ; k < c; k++ {
			v = tl.step(k0+k, v)
		}
		res[i] = clone(v.RawVector().Data)
	}
	return res, nil
}

// AdjointSteps is the transpose of IntegrateSteps: given one adjoint per
// step count it returns the summed adjoint of the initial perturbation.
func (tl *TangentLinearLauncher) AdjointSteps(adjoints [][]float64, counts []int, t0 float64) ([]float64, error) {
	if len(adjoints) != len(counts) {
		return nil, dvar.LengthMismatch("adjoints", len(adjoints), len(counts))
	}
	if err := checkCounts(counts); err != nil {
		return nil, err
	}
	n := tl.grid.N()
	if len(counts) == 0 {
		return make([]float64, n), nil
	}
	k0, err := tl.window(t0, counts[len(counts)-1])
	if err != nil {
		return nil, err
	}
	lambda := mat.NewVecDense(n, nil)
	k := counts[len(counts)-1]
	for i := len(counts) - 1; i >= 0; i-- {
		for ; k > counts[i]; k-- {
			lambda = tl.stepAdjoint(k0+k-1, lambda)
		}
		if len(adjoints[i]) != n {
			return nil, dvar.LengthMismatch("adjoint state", len(adjoints[i]), n)
		}
		lambda.AddVec(lambda, mat.NewVecDense(n, adjoints[i]))
	}
	for ; k > 0; k-- {
		lambda = tl.stepAdjoint(k0+k-1, lambda)
	}
	return lambda.RawVector().Data, nil
}

func (tl *TangentLinearLauncher) step(k int, v mat.Vector) *mat.VecDense {
	x := mat.NewVecDense(tl.grid.N(), tl.ref.States[k])
	return tl.method.TangentStep(tl.ref.T0+float64(k)*tl.dt, tl.dt, x, v, tl.model)
}

func (tl *TangentLinearLauncher) stepAdjoint(k int, lambda mat.Vector) *mat.VecDense {
	x := mat.NewVecDense(tl.grid.N(), tl.ref.States[k])
	return tl.method.AdjointStep(tl.ref.T0+float64(k)*tl.dt, tl.dt, x, lambda, tl.model)
}

// nSteps converts a duration to a whole number of steps.
func nSteps(duration, dt float64) (int, error) {
	if duration < -stepTolerance*dt || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0, dvar.Precondition(dvar.CodeInvalidArgument, "invalid duration %v", duration)
	}
	n := math.Round(duration / dt)
	if math.Abs(n*dt-duration) > stepTolerance*dt {
		return 0, dvar.Precondition(dvar.CodeInvalidArgument, "duration %v is not a multiple of the time step %v", duration, dt)
	}
	return int(n), nil
}

func checkCounts(counts []int) error {
	for i, c := range counts {
		if c < 0 || (i > 0 && c < counts[i-1]) {
			return dvar.Precondition(dvar.CodeInvalidArgument, "step counts must be non-negative and non-decreasing: %v", counts)
		}
	}
	return nil
}

func clone(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}
