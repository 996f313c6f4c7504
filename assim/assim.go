// Package assim assembles the 4D-Var cost function in control space,
//
//	J(xi) = 0.5 xiᵗxi + 0.5 Σ_t |y_t - H_t M_t(x_b + B^{1/2} xi)|²_R,
//
// and minimizes it.
package assim

import (
	"math"
	"sync"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/cost"
	"github.com/martndj/dVar/covariance"
	"github.com/martndj/dVar/gonumExtensions"
	"github.com/martndj/dVar/minimize"
	"github.com/martndj/dVar/obs"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Problem is a 4D-Var analysis problem over one assimilation window.
type Problem struct {
	background []float64
	b          *covariance.Operator
	window     *obs.TimeWindowSet
	nl         obs.Propagator
	tl         obs.TangentLinearPropagator
	t0         float64

	maxGradNorm float64
	capped      bool
	logger      *zap.Logger

	mu  sync.Mutex
	err error
}

// Option configures a Problem.
type Option func(*Problem)

// WithStart sets the time of the background state, 0 by default.
func WithStart(t0 float64) Option {
	return func(p *Problem) { p.t0 = t0 }
}

// WithMaxGradNorm caps the gradient of the observation term.
func WithMaxGradNorm(v float64) Option {
	return func(p *Problem) { p.maxGradNorm, p.capped = v, true }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Problem) { p.logger = l }
}

// New returns the problem of correcting the background state xb, of error
// covariance B, with the observations of window. nl integrates the model and
// tl its tangent linear, both on the grid of B.
func New(xb []float64, b *covariance.Operator, window *obs.TimeWindowSet, nl obs.Propagator, tl obs.TangentLinearPropagator, opts ...Option) (*Problem, error) {
	if b == nil || window == nil || nl == nil || tl == nil {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "covariance, observations and propagators are required")
	}
	n := b.Grid().N()
	if len(xb) != n {
		return nil, dvar.Configuration(dvar.CodeLengthMismatch, "background has length %d, grid has %d points", len(xb), n)
	}
	if !nl.Grid().Equal(b.Grid()) || !tl.Grid().Equal(b.Grid()) {
		return nil, dvar.Configuration(dvar.CodeShapeMismatch, "propagators and covariance live on different grids")
	}
	if gonumExtensions.HasNaNOrInf(xb) {
		return nil, dvar.Configuration(dvar.CodeNonFinite, "background has non-finite entries")
	}
	p := &Problem{
		background: clone(xb),
		b:          b,
		window:     window,
		nl:         nl,
		tl:         tl,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.capped && !(p.maxGradNorm > 0) {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "gradient cap must be positive, got %v", p.maxGradNorm)
	}
	if tMin, _, ok := window.Bounds(); ok && tMin < p.t0 && !obs.SameTime(tMin, p.t0) {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "observation time %v precedes the window start %v", tMin, p.t0)
	}
	return p, nil
}

// Background returns the background state.
func (p *Problem) Background() []float64 { return clone(p.background) }

// Window returns the observations.
func (p *Problem) Window() *obs.TimeWindowSet { return p.window }

// State returns x_b + B^{1/2} xi.
func (p *Problem) State(xi []float64) ([]float64, error) {
	dx, err := p.b.ApplySqrt(xi)
	if err != nil {
		return nil, err
	}
	floats.Add(dx, p.background)
	return dx, nil
}

// BackgroundTerm returns 0.5 xiᵗxi.
func (p *Problem) BackgroundTerm() *cost.Term { return cost.Trivial() }

// ObservationTerm returns the misfit to the observations of the state of
// control xi. The optimizer gives the cost functions no way to fail: an error
// in the model or in an operator makes them return NaN and is kept, see Err.
func (p *Problem) ObservationTerm() (*cost.Term, error) {
	var opts []cost.Option
	if p.capped {
		opts = append(opts, cost.WithMaxGradNorm(p.maxGradNorm))
	}
	if p.window.IsEmpty() {
		return cost.New(
			func([]float64) float64 { return 0 },
			func(grad, _ []float64) {
				for i := range grad {
					grad[i] = 0
				}
			}, opts...)
	}
	return cost.New(
		func(xi []float64) float64 {
			j, err := p.observationCost(xi)
			if err != nil {
				p.fail(err)
				return math.NaN()
			}
			return j
		},
		func(grad, xi []float64) {
			g, err := p.observationGradient(xi)
			if err != nil {
				p.fail(err)
				for i := range grad {
					grad[i] = math.NaN()
				}
				return
			}
			copy(grad, g)
		}, opts...)
}

// Cost returns the sum of the background and observation terms.
func (p *Problem) Cost() (*cost.Term, error) {
	jo, err := p.ObservationTerm()
	if err != nil {
		return nil, err
	}
	return p.BackgroundTerm().Sum(jo), nil
}

func (p *Problem) observationCost(xi []float64) (float64, error) {
	x, err := p.State(xi)
	if err != nil {
		return 0, err
	}
	d, err := p.window.Innovation(x, p.nl, p.t0)
	if err != nil {
		return 0, err
	}
	n2, err := p.window.SquareNorm(d)
	if err != nil {
		return 0, err
	}
	return 0.5 * n2, nil
}

// observationGradient returns -B^{1/2}ᵗ Mᵗ Hᵗ R d.
func (p *Problem) observationGradient(xi []float64) ([]float64, error) {
	x, err := p.State(xi)
	if err != nil {
		return nil, err
	}
	d, err := p.window.Innovation(x, p.nl, p.t0)
	if err != nil {
		return nil, err
	}
	rd, err := p.window.ApplyMetric(d)
	if err != nil {
		return nil, err
	}
	adj, err := p.window.ModelEquivalentAdjoint(rd, x, p.nl, p.tl, p.t0)
	if err != nil {
		return nil, err
	}
	grad, err := p.b.ApplySqrtAdjoint(adj)
	if err != nil {
		return nil, err
	}
	floats.Scale(-1, grad)
	return grad, nil
}

// Departures returns the incremental departures
//
//	d_t = y_t - H_t M_t(x_b) - H_t M'_t B^{1/2} xi,
//
// the tangent linear model being linearized around the background
// trajectory.
func (p *Problem) Departures(xi []float64) (obs.Series, error) {
	if p.window.IsEmpty() {
		return nil, dvar.Precondition(dvar.CodeEmptyWindow, "no observation time in the window")
	}
	dx, err := p.b.ApplySqrt(xi)
	if err != nil {
		return nil, err
	}
	d, err := p.window.Innovation(p.background, p.nl, p.t0)
	if err != nil {
		return nil, err
	}
	_, tMax, _ := p.window.Bounds()
	traj, err := p.nl.Integrate(p.background, math.Max(tMax-p.t0, 0), p.t0)
	if err != nil {
		return nil, err
	}
	if err := p.tl.Reference(traj); err != nil {
		return nil, err
	}
	hdx, err := p.window.ModelEquivalent(dx, p.tl, p.t0)
	if err != nil {
		return nil, err
	}
	for i := range d {
		if len(hdx[i].Values) != len(d[i].Values) {
			return nil, dvar.LengthMismatch("tangent-linear model equivalent", len(hdx[i].Values), len(d[i].Values))
		}
		floats.Sub(d[i].Values, hdx[i].Values)
	}
	return d, nil
}

// Err returns the first error met by the cost functions since the last
// analysis.
func (p *Problem) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Problem) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
		p.logger.Error("cost evaluation failed", zap.Error(err))
	}
}

func (p *Problem) reset() {
	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()
}

// Analysis is the outcome of Analyse.
type Analysis struct {
	// Control is the optimal control vector xi.
	Control []float64
	// State is x_b + B^{1/2} Control.
	State  []float64
	Result *minimize.Result
}

// Analyse minimizes the cost from xi0, the null control when xi0 is nil.
func (p *Problem) Analyse(m *minimize.Minimizer, xi0 []float64) (*Analysis, error) {
	if xi0 == nil {
		xi0 = make([]float64, len(p.background))
	}
	if len(xi0) != len(p.background) {
		return nil, dvar.LengthMismatch("initial control", len(xi0), len(p.background))
	}
	j, err := p.Cost()
	if err != nil {
		return nil, err
	}
	p.reset()
	res, err := m.Minimize(j, xi0)
	if ferr := p.Err(); ferr != nil {
		return nil, ferr
	}
	if err != nil {
		return nil, err
	}
	xa, err := p.State(res.XOpt())
	if err != nil {
		return nil, err
	}
	p.logger.Info("analysis done",
		zap.Float64("cost", res.FOpt()),
		zap.Int("observations", p.window.NObs()),
		zap.Stringer("warn", res.Warn()),
	)
	return &Analysis{Control: res.XOpt(), State: xa, Result: res}, nil
}

func clone(x []float64) []float64 {
	c := make([]float64, len(x))
	copy(c, x)
	return c
}
