// Package minimize drives a cost term to a local minimum with the BFGS
// quasi-Newton method of gonum/optimize and records the run.
package minimize

import (
	"math"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/cost"
	"github.com/martndj/dVar/gonumExtensions"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Defaults of a Minimizer.
const (
	DefaultMaxIterations     = 50
	DefaultGradientThreshold = 1e-5
	DefaultTestMaxPower      = -1
	DefaultTestMinPower      = -14
)

// Minimizer minimizes cost terms.
type Minimizer struct {
	maxIterations     int
	gradientThreshold float64
	captureHistory    bool
	gradientTest      bool
	testMaxPow        int
	testMinPow        int
	logger            *zap.Logger
	metrics           *Metrics
}

// Option configures a Minimizer.
type Option func(*Minimizer)

// WithMaxIterations caps the number of BFGS iterations.
func WithMaxIterations(n int) Option {
	return func(m *Minimizer) { m.maxIterations = n }
}

// WithGradientThreshold stops the minimization once the infinity norm of the
// gradient falls below v.
func WithGradientThreshold(v float64) Option {
	return func(m *Minimizer) { m.gradientThreshold = v }
}

// WithHistory keeps every iterate and its cost in the result.
func WithHistory(capture bool) Option {
	return func(m *Minimizer) { m.captureHistory = capture }
}

// WithGradientTest runs the gradient test before and after the minimization,
// for step exponents from maxPow down to minPow.
func WithGradientTest(run bool, maxPow, minPow int) Option {
	return func(m *Minimizer) {
		m.gradientTest = run
		m.testMaxPow, m.testMinPow = maxPow, minPow
	}
}

// WithLogger sets the logger, a no-op logger by default.
func WithLogger(l *zap.Logger) Option {
	return func(m *Minimizer) { m.logger = l }
}

// WithMetrics records every run in metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Minimizer) { m.metrics = metrics }
}

// New returns a minimizer. By default it captures the history and does not
// run gradient tests.
func New(opts ...Option) *Minimizer {
	m := &Minimizer{
		maxIterations:     DefaultMaxIterations,
		gradientThreshold: DefaultGradientThreshold,
		captureHistory:    true,
		testMaxPow:        DefaultTestMaxPower,
		testMinPow:        DefaultTestMinPower,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Minimize runs BFGS on t from x0. Reaching the iteration cap or stalling is
// reported by the warning flag of the result, not as an error.
func (m *Minimizer) Minimize(t *cost.Term, x0 []float64) (*Result, error) {
	if len(x0) == 0 {
		return nil, dvar.Precondition(dvar.CodeInvalidArgument, "empty initial guess")
	}
	if gonumExtensions.HasNaNOrInf(x0) {
		return nil, dvar.Precondition(dvar.CodeNonFinite, "initial guess has non-finite entries")
	}
	if m.maxIterations <= 0 {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "iteration cap must be positive, got %d", m.maxIterations)
	}

	if m.gradientTest {
		t.GradientTest(x0, m.testMaxPow, m.testMinPow).Log(m.logger)
	}

	rec := &recorder{}
	problem := optimize.Problem{Func: t.Evaluate, Grad: t.Gradient}
	settings := &optimize.Settings{
		MajorIterations:   m.maxIterations,
		GradientThreshold: m.gradientThreshold,
		Recorder:          rec,
	}
	res, err := optimize.Minimize(problem, clone(x0), settings, &optimize.BFGS{})
	if res == nil {
		return nil, dvar.Precondition(dvar.CodeNonFinite, "minimization could not start").WithCause(err)
	}
	warn := warnFlag(res, err)
	if err != nil {
		m.logger.Debug("minimizer stopped", zap.Error(err), zap.String("status", res.Status.String()))
	}

	gOpt := clone(res.Gradient)
	if len(gOpt) != len(res.X) {
		gOpt = t.GradientOf(res.X)
	}
	var iterates [][]float64
	var convergence []float64
	if m.captureHistory {
		iterates, convergence = rec.iterates, rec.values
		if iterates == nil {
			iterates, convergence = [][]float64{}, []float64{}
		}
	}
	result, err := NewResult(clone(res.X), res.F, gOpt, rec.invHessian(len(x0)),
		res.Stats.FuncEvaluations, res.Stats.GradEvaluations, warn, m.maxIterations,
		iterates, convergence)
	if err != nil {
		return nil, err
	}
	m.logger.Info("minimization done",
		zap.Float64("cost", result.FOpt()),
		zap.Float64("gradNorm", result.GradientNorm()),
		zap.Int("iterations", res.Stats.MajorIterations),
		zap.Int("fCalls", result.FCalls()),
		zap.Int("gCalls", result.GCalls()),
		zap.Stringer("warn", warn),
	)
	if m.metrics != nil {
		m.metrics.observe(result, res.Stats.MajorIterations)
	}

	if m.gradientTest {
		if warn == WarnNoProgress {
			m.logger.Warn("gradient and/or function calls not changing, skipping final gradient test")
		} else {
			t.GradientTest(result.xOpt, m.testMaxPow, m.testMinPow).Log(m.logger)
		}
	}
	return result, nil
}

func warnFlag(res *optimize.Result, err error) WarnFlag {
	if math.IsNaN(res.F) || gonumExtensions.HasNaNOrInf(res.X) || gonumExtensions.HasNaNOrInf(res.Gradient) {
		return WarnNaN
	}
	if res.Status == optimize.IterationLimit {
		return WarnIterationLimit
	}
	if err != nil || res.Status == optimize.Failure {
		return WarnNoProgress
	}
	return WarnNone
}

// recorder replays the BFGS inverse Hessian update from the successive
// major iterations, gonum keeping its own estimate private, and keeps the
// history of iterates.
type recorder struct {
	x, g     []float64
	invHess  *mat.SymDense
	first    bool
	iterates [][]float64
	values   []float64
}

func (r *recorder) Init() error {
	*r = recorder{}
	return nil
}

func (r *recorder) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	switch op {
	case optimize.InitIteration:
		r.x, r.g = clone(loc.X), clone(loc.Gradient)
		r.first = true
	case optimize.MajorIteration:
		r.update(loc)
	default:
		return nil
	}
	r.iterates = append(r.iterates, clone(loc.X))
	r.values = append(r.values, loc.F)
	return nil
}

func (r *recorder) update(loc *optimize.Location) {
	n := len(loc.X)
	if len(r.x) != n || len(r.g) != n || len(loc.Gradient) != n {
		r.x, r.g = clone(loc.X), clone(loc.Gradient)
		return
	}
	s := mat.NewVecDense(n, nil)
	s.SubVec(mat.NewVecDense(n, loc.X), mat.NewVecDense(n, r.x))
	y := mat.NewVecDense(n, nil)
	y.SubVec(mat.NewVecDense(n, loc.Gradient), mat.NewVecDense(n, r.g))
	sDotY := mat.Dot(s, y)
	if r.invHess == nil {
		r.invHess = gonumExtensions.Eye(n)
	}
	if r.first {
		// Same initial rescaling as gonum's BFGS.
		if yDotY := mat.Dot(y, y); yDotY != 0 {
			r.invHess = gonumExtensions.ScaledEye(n, sDotY/yDotY)
		}
		r.first = false
	}
	if sDotY != 0 {
		yBy := mat.Inner(y, r.invHess, y)
		var hy mat.VecDense
		hy.MulVec(r.invHess, y)
		scale := (1 + yBy/sDotY) / sDotY
		r.invHess.SymRankOne(r.invHess, scale, s)
		r.invHess.RankTwo(r.invHess, -1/sDotY, &hy, s)
	}
	r.x, r.g = clone(loc.X), clone(loc.Gradient)
}

// invHessian returns the replayed estimate, the identity when no step was
// taken.
func (r *recorder) invHessian(n int) *mat.SymDense {
	if r.invHess == nil {
		return gonumExtensions.Eye(n)
	}
	return r.invHess
}
