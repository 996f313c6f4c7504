package assim

import (
	"math/rand/v2"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/config"
	"github.com/martndj/dVar/covariance"
	"github.com/martndj/dVar/grid"
	"github.com/martndj/dVar/minimize"
	"github.com/martndj/dVar/obs"
	"github.com/martndj/dVar/ode"
	"github.com/martndj/dVar/signal"
	"github.com/martndj/dVar/simulate"
	"github.com/martndj/dVar/ssm"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Twin is an identical twin experiment: observations are drawn from a known
// truth run of the model, then assimilated from a perturbed background.
type Twin struct {
	Grid       *grid.Grid
	Truth      []float64
	Background []float64
	Window     *obs.TimeWindowSet
	Problem    *Problem
}

// NewTwin builds the experiment described by cfg.
func NewTwin(cfg *config.Config, logger *zap.Logger) (*Twin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var gopts []grid.Option
	if cfg.Grid.Centered {
		gopts = append(gopts, grid.Centered())
	}
	g, err := grid.New(cfg.Grid.Points, cfg.Grid.Length, gopts...)
	if err != nil {
		return nil, err
	}
	var model ssm.Model
	switch cfg.Model.Kind {
	case "burgers":
		model = ssm.NewBurgers(g, cfg.Model.Viscosity)
	case "advection":
		model = ssm.NewAdvection(g, cfg.Model.Speed)
	default:
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "unknown model kind %q", cfg.Model.Kind)
	}
	scheme, _ := ode.Scheme(cfg.Model.Scheme)
	nl, err := simulate.NewLauncher(g, model, scheme, cfg.Model.Dt)
	if err != nil {
		return nil, err
	}
	tl := simulate.NewTangentLinearLauncher(nl)

	sc := cfg.Scenario
	rng := rand.New(rand.NewPCG(sc.Seed, sc.Seed+1))
	truth := signal.OnGrid(g, signal.Sum{
		signal.Constant(sc.Mean),
		signal.Gaussian{Center: g.Min() + g.L()/2, Width: sc.BumpWidth, Amplitude: sc.BumpAmplitude},
	})
	background, err := signal.RandomSpectral(g, sc.BackgroundNtrc, sc.BackgroundAmplitude, rng)
	if err != nil {
		return nil, err
	}
	floats.AddConst(sc.Mean, background)

	window, err := observe(cfg.Observations, g, truth, nl, rng)
	if err != nil {
		return nil, err
	}
	b, err := covariance.NewUniform(g, cfg.Background.LengthScale, cfg.Background.Sigma)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithLogger(logger)}
	if cfg.Minimizer.MaxGradNorm > 0 {
		opts = append(opts, WithMaxGradNorm(cfg.Minimizer.MaxGradNorm))
	}
	p, err := New(background, b, window, nl, tl, opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("twin experiment ready",
		zap.Int("points", g.N()),
		zap.String("model", cfg.Model.Kind),
		zap.Int("observations", window.NObs()),
		zap.Float64("lengthScale", cfg.Background.LengthScale),
	)
	return &Twin{Grid: g, Truth: truth, Background: background, Window: window, Problem: p}, nil
}

// observe draws noisy observations of the truth trajectory.
func observe(cfg config.ObservationsConfig, g *grid.Grid, truth []float64, nl *simulate.Launcher, rng *rand.Rand) (*obs.TimeWindowSet, error) {
	op := obs.CoordinateSample()
	coords := obs.HomogeneousSampling(g, cfg.Count)
	if cfg.Operator == "identity" {
		op, coords = obs.Identity(), g.X()
	} else if cfg.Random {
		var err error
		if coords, err = obs.RandomSampling(g, cfg.Count, cfg.Precision, rng); err != nil {
			return nil, err
		}
	}
	metric := obs.WithScalarMetric(1 / (cfg.Sigma * cfg.Sigma))

	build := func(values func(i int) []float64) (*obs.TimeWindowSet, error) {
		entries := make([]obs.Entry, len(cfg.Times))
		for i, t := range cfg.Times {
			s, err := obs.NewStaticSet(coords, values(i), obs.WithOperator(op), metric)
			if err != nil {
				return nil, err
			}
			entries[i] = obs.Entry{Time: t, Set: s}
		}
		return obs.NewTimeWindowSet(entries...)
	}
	window, err := build(func(int) []float64 { return make([]float64, len(coords)) })
	if err != nil || window.IsEmpty() {
		return window, err
	}
	hx, err := window.ModelEquivalent(truth, nl, 0)
	if err != nil {
		return nil, err
	}
	// Entries come back sorted by time.
	byTime := make(map[float64][]float64, len(hx))
	for _, s := range hx {
		byTime[s.Time] = obs.Degrade(s.Values, 0, cfg.Sigma, rng)
	}
	return build(func(i int) []float64 { return byTime[cfg.Times[i]] })
}

// MinimizerOptions translates the minimizer configuration.
func MinimizerOptions(cfg config.MinimizerConfig) []minimize.Option {
	return []minimize.Option{
		minimize.WithMaxIterations(cfg.MaxIterations),
		minimize.WithGradientThreshold(cfg.GradientThreshold),
		minimize.WithHistory(cfg.CaptureHistory),
		minimize.WithGradientTest(cfg.GradientTest, cfg.TestMaxPower, cfg.TestMinPower),
	}
}

// Run analyses the twin from the background.
func (tw *Twin) Run(m *minimize.Minimizer) (*Analysis, error) {
	return tw.Problem.Analyse(m, nil)
}

// Errors returns the distance to the truth of the background and of the
// analysis.
func (tw *Twin) Errors(a *Analysis) (background, analysis float64) {
	return floats.Distance(tw.Background, tw.Truth, 2), floats.Distance(a.State, tw.Truth, 2)
}
