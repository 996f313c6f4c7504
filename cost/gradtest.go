package cost

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// GradientTestStep is one line of a gradient test.
type GradientTestStep struct {
	Power int
	// J is the cost at x - 10^Power grad J(x).
	J float64
	// Ratio tends to 1 as the step shrinks when the gradient is right.
	Ratio float64
}

// GradientTestReport gathers the result of GradientTest.
type GradientTestReport struct {
	J0        float64
	GradNorm2 float64
	Steps     []GradientTestStep
}

// GradientTest compares the cost decrease along the gradient with its first
// order prediction,
//
//	(J(x) - J(x - eps grad J(x))) / (eps |grad J(x)|²),
//
// for eps = 10^p with p going from maxPow down to minPow, both included. The
// raw gradient is used, ignoring any cap.
func (t *Term) GradientTest(x []float64, maxPow, minPow int) GradientTestReport {
	j0 := t.f(x)
	grad := make([]float64, len(x))
	t.grad(grad, x)
	n2 := floats.Dot(grad, grad)
	report := GradientTestReport{J0: j0, GradNorm2: n2}
	xEps := make([]float64, len(x))
	for p := maxPow; p >= minPow; p-- {
		eps := math.Pow(10, float64(p))
		floats.AddScaledTo(xEps, x, -eps, grad)
		jEps := t.f(xEps)
		report.Steps = append(report.Steps, GradientTestStep{
			Power: p,
			J:     jEps,
			Ratio: (j0 - jEps) / (eps * n2),
		})
	}
	return report
}

// At returns the step of exponent p.
func (r GradientTestReport) At(p int) (GradientTestStep, bool) {
	for _, s := range r.Steps {
		if s.Power == p {
			return s, true
		}
	}
	return GradientTestStep{}, false
}

// Log writes the report, one line per step.
func (r GradientTestReport) Log(logger *zap.Logger) {
	logger.Info("gradient test", zap.Float64("J0", r.J0), zap.Float64("gradNorm2", r.GradNorm2))
	for _, s := range r.Steps {
		logger.Info("gradient test step",
			zap.Int("power", s.Power),
			zap.Float64("J", s.J),
			zap.Float64("ratio", s.Ratio),
		)
	}
}
