// Package cost implements differentiable scalar cost terms that can be summed
// and scaled to build a variational cost function.
package cost

import (
	"math"

	dvar "github.com/martndj/dVar"
	"gonum.org/v1/gonum/floats"
)

// Func evaluates a cost at x.
type Func func(x []float64) float64

// GradFunc stores the gradient of a cost at x in grad, following the
// convention of gonum/optimize.
type GradFunc func(grad, x []float64)

// Term is a cost function with its gradient. When a cap is set the norm of
// the gradient returned by Gradient never exceeds it; the direction is kept.
type Term struct {
	f           Func
	grad        GradFunc
	maxGradNorm float64
	capped      bool
}

// Option configures a Term.
type Option func(*Term)

// WithMaxGradNorm caps the norm of the gradient.
func WithMaxGradNorm(v float64) Option {
	return func(t *Term) { t.maxGradNorm, t.capped = v, true }
}

// New returns the term of cost f and gradient grad.
func New(f Func, grad GradFunc, opts ...Option) (*Term, error) {
	if f == nil || grad == nil {
		return nil, dvar.Configuration(dvar.CodeMissingAdjoint, "a cost term needs both a cost and a gradient function")
	}
	t := &Term{f: f, grad: grad}
	for _, opt := range opts {
		opt(t)
	}
	if t.capped && !(t.maxGradNorm > 0) {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "gradient cap must be positive, got %v", t.maxGradNorm)
	}
	return t, nil
}

// Trivial returns J(x) = 0.5 xᵗx.
func Trivial() *Term {
	return &Term{
		f: func(x []float64) float64 { return 0.5 * floats.Dot(x, x) },
		grad: func(grad, x []float64) {
			copy(grad, x)
		},
	}
}

// Evaluate returns J(x).
func (t *Term) Evaluate(x []float64) float64 {
	return t.f(x)
}

// Gradient stores the gradient of J at x in grad, capped if the term has a
// cap.
func (t *Term) Gradient(grad, x []float64) {
	t.grad(grad, x)
	if !t.capped {
		return
	}
	if n := floats.Norm(grad, 2); n > t.maxGradNorm {
		floats.Scale(t.maxGradNorm/n, grad)
	}
}

// GradientOf returns the gradient of J at x.
func (t *Term) GradientOf(x []float64) []float64 {
	grad := make([]float64, len(x))
	t.Gradient(grad, x)
	return grad
}

// MaxGradNorm returns the gradient cap, ok is false when there is none.
func (t *Term) MaxGradNorm() (v float64, ok bool) {
	return t.maxGradNorm, t.capped
}

// Sum returns the term t + o. Each operand contributes its own, possibly
// capped, gradient. The sum is capped by the smaller of the two caps.
func (t *Term) Sum(o *Term) *Term {
	s := &Term{
		f: func(x []float64) float64 { return t.Evaluate(x) + o.Evaluate(x) },
		grad: func(grad, x []float64) {
			t.Gradient(grad, x)
			tmp := make([]float64, len(x))
			o.Gradient(tmp, x)
			floats.Add(grad, tmp)
		},
	}
	switch {
	case t.capped && o.capped:
		s.maxGradNorm, s.capped = math.Min(t.maxGradNorm, o.maxGradNorm), true
	case t.capped:
		s.maxGradNorm, s.capped = t.maxGradNorm, true
	case o.capped:
		s.maxGradNorm, s.capped = o.maxGradNorm, true
	}
	return s
}

// Scale returns the term a t, without cap.
func (t *Term) Scale(a float64) *Term {
	return &Term{
		f: func(x []float64) float64 { return a * t.Evaluate(x) },
		grad: func(grad, x []float64) {
			t.Gradient(grad, x)
			floats.Scale(a, grad)
		},
	}
}
