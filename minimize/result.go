package minimize

import (
	"encoding/gob"
	"fmt"
	"io"
	"strings"

	dvar "github.com/martndj/dVar"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// WarnFlag reports how a minimization ended. Non-convergence is not an
// error, the caller decides what to do with the result.
type WarnFlag int

const (
	// WarnNone means the minimizer converged.
	WarnNone WarnFlag = iota
	// WarnIterationLimit means the iteration cap was reached.
	WarnIterationLimit
	// WarnNoProgress means the cost or its gradient stopped changing before
	// convergence, typically a line search failure.
	WarnNoProgress
	// WarnNaN means a NaN was met.
	WarnNaN
)

func (w WarnFlag) String() string {
	switch w {
	case WarnNone:
		return "none"
	case WarnIterationLimit:
		return "iteration_limit"
	case WarnNoProgress:
		return "no_progress"
	case WarnNaN:
		return "nan"
	}
	return fmt.Sprintf("WarnFlag(%d)", int(w))
}

// Result is the record of one minimization.
type Result struct {
	xOpt          []float64
	fOpt          float64
	gOpt          []float64
	invHessian    *mat.SymDense
	fCalls        int
	gCalls        int
	warn          WarnFlag
	maxIterations int
	iterates      [][]float64
	convergence   []float64
}

// NewResult builds a result. convergence, the cost at every iterate, may
// only be given together with iterates.
func NewResult(xOpt []float64, fOpt float64, gOpt []float64, invHessian *mat.SymDense,
	fCalls, gCalls int, warn WarnFlag, maxIterations int,
	iterates [][]float64, convergence []float64) (*Result, error) {
	if convergence != nil && iterates == nil {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "convergence history without iterates")
	}
	if convergence != nil && len(convergence) != len(iterates) {
		return nil, dvar.Configuration(dvar.CodeLengthMismatch, "%d convergence values for %d iterates", len(convergence), len(iterates))
	}
	if len(gOpt) != len(xOpt) {
		return nil, dvar.Configuration(dvar.CodeLengthMismatch, "gradient has length %d, point has %d", len(gOpt), len(xOpt))
	}
	return &Result{
		xOpt:          xOpt,
		fOpt:          fOpt,
		gOpt:          gOpt,
		invHessian:    invHessian,
		fCalls:        fCalls,
		gCalls:        gCalls,
		warn:          warn,
		maxIterations: maxIterations,
		iterates:      iterates,
		convergence:   convergence,
	}, nil
}

// XOpt returns the optimal point.
func (r *Result) XOpt() []float64 { return clone(r.xOpt) }

// FOpt returns the cost at the optimal point.
func (r *Result) FOpt() float64 { return r.fOpt }

// GOpt returns the gradient at the optimal point.
func (r *Result) GOpt() []float64 { return clone(r.gOpt) }

// GradientNorm returns the Euclidean norm of GOpt.
func (r *Result) GradientNorm() float64 { return floats.Norm(r.gOpt, 2) }

// InvHessian returns the BFGS approximation of the inverse Hessian at the
// optimum, nil if none was recorded.
func (r *Result) InvHessian() *mat.SymDense {
	if r.invHessian == nil {
		return nil
	}
	m := mat.NewSymDense(r.invHessian.SymmetricDim(), nil)
	m.CopySym(r.invHessian)
	return m
}

// FCalls returns the number of cost evaluations.
func (r *Result) FCalls() int { return r.fCalls }

// GCalls returns the number of gradient evaluations.
func (r *Result) GCalls() int { return r.gCalls }

// Warn returns the termination flag.
func (r *Result) Warn() WarnFlag { return r.warn }

// MaxIterations returns the iteration cap the run used.
func (r *Result) MaxIterations() int { return r.maxIterations }

// Iterates returns every visited point when history was captured.
func (r *Result) Iterates() [][]float64 {
	if r.iterates == nil {
		return nil
	}
	res := make([][]float64, len(r.iterates))
	for i, x := range r.iterates {
		res[i] = clone(x)
	}
	return res
}

// Convergence returns the cost at every iterate when history was captured.
func (r *Result) Convergence() []float64 { return clone(r.convergence) }

func (r *Result) String() string {
	var b strings.Builder
	if r.warn != WarnNone {
		fmt.Fprintf(&b, "warning %s\n", r.warn)
	}
	fmt.Fprintf(&b, "function value=%g\n", r.fOpt)
	fmt.Fprintf(&b, "gradient norm=%g\n", r.GradientNorm())
	fmt.Fprintf(&b, "function calls=%d\n", r.fCalls)
	fmt.Fprintf(&b, "gradient calls=%d", r.gCalls)
	return b.String()
}

// Dump writes the result as a gob stream in the order xOpt, fOpt, gOpt,
// inverse Hessian, fCalls, gCalls, warning flag, iteration cap, iterates,
// convergence. Absent optional fields are preceded by a false presence flag.
func (r *Result) Dump(w io.Writer) error {
	enc := gob.NewEncoder(w)
	var hess []byte
	if r.invHessian != nil {
		b, err := mat.DenseCopyOf(r.invHessian).MarshalBinary()
		if err != nil {
			return err
		}
		hess = b
	}
	values := []interface{}{
		nonNil(r.xOpt), r.fOpt, nonNil(r.gOpt),
		hess != nil, nonNilBytes(hess),
		r.fCalls, r.gCalls, int(r.warn), r.maxIterations,
		r.iterates != nil, nonNilMatrix(r.iterates),
		r.convergence != nil, nonNil(r.convergence),
	}
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// LoadResult reads a result written by Dump.
func LoadResult(r io.Reader) (*Result, error) {
	dec := gob.NewDecoder(r)
	var (
		xOpt, gOpt, convergence       []float64
		fOpt                          float64
		hasHess, hasIt, hasConv       bool
		hess                          []byte
		fCalls, gCalls, warn, maxIter int
		iterates                      [][]float64
	)
	targets := []interface{}{
		&xOpt, &fOpt, &gOpt,
		&hasHess, &hess,
		&fCalls, &gCalls, &warn, &maxIter,
		&hasIt, &iterates,
		&hasConv, &convergence,
	}
	for _, v := range targets {
		if err := dec.Decode(v); err != nil {
			return nil, dvar.Configuration(dvar.CodeInvalidPersistence, "cannot decode minimization result").WithCause(err)
		}
	}
	var invHessian *mat.SymDense
	if hasHess {
		var d mat.Dense
		if err := d.UnmarshalBinary(hess); err != nil {
			return nil, dvar.Configuration(dvar.CodeInvalidPersistence, "cannot decode inverse Hessian").WithCause(err)
		}
		n, c := d.Dims()
		if n != c {
			return nil, dvar.Configuration(dvar.CodeInvalidPersistence, "inverse Hessian is %dx%d", n, c)
		}
		invHessian = mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				invHessian.SetSym(i, j, d.At(i, j))
			}
		}
	}
	if !hasIt {
		iterates = nil
	} else if iterates == nil {
		iterates = [][]float64{}
	}
	if !hasConv {
		convergence = nil
	} else if convergence == nil {
		convergence = []float64{}
	}
	if xOpt == nil {
		xOpt = []float64{}
	}
	if gOpt == nil {
		gOpt = []float64{}
	}
	return NewResult(xOpt, fOpt, gOpt, invHessian, fCalls, gCalls, WarnFlag(warn), maxIter, iterates, convergence)
}

func clone(x []float64) []float64 {
	if x == nil {
		return nil
	}
	c := make([]float64, len(x))
	copy(c, x)
	return c
}

func nonNil(x []float64) []float64 {
	if x == nil {
		return []float64{}
	}
	return x
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func nonNilMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return [][]float64{}
	}
	return m
}
