package obs

import (
	"fmt"
	"sync"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
)

// Kind tags the family of an observation operator.
type Kind int

const (
	// KindIdentity means observation space is model space.
	KindIdentity Kind = iota
	// KindCoordinateSample picks the state at the observation coordinates.
	KindCoordinateSample
	// KindCustom is a user supplied operator and adjoint pair.
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindCoordinateSample:
		return "coordinate_sample"
	case KindCustom:
		return "custom"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Func maps a vector through an operator defined at coords with the extra
// arguments args.
type Func func(x []float64, g *grid.Grid, coords, args []float64) ([]float64, error)

// Operator is an observation operator together with its adjoint. The zero
// value is the identity.
type Operator struct {
	kind    Kind
	name    string
	args    []float64
	forward Func
	adjoint Func
}

// Identity returns the operator of observations made in model space.
func Identity() Operator { return Operator{kind: KindIdentity} }

// CoordinateSample returns the operator picking the state at the first grid
// point at or after each coordinate.
func CoordinateSample() Operator {
	return Operator{kind: KindCoordinateSample, forward: Sample, adjoint: SampleAdjoint}
}

// Custom returns a named operator. Both functions are required and must be
// exact adjoints of each other. The name identifies the operator when
// comparing sets and when loading persisted sets.
func Custom(name string, forward, adjoint Func, args ...float64) (Operator, error) {
	if forward == nil || adjoint == nil {
		return Operator{}, dvar.Configuration(dvar.CodeMissingAdjoint, "operator %q needs both a forward and an adjoint function", name)
	}
	if name == "" || name == KindIdentity.String() || name == KindCoordinateSample.String() {
		return Operator{}, dvar.Configuration(dvar.CodeInvalidArgument, "invalid custom operator name %q", name)
	}
	return Operator{kind: KindCustom, name: name, args: clone(args), forward: forward, adjoint: adjoint}, nil
}

// WithArgs returns a copy of op carrying args.
func (op Operator) WithArgs(args ...float64) Operator {
	op.args = clone(args)
	return op
}

// Kind returns the operator family.
func (op Operator) Kind() Kind { return op.kind }

// Args returns a copy of the extra arguments.
func (op Operator) Args() []float64 { return clone(op.args) }

// ID identifies the forward operator.
func (op Operator) ID() string {
	if op.kind == KindCustom {
		return op.name
	}
	return op.kind.String()
}

// AdjointID identifies the adjoint operator.
func (op Operator) AdjointID() string {
	if op.kind == KindIdentity {
		return op.ID()
	}
	return op.ID() + "_adjoint"
}

// Equal compares operators by family, name and arguments.
func (op Operator) Equal(o Operator) bool {
	if op.kind != o.kind || op.name != o.name || len(op.args) != len(o.args) {
		return false
	}
	for i := range op.args {
		if op.args[i] != o.args[i] {
			return false
		}
	}
	return true
}

func (op Operator) String() string {
	if len(op.args) == 0 {
		return op.ID()
	}
	return fmt.Sprintf("%s%v", op.ID(), op.args)
}

// Apply maps the model state x to observation space.
func (op Operator) Apply(x []float64, g *grid.Grid, coords []float64) ([]float64, error) {
	if op.kind == KindIdentity {
		return clone(x), nil
	}
	return op.forward(x, g, coords, op.args)
}

// ApplyAdjoint maps observation-space values back to model space.
func (op Operator) ApplyAdjoint(y []float64, g *grid.Grid, coords []float64) ([]float64, error) {
	if op.kind == KindIdentity {
		return clone(y), nil
	}
	return op.adjoint(y, g, coords, op.args)
}

// Sample gathers x at the grid index of every coordinate, in the order of
// coords.
func Sample(x []float64, g *grid.Grid, coords, _ []float64) ([]float64, error) {
	if len(x) != g.N() {
		return nil, dvar.LengthMismatch("state", len(x), g.N())
	}
	idx, err := g.Pos2Idx(coords)
	if err != nil {
		return nil, err
	}
	y := make([]float64, len(idx))
	for i, j := range idx {
		y[i] = x[j]
	}
	return y, nil
}

// SampleAdjoint scatters the values back to their grid index, zero elsewhere.
// Values of coordinates sharing an index add up.
func SampleAdjoint(y []float64, g *grid.Grid, coords, _ []float64) ([]float64, error) {
	if len(y) != len(coords) {
		return nil, dvar.LengthMismatch("observation values", len(y), len(coords))
	}
	idx, err := g.Pos2Idx(coords)
	if err != nil {
		return nil, err
	}
	x := g.Zeros()
	for i, j := range idx {
		x[j] += y[i]
	}
	return x, nil
}

// Registry resolves persisted operator identifiers to custom operators. The
// built-in families are always resolved.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operator
}

// DefaultRegistry is used when no registry is given to a loader.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operator)}
}

// Register adds a custom operator.
func (r *Registry) Register(op Operator) error {
	if op.kind != KindCustom {
		return dvar.Configuration(dvar.CodeInvalidArgument, "only custom operators are registered, got %s", op.kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.name] = op.WithArgs()
	return nil
}

// Lookup returns the operator of identifier id with args attached.
func (r *Registry) Lookup(id string, args []float64) (Operator, error) {
	switch id {
	case KindIdentity.String():
		return Identity().WithArgs(args...), nil
	case KindCoordinateSample.String():
		return CoordinateSample().WithArgs(args...), nil
	}
	r.mu.RLock()
	op, ok := r.ops[id]
	r.mu.RUnlock()
	if !ok {
		return Operator{}, dvar.Configuration(dvar.CodeUnknownOperator, "no operator registered as %q", id)
	}
	return op.WithArgs(args...), nil
}

func clone(x []float64) []float64 {
	if x == nil {
		return nil
	}
	c := make([]float64, len(x))
	copy(c, x)
	return c
}
