package obs

import (
	"fmt"
	"math"
	"sort"
	"strings"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/grid"
	"github.com/martndj/dVar/simulate"
	"gonum.org/v1/gonum/floats"
)

// TimeTolerance is the relative tolerance under which two observation times
// are the same key.
const TimeTolerance = 1e-9

// SameTime reports whether a and b denote the same observation time.
func SameTime(a, b float64) bool {
	return math.Abs(a-b) <= TimeTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// Propagator integrates model states forward in time.
type Propagator interface {
	Grid() *grid.Grid
	Integrate(x []float64, duration, t0 float64) (*simulate.Trajectory, error)
}

// TangentLinearPropagator integrates perturbations about a reference
// trajectory and maps final-time adjoints back to initial-time adjoints.
type TangentLinearPropagator interface {
	Propagator
	Reference(traj *simulate.Trajectory) error
	IsReferenced() bool
	Adjoint(a []float64, duration, t0 float64) ([]float64, error)
}

// Entry is a static set observed at Time.
type Entry struct {
	Time float64
	Set  *StaticSet
}

// Sample is a vector attached to an observation time.
type Sample struct {
	Time   float64
	Values []float64
}

// Series holds one vector per observation time, in ascending time order.
type Series []Sample

// Times returns the times of the series.
func (s Series) Times() []float64 {
	t := make([]float64, len(s))
	for i := range s {
		t[i] = s[i].Time
	}
	return t
}

// At returns the vector at time t.
func (s Series) At(t float64) ([]float64, bool) {
	for _, smp := range s {
		if SameTime(smp.Time, t) {
			return smp.Values, true
		}
	}
	return nil, false
}

// TimeWindowSet is a time-ordered collection of static sets sharing one
// observation operator. It is immutable once built.
type TimeWindowSet struct {
	entries []Entry
	nObs    int
}

// NewTimeWindowSet builds a set from its entries, which may come in any
// order. Without entries the set is valid and empty.
func NewTimeWindowSet(entries ...Entry) (*TimeWindowSet, error) {
	es := make([]Entry, len(entries))
	copy(es, entries)
	for _, e := range es {
		if e.Set == nil {
			return nil, dvar.Configuration(dvar.CodeInvalidArgument, "no observations at time %v", e.Time)
		}
		if math.IsNaN(e.Time) || math.IsInf(e.Time, 0) {
			return nil, dvar.Configuration(dvar.CodeInvalidArgument, "invalid observation time %v", e.Time)
		}
	}
	sort.SliceStable(es, func(i, j int) bool { return es[i].Time < es[j].Time })
	tw := &TimeWindowSet{entries: es}
	for i, e := range es {
		if i > 0 && SameTime(es[i-1].Time, e.Time) {
			return nil, dvar.Configuration(dvar.CodeDuplicateTime, "observation time %v given twice", e.Time)
		}
		if !e.Set.Operator().Equal(es[0].Set.Operator()) {
			return nil, dvar.Configuration(dvar.CodeOperatorMismatch,
				"observations at %v use operator %s, expected %s", e.Time, e.Set.Operator(), es[0].Set.Operator())
		}
		tw.nObs += e.Set.NObs()
	}
	return tw, nil
}

// IsEmpty reports whether the set has no observation time.
func (tw *TimeWindowSet) IsEmpty() bool { return len(tw.entries) == 0 }

// Len returns the number of observation times.
func (tw *TimeWindowSet) Len() int { return len(tw.entries) }

// NObs returns the total number of observations.
func (tw *TimeWindowSet) NObs() int { return tw.nObs }

// Times returns the observation times in ascending order.
func (tw *TimeWindowSet) Times() []float64 {
	t := make([]float64, len(tw.entries))
	for i, e := range tw.entries {
		t[i] = e.Time
	}
	return t
}

// Entries returns the (time, set) pairs in ascending time order.
func (tw *TimeWindowSet) Entries() []Entry {
	es := make([]Entry, len(tw.entries))
	copy(es, tw.entries)
	return es
}

// Bounds returns the first and last observation times. ok is false for an
// empty set.
func (tw *TimeWindowSet) Bounds() (tMin, tMax float64, ok bool) {
	if tw.IsEmpty() {
		return 0, 0, false
	}
	return tw.entries[0].Time, tw.entries[len(tw.entries)-1].Time, true
}

// At returns the set observed at time t.
func (tw *TimeWindowSet) At(t float64) (*StaticSet, bool) {
	i := sort.Search(len(tw.entries), func(i int) bool {
		return tw.entries[i].Time >= t || SameTime(tw.entries[i].Time, t)
	})
	if i < len(tw.entries) && SameTime(tw.entries[i].Time, t) {
		return tw.entries[i].Set, true
	}
	return nil, false
}

// Operator returns the shared observation operator. ok is false for an empty
// set.
func (tw *TimeWindowSet) Operator() (op Operator, ok bool) {
	if tw.IsEmpty() {
		return Operator{}, false
	}
	return tw.entries[0].Set.Operator(), true
}

// Values returns the observed values at every time.
func (tw *TimeWindowSet) Values() Series {
	s := make(Series, len(tw.entries))
	for i, e := range tw.entries {
		s[i] = Sample{Time: e.Time, Values: e.Set.Values()}
	}
	return s
}

// ApplyMetric applies each time's metric to the matching vector of y.
func (tw *TimeWindowSet) ApplyMetric(y Series) (Series, error) {
	if err := tw.checkKeys(y); err != nil {
		return nil, err
	}
	res := make(Series, len(y))
	for i, e := range tw.entries {
		v, err := e.Set.ApplyMetric(y[i].Values)
		if err != nil {
			return nil, err
		}
		res[i] = Sample{Time: e.Time, Values: v}
	}
	return res, nil
}

// checkKeys verifies that y has exactly the observation times of tw.
func (tw *TimeWindowSet) checkKeys(y Series) error {
	if len(y) != len(tw.entries) {
		return dvar.Precondition(dvar.CodeTimeKeysMismatch, "%d times given, the window has %d", len(y), len(tw.entries))
	}
	for i, e := range tw.entries {
		if !SameTime(y[i].Time, e.Time) {
			return dvar.Precondition(dvar.CodeTimeKeysMismatch, "time %v given where %v was expected", y[i].Time, e.Time)
		}
	}
	return nil
}

func (tw *TimeWindowSet) checkPropagator(p Propagator) error {
	if tw.IsEmpty() {
		return dvar.Precondition(dvar.CodeEmptyWindow, "no observation time in the window")
	}
	if tlp, ok := p.(TangentLinearPropagator); ok && !tlp.IsReferenced() {
		return dvar.Precondition(dvar.CodeUnreferenced, "tangent-linear propagator is not referenced")
	}
	return nil
}

// Propagate integrates x0 from t0 through every observation time and returns
// the state at each of them.
func (tw *TimeWindowSet) Propagate(x0 []float64, p Propagator, t0 float64) (Series, error) {
	if err := tw.checkPropagator(p); err != nil {
		return nil, err
	}
	if tMin, _, _ := tw.Bounds(); tMin < t0 && !SameTime(tMin, t0) {
		return nil, dvar.Precondition(dvar.CodeInvalidArgument, "observation time %v precedes the window start %v", tMin, t0)
	}
	res := make(Series, len(tw.entries))
	x := x0
	tPre := t0
	for i, e := range tw.entries {
		if SameTime(e.Time, tPre) {
			x = clone(x)
		} else {
			traj, err := p.Integrate(x, e.Time-tPre, tPre)
			if err != nil {
				return nil, err
			}
			x = traj.Final()
		}
		res[i] = Sample{Time: e.Time, Values: x}
		tPre = e.Time
	}
	return res, nil
}

// ModelEquivalent returns the model equivalent of the trajectory started
// from x at t0, at every observation time.
func (tw *TimeWindowSet) ModelEquivalent(x []float64, p Propagator, t0 float64) (Series, error) {
	states, err := tw.Propagate(x, p, t0)
	if err != nil {
		return nil, err
	}
	g := p.Grid()
	res := make(Series, len(states))
	for i, e := range tw.entries {
		hx, err := e.Set.ModelEquivalent(states[i].Values, g)
		if err != nil {
			return nil, err
		}
		res[i] = Sample{Time: e.Time, Values: hx}
	}
	return res, nil
}

// Innovation returns observations minus model equivalent at every time.
func (tw *TimeWindowSet) Innovation(x []float64, p Propagator, t0 float64) (Series, error) {
	hx, err := tw.ModelEquivalent(x, p, t0)
	if err != nil {
		return nil, err
	}
	for i, e := range tw.entries {
		if len(hx[i].Values) != e.Set.NObs() {
			return nil, dvar.LengthMismatch("model equivalent", len(hx[i].Values), e.Set.NObs())
		}
		d := e.Set.Values()
		floats.Sub(d, hx[i].Values)
		hx[i].Values = d
	}
	return hx, nil
}

// ModelEquivalentAdjoint returns the gradient, with respect to the initial
// state, of the sum over time of <res_t, H_t M_t(x)>. The nonlinear
// trajectory from x is integrated over the whole window and referenced by
// tl, then the adjoint sweeps the observation times backward: at each time
// the observation adjoint of the residual is added to the running adjoint
// state, which is carried back to the previous time.
func (tw *TimeWindowSet) ModelEquivalentAdjoint(res Series, x []float64, nl Propagator, tl TangentLinearPropagator, t0 float64) ([]float64, error) {
	if tw.IsEmpty() {
		return nil, dvar.Precondition(dvar.CodeEmptyWindow, "no observation time in the window")
	}
	if err := tw.checkKeys(res); err != nil {
		return nil, err
	}
	_, tMax, _ := tw.Bounds()
	if tMax < t0 && !SameTime(tMax, t0) {
		return nil, dvar.Precondition(dvar.CodeInvalidArgument, "observation time %v precedes the window start %v", tMax, t0)
	}
	traj, err := nl.Integrate(x, math.Max(tMax-t0, 0), t0)
	if err != nil {
		return nil, err
	}
	if err := tl.Reference(traj); err != nil {
		return nil, err
	}
	g := nl.Grid()
	m := g.Zeros()
	for i := len(tw.entries) - 1; i >= 0; i-- {
		e := tw.entries[i]
		tPre := t0
		if i > 0 {
			tPre = tw.entries[i-1].Time
		}
		w, err := e.Set.ModelEquivalentAdjoint(res[i].Values, g)
		if err != nil {
			return nil, err
		}
		if len(w) != len(m) {
			return nil, dvar.LengthMismatch("observation adjoint", len(w), len(m))
		}
		floats.Add(w, m)
		if SameTime(e.Time, tPre) {
			m = w
			continue
		}
		m, err = tl.Adjoint(w, e.Time-tPre, tPre)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InnerProduct sums the per-time metric inner products of y1 and y2.
func (tw *TimeWindowSet) InnerProduct(y1, y2 Series) (float64, error) {
	if err := tw.checkKeys(y1); err != nil {
		return 0, err
	}
	if err := tw.checkKeys(y2); err != nil {
		return 0, err
	}
	sum := 0.
	for i, e := range tw.entries {
		p, err := e.Set.InnerProduct(y1[i].Values, y2[i].Values)
		if err != nil {
			return 0, err
		}
		sum += p
	}
	return sum, nil
}

// SquareNorm returns InnerProduct(y, y).
func (tw *TimeWindowSet) SquareNorm(y Series) (float64, error) {
	return tw.InnerProduct(y, y)
}

// Norm returns the square root of SquareNorm.
func (tw *TimeWindowSet) Norm(y Series) (float64, error) {
	p, err := tw.SquareNorm(y)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(p), nil
}

// Cut returns the observations made in [tMin, tMax].
func (tw *TimeWindowSet) Cut(tMin, tMax float64) *TimeWindowSet {
	res := &TimeWindowSet{}
	for _, e := range tw.entries {
		if (e.Time >= tMin || SameTime(e.Time, tMin)) && (e.Time <= tMax || SameTime(e.Time, tMax)) {
			res.entries = append(res.entries, e)
			res.nObs += e.Set.NObs()
		}
	}
	return res
}

// Union merges two windows. Observations made at the same time are
// concatenated.
func (tw *TimeWindowSet) Union(other *TimeWindowSet) (*TimeWindowSet, error) {
	var merged []Entry
	i, j := 0, 0
	for i < len(tw.entries) || j < len(other.entries) {
		switch {
		case j == len(other.entries):
			merged = append(merged, tw.entries[i])
			i++
		case i == len(tw.entries):
			merged = append(merged, other.entries[j])
			j++
		case SameTime(tw.entries[i].Time, other.entries[j].Time):
			s, err := tw.entries[i].Set.Concatenate(other.entries[j].Set)
			if err != nil {
				return nil, err
			}
			merged = append(merged, Entry{Time: tw.entries[i].Time, Set: s})
			i++
			j++
		case tw.entries[i].Time < other.entries[j].Time:
			merged = append(merged, tw.entries[i])
			i++
		default:
			merged = append(merged, other.entries[j])
			j++
		}
	}
	return NewTimeWindowSet(merged...)
}

func (tw *TimeWindowSet) String() string {
	if tw.IsEmpty() {
		return "TimeWindowSet empty"
	}
	var b strings.Builder
	tMin, tMax, _ := tw.Bounds()
	fmt.Fprintf(&b, "TimeWindowSet nTimes=%d nObs=%d t=[%v, %v]", tw.Len(), tw.NObs(), tMin, tMax)
	for _, e := range tw.entries {
		fmt.Fprintf(&b, "\n  t=%v nObs=%d", e.Time, e.Set.NObs())
	}
	return b.String()
}
