package simulate

import (
	"math"

	dvar "github.com/martndj/dVar"
)

// Trajectory holds the states visited by an integration, one every Dt from T0.
type Trajectory struct {
	T0     float64
	Dt     float64
	States [][]float64
}

// Len returns the number of stored states.
func (tr *Trajectory) Len() int { return len(tr.States) }

// Times returns the time of every stored state.
func (tr *Trajectory) Times() []float64 {
	t := make([]float64, len(tr.States))
	for k := range t {
		t[k] = tr.T0 + float64(k)*tr.Dt
	}
	return t
}

// Final returns the last state.
func (tr *Trajectory) Final() []float64 {
	return clone(tr.States[len(tr.States)-1])
}

// WhereTime returns the state at time t.
func (tr *Trajectory) WhereTime(t float64) ([]float64, error) {
	k := math.Round((t - tr.T0) / tr.Dt)
	if math.Abs(tr.T0+k*tr.Dt-t) > stepTolerance*tr.Dt || k < 0 || int(k) >= len(tr.States) {
		return nil, dvar.Precondition(dvar.CodeTrajectoryRange, "time %v is not a stored time of the trajectory", t)
	}
	return clone(tr.States[int(k)]), nil
}
