package obs

import (
	"encoding/gob"
	"io"

	dvar "github.com/martndj/dVar"
	"gonum.org/v1/gonum/mat"
)

// Dump writes the set as a gob stream in the order coordinates, metric,
// operator identifier, operator arguments, adjoint identifier, values.
func (s *StaticSet) Dump(w io.Writer) error {
	return s.encode(gob.NewEncoder(w))
}

func (s *StaticSet) encode(enc *gob.Encoder) error {
	var metric []byte
	if s.metric != nil {
		b, err := mat.DenseCopyOf(s.metric).MarshalBinary()
		if err != nil {
			return err
		}
		metric = b
	}
	for _, v := range []interface{}{
		nonNil(s.coords),
		s.metric != nil,
		nonNilBytes(metric),
		s.op.ID(),
		nonNil(s.op.args),
		s.op.AdjointID(),
		nonNil(s.values),
	} {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// LoadStaticSet reads a set written by Dump. Custom operators are resolved
// through reg, DefaultRegistry when nil.
func LoadStaticSet(r io.Reader, reg *Registry) (*StaticSet, error) {
	return decodeStaticSet(gob.NewDecoder(r), reg)
}

func decodeStaticSet(dec *gob.Decoder, reg *Registry) (*StaticSet, error) {
	if reg == nil {
		reg = DefaultRegistry
	}
	var (
		coords, args, values []float64
		hasMetric            bool
		metricBytes          []byte
		opID, adjID          string
	)
	for _, v := range []interface{}{&coords, &hasMetric, &metricBytes, &opID, &args, &adjID, &values} {
		if err := dec.Decode(v); err != nil {
			return nil, invalidPersistence(err)
		}
	}
	op, err := reg.Lookup(opID, args)
	if err != nil {
		return nil, err
	}
	if op.AdjointID() != adjID {
		return nil, dvar.Configuration(dvar.CodeInvalidPersistence, "adjoint %q does not belong to operator %q", adjID, opID)
	}
	opts := []Option{WithOperator(op)}
	if hasMetric {
		var d mat.Dense
		if err := d.UnmarshalBinary(metricBytes); err != nil {
			return nil, invalidPersistence(err)
		}
		rows, cols := d.Dims()
		if rows != cols {
			return nil, dvar.Configuration(dvar.CodeInvalidPersistence, "metric is %dx%d", rows, cols)
		}
		sym := mat.NewSymDense(rows, nil)
		for i := 0; i < rows; i++ {
			for j := i; j < rows; j++ {
				sym.SetSym(i, j, d.At(i, j))
			}
		}
		opts = append(opts, WithMetric(sym))
	}
	return NewStaticSet(coords, values, opts...)
}

// Dump writes the number of times, the sorted times, then every static set in
// time order.
func (tw *TimeWindowSet) Dump(w io.Writer) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(len(tw.entries)); err != nil {
		return err
	}
	if err := enc.Encode(nonNil(tw.Times())); err != nil {
		return err
	}
	for _, e := range tw.entries {
		if err := e.Set.encode(enc); err != nil {
			return err
		}
	}
	return nil
}

// LoadTimeWindowSet reads a window written by Dump.
func LoadTimeWindowSet(r io.Reader, reg *Registry) (*TimeWindowSet, error) {
	dec := gob.NewDecoder(r)
	var (
		n     int
		times []float64
	)
	if err := dec.Decode(&n); err != nil {
		return nil, invalidPersistence(err)
	}
	if err := dec.Decode(&times); err != nil {
		return nil, invalidPersistence(err)
	}
	if len(times) != n {
		return nil, dvar.Configuration(dvar.CodeInvalidPersistence, "%d times announced, %d stored", n, len(times))
	}
	entries := make([]Entry, n)
	for i, t := range times {
		s, err := decodeStaticSet(dec, reg)
		if err != nil {
			return nil, err
		}
		entries[i] = Entry{Time: t, Set: s}
	}
	return NewTimeWindowSet(entries...)
}

func invalidPersistence(err error) error {
	return dvar.Configuration(dvar.CodeInvalidPersistence, "cannot decode observations").WithCause(err)
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
