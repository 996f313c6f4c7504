package grid

import (
	"errors"
	"testing"

	dvar "github.com/martndj/dVar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g, err := New(100, 300., Centered())
	require.NoError(t, err)
	assert.Equal(t, 100, g.N())
	assert.InDelta(t, 3., g.Dx(), 1e-12)
	assert.InDelta(t, -150., g.Min(), 1e-12)
	assert.InDelta(t, 147., g.Max(), 1e-12)
	assert.Len(t, g.Zeros(), 100)

	_, err = New(1, 1.)
	assert.True(t, errors.Is(err, dvar.ErrConfiguration))
	_, err = New(10, -1.)
	assert.True(t, errors.Is(err, dvar.ErrConfiguration))
}

func TestPos2Idx(t *testing.T) {
	g, err := New(10, 10.)
	require.NoError(t, err)

	tests := []struct {
		coord float64
		want  int
	}{
		{0., 0},
		{0.5, 1},
		{3., 3},
		{3.0000000000001, 3},
		{8.2, 9},
		{9., 9},
	}
	for _, test := range tests {
		idx, err := g.Idx(test.coord)
		require.NoError(t, err)
		assert.Equal(t, test.want, idx, "coordinate %v", test.coord)
	}

	_, err = g.Pos2Idx([]float64{1., 9.5})
	assert.True(t, errors.Is(err, &dvar.Error{Code: dvar.CodeOutOfGrid}))
	_, err = g.Pos2Idx([]float64{-0.1})
	assert.True(t, errors.Is(err, dvar.ErrPrecondition))
}

func TestDistance(t *testing.T) {
	g, err := New(10, 10.)
	require.NoError(t, err)
	assert.InDelta(t, 1., g.Distance(0.5, 9.5), 1e-12)
	assert.InDelta(t, 3., g.Distance(2., 5.), 1e-12)
}
