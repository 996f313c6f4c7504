package signal

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/martndj/dVar/grid"
	"github.com/martndj/dVar/spectral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestProfiles(t *testing.T) {
	assert.Equal(t, 2., Gaussian{Center: 1, Width: 3, Amplitude: 2}.Value(1))
	assert.InDelta(t, 2*math.Exp(-1), Gaussian{Center: 1, Width: 3, Amplitude: 2}.Value(4), 1e-15)

	s := Soliton{Center: 0, Amplitude: 5, Beta: 1, Gamma: -1}
	assert.Equal(t, 5., s.Value(0))
	assert.InDelta(t, s.Value(-3), s.Value(3), 1e-15)
	assert.Less(t, s.Value(10), 1e-3)

	sum := Sum{Constant(1), Gaussian{Center: 0, Width: 1, Amplitude: 1}}
	assert.Equal(t, 2., sum.Value(0))
}

func TestOnGrid(t *testing.T) {
	g, err := grid.New(10, 10, grid.Centered())
	require.NoError(t, err)
	x := OnGrid(g, Constant(3))
	assert.Len(t, x, 10)
	assert.Equal(t, 30., floats.Sum(x))
}

func TestRandomSpectral(t *testing.T) {
	g, err := grid.New(64, 2*math.Pi)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(1, 2))

	x, err := RandomSpectral(g, 5, 0.5, rng)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, math.Max(floats.Max(x), -floats.Min(x)), 1e-12)
	assert.InDelta(t, 0., floats.Sum(x), 1e-10)

	tr := spectral.NewTransform(64)
	assert.True(t, floats.EqualApprox(x, tr.Truncate(x, 5), 1e-12))

	_, err = RandomSpectral(g, 40, 1, rng)
	assert.Error(t, err)
}
