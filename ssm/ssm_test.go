package ssm

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/martndj/dVar/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomVec(rng *rand.Rand, n int) *mat.VecDense {
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, rng.NormFloat64())
	}
	return v
}

func TestNewLinear(t *testing.T) {
	_, err := NewLinear(mat.NewDense(2, 3, nil))
	assert.Error(t, err)

	m, err := NewLinear(mat.NewDense(2, 2, []float64{0, 1, -1, 0}))
	require.NoError(t, err)
	assert.Equal(t, 2, m.StateSpaceOrder())
	d := m.Derivative(0, mat.NewVecDense(2, []float64{1, 2}))
	assert.Equal(t, []float64{2, -1}, []float64{d.AtVec(0), d.AtVec(1)})
}

func TestAdvectionIsAntisymmetric(t *testing.T) {
	g, err := grid.New(16, 1.)
	require.NoError(t, err)
	m := NewAdvection(g, 2.)
	var sum mat.Dense
	sum.Add(m.A, m.A.T())
	assert.Equal(t, 0., mat.Norm(&sum, 1))
}

func TestModelAdjoints(t *testing.T) {
	g, err := grid.New(32, 2*math.Pi)
	require.NoError(t, err)
	models := map[string]Model{
		"advection": NewAdvection(g, 1.),
		"burgers":   NewBurgers(g, 0.05),
	}
	rng := rand.New(rand.NewPCG(21, 22))
	for name, m := range models {
		t.Run(name, func(t *testing.T) {
			u := randomVec(rng, 32)
			dx := randomVec(rng, 32)
			a := randomVec(rng, 32)
			direct := mat.Dot(a, m.Tangent(0, u, dx))
			adjoint := mat.Dot(m.TangentAdjoint(0, u, a), dx)
			assert.InDelta(t, 0., (direct-adjoint)/math.Abs(direct), 1e-12)
		})
	}
}

func TestBurgersTangent(t *testing.T) {
	g, err := grid.New(32, 2*math.Pi)
	require.NoError(t, err)
	m := NewBurgers(g, 0.1)
	rng := rand.New(rand.NewPCG(23, 24))
	u := randomVec(rng, 32)
	dx := randomVec(rng, 32)

	eps := 1e-6
	up := mat.NewVecDense(32, nil)
	up.AddScaledVec(u, eps, dx)
	um := mat.NewVecDense(32, nil)
	um.AddScaledVec(u, -eps, dx)
	fd := mat.NewVecDense(32, nil)
	fd.SubVec(m.Derivative(0, up), m.Derivative(0, um))
	fd.ScaleVec(1/(2*eps), fd)
	assert.True(t, mat.EqualApprox(m.Tangent(0, u, dx), fd, 1e-6))
}
