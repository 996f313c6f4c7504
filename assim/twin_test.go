package assim

import (
	"testing"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/config"
	"github.com/martndj/dVar/minimize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() *config.Config {
	cfg := config.Default()
	cfg.Grid.Points = 48
	cfg.Grid.Length = 48
	cfg.Observations.Count = 12
	cfg.Observations.Times = []float64{0.5, 1}
	cfg.Minimizer.GradientTest = false
	return cfg
}

func TestNewTwin(t *testing.T) {
	tw, err := NewTwin(smallConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 48, tw.Grid.N())
	assert.Equal(t, []float64{0.5, 1}, tw.Window.Times())
	assert.Equal(t, 24, tw.Window.NObs())

	// Same seed, same experiment.
	again, err := NewTwin(smallConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, tw.Background, again.Background)
	assert.Equal(t, tw.Window.Values(), again.Window.Values())
}

func TestNewTwinIdentity(t *testing.T) {
	cfg := smallConfig()
	cfg.Observations.Operator = "identity"
	cfg.Model.Kind = "advection"
	tw, err := NewTwin(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 96, tw.Window.NObs())
}

func TestNewTwinInvalid(t *testing.T) {
	cfg := smallConfig()
	cfg.Model.Kind = "kdv"
	_, err := NewTwin(cfg, nil)
	assert.ErrorIs(t, err, dvar.ErrConfiguration)
}

func TestTwinRun(t *testing.T) {
	cfg := smallConfig()
	tw, err := NewTwin(cfg, nil)
	require.NoError(t, err)

	a, err := tw.Run(minimize.New(MinimizerOptions(cfg.Minimizer)...))
	require.NoError(t, err)
	eb, ea := tw.Errors(a)
	assert.Less(t, ea, eb)
	assert.Len(t, a.Result.Convergence(), len(a.Result.Iterates()))
}
