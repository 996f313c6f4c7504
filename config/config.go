// Package config handles the configuration of an assimilation experiment.
package config

import (
	"os"
	"path/filepath"

	dvar "github.com/martndj/dVar"
	"github.com/martndj/dVar/ode"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Grid         GridConfig         `yaml:"grid"`
	Model        ModelConfig        `yaml:"model"`
	Scenario     ScenarioConfig     `yaml:"scenario"`
	Background   BackgroundConfig   `yaml:"background"`
	Observations ObservationsConfig `yaml:"observations"`
	Minimizer    MinimizerConfig    `yaml:"minimizer"`
	Sweep        SweepConfig        `yaml:"sweep"`
	Logging      LoggingConfig      `yaml:"logging"`
	Output       OutputConfig       `yaml:"output"`
}

// GridConfig holds the periodic grid.
type GridConfig struct {
	Points   int     `yaml:"points"`
	Length   float64 `yaml:"length"`
	Centered bool    `yaml:"centered"`
}

// ModelConfig holds the forward model and its time stepping.
type ModelConfig struct {
	Kind      string  `yaml:"kind"` // burgers or advection
	Dt        float64 `yaml:"dt"`
	Viscosity float64 `yaml:"viscosity"`
	Speed     float64 `yaml:"speed"`
	Scheme    string  `yaml:"scheme"`
}

// ScenarioConfig describes the synthetic truth of a twin experiment. The
// background is the truth without its bump plus a random band-limited error.
type ScenarioConfig struct {
	Seed                uint64  `yaml:"seed"`
	Mean                float64 `yaml:"mean"`
	BumpAmplitude       float64 `yaml:"bump_amplitude"`
	BumpWidth           float64 `yaml:"bump_width"`
	BackgroundAmplitude float64 `yaml:"background_amplitude"`
	BackgroundNtrc      int     `yaml:"background_ntrc"`
}

// BackgroundConfig holds the background error covariance.
type BackgroundConfig struct {
	LengthScale float64 `yaml:"length_scale"`
	Sigma       float64 `yaml:"sigma"`
}

// ObservationsConfig holds the observation network.
type ObservationsConfig struct {
	Count     int       `yaml:"count"`
	Times     []float64 `yaml:"times"`
	Sigma     float64   `yaml:"sigma"`
	Operator  string    `yaml:"operator"`
	Random    bool      `yaml:"random"`
	Precision int       `yaml:"precision"`
}

// MinimizerConfig holds the BFGS settings.
type MinimizerConfig struct {
	MaxIterations     int     `yaml:"max_iterations"`
	GradientThreshold float64 `yaml:"gradient_threshold"`
	CaptureHistory    bool    `yaml:"capture_history"`
	GradientTest      bool    `yaml:"gradient_test"`
	TestMaxPower      int     `yaml:"test_max_power"`
	TestMinPower      int     `yaml:"test_min_power"`
	// MaxGradNorm caps the observation gradient when positive.
	MaxGradNorm float64 `yaml:"max_grad_norm"`
}

// SweepConfig lists the background length scales of a sweep.
type SweepConfig struct {
	LengthScales []float64 `yaml:"length_scales"`
	Workers      int       `yaml:"workers"`
}

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// OutputConfig holds where results are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns a runnable twin experiment on the viscous Burgers equation.
func Default() *Config {
	return &Config{
		Grid: GridConfig{Points: 100, Length: 100, Centered: true},
		Model: ModelConfig{
			Kind:      "burgers",
			Dt:        0.01,
			Viscosity: 1,
			Speed:     1,
			Scheme:    "rk4",
		},
		Scenario: ScenarioConfig{
			Seed:                1,
			Mean:                1,
			BumpAmplitude:       0.5,
			BumpWidth:           8,
			BackgroundAmplitude: 0.1,
			BackgroundNtrc:      5,
		},
		Background: BackgroundConfig{LengthScale: 5, Sigma: 0.3},
		Observations: ObservationsConfig{
			Count:     20,
			Times:     []float64{0.5, 1, 1.5, 2},
			Sigma:     0.05,
			Operator:  "coordinate_sample",
			Precision: 1,
		},
		Minimizer: MinimizerConfig{
			MaxIterations:     50,
			GradientThreshold: 1e-5,
			CaptureHistory:    true,
			GradientTest:      true,
			TestMaxPower:      -1,
			TestMinPower:      -14,
		},
		Sweep:   SweepConfig{LengthScales: []float64{2, 5, 10, 20}, Workers: 4},
		Logging: LoggingConfig{Level: "info"},
		Output:  OutputConfig{Dir: "."},
	}
}

// Load reads the configuration at path over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "failed to read config").
			WithContext("path", path).WithCause(err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, dvar.Configuration(dvar.CodeInvalidArgument, "failed to parse config").
			WithContext("path", path).WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the default when path is
// empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the values that the packages would otherwise reject later.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return dvar.Configuration(dvar.CodeInvalidArgument, format, args...)
	}
	switch {
	case c.Grid.Points < 2:
		return invalid("grid.points must be at least 2, got %d", c.Grid.Points)
	case !(c.Grid.Length > 0):
		return invalid("grid.length must be positive, got %v", c.Grid.Length)
	case !(c.Model.Dt > 0):
		return invalid("model.dt must be positive, got %v", c.Model.Dt)
	case c.Model.Kind != "burgers" && c.Model.Kind != "advection":
		return invalid("unknown model.kind %q", c.Model.Kind)
	case c.Model.Kind == "burgers" && c.Model.Viscosity < 0:
		return invalid("model.viscosity must not be negative, got %v", c.Model.Viscosity)
	case !(c.Background.LengthScale > 0):
		return invalid("background.length_scale must be positive, got %v", c.Background.LengthScale)
	case !(c.Background.Sigma > 0):
		return invalid("background.sigma must be positive, got %v", c.Background.Sigma)
	case c.Observations.Count < 1:
		return invalid("observations.count must be positive, got %d", c.Observations.Count)
	case !(c.Observations.Sigma > 0):
		return invalid("observations.sigma must be positive, got %v", c.Observations.Sigma)
	case c.Observations.Operator != "coordinate_sample" && c.Observations.Operator != "identity":
		return invalid("unknown observations.operator %q", c.Observations.Operator)
	case c.Minimizer.MaxIterations < 1:
		return invalid("minimizer.max_iterations must be positive, got %d", c.Minimizer.MaxIterations)
	case c.Minimizer.TestMinPower > c.Minimizer.TestMaxPower:
		return invalid("minimizer.test_min_power %d above test_max_power %d", c.Minimizer.TestMinPower, c.Minimizer.TestMaxPower)
	case c.Minimizer.MaxGradNorm < 0:
		return invalid("minimizer.max_grad_norm must not be negative, got %v", c.Minimizer.MaxGradNorm)
	case c.Sweep.Workers < 0:
		return invalid("sweep.workers must not be negative, got %d", c.Sweep.Workers)
	}
	if _, ok := ode.Scheme(c.Model.Scheme); !ok {
		return invalid("unknown model.scheme %q", c.Model.Scheme)
	}
	for _, t := range c.Observations.Times {
		if t < 0 {
			return invalid("observation time %v is negative", t)
		}
	}
	for _, l := range c.Sweep.LengthScales {
		if !(l > 0) {
			return invalid("sweep length scale %v must be positive", l)
		}
	}
	return nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return dvar.Configuration(dvar.CodeInvalidArgument, "failed to create config directory").WithCause(err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return dvar.Configuration(dvar.CodeInvalidArgument, "failed to marshal config").WithCause(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return dvar.Configuration(dvar.CodeInvalidArgument, "failed to write config file").WithCause(err)
	}
	return nil
}
