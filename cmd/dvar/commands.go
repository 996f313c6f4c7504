package main

import (
	"github.com/martndj/dVar/config"
	"github.com/martndj/dVar/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	outputDir  string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "dvar",
		Short: "Variational data assimilation on periodic 1-D models",
		Long: `dvar runs 4D-Var twin experiments: a truth run of the model is
observed with noise, and the observations are assimilated from a perturbed
background by minimizing the variational cost.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one twin experiment and write the minimization result",
		RunE:  runExperiment,
	}

	gradTestCmd = &cobra.Command{
		Use:   "gradtest",
		Short: "Check the gradient of the assembled cost function",
		RunE:  runGradTest,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run the experiment for several background length scales in parallel",
		RunE:  runSweep,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "experiment configuration (YAML), defaults when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "override output.dir")

	rootCmd.AddCommand(runCmd, gradTestCmd, sweepCmd)
}

// setup loads the configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
