package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/martndj/dVar/assim"
	"github.com/spf13/cobra"
)

func runGradTest(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tw, err := assim.NewTwin(cfg, logger)
	if err != nil {
		return err
	}
	j, err := tw.Problem.Cost()
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(cfg.Scenario.Seed, 0))
	xi := tw.Grid.Zeros()
	for i := range xi {
		xi[i] = rng.NormFloat64()
	}
	report := j.GradientTest(xi, cfg.Minimizer.TestMaxPower, cfg.Minimizer.TestMinPower)
	if err := tw.Problem.Err(); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "J(x)=%-20.15g |grad|^2=%-20.15g\n", report.J0, report.GradNorm2)
	for _, s := range report.Steps {
		fmt.Fprintf(out, "%3d %-20.15g %-20.15g\n", s.Power, s.J, s.Ratio)
	}
	return nil
}
