package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/martndj/dVar/assim"
	"github.com/martndj/dVar/minimize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runExperiment(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	runID := uuid.New()
	logger = logger.With(zap.Stringer("run", runID))

	tw, err := assim.NewTwin(cfg, logger)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	opts := append(assim.MinimizerOptions(cfg.Minimizer),
		minimize.WithLogger(logger), minimize.WithMetrics(minimize.NewMetrics(reg)))
	a, err := tw.Run(minimize.New(opts...))
	if err != nil {
		return err
	}
	eb, ea := tw.Errors(a)
	logger.Info("twin experiment done",
		zap.Float64("backgroundError", eb),
		zap.Float64("analysisError", ea),
	)
	logMetrics(logger, reg)

	path, err := writeResult(cfg.Output.Dir, runID, a.Result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), a.Result)
	fmt.Fprintf(cmd.OutOrStdout(), "result written to %s\n", path)
	return nil
}

func writeResult(dir string, runID uuid.UUID, res *minimize.Result) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("dvar-%s.gob", runID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := res.Dump(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func logMetrics(logger *zap.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		logger.Warn("cannot gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				logger.Debug("metric", zap.String("name", mf.GetName()), zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				logger.Debug("metric", zap.String("name", mf.GetName()), zap.Float64("sum", m.GetHistogram().GetSampleSum()))
			}
		}
	}
}
