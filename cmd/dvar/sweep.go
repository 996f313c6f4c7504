package main

import (
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/martndj/dVar/assim"
	"github.com/martndj/dVar/config"
	"github.com/martndj/dVar/minimize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type sweepRow struct {
	lengthScale float64
	cost        float64
	fCalls      int
	warn        minimize.WarnFlag
	bkgError    float64
	anaError    float64
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	rows, err := sweep(cmd, cfg, logger)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "length scale\tcost\tfunction calls\twarn\tbackground error\tanalysis error")
	for _, r := range rows {
		fmt.Fprintf(w, "%g\t%.6g\t%d\t%s\t%.6g\t%.6g\n", r.lengthScale, r.cost, r.fCalls, r.warn, r.bkgError, r.anaError)
	}
	return w.Flush()
}

// sweep runs one experiment per length scale, each with its own model and
// observations drawn from the same seed.
func sweep(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) ([]sweepRow, error) {
	rows := make([]sweepRow, len(cfg.Sweep.LengthScales))
	metrics := minimize.NewMetrics(prometheus.NewRegistry())

	g, ctx := errgroup.WithContext(cmd.Context())
	workers := cfg.Sweep.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i, l := range cfg.Sweep.LengthScales {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c := *cfg
			c.Background.LengthScale = l
			log := logger.With(zap.Float64("lengthScale", l))
			tw, err := assim.NewTwin(&c, log)
			if err != nil {
				return err
			}
			opts := append(assim.MinimizerOptions(c.Minimizer),
				minimize.WithLogger(log), minimize.WithMetrics(metrics))
			a, err := tw.Run(minimize.New(opts...))
			if err != nil {
				return err
			}
			eb, ea := tw.Errors(a)
			rows[i] = sweepRow{
				lengthScale: l,
				cost:        a.Result.FOpt(),
				fCalls:      a.Result.FCalls(),
				warn:        a.Result.Warn(),
				bkgError:    eb,
				anaError:    ea,
			}
			return nil
		})
	}
	return rows, g.Wait()
}
