package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/regioncount/regioncount/pkg/config"
	"github.com/regioncount/regioncount/pkg/lib/profile"
	"github.com/regioncount/regioncount/pkg/lib/signals"
	"github.com/regioncount/regioncount/pkg/metrics"
	"github.com/regioncount/regioncount/pkg/regioncount"
	"github.com/regioncount/regioncount/pkg/solver"
)

const shutdownTimeout = 5 * time.Second

type countOptions struct {
	*rootOptions

	configPath   string
	flags        config.File
	maxTime      time.Duration
	boundTimeout time.Duration
}

func newCountCmd(root *rootOptions) *cobra.Command {
	o := &countOptions{rootOptions: root, flags: config.Default()}

	cmd := &cobra.Command{
		Use:   "count FILE",
		Short: "Estimate the number of models of a formula",
		Long: `Compute a bounding region of the formula's variables, then sample it
uniformly and report how many samples satisfy the formula.

        $ regioncount count --max-samples 100000 --max-time 1m formula.smt2
        `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(signals.Context())
			defer cancel()

			cfg, err := o.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return o.run(ctx, cmd.OutOrStdout(), o.logger(), cfg, args[0])
		},
	}

	o.bindFlags(cmd.Flags())
	return cmd
}

func (o *countOptions) bindFlags(fs *pflag.FlagSet) {
	defaults := config.Default()
	fs.StringVar(&o.configPath, "config", "", "path to a YAML or JSON file of counting options, overridden by flags")
	fs.IntVar(&o.flags.MaxSamples, "max-samples", defaults.MaxSamples, "number of samples to attempt")
	fs.DurationVar(&o.maxTime, "max-time", defaults.MaxTime.Duration, "wall-clock budget of the run, 0 for none")
	fs.DurationVar(&o.boundTimeout, "bound-timeout", defaults.BoundTimeout.Duration, "budget of each bound discovery call")
	fs.IntVar(&o.flags.ReportEvery, "report-every", defaults.ReportEvery, "number of attempts between two statistics reports")
	fs.Uint64Var(&o.flags.Seed, "seed", defaults.Seed, "sampler seed, 0 seeds from the clock")
	fs.BoolVar(&o.flags.TrackDistinct, "track-distinct", defaults.TrackDistinct, "count distinct satisfying samples")
	fs.StringVar(&o.flags.MetricsAddr, "metrics-addr", defaults.MetricsAddr, "address to serve prometheus metrics on, empty to disable")
	fs.BoolVar(&o.flags.Profiling, "profiling", defaults.Profiling, "serve profiling data on the metrics address")
}

// resolve merges the config file, when given, with the flags set on
// the command line. Flags win.
func (o *countOptions) resolve(flags *pflag.FlagSet) (config.File, error) {
	o.flags.MaxTime = config.Duration(o.maxTime)
	o.flags.BoundTimeout = config.Duration(o.boundTimeout)
	if o.configPath == "" {
		return o.flags, o.flags.Validate()
	}

	f, err := config.Load(o.configPath)
	if err != nil {
		return f, err
	}
	overrides := map[string]func(){
		"max-samples":    func() { f.MaxSamples = o.flags.MaxSamples },
		"max-time":       func() { f.MaxTime = o.flags.MaxTime },
		"bound-timeout":  func() { f.BoundTimeout = o.flags.BoundTimeout },
		"report-every":   func() { f.ReportEvery = o.flags.ReportEvery },
		"seed":           func() { f.Seed = o.flags.Seed },
		"track-distinct": func() { f.TrackDistinct = o.flags.TrackDistinct },
		"metrics-addr":   func() { f.MetricsAddr = o.flags.MetricsAddr },
		"profiling":      func() { f.Profiling = o.flags.Profiling },
	}
	for name, override := range overrides {
		if flags.Changed(name) {
			override()
		}
	}
	return f, f.Validate()
}

func (o *countOptions) run(ctx context.Context, out io.Writer, logger *logrus.Logger, cfg config.File, path string) error {
	backend, err := solver.New(solver.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "configuring solver")
	}
	reporter := metrics.NewReporter()
	counter, err := regioncount.NewCounter(backend, cfg.Counting(),
		regioncount.WithLogger(logger),
		regioncount.WithReporter(regioncount.MultiReporter(regioncount.ConsoleReporter{Writer: out}, reporter)),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var res *regioncount.Result
	g.Go(func() error {
		defer cancel()
		var err error
		res, err = counter.Run(ctx, path)
		return err
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if cfg.Profiling {
			logger.Info("profiling enabled")
			profile.RegisterHandlers(mux)
		}
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "serving metrics")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if res != nil {
		reporter.ObserveResult(res)
		printResult(out, res)
	}
	return err
}

func printResult(out io.Writer, res *regioncount.Result) {
	switch res.State {
	case regioncount.StateStoppedByTimeout, regioncount.StateStoppedByCancel:
		// The final snapshot already printed the statistics.
	default:
		fmt.Fprintf(out, "final statistics (%s):\n", res.State)
		regioncount.WriteStats(out, res.Stats)
	}
	fmt.Fprintf(out, "variables: %d (%d fixed)\n", len(res.Variables), res.Bounds.FixedCount())
	fmt.Fprintf(out, "region volume: 2^%.2f\n", res.Bounds.Log2Volume())
	fmt.Fprintf(out, "estimated models: %s\n", res.Estimate().Text('g', 6))
}
