package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/regioncount/regioncount/pkg/metrics"
)

type rootOptions struct {
	debug bool
}

func (o *rootOptions) logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if o.debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.Debugf("log level %s", logger.Level)
	return logger
}

func init() {
	metrics.Register()
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "regioncount",
		Short:        "Approximate model counting for bit-vector formulas",
		Long:         `Estimate the number of models of an SMT-LIB QF_BV formula by sampling inside the region bounded by the extrema of its variables.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&o.debug, "debug", false, "use debug log level")
	if err := cmd.PersistentFlags().MarkHidden("debug"); err != nil {
		logrus.Panic(err.Error())
	}

	cmd.AddCommand(
		newCountCmd(o),
		newVarsCmd(o),
		newIntervalCmd(o),
		newVersionCmd(),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
