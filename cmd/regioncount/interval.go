package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/regioncount/regioncount/pkg/lib/signals"
	"github.com/regioncount/regioncount/pkg/smtlib"
	"github.com/regioncount/regioncount/pkg/solver"
)

const defaultIntervalTimeout = 15 * time.Second

func newIntervalCmd(root *rootOptions) *cobra.Command {
	var (
		query   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "interval FILE",
		Short: "Print the unsigned range of a term under the assertions of a formula",
		Long: `Minimize and maximize a bit-vector term under the assertions of FILE.
A side that cannot be established is printed as infeasible, timeout or error.

        $ regioncount interval formula.smt2 --query '(bvadd x y)'
        `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(signals.Context())
			defer cancel()

			script, err := smtlib.ParseFile(args[0])
			if err != nil {
				return err
			}
			pre, err := script.Formula()
			if err != nil {
				return errors.Wrapf(err, "building formula of %s", args[0])
			}
			q, err := script.ParseTerm(query)
			if err != nil {
				return errors.Wrap(err, "parsing query")
			}

			opt, err := solver.New(solver.WithLogger(root.logger()))
			if err != nil {
				return errors.Wrap(err, "configuring solver")
			}
			fmt.Fprintln(cmd.OutOrStdout(), opt.Interval(ctx, pre, q, timeout))
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "bit-vector term to bound, in SMT-LIB syntax")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultIntervalTimeout, "budget of each of the two optimization calls")
	if err := cmd.MarkFlagRequired("query"); err != nil {
		panic(err)
	}
	return cmd
}
