package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/regioncount/regioncount/pkg/bv"
	"github.com/regioncount/regioncount/pkg/smtlib"
	"github.com/regioncount/regioncount/pkg/variables"
)

func newVarsCmd(root *rootOptions) *cobra.Command {
	var exclude string

	cmd := &cobra.Command{
		Use:   "vars FILE",
		Short: "List the free variables of a formula",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger()
			vars, err := fileVariables(args[0])
			if err != nil {
				return err
			}
			if exclude != "" {
				others, err := fileVariables(exclude)
				if err != nil {
					return err
				}
				vars = variables.Difference(vars, others)
			}
			log.WithField("variables", len(vars)).Debug("variable extraction finished")

			out := cmd.OutOrStdout()
			for _, v := range vars {
				fmt.Fprintf(out, "%s %s\n", bv.QuoteSymbol(v.Name), v.Sort)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&exclude, "exclude", "", "leave out the variables of the formula in this file")
	return cmd
}

func fileVariables(path string) ([]*bv.Term, error) {
	script, err := smtlib.ParseFile(path)
	if err != nil {
		return nil, err
	}
	formula, err := script.Formula()
	if err != nil {
		return nil, errors.Wrapf(err, "building formula of %s", path)
	}
	return variables.Extract(formula)
}
