package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newActionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the registered action codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := newBuiltinRegistry()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(opts.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tTYPE\tNAME")
			for _, a := range reg.Actions() {
				fmt.Fprintf(w, "%d\t%s\t%s\n", a.Code, a.Type, a.Name)
			}
			return w.Flush()
		},
	}
}
