package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(opts.out, "herald %s\n", version)
			fmt.Fprintf(opts.out, "Commit: %s\n", commit)
			fmt.Fprintf(opts.out, "Built: %s\n", date)
		},
	}
}
