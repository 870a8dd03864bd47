package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/herald/internal/notify"
)

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		Long: `Load the configuration and resolve every binding, disabled interface
and disabled type it names against the built-in registry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, err := opts.loadConfig()
			if err != nil {
				return err
			}
			reg, err := newBuiltinRegistry()
			if err != nil {
				return err
			}
			conf, err := notify.NewDefaultConfiguration(reg, nil)
			if err != nil {
				return err
			}
			if err := bus.Apply(conf); err != nil {
				return err
			}

			name := opts.configPath
			if name == "" {
				name = "defaults"
			}
			fmt.Fprintf(opts.out, "%s: ok (%d bindings, %d disabled interfaces, %d disabled types, %d scripts)\n",
				name, len(conf.Bindings()), len(conf.DisabledInterfaces()), len(conf.DisabledTypes()), len(bus.Scripts))
			return nil
		},
	}
}
