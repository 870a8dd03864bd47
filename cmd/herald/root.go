package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/herald/internal/config"
	"github.com/dshills/herald/internal/notification"
)

// options holds the flags shared by every command.
type options struct {
	configPath string
	out        io.Writer
	errOut     io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "herald",
		Short: "herald - typed notification bus",
		Long: `herald routes typed notifications to the listeners registered for them.

It loads its settings from a TOML or YAML file and HERALD_* environment
variables, hosts Lua listener scripts and reports delivery statistics.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML or YAML configuration file")

	root.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newActionsCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// execute runs the CLI and returns the process exit code.
func execute(args []string) int {
	root := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig loads the file named by --config, or the defaults.
func (o *options) loadConfig() (*config.Bus, error) {
	return config.Load(o.configPath)
}

func newBuiltinRegistry() (*notification.Registry, error) {
	reg := notification.NewRegistry()
	if err := notification.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
