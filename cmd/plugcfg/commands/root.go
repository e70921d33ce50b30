package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the plugcfg command tree. Each call returns fresh
// commands with their own flag state.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "plugcfg",
		Short: "plugcfg - typed plugin configuration",
		Long: `plugcfg - typed plugin configuration.

plugcfg discovers plugins by the metadata header at the top of their source
files, compiles the options they declare into typed schemas, and resolves
layered configuration into a validated snapshot.

Configuration layers (later overrides earlier):
  1. Declared defaults
  2. Read-only files (store.readonly)
  3. The store file (store.path, written by set/reset)
  4. Environment variables (<PREFIX>_<PLUGIN>_<OPTION>)
  5. --set overrides

Examples:
  plugcfg show                      # Show the resolved configuration
  plugcfg get greeter.who           # Get one option
  plugcfg set greeter.retries 5     # Store an option
  plugcfg where                     # Show where each value came from
  plugcfg plugins ls                # List discovered plugins`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Additional host config file (TOML), above the project am.toml")
	root.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		newShowCmd(opts),
		newGetCmd(opts),
		newSetCmd(opts),
		newResetCmd(opts),
		newWhereCmd(opts),
		newPluginsCmd(opts),
		newSchemaCmd(opts),
		newLintCmd(opts),
		newWatchCmd(opts),
		newAmCmd(opts),
		newVersionCmd(),
	)
	return root
}

// argsExactly is cobra.ExactArgs reporting a usage error.
func argsExactly(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// argsAtMost is cobra.MaximumNArgs reporting a usage error.
func argsAtMost(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
