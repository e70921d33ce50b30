package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/plugcfg/am"
	"github.com/teranos/plugcfg/errors"
)

func newAmCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "am",
		Short: "Manage plugcfg's own configuration",
		Long: `am - Manage plugcfg's own configuration ("I am")

These settings control plugcfg itself (where plugins are found, which
file set/reset write, variable prefixes), not the plugins it configures.

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/plugcfg/am.toml)
3. User config (~/.plugcfg/am.toml)
4. Project config (./am.toml, searching up directories)
5. --config file
6. Environment variables (PLUGCFG_* prefix)

Examples:
  plugcfg am show                 # Show current configuration
  plugcfg am show --format json   # Show configuration in JSON format
  plugcfg am where                # Show where each setting came from
  plugcfg am validate             # Validate current configuration`,
	}
	cmd.AddCommand(newAmShowCmd(opts), newAmWhereCmd(opts), newAmValidateCmd(opts))
	return cmd
}

// hostSettings is the loaded config in its key form, for marshalling with
// the same names the files use.
func hostSettings(opts *globalOptions) (map[string]any, error) {
	_, loader, err := opts.loadHostConfig()
	if err != nil {
		return nil, err
	}
	return loader.Viper().AllSettings(), nil
}

func newAmShowCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := hostSettings(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				data, err := json.MarshalIndent(settings, "", "  ")
				if err != nil {
					return errors.Wrap(err, "failed to marshal config to JSON")
				}
				fmt.Fprintln(out, string(data))
			case "yaml":
				data, err := yaml.Marshal(settings)
				if err != nil {
					return errors.Wrap(err, "failed to marshal config to YAML")
				}
				fmt.Fprintf(out, "# plugcfg configuration\n%s", data)
			case "toml":
				data, err := toml.Marshal(settings)
				if err != nil {
					return errors.Wrap(err, "failed to marshal config to TOML")
				}
				fmt.Fprintf(out, "# plugcfg configuration\n%s", data)
			default:
				return usagef("unsupported format: %s (supported: toml, json, yaml)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "toml", "Output format: toml, json, yaml")
	return cmd
}

func newAmWhereCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "where",
		Short: "Show where configuration is loaded from",
		Long: `Show the configuration cascade, which files were found, and the source of
every effective setting.`,
		Args: argsExactly(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, loader, err := opts.loadHostConfig()
			if err != nil {
				return err
			}
			intro, err := loader.Introspect()
			if err != nil {
				return errors.Wrap(err, "failed to get config introspection")
			}
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Configuration files (later overrides earlier):")
			for _, f := range intro.Files {
				status := "missing"
				if f.Loaded {
					status = "loaded"
				}
				fmt.Fprintf(out, "  [%s] %s (%s)\n", f.Source, f.Path, status)
			}
			fmt.Fprintln(out)

			data := pterm.TableData{{"KEY", "VALUE", "SOURCE", "FROM"}}
			groups := intro.BySource()
			for _, source := range am.SourceOrder {
				for _, s := range groups[source] {
					data = append(data, []string{s.Key, cell(s.Value), string(s.Source), s.SourcePath})
				}
			}
			return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
		},
	}
}

func newAmValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := opts.loadHostConfig(); err != nil {
				return err
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Println("Configuration is valid")
			return nil
		},
	}
}
