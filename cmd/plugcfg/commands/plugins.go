package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/plugin"
	"github.com/teranos/plugcfg/schema"
)

func newPluginsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List and inspect discovered plugins",
		Long: `Plugins are discovered by scanning plugins.paths for files that start with
a metadata header, for example:

  # id: greeter
  # version: 1.2.0
  # config: [{name: who, value: world}, {name: retries, type: int, value: 3}]`,
	}
	cmd.AddCommand(newPluginsLsCmd(opts), newPluginsInspectCmd(opts))
	return cmd
}

func newPluginsLsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List discovered plugins",
		Args:  argsExactly(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.setup()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			descriptors := app.Registry.List()
			if len(descriptors) == 0 {
				fmt.Fprintf(out, "No plugins found in %s\n", strings.Join(app.Config.Plugins.Paths, ", "))
			} else {
				data := pterm.TableData{{"ID", "VERSION", "TYPE", "OPTIONS", "SOURCE"}}
				for _, d := range descriptors {
					data = append(data, []string{d.ID, d.Version, d.Type, strconv.Itoa(len(d.Options)), d.Source})
				}
				if err := pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render(); err != nil {
					return err
				}
			}
			for _, problem := range app.Problems {
				pterm.Warning.WithWriter(out).Println(problem.Error())
			}
			return nil
		},
	}
}

func newPluginsInspectCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <id>",
		Short: "Show a plugin's metadata and options",
		Args:  argsExactly(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.setup()
			if err != nil {
				return err
			}
			d, err := app.Registry.Get(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printDescriptor(cmd, d)

			if len(d.Options) == 0 {
				fmt.Fprintln(out, "\nNo options")
				return nil
			}
			fmt.Fprintln(out)
			data := pterm.TableData{{"OPTION", "TYPE", "DEFAULT", "FLAGS", "DESCRIPTION"}}
			for _, o := range d.Options {
				def := "-"
				if o.HasDefault {
					def = cell(o.Default)
				}
				data = append(data, []string{o.Name, o.Shape.String(), def, optionFlags(o), o.Description})
			}
			return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
		},
	}
}

func printDescriptor(cmd *cobra.Command, d *plugin.Descriptor) {
	out := cmd.OutOrStdout()
	row := func(key, value string) {
		if value != "" {
			fmt.Fprintf(out, "%-10s %s\n", key+":", value)
		}
	}
	row("id", d.ID)
	row("title", d.Title)
	row("version", d.Version)
	row("category", d.Category)
	row("type", d.Type)
	row("api", d.API)
	row("priority", string(d.Priority))
	deps := make([]string, len(d.Depends))
	for i, dep := range d.Depends {
		deps[i] = dep.String()
	}
	row("depends", strings.Join(deps, " "))
	row("source", d.Source)
	if d.Doc != "" {
		fmt.Fprintf(out, "\n%s\n", d.Doc)
	}
}

func optionFlags(o plugin.OptionSpec) string {
	var flags []string
	if o.Required {
		flags = append(flags, "required")
	}
	if o.Secret {
		flags = append(flags, "secret")
	}
	if o.Hidden {
		flags = append(flags, "hidden")
	}
	return strings.Join(flags, ",")
}

func newSchemaCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <id>",
		Short: "Print a plugin's options as JSON Schema",
		Long: `Print the JSON Schema (draft-07) of a plugin's options, for form renderers
and editors. Hidden options carry "x-hidden"; secret options are "writeOnly".`,
		Args: argsExactly(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.setup()
			if err != nil {
				return err
			}
			d, err := app.Registry.Get(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(schema.Document(d.Record()), "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal schema")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
