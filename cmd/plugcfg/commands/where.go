package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/plugcfg/shape"
	"github.com/teranos/plugcfg/snapshot"
)

func newWhereCmd(opts *globalOptions) *cobra.Command {
	var overrides []string
	cmd := &cobra.Command{
		Use:   "where [plugin | plugin.option]",
		Short: "Show where each resolved value came from",
		Long: `Show the layer every resolved option was taken from.

Layers, later overriding earlier:
  [DEFAULT]      declared defaults from plugin headers
  [FILE]         store.readonly files, then store.path
  [ENVIRONMENT]  <PREFIX>_<PLUGIN>_<OPTION> variables
  [OVERRIDE]     --set on this command line`,
		Args: argsAtMost(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.setup()
			if err != nil {
				return err
			}
			ids := app.Registry.IDs()
			filter := ""
			if len(args) == 1 {
				if _, _, ok := shape.SplitPath(args[0]); ok {
					d, o, err := app.option(args[0])
					if err != nil {
						return err
					}
					ids, filter = []string{d.ID}, o.Name
				} else {
					if _, err := app.Registry.Get(args[0]); err != nil {
						return err
					}
					ids = []string{args[0]}
				}
			}

			snap, err := app.Resolve(overrides)
			if err != nil {
				return err
			}

			data := pterm.TableData{{"OPTION", "VALUE", "ORIGIN", "LAYER", "PRIORITY"}}
			for _, id := range ids {
				items, err := snap.Items(id)
				if err != nil {
					return err
				}
				codec, err := app.Registry.Codec(id)
				if err != nil {
					return err
				}
				for _, item := range items {
					if filter != "" && item.Key != filter {
						continue
					}
					enc, err := codec.EncodeField(item.Key, item.Value)
					if err != nil {
						return err
					}
					data = append(data, provenanceRow(shape.JoinPath(id, item.Key), enc, snap, id, item.Key))
				}
			}
			if len(data) == 1 {
				fmt.Fprintln(cmd.OutOrStdout(), "No options resolved")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
		},
	}
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "Override an option for this run (plugin.option=value, repeatable)")
	return cmd
}

func provenanceRow(path string, enc any, snap *snapshot.Snapshot, id, name string) []string {
	prov, ok := snap.Origin(id, name)
	if !ok {
		return []string{path, cell(enc), "unset", "-", "-"}
	}
	priority := "-"
	if prov.Layer != snapshot.DeclaredDefault {
		priority = strconv.Itoa(prov.Priority)
	}
	return []string{path, cell(enc), string(prov.Origin), prov.Layer, priority}
}
