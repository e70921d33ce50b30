package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/shape"
)

func newSetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <plugin.option> <value>",
		Short: "Store an option in the store file",
		Long: `Validate a value against the option's declared type and write it to the
store file (store.path). The previous file is kept as a rotating backup.

Values are read as YAML, so lists and mappings use flow syntax:
  plugcfg set db.tags '[a, b]'
  plugcfg set db.password secret=db-pass`,
		Args: argsExactly(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, text := args[0], args[1]
			app, err := opts.setup()
			if err != nil {
				return err
			}
			d, o, err := app.option(path)
			if err != nil {
				return err
			}
			codec, err := app.Registry.Codec(d.ID)
			if err != nil {
				return err
			}

			// command-line text coerces like the environment does
			v, warnings, err := codec.DecodeField(path, o.Name, layer.ParseValue(text), true)
			if err != nil {
				return err
			}
			enc, err := codec.EncodeField(o.Name, v)
			if err != nil {
				return err
			}
			if err := app.Store.Set(path, enc); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range warnings {
				pterm.Warning.WithWriter(out).Println(w.String())
			}
			pterm.Success.WithWriter(out).Printfln("Set %s = %s in %s", path, cell(enc), app.Store.Path())

			stack, err := app.Stack(nil)
			if err != nil {
				return err
			}
			if _, l, ok := stack.Lookup(path); ok && l.Name() != app.Store.Path() {
				pterm.Warning.WithWriter(out).Printfln("%s is overridden by the %s layer %s", path, l.Origin(), l.Name())
			}
			return nil
		},
	}
}

func newResetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <plugin.option>",
		Short: "Remove an option from the store file",
		Long: `Remove an option from the store file so it falls back to lower layers or
its declared default. Paths of plugins that are no longer installed can be
reset too.`,
		Args: argsExactly(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, _, ok := shape.SplitPath(path); !ok {
				return usagef("invalid option path %q, expected <plugin>.<option>", path)
			}
			app, err := opts.setup()
			if err != nil {
				return err
			}
			removed, err := app.Store.Reset(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !removed {
				pterm.Info.WithWriter(out).Printfln("%s is not set in %s", path, app.Store.Path())
				return nil
			}
			pterm.Success.WithWriter(out).Printfln("Removed %s from %s", path, app.Store.Path())
			return nil
		},
	}
}
